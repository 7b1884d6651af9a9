package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Luminiscental/Crystal/bytecode"
)

func run(t *testing.T, b *bytecode.Builder) (string, error) {
	t.Helper()
	var out bytes.Buffer
	m := New(WithStdout(&out))
	defer m.Close()
	err := m.Execute(b.Bytes())
	return out.String(), err
}

func TestPrintAddition(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Emit(bytecode.OpPushConst, b.Int(1))
	b.Emit(bytecode.OpPushConst, b.Int(2))
	b.Emit(bytecode.OpIntAdd)
	b.Emit(bytecode.OpPrint)

	out, err := run(t, b)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.TrimSpace(out) != "3" {
		t.Errorf("got %q, want %q", out, "3")
	}
}

func TestGlobalReassignment(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Emit(bytecode.OpPushConst, b.Int(10))
	b.Emit(bytecode.OpSetGlobal, 0)
	b.Emit(bytecode.OpPushConst, b.Int(20))
	b.Emit(bytecode.OpSetGlobal, 0)
	b.Emit(bytecode.OpPushGlobal, 0)
	b.Emit(bytecode.OpPrint)

	out, err := run(t, b)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.TrimSpace(out) != "20" {
		t.Errorf("got %q, want %q", out, "20")
	}
}

func TestUndefinedGlobalIsAnError(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Emit(bytecode.OpPushGlobal, 5)

	_, err := run(t, b)
	if !Is(err, ErrUndefinedGlobal) {
		t.Fatalf("got %v, want UndefinedGlobal", err)
	}
}

func TestLocalOutOfRangeIsAnError(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Emit(bytecode.OpPushLocal, 0) // no locals have been pushed yet: sp == fp == 0

	_, err := run(t, b)
	if !Is(err, ErrLocalOutOfRange) {
		t.Fatalf("got %v, want LocalOutOfRange", err)
	}
}

func TestStructFieldRoundTrip(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Emit(bytecode.OpPushConst, b.Int(1))
	b.Emit(bytecode.OpPushConst, b.Int(2))
	b.Emit(bytecode.OpStruct, 2)
	b.Emit(bytecode.OpSetGlobal, 0)

	b.Emit(bytecode.OpPushGlobal, 0)
	b.Emit(bytecode.OpPushConst, b.Int(99))
	b.Emit(bytecode.OpSetField, 1) // leaves the struct on the stack

	b.Emit(bytecode.OpGetField, 1)
	b.Emit(bytecode.OpPrint)

	out, err := run(t, b)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.TrimSpace(out) != "99" {
		t.Errorf("got %q, want %q", out, "99")
	}
}

func TestIntegerDivisionByZero(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Emit(bytecode.OpPushConst, b.Int(1))
	b.Emit(bytecode.OpPushConst, b.Int(0))
	b.Emit(bytecode.OpIntDiv)

	_, err := run(t, b)
	if !Is(err, ErrDivByZero) {
		t.Fatalf("got %v, want DivByZero", err)
	}
}

func TestFloatDivisionByZeroProducesInf(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Emit(bytecode.OpPushConst, b.Num(1))
	b.Emit(bytecode.OpPushConst, b.Num(0))
	b.Emit(bytecode.OpNumDiv)
	b.Emit(bytecode.OpPrint)

	out, err := run(t, b)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "Inf") {
		t.Errorf("got %q, want a string containing Inf", out)
	}
}

func TestMalformedConstantTagStopsBeforeExecution(t *testing.T) {
	image := []byte{1, 99}
	m := New()
	defer m.Close()
	err := m.Execute(image)
	if !Is(err, ErrUnknownConstTag) {
		t.Fatalf("got %v, want UnknownConstTag", err)
	}
}

func TestStringConcatenation(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Emit(bytecode.OpPushConst, b.Str("foo"))
	b.Emit(bytecode.OpPushConst, b.Str("bar"))
	b.Emit(bytecode.OpStrCat)
	b.Emit(bytecode.OpPrint)

	out, err := run(t, b)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.TrimSpace(out) != "foobar" {
		t.Errorf("got %q, want %q", out, "foobar")
	}
}

// TestFunctionCallReturnsValue hand-assembles:
//
//	func double(x) { return x + x }
//	print(double(21))
//
// CALL's convention pushes the callee's CodePtr first, then its arguments,
// then CALL n; the callee unwinds via LOAD_FP; LOAD_IP, and the caller's
// very next instruction (PUSH_RETURN) is what actually collects the
// result, since ip has already jumped back into the caller's stream by
// the time the callee finishes unwinding.
func TestFunctionCallReturnsValue(t *testing.T) {
	b := bytecode.NewBuilder()

	// FUNCTION pushes CodePtr(here-after-header) and jumps past the body;
	// the jump operand is patched once the body's length is known.
	jumpOperand := b.Here() + 1
	b.Emit(bytecode.OpFunction, 0)

	b.Emit(bytecode.OpPushLocal, 0)
	b.Emit(bytecode.OpPushLocal, 0)
	b.Emit(bytecode.OpIntAdd)
	b.Emit(bytecode.OpSetReturn)
	b.Emit(bytecode.OpPop) // discard the argument local
	b.Emit(bytecode.OpLoadFP)
	b.Emit(bytecode.OpLoadIP)

	b.PatchJump(jumpOperand)

	// Stack: [CodePtr(double)]
	b.Emit(bytecode.OpPushConst, b.Int(21))
	// Stack: [CodePtr(double), 21]
	b.Emit(bytecode.OpCall, 1)
	b.Emit(bytecode.OpPushReturn)
	b.Emit(bytecode.OpPrint)

	out, err := run(t, b)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.TrimSpace(out) != "42" {
		t.Errorf("got %q, want %q", out, "42")
	}
}

// TestUpvalueAliasesLiveSlot mutates a local through a REF_LOCAL/SET_REF
// pair and checks the change is visible both through the upvalue (DEREF)
// and through the original local slot (PUSH_LOCAL), confirming the
// upvalue aliases the slot rather than copying it while open.
func TestUpvalueAliasesLiveSlot(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Emit(bytecode.OpPushConst, b.Int(0)) // local 0
	b.Emit(bytecode.OpRefLocal, 0)
	b.Emit(bytecode.OpPushConst, b.Int(7))
	b.Emit(bytecode.OpSetRef)

	b.Emit(bytecode.OpPushLocal, 0)
	b.Emit(bytecode.OpPrint)

	out, err := run(t, b)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.TrimSpace(out) != "7" {
		t.Errorf("got %q, want %q", out, "7")
	}
}

// TestUpvalueClosesOnPop checks that once a slot is popped, its upvalue
// keeps the value it last held rather than reading whatever the VM later
// reuses that stack index for.
func TestUpvalueClosesOnPop(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Emit(bytecode.OpPushConst, b.Int(5)) // local 0, slot 0
	b.Emit(bytecode.OpRefLocal, 0)
	b.Emit(bytecode.OpSetGlobal, 0) // stash the upvalue in a global
	b.Emit(bytecode.OpPop)          // pop slot 0, closing the upvalue at 5

	b.Emit(bytecode.OpPushConst, b.Int(99)) // reoccupies slot 0
	b.Emit(bytecode.OpPop)

	b.Emit(bytecode.OpPushGlobal, 0)
	b.Emit(bytecode.OpDeref)
	b.Emit(bytecode.OpPrint)

	out, err := run(t, b)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.TrimSpace(out) != "5" {
		t.Errorf("got %q, want %q", out, "5")
	}
}

// TestLoopCountdown hand-assembles a while-style loop using a global
// counter, JUMP_IF_FALSE, and a backward LOOP, printing 2, 1, 0.
func TestLoopCountdown(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Emit(bytecode.OpPushConst, b.Int(2))
	b.Emit(bytecode.OpSetGlobal, 0)

	loopStart := b.Here()
	b.Emit(bytecode.OpPushGlobal, 0)
	b.Emit(bytecode.OpPushConst, b.Int(-1))
	b.Emit(bytecode.OpIntGreater) // counter > -1, i.e. counter >= 0
	exitJumpOperand := b.Here() + 1
	b.Emit(bytecode.OpJumpIfFalse, 0)

	b.Emit(bytecode.OpPushGlobal, 0)
	b.Emit(bytecode.OpPrint)

	b.Emit(bytecode.OpPushGlobal, 0)
	b.Emit(bytecode.OpPushConst, b.Int(1))
	b.Emit(bytecode.OpIntSub)
	b.Emit(bytecode.OpSetGlobal, 0)

	loopOperandPos := b.Here() + 1
	b.Emit(bytecode.OpLoop, 0)
	b.PatchLoop(loopOperandPos, loopStart)

	b.PatchJump(exitJumpOperand)

	out, err := run(t, b)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := "2\n1\n0\n"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}
