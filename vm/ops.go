package vm

import (
	"fmt"

	"github.com/Luminiscental/Crystal/bytecode"
)

type opHandler func(vm *VM) error

func (vm *VM) installHandlers() {
	h := &vm.handlers

	h[bytecode.OpPushConst] = (*VM).opPushConst
	h[bytecode.OpPushTrue] = (*VM).opPushTrue
	h[bytecode.OpPushFalse] = (*VM).opPushFalse
	h[bytecode.OpPushNil] = (*VM).opPushNil
	h[bytecode.OpPop] = (*VM).opPop

	h[bytecode.OpSetGlobal] = (*VM).opSetGlobal
	h[bytecode.OpPushGlobal] = (*VM).opPushGlobal
	h[bytecode.OpSetLocal] = (*VM).opSetLocal
	h[bytecode.OpPushLocal] = (*VM).opPushLocal

	h[bytecode.OpInt] = (*VM).opCoerceInt
	h[bytecode.OpNum] = (*VM).opCoerceNum
	h[bytecode.OpBool] = (*VM).opCoerceBool
	h[bytecode.OpStr] = (*VM).opCoerceStr

	h[bytecode.OpIntAdd] = intBinOp(func(a, b int64) int64 { return a + b })
	h[bytecode.OpIntSub] = intBinOp(func(a, b int64) int64 { return a - b })
	h[bytecode.OpIntMul] = intBinOp(func(a, b int64) int64 { return a * b })
	h[bytecode.OpIntDiv] = (*VM).opIntDiv
	h[bytecode.OpIntNeg] = (*VM).opIntNeg
	h[bytecode.OpIntLess] = intCmpOp(func(a, b int64) bool { return a < b })
	h[bytecode.OpIntGreater] = intCmpOp(func(a, b int64) bool { return a > b })

	h[bytecode.OpNumAdd] = numBinOp(func(a, b float64) float64 { return a + b })
	h[bytecode.OpNumSub] = numBinOp(func(a, b float64) float64 { return a - b })
	h[bytecode.OpNumMul] = numBinOp(func(a, b float64) float64 { return a * b })
	h[bytecode.OpNumDiv] = numBinOp(func(a, b float64) float64 { return a / b })
	h[bytecode.OpNumNeg] = (*VM).opNumNeg
	h[bytecode.OpNumLess] = numCmpOp(func(a, b float64) bool { return a < b-NumPrecision })
	h[bytecode.OpNumGreater] = numCmpOp(func(a, b float64) bool { return a > b+NumPrecision })

	h[bytecode.OpStrCat] = (*VM).opStrCat
	h[bytecode.OpNot] = (*VM).opNot
	h[bytecode.OpEqual] = (*VM).opEqual

	h[bytecode.OpPrint] = (*VM).opPrint
	h[bytecode.OpClock] = (*VM).opClock

	h[bytecode.OpJump] = (*VM).opJump
	h[bytecode.OpJumpIfFalse] = (*VM).opJumpIfFalse
	h[bytecode.OpLoop] = (*VM).opLoop

	h[bytecode.OpFunction] = (*VM).opFunction
	h[bytecode.OpCall] = (*VM).opCall
	h[bytecode.OpLoadIP] = (*VM).opLoadIP
	h[bytecode.OpLoadFP] = (*VM).opLoadFP
	h[bytecode.OpSetReturn] = (*VM).opSetReturn
	h[bytecode.OpPushReturn] = (*VM).opPushReturn

	h[bytecode.OpStruct] = (*VM).opStruct
	h[bytecode.OpGetField] = (*VM).opGetField
	h[bytecode.OpExtractField] = (*VM).opExtractField
	h[bytecode.OpSetField] = (*VM).opSetField

	h[bytecode.OpRefLocal] = (*VM).opRefLocal
	h[bytecode.OpDeref] = (*VM).opDeref
	h[bytecode.OpSetRef] = (*VM).opSetRef
}

func (vm *VM) typeError(v Value, want string) error {
	return newError(ErrTypeMismatch, vm.ip, vm.code[vm.ip], "expected %s, got %s", want, v.Kind())
}

// -- stack / constants --------------------------------------------------

func (vm *VM) opPushConst() error {
	idx, err := vm.operand(0)
	if err != nil {
		return err
	}
	c, err := vm.constAt(int(idx))
	if err != nil {
		return err
	}
	var v Value
	switch c.Kind {
	case bytecode.KindInt:
		v = Int(c.Int)
	case bytecode.KindNum:
		v = Num(c.Num)
	case bytecode.KindStr:
		v = ObjVal(vm.heap.AllocString(c.Str))
	}
	if err := vm.push(v); err != nil {
		return err
	}
	vm.ip += 2
	return nil
}

func (vm *VM) opPushTrue() error {
	if err := vm.push(Bool(true)); err != nil {
		return err
	}
	vm.ip++
	return nil
}

func (vm *VM) opPushFalse() error {
	if err := vm.push(Bool(false)); err != nil {
		return err
	}
	vm.ip++
	return nil
}

// opPushNil pushes the nil value. The reference implementation's PUSH_NIL
// carried a copy-paste bug that pushed false instead of nil; we implement
// the instruction as its name promises.
func (vm *VM) opPushNil() error {
	if err := vm.push(Nil); err != nil {
		return err
	}
	vm.ip++
	return nil
}

func (vm *VM) opPop() error {
	if _, err := vm.pop(); err != nil {
		return err
	}
	vm.ip++
	return nil
}

// -- variables ------------------------------------------------------------

func (vm *VM) opSetGlobal() error {
	idx, err := vm.operand(0)
	if err != nil {
		return err
	}
	v, err := vm.pop()
	if err != nil {
		return err
	}
	if err := vm.globals.Set(int(idx), v); err != nil {
		return err
	}
	vm.ip += 2
	return nil
}

func (vm *VM) opPushGlobal() error {
	idx, err := vm.operand(0)
	if err != nil {
		return err
	}
	v, err := vm.globals.Get(int(idx))
	if err != nil {
		return err
	}
	if err := vm.push(v); err != nil {
		return err
	}
	vm.ip += 2
	return nil
}

func (vm *VM) opSetLocal() error {
	idx, err := vm.operand(0)
	if err != nil {
		return err
	}
	v, err := vm.pop()
	if err != nil {
		return err
	}
	slot, err := vm.localSlot(int(idx))
	if err != nil {
		return err
	}
	vm.stack[slot] = v
	vm.ip += 2
	return nil
}

func (vm *VM) opPushLocal() error {
	idx, err := vm.operand(0)
	if err != nil {
		return err
	}
	slot, err := vm.localSlot(int(idx))
	if err != nil {
		return err
	}
	if err := vm.push(vm.stack[slot]); err != nil {
		return err
	}
	vm.ip += 2
	return nil
}

// -- coercions --------------------------------------------------------------

func (vm *VM) opCoerceInt() error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	var out Value
	switch v.Kind() {
	case KindInt:
		out = v
	case KindNum:
		out = Int(int64(v.AsNum()))
	case KindBool:
		if v.AsBool() {
			out = Int(1)
		} else {
			out = Int(0)
		}
	default:
		return vm.typeError(v, "int, num or bool")
	}
	if err := vm.push(out); err != nil {
		return err
	}
	vm.ip++
	return nil
}

func (vm *VM) opCoerceNum() error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	var out Value
	switch v.Kind() {
	case KindNum:
		out = v
	case KindInt:
		out = Num(float64(v.AsInt()))
	case KindBool:
		if v.AsBool() {
			out = Num(1)
		} else {
			out = Num(0)
		}
	default:
		return vm.typeError(v, "int, num or bool")
	}
	if err := vm.push(out); err != nil {
		return err
	}
	vm.ip++
	return nil
}

// opCoerceBool converts the numeric types to a boolean by testing against
// zero. Note the test is written as "not equal to zero" rather than
// "greater than zero": the reference implementation's BOOL coercion for
// numbers used a sign-based comparison that happened to invert on
// negative operands, and matching it means a bare != 0 test rather than a
// truthiness-looking > 0 test.
func (vm *VM) opCoerceBool() error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	var out Value
	switch v.Kind() {
	case KindBool:
		out = v
	case KindInt:
		out = Bool(v.AsInt() != 0)
	case KindNum:
		out = Bool(v.AsNum() != 0)
	default:
		return vm.typeError(v, "int, num or bool")
	}
	if err := vm.push(out); err != nil {
		return err
	}
	vm.ip++
	return nil
}

func (vm *VM) opCoerceStr() error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	out := ObjVal(vm.heap.AllocString(Stringify(v)))
	if err := vm.push(out); err != nil {
		return err
	}
	vm.ip++
	return nil
}

// -- integer arithmetic -------------------------------------------------

func intBinOp(f func(a, b int64) int64) opHandler {
	return func(vm *VM) error {
		b, err := vm.pop()
		if err != nil {
			return err
		}
		a, err := vm.pop()
		if err != nil {
			return err
		}
		if a.Kind() != KindInt {
			return vm.typeError(a, "int")
		}
		if b.Kind() != KindInt {
			return vm.typeError(b, "int")
		}
		if err := vm.push(Int(f(a.AsInt(), b.AsInt()))); err != nil {
			return err
		}
		vm.ip++
		return nil
	}
}

func intCmpOp(f func(a, b int64) bool) opHandler {
	return func(vm *VM) error {
		b, err := vm.pop()
		if err != nil {
			return err
		}
		a, err := vm.pop()
		if err != nil {
			return err
		}
		if a.Kind() != KindInt {
			return vm.typeError(a, "int")
		}
		if b.Kind() != KindInt {
			return vm.typeError(b, "int")
		}
		if err := vm.push(Bool(f(a.AsInt(), b.AsInt()))); err != nil {
			return err
		}
		vm.ip++
		return nil
	}
}

func (vm *VM) opIntDiv() error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	if a.Kind() != KindInt {
		return vm.typeError(a, "int")
	}
	if b.Kind() != KindInt {
		return vm.typeError(b, "int")
	}
	if b.AsInt() == 0 {
		return newError(ErrDivByZero, vm.ip, vm.code[vm.ip], "integer division by zero")
	}
	if err := vm.push(Int(a.AsInt() / b.AsInt())); err != nil {
		return err
	}
	vm.ip++
	return nil
}

func (vm *VM) opIntNeg() error {
	a, err := vm.pop()
	if err != nil {
		return err
	}
	if a.Kind() != KindInt {
		return vm.typeError(a, "int")
	}
	if err := vm.push(Int(-a.AsInt())); err != nil {
		return err
	}
	vm.ip++
	return nil
}

// -- numeric arithmetic ---------------------------------------------------

func numBinOp(f func(a, b float64) float64) opHandler {
	return func(vm *VM) error {
		b, err := vm.pop()
		if err != nil {
			return err
		}
		a, err := vm.pop()
		if err != nil {
			return err
		}
		if a.Kind() != KindNum {
			return vm.typeError(a, "num")
		}
		if b.Kind() != KindNum {
			return vm.typeError(b, "num")
		}
		// Floating-point division by zero yields +/-Inf or NaN rather than
		// an error, unlike integer division.
		if err := vm.push(Num(f(a.AsNum(), b.AsNum()))); err != nil {
			return err
		}
		vm.ip++
		return nil
	}
}

func numCmpOp(f func(a, b float64) bool) opHandler {
	return func(vm *VM) error {
		b, err := vm.pop()
		if err != nil {
			return err
		}
		a, err := vm.pop()
		if err != nil {
			return err
		}
		if a.Kind() != KindNum {
			return vm.typeError(a, "num")
		}
		if b.Kind() != KindNum {
			return vm.typeError(b, "num")
		}
		if err := vm.push(Bool(f(a.AsNum(), b.AsNum()))); err != nil {
			return err
		}
		vm.ip++
		return nil
	}
}

func (vm *VM) opNumNeg() error {
	a, err := vm.pop()
	if err != nil {
		return err
	}
	if a.Kind() != KindNum {
		return vm.typeError(a, "num")
	}
	if err := vm.push(Num(-a.AsNum())); err != nil {
		return err
	}
	vm.ip++
	return nil
}

// -- generic ops ----------------------------------------------------------

func (vm *VM) opStrCat() error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	s, ok := ConcatStrings(a, b)
	if !ok {
		return vm.typeError(a, "str")
	}
	if err := vm.push(ObjVal(vm.heap.AllocString(s))); err != nil {
		return err
	}
	vm.ip++
	return nil
}

func (vm *VM) opNot() error {
	a, err := vm.pop()
	if err != nil {
		return err
	}
	if err := vm.push(Bool(!a.Truthy())); err != nil {
		return err
	}
	vm.ip++
	return nil
}

func (vm *VM) opEqual() error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	if err := vm.push(Bool(Equal(a, b))); err != nil {
		return err
	}
	vm.ip++
	return nil
}

// -- host I/O ---------------------------------------------------------------

func (vm *VM) opPrint() error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	fmt.Fprintln(vm.Stdout, Stringify(v))
	vm.ip++
	return nil
}

func (vm *VM) opClock() error {
	if err := vm.push(Num(vm.Clock())); err != nil {
		return err
	}
	vm.ip++
	return nil
}

// -- control flow -----------------------------------------------------------

func (vm *VM) opJump() error {
	off, err := vm.operand(0)
	if err != nil {
		return err
	}
	target := vm.ip + 2 + int(off)
	if target < 0 || target > len(vm.code) {
		return newError(ErrJumpOutOfRange, vm.ip, vm.code[vm.ip], "jump target %d out of range", target)
	}
	vm.ip = target
	return nil
}

func (vm *VM) opJumpIfFalse() error {
	off, err := vm.operand(0)
	if err != nil {
		return err
	}
	v, err := vm.pop()
	if err != nil {
		return err
	}
	if v.Truthy() {
		vm.ip += 2
		return nil
	}
	target := vm.ip + 2 + int(off)
	if target < 0 || target > len(vm.code) {
		return newError(ErrJumpOutOfRange, vm.ip, vm.code[vm.ip], "jump target %d out of range", target)
	}
	vm.ip = target
	return nil
}

func (vm *VM) opLoop() error {
	off, err := vm.operand(0)
	if err != nil {
		return err
	}
	target := vm.ip + 2 - int(off)
	if target < 0 || target > len(vm.code) {
		return newError(ErrJumpOutOfRange, vm.ip, vm.code[vm.ip], "loop target %d out of range", target)
	}
	vm.ip = target
	return nil
}

// -- functions and calls ------------------------------------------------

func (vm *VM) opFunction() error {
	off, err := vm.operand(0)
	if err != nil {
		return err
	}
	if err := vm.push(CodePtr(vm.ip + 2)); err != nil {
		return err
	}
	vm.ip = vm.ip + 2 + int(off)
	return nil
}

func (vm *VM) opCall() error {
	n, err := vm.operand(0)
	if err != nil {
		return err
	}
	argc := int(n)
	if vm.sp < argc+1 {
		return newError(ErrStackUnderflow, vm.ip, vm.code[vm.ip], "call expects %d args", argc)
	}
	args := make([]Value, argc)
	copy(args, vm.stack[vm.sp-argc:vm.sp])
	vm.sp -= argc

	callee, err := vm.pop()
	if err != nil {
		return err
	}
	if callee.Kind() != KindCodePtr {
		return vm.typeError(callee, "codeptr")
	}

	returnIP := vm.ip + 2
	if err := vm.push(CodePtr(returnIP)); err != nil {
		return err
	}
	if err := vm.push(FramePtr(vm.fp)); err != nil {
		return err
	}
	vm.fp = vm.sp
	for _, a := range args {
		if err := vm.push(a); err != nil {
			return err
		}
	}
	vm.frameDepth++
	if vm.frameDepth > vm.maxFrames {
		return newError(ErrStackOverflow, vm.ip, vm.code[vm.ip], "call depth exceeds %d", vm.maxFrames)
	}
	vm.ip = callee.AsCodePtr()
	return nil
}

func (vm *VM) opLoadIP() error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	if v.Kind() != KindCodePtr {
		return vm.typeError(v, "codeptr")
	}
	vm.frameDepth--
	vm.ip = v.AsCodePtr()
	return nil
}

func (vm *VM) opLoadFP() error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	if v.Kind() != KindFramePtr {
		return vm.typeError(v, "frameptr")
	}
	vm.fp = v.AsFramePtr()
	vm.ip++
	return nil
}

func (vm *VM) opSetReturn() error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	vm.returnStore = v
	vm.ip++
	return nil
}

func (vm *VM) opPushReturn() error {
	if err := vm.push(vm.returnStore); err != nil {
		return err
	}
	vm.ip++
	return nil
}

// -- structs --------------------------------------------------------------

func (vm *VM) opStruct() error {
	n, err := vm.operand(0)
	if err != nil {
		return err
	}
	count := int(n)
	if vm.sp < count {
		return newError(ErrStackUnderflow, vm.ip, vm.code[vm.ip], "struct expects %d fields", count)
	}
	obj := vm.heap.AllocStruct(count)
	copy(obj.Fields, vm.stack[vm.sp-count:vm.sp])
	vm.sp -= count
	if err := vm.push(ObjVal(obj)); err != nil {
		return err
	}
	vm.ip += 2
	return nil
}

func (vm *VM) opGetField() error {
	i, err := vm.operand(0)
	if err != nil {
		return err
	}
	v, err := vm.pop()
	if err != nil {
		return err
	}
	obj, err := vm.structObj(v)
	if err != nil {
		return err
	}
	idx := int(i)
	if idx < 0 || idx >= len(obj.Fields) {
		return newError(ErrFieldOutOfRange, vm.ip, vm.code[vm.ip], "field index %d out of range", idx)
	}
	if err := vm.push(obj.Fields[idx]); err != nil {
		return err
	}
	vm.ip += 2
	return nil
}

// opExtractField reads field i of the struct sitting offset slots below
// the current stack top, without consuming it.
func (vm *VM) opExtractField() error {
	offset, err := vm.operand(0)
	if err != nil {
		return err
	}
	i, err := vm.operand(1)
	if err != nil {
		return err
	}
	pos := vm.sp - 1 - int(offset)
	if pos < 0 || pos >= vm.sp {
		return newError(ErrStackUnderflow, vm.ip, vm.code[vm.ip], "extract offset %d out of range", offset)
	}
	obj, err := vm.structObj(vm.stack[pos])
	if err != nil {
		return err
	}
	idx := int(i)
	if idx < 0 || idx >= len(obj.Fields) {
		return newError(ErrFieldOutOfRange, vm.ip, vm.code[vm.ip], "field index %d out of range", idx)
	}
	if err := vm.push(obj.Fields[idx]); err != nil {
		return err
	}
	vm.ip += 3
	return nil
}

// opSetField pops only the new value; the struct itself is peeked, not
// popped, so it remains on the stack for further chained field access.
func (vm *VM) opSetField() error {
	i, err := vm.operand(0)
	if err != nil {
		return err
	}
	v, err := vm.pop()
	if err != nil {
		return err
	}
	s, err := vm.top()
	if err != nil {
		return err
	}
	obj, err := vm.structObj(s)
	if err != nil {
		return err
	}
	idx := int(i)
	if idx < 0 || idx >= len(obj.Fields) {
		return newError(ErrFieldOutOfRange, vm.ip, vm.code[vm.ip], "field index %d out of range", idx)
	}
	obj.Fields[idx] = v
	vm.ip += 2
	return nil
}

func (vm *VM) structObj(v Value) (*Object, error) {
	if v.Kind() != KindObj || v.AsObj().Kind != ObjStruct {
		return nil, vm.typeError(v, "struct")
	}
	return v.AsObj(), nil
}

// -- closures / upvalues ------------------------------------------------

func (vm *VM) opRefLocal() error {
	i, err := vm.operand(0)
	if err != nil {
		return err
	}
	slot, err := vm.localSlot(int(i))
	if err != nil {
		return err
	}
	obj := vm.refLocal(slot)
	if err := vm.push(ObjVal(obj)); err != nil {
		return err
	}
	vm.ip += 2
	return nil
}

func (vm *VM) opDeref() error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	obj, err := vm.upvalueObj(v)
	if err != nil {
		return err
	}
	if err := vm.push(obj.cell.get(vm)); err != nil {
		return err
	}
	vm.ip++
	return nil
}

func (vm *VM) opSetRef() error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	ref, err := vm.pop()
	if err != nil {
		return err
	}
	obj, err := vm.upvalueObj(ref)
	if err != nil {
		return err
	}
	obj.cell.set(vm, v)
	vm.ip++
	return nil
}

func (vm *VM) upvalueObj(v Value) (*Object, error) {
	if v.Kind() != KindObj || v.AsObj().Kind != ObjUpvalue {
		return nil, vm.typeError(v, "upvalue")
	}
	return v.AsObj(), nil
}
