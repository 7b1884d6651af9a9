package crystaldbg

import (
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/Luminiscental/Crystal/bytecode"
)

func TestDisassembleIncludesConstantAnnotation(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Emit(bytecode.OpPushConst, b.Int(42))
	b.Emit(bytecode.OpPrint)

	color.NoColor = true
	text, err := Disassemble("fixture", b.Bytes())
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	if !strings.Contains(text, "PUSH_CONST") {
		t.Errorf("expected PUSH_CONST in output, got %q", text)
	}
	if !strings.Contains(text, "42") {
		t.Errorf("expected constant value 42 in output, got %q", text)
	}
}

func TestDisassembleRejectsMalformedImage(t *testing.T) {
	if _, err := Disassemble("bad", []byte{1, 99}); err == nil {
		t.Fatal("expected an error for a malformed image")
	}
}
