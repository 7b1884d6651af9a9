package bytecode

import (
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	b := NewBuilder()
	one := b.Int(1)
	two := b.Int(2)
	b.Emit(OpPushConst, one)
	b.Emit(OpPushConst, two)
	b.Emit(OpIntAdd)
	b.Emit(OpPrint)

	img, err := Parse(b.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(img.Consts) != 2 {
		t.Fatalf("expected 2 constants, got %d", len(img.Consts))
	}
	if img.Consts[0].Int != 1 || img.Consts[1].Int != 2 {
		t.Fatalf("unexpected constant values: %+v", img.Consts)
	}
	wantCode := []byte{byte(OpPushConst), 0, byte(OpPushConst), 1, byte(OpIntAdd), byte(OpPrint)}
	if len(img.Code) != len(wantCode) {
		t.Fatalf("code length mismatch: got %d want %d", len(img.Code), len(wantCode))
	}
	for i := range wantCode {
		if img.Code[i] != wantCode[i] {
			t.Errorf("code[%d] = %d, want %d", i, img.Code[i], wantCode[i])
		}
	}
}

func TestParseStringConstant(t *testing.T) {
	b := NewBuilder()
	idx := b.Str("hi")
	b.Emit(OpPushConst, idx)

	img, err := Parse(b.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if img.Consts[0].Str != "hi" {
		t.Errorf("got %q, want %q", img.Consts[0].Str, "hi")
	}
}

func TestParseTruncatedImage(t *testing.T) {
	buf := []byte{1, byte(ConstInt), 0, 0} // claims an int const but only 2 payload bytes
	if _, err := Parse(buf); err == nil {
		t.Fatal("expected error for truncated image, got nil")
	}
}

func TestParseUnknownConstTag(t *testing.T) {
	buf := []byte{1, 99}
	if _, err := Parse(buf); err == nil {
		t.Fatal("expected error for unknown constant tag, got nil")
	}
}

func TestParseEmptyImage(t *testing.T) {
	if _, err := Parse(nil); err == nil {
		t.Fatal("expected error for empty buffer, got nil")
	}
}

func TestJumpPatching(t *testing.T) {
	b := NewBuilder()
	b.Emit(OpPushTrue)
	jumpPos := b.Here() + 1
	b.Emit(OpJumpIfFalse, 0)
	b.Emit(OpPushConst, b.Int(1))
	b.PatchJump(jumpPos)

	img, err := Parse(b.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	off := img.Code[jumpPos]
	if int(off) != 2 {
		t.Errorf("patched offset = %d, want 2", off)
	}
}
