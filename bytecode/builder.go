package bytecode

import (
	"encoding/binary"
	"math"
)

// Builder assembles an image byte-by-byte. It exists for tests and for the
// disassembler's round-trip fixtures; it is not a compiler.
type Builder struct {
	consts []Const
	code   []byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Int adds an integer constant and returns its index.
func (b *Builder) Int(v int64) byte {
	b.consts = append(b.consts, Const{Kind: KindInt, Int: v})
	return byte(len(b.consts) - 1)
}

// Num adds a floating-point constant and returns its index.
func (b *Builder) Num(v float64) byte {
	b.consts = append(b.consts, Const{Kind: KindNum, Num: v})
	return byte(len(b.consts) - 1)
}

// Str adds a string constant and returns its index.
func (b *Builder) Str(v string) byte {
	b.consts = append(b.consts, Const{Kind: KindStr, Str: v})
	return byte(len(b.consts) - 1)
}

// Emit appends an opcode and its immediate bytes to the instruction stream.
func (b *Builder) Emit(op Op, operands ...byte) *Builder {
	b.code = append(b.code, byte(op))
	b.code = append(b.code, operands...)
	return b
}

// Here returns the current length of the instruction stream, usable as a
// jump target once resolved to a relative offset.
func (b *Builder) Here() int {
	return len(b.code)
}

// PatchJump overwrites the single-byte operand at operandPos (the position
// immediately following a JUMP/JUMP_IF_FALSE opcode byte) with the
// forward distance from operandPos+1 to the builder's current position.
func (b *Builder) PatchJump(operandPos int) {
	b.code[operandPos] = byte(len(b.code) - (operandPos + 1))
}

// PatchLoop overwrites the single-byte operand at operandPos (the position
// immediately following a LOOP opcode byte) with the backward distance
// from the builder's current position to target.
func (b *Builder) PatchLoop(operandPos, target int) {
	b.code[operandPos] = byte(len(b.code) - target)
}

// Bytes serializes the constant pool header followed by the instruction
// stream, producing a well-formed image.
func (b *Builder) Bytes() []byte {
	out := []byte{byte(len(b.consts))}
	for _, c := range b.consts {
		switch c.Kind {
		case KindInt:
			out = append(out, byte(ConstInt))
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], uint32(int32(c.Int)))
			out = append(out, buf[:]...)
		case KindNum:
			out = append(out, byte(ConstNum))
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(c.Num))
			out = append(out, buf[:]...)
		case KindStr:
			out = append(out, byte(ConstStr))
			out = append(out, byte(len(c.Str)))
			out = append(out, []byte(c.Str)...)
		}
	}
	out = append(out, b.code...)
	return out
}
