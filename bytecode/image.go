package bytecode

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Constant pool entry tags, as they appear in the image header.
const (
	ConstInt Op = 0
	ConstNum Op = 1
	ConstStr Op = 2
)

// ConstKind identifies the type of a decoded constant-pool entry.
type ConstKind byte

const (
	KindInt ConstKind = iota
	KindNum
	KindStr
)

// Const is one decoded entry of the constant pool.
type Const struct {
	Kind ConstKind
	Int  int64
	Num  float64
	Str  string
}

// Image is a parsed bytecode file: its constant pool and the raw
// instruction stream that follows it.
type Image struct {
	Consts []Const
	Code   []byte
}

// Sentinel errors describing a malformed image. Op/IP context is added by
// the caller, matching the categorical error taxonomy the VM reports
// during execution.
var (
	ErrTruncatedImage = errors.New("truncated image")
	ErrUnknownConstTag = errors.New("unknown constant tag")
)

// Parse decodes an image: a leading byte giving the constant count K,
// followed by K constant-pool entries, followed by the instruction
// stream running to the end of buf.
//
// Entry layout by tag:
//
//	INT (0): tag byte, 4-byte little-endian signed int32
//	NUM (1): tag byte, 8-byte little-endian IEEE-754 float64
//	STR (2): tag byte, 1-byte length L, then L bytes
func Parse(buf []byte) (*Image, error) {
	if len(buf) < 1 {
		return nil, ErrTruncatedImage
	}
	count := int(buf[0])
	pos := 1

	consts := make([]Const, 0, count)
	for i := 0; i < count; i++ {
		if pos >= len(buf) {
			return nil, errors.Wrapf(ErrTruncatedImage, "constant %d", i)
		}
		tag := Op(buf[pos])
		pos++
		switch tag {
		case ConstInt:
			if pos+4 > len(buf) {
				return nil, errors.Wrapf(ErrTruncatedImage, "constant %d (int)", i)
			}
			v := int32(binary.LittleEndian.Uint32(buf[pos : pos+4]))
			pos += 4
			consts = append(consts, Const{Kind: KindInt, Int: int64(v)})
		case ConstNum:
			if pos+8 > len(buf) {
				return nil, errors.Wrapf(ErrTruncatedImage, "constant %d (num)", i)
			}
			bits := binary.LittleEndian.Uint64(buf[pos : pos+8])
			pos += 8
			consts = append(consts, Const{Kind: KindNum, Num: math.Float64frombits(bits)})
		case ConstStr:
			if pos+1 > len(buf) {
				return nil, errors.Wrapf(ErrTruncatedImage, "constant %d (str length)", i)
			}
			length := int(buf[pos])
			pos++
			if pos+length > len(buf) {
				return nil, errors.Wrapf(ErrTruncatedImage, "constant %d (str body)", i)
			}
			consts = append(consts, Const{Kind: KindStr, Str: string(buf[pos : pos+length])})
			pos += length
		default:
			return nil, errors.Wrapf(ErrUnknownConstTag, "constant %d, tag %d", i, tag)
		}
	}

	return &Image{Consts: consts, Code: buf[pos:]}, nil
}
