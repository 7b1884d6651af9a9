package vm

import "fmt"

// ObjKind tags the payload of a heap-allocated Object.
type ObjKind byte

const (
	ObjString ObjKind = iota
	ObjStruct
	ObjUpvalue
)

// Object is a heap-allocated value. Every Object the VM ever creates is
// linked into the VM's allocation list via next, so the whole heap can be
// torn down in one pass on Close without a tracing collector.
type Object struct {
	Kind ObjKind
	next *Object

	Str    string  // valid when Kind == ObjString
	Fields []Value // valid when Kind == ObjStruct
	cell   *upvalueCell
}

func (o *Object) String() string {
	switch o.Kind {
	case ObjString:
		return o.Str
	case ObjStruct:
		return fmt.Sprintf("<struct %d fields>", len(o.Fields))
	case ObjUpvalue:
		return "<upvalue>"
	default:
		return "<obj>"
	}
}

// Heap owns every Object allocated during a VM's lifetime.
type Heap struct {
	head *Object
}

func (h *Heap) track(o *Object) *Object {
	o.next = h.head
	h.head = o
	return o
}

// AllocString allocates a new string object.
func (h *Heap) AllocString(s string) *Object {
	return h.track(&Object{Kind: ObjString, Str: s})
}

// AllocStruct allocates a new struct object with the given number of
// nil-initialized fields.
func (h *Heap) AllocStruct(fieldCount int) *Object {
	fields := make([]Value, fieldCount)
	for i := range fields {
		fields[i] = Nil
	}
	return h.track(&Object{Kind: ObjStruct, Fields: fields})
}

// AllocUpvalue allocates a new upvalue object wrapping cell.
func (h *Heap) AllocUpvalue(cell *upvalueCell) *Object {
	return h.track(&Object{Kind: ObjUpvalue, cell: cell})
}

// Free drops every allocation, letting the Go garbage collector reclaim
// the heap in bulk. There is no incremental collection; the VM's heap
// lives and dies with the VM.
func (h *Heap) Free() {
	h.head = nil
}

// ConcatStrings implements STR_CAT: both operands must be string objects.
func ConcatStrings(a, b Value) (string, bool) {
	if a.Kind() != KindObj || b.Kind() != KindObj {
		return "", false
	}
	ao, bo := a.AsObj(), b.AsObj()
	if ao.Kind != ObjString || bo.Kind != ObjString {
		return "", false
	}
	return ao.Str + bo.Str, true
}
