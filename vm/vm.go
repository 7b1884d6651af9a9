// Package vm implements the Crystal bytecode virtual machine: a
// fixed-stack, function-pointer-dispatched interpreter for a small
// register-free instruction set with globals, structs and closures over
// stack-resident upvalues.
package vm

import (
	"errors"
	"io"
	"os"

	"github.com/Luminiscental/Crystal/bytecode"
)

// StackMax is the default bound on the VM's value stack, overridable via
// WithStackMax. Whatever bound is chosen, the backing slice is allocated
// once at construction and never grown, because open upvalues alias live
// stack slots by absolute index; letting the stack reallocate would
// invalidate every open upvalue pointing into it.
const StackMax = 256

// MaxFrames is the default bound on call nesting depth, overridable via
// WithMaxFrames. Frames live on the value stack itself as saved
// CodePtr/FramePtr pairs rather than in a separate frame array; depth is
// counted (CALL increments, LOAD_IP decrements) and checked against this
// ceiling as a sanity limit on recursion.
const MaxFrames = 256

// TraceFunc, if set, is invoked before each instruction executes, for
// debugging tools built on top of the VM (see the crystaldbg package).
type TraceFunc func(vm *VM, ip int, op byte)

// VM executes a single loaded image to completion or to the first error.
type VM struct {
	stack []Value
	sp    int
	fp    int

	upchain []*upchainNode

	stackMax  int
	globalMax int
	maxFrames int

	globals Globals
	heap    Heap

	consts []bytecode.Const
	code   []byte
	ip     int

	returnStore Value

	frameDepth int

	Stdout io.Writer
	Clock  func() float64
	Trace  TraceFunc

	handlers [bytecode.OpCount]opHandler
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithStdout redirects PRINT output; the default is os.Stdout.
func WithStdout(w io.Writer) Option {
	return func(vm *VM) { vm.Stdout = w }
}

// WithClock overrides the source CLOCK reads from; the default reports
// process CPU time in seconds elapsed since the VM was created.
func WithClock(clock func() float64) Option {
	return func(vm *VM) { vm.Clock = clock }
}

// WithTrace installs a per-instruction trace hook.
func WithTrace(fn TraceFunc) Option {
	return func(vm *VM) { vm.Trace = fn }
}

// WithStackMax overrides the value stack's capacity; the default is
// StackMax. It has no effect once the VM has allocated its stack, so it
// must be passed to New.
func WithStackMax(max int) Option {
	return func(vm *VM) { vm.stackMax = max }
}

// WithGlobalMax overrides the number of distinct globals the VM accepts;
// the default is GlobalMax. It has no effect once the VM has allocated its
// globals table, so it must be passed to New.
func WithGlobalMax(max int) Option {
	return func(vm *VM) { vm.globalMax = max }
}

// WithMaxFrames overrides the call nesting ceiling; the default is
// MaxFrames.
func WithMaxFrames(max int) Option {
	return func(vm *VM) { vm.maxFrames = max }
}

// New constructs a VM ready to Execute an image.
func New(opts ...Option) *VM {
	vm := &VM{
		Stdout:    os.Stdout,
		stackMax:  StackMax,
		globalMax: GlobalMax,
		maxFrames: MaxFrames,
	}
	for _, opt := range opts {
		opt(vm)
	}
	vm.stack = make([]Value, vm.stackMax)
	vm.upchain = make([]*upchainNode, vm.stackMax)
	vm.globals = newGlobals(vm.globalMax)
	if vm.Clock == nil {
		start := cpuSeconds()
		vm.Clock = func() float64 { return cpuSeconds() - start }
	}
	vm.installHandlers()
	return vm
}

// Close releases the VM's heap. It does not clear the VM's other state;
// a closed VM should not be reused.
func (vm *VM) Close() {
	vm.heap.Free()
}

// Execute parses image and runs it to completion. Parsing failures surface
// as MalformedImage-category errors before any instruction executes;
// execution failures carry the ip and opcode active at the time of
// failure.
func (vm *VM) Execute(image []byte) error {
	img, err := bytecode.Parse(image)
	if err != nil {
		return translateParseError(err)
	}
	vm.consts = img.Consts
	vm.code = img.Code
	vm.ip = 0
	vm.sp = 0
	vm.fp = 0

	for vm.ip < len(vm.code) {
		op := vm.code[vm.ip]
		if vm.Trace != nil {
			vm.Trace(vm, vm.ip, op)
		}
		if int(op) >= bytecode.OpCount {
			return newError(ErrUnknownOpcode, vm.ip, op, "opcode byte %d is out of range", op)
		}
		handler := vm.handlers[op]
		if handler == nil {
			return newError(ErrUnimplementedOpcode, vm.ip, op, "opcode %s has no handler", bytecode.Op(op).String())
		}
		if err := handler(vm); err != nil {
			// Errors built without position (the globals table's) get the
			// failing instruction's ip and opcode attached here.
			var ve *Error
			if errors.As(err, &ve) && ve.IP == 0 && ve.Op == 0 {
				ve.IP, ve.Op = vm.ip, op
			}
			return err
		}
	}
	return nil
}

func translateParseError(err error) error {
	if errors.Is(err, bytecode.ErrTruncatedImage) {
		return &Error{Kind: ErrTruncatedImage, Message: err.Error(), Cause: err}
	}
	return &Error{Kind: ErrUnknownConstTag, Message: err.Error(), Cause: err}
}

// operand reads the k-th single-byte immediate following the opcode at ip,
// failing if the instruction stream ends first.
func (vm *VM) operand(k int) (byte, error) {
	pos := vm.ip + 1 + k
	if pos >= len(vm.code) {
		return 0, newError(ErrTruncatedInstruction, vm.ip, vm.code[vm.ip], "missing operand %d", k)
	}
	return vm.code[pos], nil
}

func (vm *VM) push(v Value) error {
	if vm.sp >= len(vm.stack) {
		return newError(ErrStackOverflow, vm.ip, vm.code[vm.ip], "stack overflow at sp=%d", vm.sp)
	}
	vm.stack[vm.sp] = v
	vm.sp++
	return nil
}

func (vm *VM) pop() (Value, error) {
	if vm.sp <= 0 {
		return Value{}, newError(ErrStackUnderflow, vm.ip, vm.code[vm.ip], "stack underflow")
	}
	vm.sp--
	slot := vm.sp
	v := vm.stack[slot]
	vm.closeSlot(slot)
	return v, nil
}

func (vm *VM) top() (Value, error) {
	if vm.sp <= 0 {
		return Value{}, newError(ErrStackUnderflow, vm.ip, vm.code[vm.ip], "stack underflow")
	}
	return vm.stack[vm.sp-1], nil
}

func (vm *VM) constAt(idx int) (bytecode.Const, error) {
	if idx < 0 || idx >= len(vm.consts) {
		return bytecode.Const{}, newError(ErrConstOutOfRange, vm.ip, vm.code[vm.ip], "constant index %d out of range", idx)
	}
	return vm.consts[idx], nil
}

func (vm *VM) localSlot(i int) (int, error) {
	slot := vm.fp + i
	if i < 0 || slot < 0 || slot >= vm.sp {
		return 0, newError(ErrLocalOutOfRange, vm.ip, vm.code[vm.ip], "local index %d out of range", i)
	}
	return slot, nil
}
