package vm

import "github.com/zeebo/xxh3"

// ImageChecksum returns a fast, non-cryptographic checksum of a raw image
// buffer, used by debug tooling to tag a run against the exact bytes it
// loaded rather than trusting a filename.
func ImageChecksum(image []byte) uint64 {
	return xxh3.Hash(image)
}

// StackSnapshot is a point-in-time, human-readable view of a VM's
// execution state, intended for debug tooling rather than for resuming
// execution.
type StackSnapshot struct {
	IP     int
	SP     int
	FP     int
	Values []string
}

// Snapshot captures the VM's current stack contents. It is safe to call
// between instructions, such as from a TraceFunc.
func (vm *VM) Snapshot() StackSnapshot {
	values := make([]string, vm.sp)
	for i := 0; i < vm.sp; i++ {
		values[i] = Stringify(vm.stack[i])
	}
	return StackSnapshot{IP: vm.ip, SP: vm.sp, FP: vm.fp, Values: values}
}
