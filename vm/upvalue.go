package vm

// upvalueCell is the shared mutable cell an upvalue refers to. While open
// it aliases a live stack slot so writes through either the stack index or
// the upvalue observe each other; once its slot is popped, close copies
// the slot's final value in and the cell stops aliasing the stack.
type upvalueCell struct {
	open bool
	slot int   // valid while open: index into vm.stack
	val  Value // valid once closed
}

func (c *upvalueCell) get(vm *VM) Value {
	if c.open {
		return vm.stack[c.slot]
	}
	return c.val
}

func (c *upvalueCell) set(vm *VM, v Value) {
	if c.open {
		vm.stack[c.slot] = v
		return
	}
	c.val = v
}

func (c *upvalueCell) close(vm *VM) {
	if !c.open {
		return
	}
	c.val = vm.stack[c.slot]
	c.open = false
}

// upchainNode is one link in the back-chain of upvalues pointing at a
// given stack slot. The chain lives outside Value itself: it is a property
// of the slot the VM currently occupies, not of whatever value sits there,
// so overwriting a slot with SET_LOCAL never disturbs the upvalues chained
// to it.
type upchainNode struct {
	cell *upvalueCell
	next *upchainNode
}

// refLocal implements REF_LOCAL: it finds or creates an open upvalue cell
// aliasing the stack slot at absolute index slot, chaining it onto that
// slot's back-chain, and returns a heap object wrapping the cell.
func (vm *VM) refLocal(slot int) *Object {
	for node := vm.upchain[slot]; node != nil; node = node.next {
		if node.cell.open {
			return vm.heap.AllocUpvalue(node.cell)
		}
	}
	cell := &upvalueCell{open: true, slot: slot}
	vm.upchain[slot] = &upchainNode{cell: cell, next: vm.upchain[slot]}
	return vm.heap.AllocUpvalue(cell)
}

// closeSlot closes every upvalue chained to the given stack slot and
// clears the chain, called whenever POP discards that slot.
func (vm *VM) closeSlot(slot int) {
	for node := vm.upchain[slot]; node != nil; node = node.next {
		node.cell.close(vm)
	}
	vm.upchain[slot] = nil
}
