/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package stackeffect is the stack-effect oracle: given an instruction and
// the operand-stack position the analyzer is currently tracking, it
// returns the net change in operand-stack depth the instruction
// contributes. Most opcodes have a fixed effect; a handful are
// context-sensitive on the tracked position (the dup/swap family) or need
// a descriptor resolved through the constant pool (field/invoke opcodes).
// The result is a pure function of (opcode, tracked position, operand
// bytes).
package stackeffect

import (
	"npeblame/code"
	"npeblame/constpool"
	"npeblame/descriptor"
	"npeblame/errs"
	"npeblame/opcodes"
)

// Terminator marks opcodes the backward walk must never step across: a
// return, an unconditional jump, or a throw. Control did not necessarily
// fall through to the faulting site from here, so the straight-line
// assumption the walk relies on no longer holds.
const Terminator = -127

var fixed = map[opcodes.Opcode]int{
	opcodes.Nop: 0,

	opcodes.AconstNull: 1,
	opcodes.Iconst_m1:  1, opcodes.Iconst_0: 1, opcodes.Iconst_1: 1, opcodes.Iconst_2: 1,
	opcodes.Iconst_3: 1, opcodes.Iconst_4: 1, opcodes.Iconst_5: 1,
	opcodes.Lconst_0: 2, opcodes.Lconst_1: 2,
	opcodes.Fconst_0: 1, opcodes.Fconst_1: 1, opcodes.Fconst_2: 1,
	opcodes.Dconst_0: 2, opcodes.Dconst_1: 2,
	opcodes.Bipush: 1, opcodes.Sipush: 1,
	opcodes.Ldc: 1, opcodes.LdcW: 1, opcodes.Ldc2W: 2,

	opcodes.Iload: 1, opcodes.Fload: 1, opcodes.Aload: 1,
	opcodes.Lload: 2, opcodes.Dload: 2,
	opcodes.Iload_0: 1, opcodes.Iload_1: 1, opcodes.Iload_2: 1, opcodes.Iload_3: 1,
	opcodes.Fload_0: 1, opcodes.Fload_1: 1, opcodes.Fload_2: 1, opcodes.Fload_3: 1,
	opcodes.Aload_0: 1, opcodes.Aload_1: 1, opcodes.Aload_2: 1, opcodes.Aload_3: 1,
	opcodes.Lload_0: 2, opcodes.Lload_1: 2, opcodes.Lload_2: 2, opcodes.Lload_3: 2,
	opcodes.Dload_0: 2, opcodes.Dload_1: 2, opcodes.Dload_2: 2, opcodes.Dload_3: 2,

	opcodes.Iaload: -1, opcodes.Faload: -1, opcodes.Aaload: -1,
	opcodes.Baload: -1, opcodes.Caload: -1, opcodes.Saload: -1,
	opcodes.Laload: 0, opcodes.Daload: 0,

	opcodes.Istore: -1, opcodes.Fstore: -1, opcodes.Astore: -1,
	opcodes.Lstore: -2, opcodes.Dstore: -2,
	opcodes.Istore_0: -1, opcodes.Istore_1: -1, opcodes.Istore_2: -1, opcodes.Istore_3: -1,
	opcodes.Fstore_0: -1, opcodes.Fstore_1: -1, opcodes.Fstore_2: -1, opcodes.Fstore_3: -1,
	opcodes.Astore_0: -1, opcodes.Astore_1: -1, opcodes.Astore_2: -1, opcodes.Astore_3: -1,
	opcodes.Lstore_0: -2, opcodes.Lstore_1: -2, opcodes.Lstore_2: -2, opcodes.Lstore_3: -2,
	opcodes.Dstore_0: -2, opcodes.Dstore_1: -2, opcodes.Dstore_2: -2, opcodes.Dstore_3: -2,

	opcodes.Iastore: -3, opcodes.Fastore: -3, opcodes.Aastore: -3,
	opcodes.Bastore: -3, opcodes.Castore: -3, opcodes.Sastore: -3,
	opcodes.Lastore: -4, opcodes.Dastore: -4,

	opcodes.Pop: -1, opcodes.Pop2: -2,

	opcodes.Iadd: -1, opcodes.Fadd: -1, opcodes.Isub: -1, opcodes.Fsub: -1,
	opcodes.Imul: -1, opcodes.Fmul: -1, opcodes.Idiv: -1, opcodes.Fdiv: -1,
	opcodes.Irem: -1, opcodes.Frem: -1,
	opcodes.Ladd: -2, opcodes.Dadd: -2, opcodes.Lsub: -2, opcodes.Dsub: -2,
	opcodes.Lmul: -2, opcodes.Dmul: -2, opcodes.Ldiv: -2, opcodes.Ddiv: -2,
	opcodes.Lrem: -2, opcodes.Drem: -2,
	opcodes.Ineg: 0, opcodes.Fneg: 0, opcodes.Lneg: 0, opcodes.Dneg: 0,
	opcodes.Ishl: -1, opcodes.Ishr: -1, opcodes.Iushr: -1,
	opcodes.Lshl: -1, opcodes.Lshr: -1, opcodes.Lushr: -1,
	opcodes.Iand: -1, opcodes.Ior: -1, opcodes.Ixor: -1,
	opcodes.Land: -2, opcodes.Lor: -2, opcodes.Lxor: -2,
	opcodes.Iinc: 0,

	opcodes.I2l: 1, opcodes.I2d: 1, opcodes.I2f: 0, opcodes.I2b: 0, opcodes.I2c: 0, opcodes.I2s: 0,
	opcodes.L2i: -1, opcodes.L2f: -1, opcodes.L2d: 0,
	opcodes.F2i: 0, opcodes.F2l: 1, opcodes.F2d: 1,
	opcodes.D2i: -1, opcodes.D2l: 0, opcodes.D2f: -1,

	opcodes.Lcmp: -3, opcodes.Fcmpl: -1, opcodes.Fcmpg: -1, opcodes.Dcmpl: -3, opcodes.Dcmpg: -3,

	opcodes.Ifeq: -1, opcodes.Ifne: -1, opcodes.Iflt: -1, opcodes.Ifge: -1, opcodes.Ifgt: -1, opcodes.Ifle: -1,
	opcodes.IfIcmpeq: -2, opcodes.IfIcmpne: -2, opcodes.IfIcmplt: -2,
	opcodes.IfIcmpge: -2, opcodes.IfIcmpgt: -2, opcodes.IfIcmple: -2,
	opcodes.IfAcmpeq: -2, opcodes.IfAcmpne: -2,
	opcodes.Ifnull: -1, opcodes.Ifnonnull: -1,

	opcodes.Goto: Terminator, opcodes.GotoW: Terminator,
	opcodes.Jsr: Terminator, opcodes.JsrW: Terminator, opcodes.Ret: Terminator,
	opcodes.Tableswitch: Terminator, opcodes.Lookupswitch: Terminator,
	opcodes.Ireturn: Terminator, opcodes.Lreturn: Terminator, opcodes.Freturn: Terminator,
	opcodes.Dreturn: Terminator, opcodes.Areturn: Terminator, opcodes.Return: Terminator,
	opcodes.Athrow: Terminator,

	opcodes.New: 1, opcodes.Newarray: 0, opcodes.Anewarray: 0,
	opcodes.Arraylength: 0, opcodes.Checkcast: 0, opcodes.Instanceof: 0,
	opcodes.Monitorenter: -1, opcodes.Monitorexit: -1,
}

// dupLayout maps each context-sensitive stack-shuffle opcode to the
// pre-instruction slot each post-instruction slot came from, plus the net
// word count the shuffle adds overall ("lift"). Slots beyond the mapped
// range are untouched content, just pushed lift words deeper; see Effect.
var dupLayout = map[opcodes.Opcode]struct {
	preOf []int
	lift  int
}{
	opcodes.Swap:   {[]int{1, 0}, 0},
	opcodes.Dup:    {[]int{0, 0}, 1},
	opcodes.DupX1:  {[]int{0, 1, 0}, 1},
	opcodes.DupX2:  {[]int{0, 1, 2, 0}, 1},
	opcodes.Dup2:   {[]int{0, 1, 0, 1}, 2},
	opcodes.Dup2X1: {[]int{0, 1, 2, 0, 1}, 2},
	opcodes.Dup2X2: {[]int{0, 1, 2, 3, 0, 1}, 2},
}

// Effect returns the net stack-depth delta inst contributes, for the slot
// currently `stackExcess` positions below the stack top as measured just
// after inst executes. cp resolves any constant-pool reference the
// instruction's dynamic rule needs.
func Effect(inst code.Instruction, cp *constpool.Pool, buf []byte, stackExcess int) (int, error) {
	op := inst.Op
	if op == opcodes.Wide {
		op = inst.WideOp
	}

	if layout, ok := dupLayout[op]; ok {
		if stackExcess < len(layout.preOf) {
			return stackExcess - layout.preOf[stackExcess], nil
		}
		return layout.lift, nil
	}

	switch op {
	case opcodes.Invokevirtual, opcodes.Invokespecial, opcodes.Invokestatic,
		opcodes.Invokeinterface, opcodes.Invokedynamic:
		return invokeEffect(op, inst, cp, buf)
	case opcodes.Multianewarray:
		dims := int(buf[inst.Offset+3])
		return 1 - dims, nil
	case opcodes.Getstatic, opcodes.Putstatic, opcodes.Getfield, opcodes.Putfield:
		return fieldEffect(op, inst, cp, buf)
	}

	if d, ok := fixed[op]; ok {
		return d, nil
	}
	return 0, errs.New(errs.UnsupportedStackOpcode, "no stack-effect rule for opcode %v at offset %d", op, inst.Offset)
}

func invokeEffect(op opcodes.Opcode, inst code.Instruction, cp *constpool.Pool, buf []byte) (int, error) {
	index := int(buf[inst.Offset+1])<<8 | int(buf[inst.Offset+2])
	entry, err := cp.Get(index)
	if err != nil {
		return 0, err
	}
	natIndex := int(entry.NameAndTypeIndex)
	nat, err := cp.Get(natIndex)
	if err != nil {
		return 0, err
	}
	descText, err := cp.Utf8At(int(nat.DescIndex))
	if err != nil {
		return 0, err
	}
	sig, err := descriptor.ParseMethod(descText)
	if err != nil {
		return 0, err
	}

	delta := -sig.ParameterLength
	if op != opcodes.Invokestatic && op != opcodes.Invokedynamic {
		delta--
	}
	if sig.Return != "void" {
		delta += descriptor.Width(sig.Return)
	}
	return delta, nil
}

func fieldEffect(op opcodes.Opcode, inst code.Instruction, cp *constpool.Pool, buf []byte) (int, error) {
	index := int(buf[inst.Offset+1])<<8 | int(buf[inst.Offset+2])
	entry, err := cp.Get(index)
	if err != nil {
		return 0, err
	}
	nat, err := cp.Get(int(entry.NameAndTypeIndex))
	if err != nil {
		return 0, err
	}
	descText, err := cp.Utf8At(int(nat.DescIndex))
	if err != nil {
		return 0, err
	}
	width, err := descriptor.FieldWidth(descText)
	if err != nil {
		return 0, err
	}

	switch op {
	case opcodes.Getstatic:
		return width, nil
	case opcodes.Putstatic:
		return -width, nil
	case opcodes.Getfield:
		return -1 + width, nil
	case opcodes.Putfield:
		return -1 - width, nil
	}
	return 0, errs.New(errs.UnsupportedStackOpcode, "unreachable field opcode %v", op)
}
