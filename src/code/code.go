/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package code decodes a method's Code attribute: the raw bytecode array
// plus a precomputed ordered sequence of instruction-start offsets that
// partition it. It owns the variable-length decoding rules for the wide
// prefix and the two switch instructions, and a one-instruction
// pretty-printer used for debug dumps.
package code

import (
	"fmt"
	"strings"

	"npeblame/constpool"
	"npeblame/errs"
	"npeblame/localvars"
	"npeblame/opcodes"
)

// Instruction is one decoded bytecode instruction: its offset, opcode, and
// the length it occupies. Switch opcodes additionally carry their decoded
// jump table; Wide carries the opcode it modifies.
type Instruction struct {
	Offset int
	Op     opcodes.Opcode
	Length int

	// WideOp is the modified opcode when Op == opcodes.Wide.
	WideOp opcodes.Opcode

	// Default/Low/High/Offsets describe a Tableswitch's jump table.
	// Default/Pairs describe a Lookupswitch's.
	Default int
	Low     int
	High    int
	Offsets []int32
	Pairs   map[int32]int32
}

// Attribute is a decoded Code attribute: the raw bytes plus the ordered
// instruction offsets satisfying C4 (offsets partition the byte sequence).
type Attribute struct {
	Bytes        []byte
	Instructions []Instruction
	byOffset     map[int]int // offset -> index into Instructions
	LocalVars    *localvars.Table
}

// Decode walks buf from offset 0 appending each encountered instruction
// until the array ends. vars may be nil, in
// which case an empty local-variable table is substituted.
func Decode(buf []byte, vars *localvars.Table) (*Attribute, error) {
	if vars == nil {
		vars = localvars.Empty()
	}
	attr := &Attribute{Bytes: buf, LocalVars: vars, byOffset: make(map[int]int)}

	for pos := 0; pos < len(buf); {
		inst, err := decodeAt(buf, pos)
		if err != nil {
			return nil, err
		}
		attr.byOffset[pos] = len(attr.Instructions)
		attr.Instructions = append(attr.Instructions, inst)
		pos += inst.Length
	}

	if len(attr.Instructions) > 0 {
		last := attr.Instructions[len(attr.Instructions)-1]
		if last.Offset+last.Length != len(buf) {
			return nil, errs.New(errs.MalformedConstantPool,
				"instruction at offset %d overruns the code array (length %d, buffer %d bytes)",
				last.Offset, last.Length, len(buf))
		}
	}
	return attr, nil
}

func decodeAt(buf []byte, pos int) (Instruction, error) {
	op := opcodes.Opcode(buf[pos])
	if !opcodes.IsDefined(op) {
		return Instruction{}, errs.New(errs.MalformedConstantPool, "unrecognized opcode 0x%02X at offset %d", op, pos)
	}

	switch op {
	case opcodes.Wide:
		return decodeWide(buf, pos)
	case opcodes.Tableswitch:
		return decodeTableswitch(buf, pos)
	case opcodes.Lookupswitch:
		return decodeLookupswitch(buf, pos)
	default:
		length := opcodes.Lookup(op).Length
		if pos+length > len(buf) {
			return Instruction{}, errs.New(errs.MalformedConstantPool,
				"instruction at offset %d (opcode 0x%02X) truncated: needs %d bytes, have %d", pos, op, length, len(buf)-pos)
		}
		return Instruction{Offset: pos, Op: op, Length: length}, nil
	}
}

// decodeWide handles the two wide forms: "wide <opcode> <u2 index>" (4
// bytes total) and "wide iinc <u2 index> <s2 const>" (6 bytes total).
func decodeWide(buf []byte, pos int) (Instruction, error) {
	if pos+2 > len(buf) {
		return Instruction{}, errs.New(errs.MalformedConstantPool, "truncated wide instruction at offset %d", pos)
	}
	modified := opcodes.Opcode(buf[pos+1])
	length := 4
	if modified == opcodes.Iinc {
		length = 6
	}
	if pos+length > len(buf) {
		return Instruction{}, errs.New(errs.MalformedConstantPool, "truncated wide instruction at offset %d", pos)
	}
	return Instruction{Offset: pos, Op: opcodes.Wide, WideOp: modified, Length: length}, nil
}

// alignedPad returns the number of padding bytes following the opcode byte
// so the first operand begins at an offset that's a multiple of 4 relative
// to the start of the method's bytecode array, the alignment rule for
// tableswitch/lookupswitch operands.
func alignedPad(pos int) int {
	return (4 - (pos+1)%4) % 4
}

func decodeTableswitch(buf []byte, pos int) (Instruction, error) {
	cursor := pos + 1 + alignedPad(pos)
	if cursor+12 > len(buf) {
		return Instruction{}, errs.New(errs.MalformedConstantPool, "truncated tableswitch at offset %d", pos)
	}
	def := readS4(buf, cursor)
	low := readS4(buf, cursor+4)
	high := readS4(buf, cursor+8)
	cursor += 12

	if high < low {
		return Instruction{}, errs.New(errs.MalformedConstantPool, "tableswitch at offset %d has high %d < low %d", pos, high, low)
	}
	n := high - low + 1
	if cursor+4*n > len(buf) {
		return Instruction{}, errs.New(errs.MalformedConstantPool, "truncated tableswitch jump table at offset %d", pos)
	}
	offsets := make([]int32, n)
	for i := 0; i < n; i++ {
		offsets[i] = int32(readS4(buf, cursor+4*i))
	}
	cursor += 4 * n

	return Instruction{
		Offset: pos, Op: opcodes.Tableswitch, Length: cursor - pos,
		Default: def, Low: low, High: high, Offsets: offsets,
	}, nil
}

func decodeLookupswitch(buf []byte, pos int) (Instruction, error) {
	cursor := pos + 1 + alignedPad(pos)
	if cursor+8 > len(buf) {
		return Instruction{}, errs.New(errs.MalformedConstantPool, "truncated lookupswitch at offset %d", pos)
	}
	def := readS4(buf, cursor)
	npairs := readS4(buf, cursor+4)
	cursor += 8
	if npairs < 0 {
		return Instruction{}, errs.New(errs.MalformedConstantPool, "lookupswitch at offset %d has negative npairs %d", pos, npairs)
	}
	if cursor+8*npairs > len(buf) {
		return Instruction{}, errs.New(errs.MalformedConstantPool, "truncated lookupswitch table at offset %d", pos)
	}
	pairs := make(map[int32]int32, npairs)
	for i := 0; i < npairs; i++ {
		match := int32(readS4(buf, cursor+8*i))
		offset := int32(readS4(buf, cursor+8*i+4))
		pairs[match] = offset
	}
	cursor += 8 * npairs

	return Instruction{Offset: pos, Op: opcodes.Lookupswitch, Length: cursor - pos, Default: def, Pairs: pairs}, nil
}

func readS4(buf []byte, pos int) int {
	return int(int32(uint32(buf[pos])<<24 | uint32(buf[pos+1])<<16 | uint32(buf[pos+2])<<8 | uint32(buf[pos+3])))
}

// At returns the instruction starting exactly at offset, and whether one
// exists (offset must be an instruction boundary, not a mid-instruction
// byte).
func (a *Attribute) At(offset int) (Instruction, bool) {
	idx, ok := a.byOffset[offset]
	if !ok {
		return Instruction{}, false
	}
	return a.Instructions[idx], true
}

// IndexOf returns the position of the instruction at offset within the
// Instructions slice, for backward/forward stepping by the analyzer.
func (a *Attribute) IndexOf(offset int) (int, bool) {
	idx, ok := a.byOffset[offset]
	return idx, ok
}

// Print renders one instruction: mnemonic
// left-padded to 15 columns followed by its operand(s) resolved through the
// constant pool or local-variable table. Switch instructions print their
// mnemonic alone.
func (a *Attribute) Print(inst Instruction, cp *constpool.Pool) string {
	mnemonic := opcodes.Lookup(inst.Op).Mnemonic
	if inst.Op == opcodes.Wide {
		mnemonic = "wide " + opcodes.Lookup(inst.WideOp).Mnemonic
	}
	padded := fmt.Sprintf("%-15s", mnemonic)

	switch inst.Op {
	case opcodes.Tableswitch, opcodes.Lookupswitch:
		return strings.TrimRight(padded, " ")
	}

	operand := a.operandText(inst, cp)
	if operand == "" {
		return strings.TrimRight(padded, " ")
	}
	return padded + operand
}

func (a *Attribute) operandText(inst Instruction, cp *constpool.Pool) string {
	switch inst.Op {
	case opcodes.Ldc, opcodes.LdcW, opcodes.Ldc2W,
		opcodes.Getstatic, opcodes.Putstatic, opcodes.Getfield, opcodes.Putfield,
		opcodes.Invokevirtual, opcodes.Invokespecial, opcodes.Invokestatic,
		opcodes.Invokeinterface, opcodes.Invokedynamic,
		opcodes.New, opcodes.Anewarray, opcodes.Checkcast, opcodes.Instanceof,
		opcodes.Multianewarray:
		index := cpIndexOperand(a.Bytes, inst)
		if cp == nil {
			return fmt.Sprintf("#%d", index)
		}
		text, err := cp.Describe(index, false)
		if err != nil {
			return fmt.Sprintf("#%d", index)
		}
		return text

	case opcodes.Iload, opcodes.Lload, opcodes.Fload, opcodes.Dload, opcodes.Aload,
		opcodes.Istore, opcodes.Lstore, opcodes.Fstore, opcodes.Dstore, opcodes.Astore:
		slot := int(a.Bytes[inst.Offset+1])
		return localName(a.LocalVars, slot, inst.Offset)

	default:
		return ""
	}
}

func localName(vars *localvars.Table, slot, pc int) string {
	if e, ok := vars.Lookup(slot, pc); ok {
		return fmt.Sprintf("%s:%s", e.Name, e.HumanDesc)
	}
	return fmt.Sprintf("slot %d", slot)
}

func cpIndexOperand(buf []byte, inst Instruction) int {
	if inst.Op == opcodes.Ldc {
		return int(buf[inst.Offset+1])
	}
	return int(buf[inst.Offset+1])<<8 | int(buf[inst.Offset+2])
}
