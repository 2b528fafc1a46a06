/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package stackeffect

import (
	"testing"

	"npeblame/code"
	"npeblame/constpool"
	"npeblame/errs"
	"npeblame/opcodes"
)

func TestFixedEffects(t *testing.T) {
	cases := []struct {
		op   opcodes.Opcode
		want int
	}{
		{opcodes.Nop, 0},
		{opcodes.AconstNull, 1},
		{opcodes.Lconst_0, 2},
		{opcodes.Iadd, -1},
		{opcodes.Ladd, -2},
		{opcodes.Return, Terminator},
		{opcodes.Athrow, Terminator},
	}
	for _, c := range cases {
		inst := code.Instruction{Op: c.op}
		got, err := Effect(inst, nil, nil, 0)
		if err != nil {
			t.Fatalf("Effect(%v) failed: %v", c.op, err)
		}
		if got != c.want {
			t.Errorf("Effect(%v) = %d, want %d", c.op, got, c.want)
		}
	}
}

func TestUnsupportedOpcode(t *testing.T) {
	inst := code.Instruction{Op: opcodes.Breakpoint}
	_, err := Effect(inst, nil, nil, 0)
	if !errs.Is(err, errs.UnsupportedStackOpcode) {
		t.Errorf("expected UnsupportedStackOpcode, got %v", err)
	}
}

func TestDupShallowestSlotIsDuplicated(t *testing.T) {
	inst := code.Instruction{Op: opcodes.Dup}
	got, err := Effect(inst, nil, nil, 0)
	if err != nil {
		t.Fatalf("Effect failed: %v", err)
	}
	if got != 0 {
		t.Errorf("dup at excess 0 should map to pre-index 0 (delta 0), got %d", got)
	}
}

func TestDupDeepSlotShiftsByLift(t *testing.T) {
	inst := code.Instruction{Op: opcodes.Dup}
	got, err := Effect(inst, nil, nil, 5)
	if err != nil {
		t.Fatalf("Effect failed: %v", err)
	}
	if got != 1 {
		t.Errorf("dup at a deep excess should shift by lift 1, got %d", got)
	}
}

func TestSwapFlipsTopTwo(t *testing.T) {
	inst := code.Instruction{Op: opcodes.Swap}
	got0, _ := Effect(inst, nil, nil, 0)
	got1, _ := Effect(inst, nil, nil, 1)
	if got0 != -1 || got1 != 1 {
		t.Errorf("expected swap deltas (-1, 1) for excess (0, 1), got (%d, %d)", got0, got1)
	}
}

// buildFieldRefPool constructs a minimal constant pool containing a single
// FieldRef at index 6 with the given descriptor.
func buildFieldRefPool(t *testing.T, desc string) *constpool.Pool {
	t.Helper()
	u2 := func(v uint16) []byte { return []byte{byte(v >> 8), byte(v)} }
	utf8 := func(s string) []byte {
		out := []byte{1}
		out = append(out, u2(uint16(len(s)))...)
		return append(out, []byte(s)...)
	}
	raw := append([]byte{}, utf8("com/Foo")...)         // 1
	raw = append(raw, append([]byte{7}, u2(1)...)...)    // 2: Class -> 1
	raw = append(raw, utf8("x")...)                      // 3
	raw = append(raw, utf8(desc)...)                      // 4
	raw = append(raw, append([]byte{12}, append(u2(3), u2(4)...)...)...) // 5: NameAndType(3,4)
	raw = append(raw, append([]byte{9}, append(u2(2), u2(5)...)...)...) // 6: FieldRef(2,5)
	pool, err := constpool.Parse(raw, 7)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return pool
}

func TestFieldEffects(t *testing.T) {
	pool := buildFieldRefPool(t, "I")
	buf := []byte{byte(opcodes.Getfield), 0x00, 0x06}
	inst := code.Instruction{Op: opcodes.Getfield, Offset: 0}
	got, err := Effect(inst, pool, buf, 0)
	if err != nil {
		t.Fatalf("Effect failed: %v", err)
	}
	if got != 0 { // -1 + width(1)
		t.Errorf("expected getfield delta 0 for int field, got %d", got)
	}

	bufPut := []byte{byte(opcodes.Putfield), 0x00, 0x06}
	instPut := code.Instruction{Op: opcodes.Putfield, Offset: 0}
	got, err = Effect(instPut, pool, bufPut, 0)
	if err != nil {
		t.Fatalf("Effect failed: %v", err)
	}
	if got != -2 { // -1 - width(1)
		t.Errorf("expected putfield delta -2 for int field, got %d", got)
	}
}

func TestFieldEffectWideField(t *testing.T) {
	pool := buildFieldRefPool(t, "D")
	buf := []byte{byte(opcodes.Getstatic), 0x00, 0x06}
	inst := code.Instruction{Op: opcodes.Getstatic, Offset: 0}
	got, err := Effect(inst, pool, buf, 0)
	if err != nil {
		t.Fatalf("Effect failed: %v", err)
	}
	if got != 2 {
		t.Errorf("expected getstatic delta 2 for double field, got %d", got)
	}
}

func TestMultianewarrayEffect(t *testing.T) {
	buf := []byte{byte(opcodes.Multianewarray), 0x00, 0x01, 0x03}
	inst := code.Instruction{Op: opcodes.Multianewarray, Offset: 0}
	got, err := Effect(inst, nil, buf, 0)
	if err != nil {
		t.Fatalf("Effect failed: %v", err)
	}
	if got != 1-3 {
		t.Errorf("expected multianewarray delta %d, got %d", 1-3, got)
	}
}

func TestWideUnwrapsToModifiedOpcode(t *testing.T) {
	inst := code.Instruction{Op: opcodes.Wide, WideOp: opcodes.Iload}
	got, err := Effect(inst, nil, nil, 0)
	if err != nil {
		t.Fatalf("Effect failed: %v", err)
	}
	if got != 1 {
		t.Errorf("expected wide iload to use iload's delta 1, got %d", got)
	}
}
