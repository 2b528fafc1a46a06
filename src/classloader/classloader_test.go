/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import (
	"testing"

	"npeblame/opcodes"
)

// classBuilder assembles a minimal real class file byte-for-byte for the
// tests in this package. It only ever emits exactly what a single test needs: one class, one method, an
// optional LocalVariableTable.
type classBuilder struct {
	cpEntries [][]byte // each already tagged, in on-wire order starting at index 1
	utf8Index map[string]int
}

func newClassBuilder() *classBuilder {
	return &classBuilder{utf8Index: make(map[string]int)}
}

func (b *classBuilder) u2(v uint16) []byte { return []byte{byte(v >> 8), byte(v)} }
func (b *classBuilder) u4(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func (b *classBuilder) addUtf8(s string) int {
	if idx, ok := b.utf8Index[s]; ok {
		return idx
	}
	entry := append([]byte{1}, b.u2(uint16(len(s)))...)
	entry = append(entry, []byte(s)...)
	b.cpEntries = append(b.cpEntries, entry)
	idx := len(b.cpEntries)
	b.utf8Index[s] = idx
	return idx
}

func (b *classBuilder) addClass(internalName string) int {
	nameIdx := b.addUtf8(internalName)
	b.cpEntries = append(b.cpEntries, append([]byte{7}, b.u2(uint16(nameIdx))...))
	return len(b.cpEntries)
}

func (b *classBuilder) addNameAndType(name, desc string) int {
	n := b.addUtf8(name)
	d := b.addUtf8(desc)
	entry := append([]byte{12}, b.u2(uint16(n))...)
	entry = append(entry, b.u2(uint16(d))...)
	b.cpEntries = append(b.cpEntries, entry)
	return len(b.cpEntries)
}

func (b *classBuilder) addMethodRef(className, name, desc string) int {
	ci := b.addClass(className)
	nt := b.addNameAndType(name, desc)
	entry := append([]byte{10}, b.u2(uint16(ci))...)
	entry = append(entry, b.u2(uint16(nt))...)
	b.cpEntries = append(b.cpEntries, entry)
	return len(b.cpEntries)
}

func (b *classBuilder) addFieldRef(className, name, desc string) int {
	ci := b.addClass(className)
	nt := b.addNameAndType(name, desc)
	entry := append([]byte{9}, b.u2(uint16(ci))...)
	entry = append(entry, b.u2(uint16(nt))...)
	b.cpEntries = append(b.cpEntries, entry)
	return len(b.cpEntries)
}

// localVarRow is one LocalVariableTable row for build.
type localVarRow struct {
	startPC, length, slot int
	name, desc            string
}

// build assembles a full class file with exactly one method named
// methodName/methodDesc, access flags mods, bytecode, and the given
// LocalVariableTable rows (nil/empty means no LocalVariableTable
// attribute at all).
func (b *classBuilder) build(className, methodName, methodDesc string, mods uint16, bytecode []byte, vars []localVarRow) []byte {
	thisClassIdx := b.addClass(className)
	nameIdx := b.addUtf8(methodName)
	descIdx := b.addUtf8(methodDesc)
	codeAttrNameIdx := b.addUtf8("Code")

	var lvtAttr []byte
	if len(vars) > 0 {
		lvtNameIdx := b.addUtf8("LocalVariableTable")
		body := b.u2(uint16(len(vars)))
		for _, v := range vars {
			nIdx := b.addUtf8(v.name)
			dIdx := b.addUtf8(v.desc)
			body = append(body, b.u2(uint16(v.startPC))...)
			body = append(body, b.u2(uint16(v.length))...)
			body = append(body, b.u2(uint16(nIdx))...)
			body = append(body, b.u2(uint16(dIdx))...)
			body = append(body, b.u2(uint16(v.slot))...)
		}
		lvtAttr = append(b.u2(uint16(lvtNameIdx)), b.u4(uint32(len(body)))...)
		lvtAttr = append(lvtAttr, body...)
	}

	// Code attribute body: max_stack, max_locals, code_length, code,
	// exception_table_length(0), attributes_count, [LocalVariableTable].
	codeBody := b.u2(4) // max_stack
	codeBody = append(codeBody, b.u2(4)...) // max_locals
	codeBody = append(codeBody, b.u4(uint32(len(bytecode)))...)
	codeBody = append(codeBody, bytecode...)
	codeBody = append(codeBody, b.u2(0)...) // exception_table_length
	if lvtAttr != nil {
		codeBody = append(codeBody, b.u2(1)...)
		codeBody = append(codeBody, lvtAttr...)
	} else {
		codeBody = append(codeBody, b.u2(0)...)
	}

	codeAttr := append(b.u2(uint16(codeAttrNameIdx)), b.u4(uint32(len(codeBody)))...)
	codeAttr = append(codeAttr, codeBody...)

	method := append(b.u2(mods), b.u2(uint16(nameIdx))...)
	method = append(method, b.u2(uint16(descIdx))...)
	method = append(method, b.u2(1)...) // method attributes_count (just Code)
	method = append(method, codeAttr...)

	var out []byte
	out = append(out, b.u4(0xCAFEBABE)...)
	out = append(out, b.u2(0)...) // minor
	out = append(out, b.u2(52)...) // major
	out = append(out, b.u2(uint16(len(b.cpEntries)+1))...) // constant_pool_count
	for _, e := range b.cpEntries {
		out = append(out, e...)
	}
	out = append(out, b.u2(0x0021)...) // access_flags: PUBLIC|SUPER-ish, unused by the analyzer
	out = append(out, b.u2(uint16(thisClassIdx))...)
	out = append(out, b.u2(0)...) // super_class
	out = append(out, b.u2(0)...) // interfaces_count
	out = append(out, b.u2(0)...) // fields_count
	out = append(out, b.u2(1)...) // methods_count
	out = append(out, method...)
	out = append(out, b.u2(0)...) // class attributes_count
	return out
}

func TestParseSimpleClass(t *testing.T) {
	b := newClassBuilder()
	mapGet := b.addMethodRef("java/util/Map", "get", "(Ljava/lang/Object;)Ljava/lang/Object;")
	bytecode := []byte{
		byte(opcodes.Aload_1),
		byte(opcodes.Invokevirtual), byte(mapGet >> 8), byte(mapGet),
		byte(opcodes.Pop),
		byte(opcodes.Return),
	}
	raw := b.build("com/Example", "f", "(Ljava/lang/Object;)V", 0x0001, bytecode,
		[]localVarRow{{0, len(bytecode), 1, "x", "Ljava/util/Map;"}})

	pc, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if pc.Name != "com/Example" {
		t.Errorf("expected class name com/Example, got %q", pc.Name)
	}
	if len(pc.Methods) != 1 {
		t.Fatalf("expected 1 method, got %d", len(pc.Methods))
	}
	m := pc.Methods[0]
	if m.Name != "f" || m.IsStatic() {
		t.Errorf("unexpected method: %+v", m)
	}
	if m.Code == nil || len(m.Code.Instructions) != 4 {
		t.Fatalf("expected 4 decoded instructions, got %+v", m.Code)
	}
	e, ok := m.Code.LocalVars.Lookup(1, 0)
	if !ok || e.Name != "x" || e.HumanDesc != "java.util.Map" {
		t.Errorf("unexpected local-variable lookup: %+v, %v", e, ok)
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	if _, err := Parse([]byte{0, 0, 0, 0}); err == nil {
		t.Errorf("expected an error for a bad magic number")
	}
}

func TestParamSlotAndParamIndexForSlot(t *testing.T) {
	sigMethod := Method{
		ClassName: "com/Example",
		Name:      "f",
		Modifiers: 0, // instance method
	}
	sigMethod.Sig.Params = []string{"int", "long", "java.lang.String"}
	// slot 0 = this, slot1 = int param0, slot2-3 = long param1, slot4 = String param2
	if got := sigMethod.ParamSlot(0); got != 1 {
		t.Errorf("expected param 0 at slot 1, got %d", got)
	}
	if got := sigMethod.ParamSlot(2); got != 4 {
		t.Errorf("expected param 2 at slot 4, got %d", got)
	}
	if idx, ok := sigMethod.ParamIndexForSlot(4); !ok || idx != 2 {
		t.Errorf("expected slot 4 to resolve to param 2, got %d, %v", idx, ok)
	}
	if _, ok := sigMethod.ParamIndexForSlot(0); ok {
		t.Errorf("expected slot 0 (this) to not resolve to a declared parameter")
	}
	if _, ok := sigMethod.ParamIndexForSlot(100); ok {
		t.Errorf("expected an out-of-range slot to not resolve")
	}
}
