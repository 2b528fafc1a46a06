/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package analyzer

import (
	"testing"

	"npeblame/classloader"
	"npeblame/constpool"
	"npeblame/localvars"
	"npeblame/opcodes"
)

// cpBuilder assembles just the constant-pool payload bytes a scenario
// needs, independent of a full class file; each test builds exactly what
// it needs instead of sharing a fixture.
type cpBuilder struct {
	entries   [][]byte
	utf8Index map[string]int
}

func newCPBuilder() *cpBuilder { return &cpBuilder{utf8Index: make(map[string]int)} }

func (b *cpBuilder) u2(v uint16) []byte { return []byte{byte(v >> 8), byte(v)} }

func (b *cpBuilder) addUtf8(s string) int {
	if idx, ok := b.utf8Index[s]; ok {
		return idx
	}
	entry := append([]byte{1}, b.u2(uint16(len(s)))...)
	entry = append(entry, []byte(s)...)
	b.entries = append(b.entries, entry)
	idx := len(b.entries)
	b.utf8Index[s] = idx
	return idx
}

func (b *cpBuilder) addClass(internalName string) int {
	nameIdx := b.addUtf8(internalName)
	b.entries = append(b.entries, append([]byte{7}, b.u2(uint16(nameIdx))...))
	return len(b.entries)
}

func (b *cpBuilder) addNameAndType(name, desc string) int {
	n := b.addUtf8(name)
	d := b.addUtf8(desc)
	entry := append([]byte{12}, b.u2(uint16(n))...)
	entry = append(entry, b.u2(uint16(d))...)
	b.entries = append(b.entries, entry)
	return len(b.entries)
}

func (b *cpBuilder) addMethodRef(className, name, desc string) int {
	ci := b.addClass(className)
	nt := b.addNameAndType(name, desc)
	entry := append([]byte{10}, b.u2(uint16(ci))...)
	entry = append(entry, b.u2(uint16(nt))...)
	b.entries = append(b.entries, entry)
	return len(b.entries)
}

func (b *cpBuilder) addInterfaceMethodRef(className, name, desc string) int {
	ci := b.addClass(className)
	nt := b.addNameAndType(name, desc)
	entry := append([]byte{11}, b.u2(uint16(ci))...)
	entry = append(entry, b.u2(uint16(nt))...)
	b.entries = append(b.entries, entry)
	return len(b.entries)
}

func (b *cpBuilder) addFieldRef(className, name, desc string) int {
	ci := b.addClass(className)
	nt := b.addNameAndType(name, desc)
	entry := append([]byte{9}, b.u2(uint16(ci))...)
	entry = append(entry, b.u2(uint16(nt))...)
	b.entries = append(b.entries, entry)
	return len(b.entries)
}

// build concatenates every entry added so far and parses it into a Pool.
func (b *cpBuilder) build(t *testing.T) *constpool.Pool {
	t.Helper()
	var raw []byte
	for _, e := range b.entries {
		raw = append(raw, e...)
	}
	pool, err := constpool.Parse(raw, len(b.entries)+1)
	if err != nil {
		t.Fatalf("building constant pool: %v", err)
	}
	return pool
}

// u2 is the two-byte big-endian operand npeblame's instruction decoder
// expects after an opcode byte needing a constant-pool index.
func u2(v int) []byte { return []byte{byte(v >> 8), byte(v)} }

func newMethod(t *testing.T, className, name, rawDesc string, mods classloader.Modifier, bytecode []byte, vars []localvars.Entry) classloader.Method {
	t.Helper()
	var table *localvars.Table
	if len(vars) > 0 {
		var err error
		table, err = localvars.New(vars)
		if err != nil {
			t.Fatalf("building local-variable table: %v", err)
		}
	}
	m, err := classloader.NewMethod(className, name, rawDesc, mods, bytecode, table)
	if err != nil {
		t.Fatalf("building method: %v", err)
	}
	return m
}

func lv(slot int, name, desc string, length int) localvars.Entry {
	return localvars.Entry{Slot: slot, Name: name, RawDesc: desc, StartPC: 0, Length: length}
}

// TestExplainInvokeOnLocalVariableParameter: the null-check
// target is resolved through the variable table to the declared parameter
// it names.
func TestExplainInvokeOnLocalVariableParameter(t *testing.T) {
	cp := newCPBuilder()
	mapGet := cp.addMethodRef("java/util/Map", "get", "(Ljava/lang/Object;)Ljava/lang/Object;")
	pool := cp.build(t)

	bytecode := []byte{
		byte(opcodes.Aload_1),
		byte(opcodes.Invokevirtual), u2(mapGet)[0], u2(mapGet)[1],
		byte(opcodes.Pop),
		byte(opcodes.Return),
	}
	method := newMethod(t, "com/Example", "f", "(Ljava/lang/Object;)V", 0, bytecode,
		[]localvars.Entry{lv(1, "x", "Ljava/util/Map;", len(bytecode))})

	got, err := Explain(Frame{Method: method, Pool: pool, Offset: 1}, nil)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	want := "Invoking java.util.Map#get on null method parameter x:java.util.Map"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// TestExplainInvokeOnParameterByIndex: with no
// variable table, the analyzer falls back to a positional "method
// parameter at index N" description computed from the declared parameter
// widths (two single-width static parameters put the second at slot 1).
func TestExplainInvokeOnParameterByIndex(t *testing.T) {
	cp := newCPBuilder()
	mapGet := cp.addMethodRef("java/util/Map", "get", "(Ljava/lang/Object;)Ljava/lang/Object;")
	pool := cp.build(t)

	bytecode := []byte{
		byte(opcodes.Aload_1),
		byte(opcodes.Invokevirtual), u2(mapGet)[0], u2(mapGet)[1],
		byte(opcodes.Pop),
		byte(opcodes.Return),
	}
	method := newMethod(t, "com/Example", "f", "(Ljava/lang/Object;Ljava/lang/Object;)V",
		classloader.ModStatic, bytecode, nil)

	got, err := Explain(Frame{Method: method, Pool: pool, Offset: 1}, nil)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	want := "Invoking java.util.Map#get on null method parameter at index 1"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// TestExplainGetfieldOnStaticField: the producer of the null
// reference that faults a getfield is a getstatic earlier in the same
// straight-line sequence.
func TestExplainGetfieldOnStaticField(t *testing.T) {
	cp := newCPBuilder()
	fooBar := cp.addFieldRef("com/Foo", "bar", "Lcom/Baz;")
	bazX := cp.addFieldRef("com/Baz", "x", "I")
	pool := cp.build(t)

	bytecode := []byte{
		byte(opcodes.Getstatic), u2(fooBar)[0], u2(fooBar)[1],
		byte(opcodes.Getfield), u2(bazX)[0], u2(bazX)[1],
		byte(opcodes.Ireturn),
	}
	method := newMethod(t, "com/Foo", "m", "()I", classloader.ModStatic, bytecode, nil)

	got, err := Explain(Frame{Method: method, Pool: pool, Offset: 3}, nil)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	want := "Getting field com.Baz.x of null static field com.Foo.bar"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// TestExplainInvokeInterfaceOnInstanceField: the producer is an
// instance-field load (getfield) rather than a local variable.
func TestExplainInvokeInterfaceOnInstanceField(t *testing.T) {
	cp := newCPBuilder()
	fooCache := cp.addFieldRef("com/Foo", "cache", "Ljava/util/Map;")
	mapGet := cp.addInterfaceMethodRef("java/util/Map", "get", "(Ljava/lang/Object;)Ljava/lang/Object;")
	pool := cp.build(t)

	bytecode := []byte{
		byte(opcodes.Aload_0),
		byte(opcodes.Getfield), u2(fooCache)[0], u2(fooCache)[1],
		byte(opcodes.Aload_1),
		byte(opcodes.Invokeinterface), u2(mapGet)[0], u2(mapGet)[1], 2, 0,
		byte(opcodes.Areturn),
	}
	method := newMethod(t, "com/Foo", "f", "(Ljava/lang/Object;)Ljava/lang/Object;", 0, bytecode,
		[]localvars.Entry{
			lv(0, "this", "Lcom/Foo;", len(bytecode)),
			lv(1, "key", "Ljava/lang/Object;", len(bytecode)),
		})

	got, err := Explain(Frame{Method: method, Pool: pool, Offset: 5}, nil)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	want := "Invoking java.util.Map#get on null instance field com.Foo.cache"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// TestExplainAthrowOnConstant: a bare null literal thrown
// immediately.
func TestExplainAthrowOnConstant(t *testing.T) {
	pool := newCPBuilder().build(t)
	bytecode := []byte{byte(opcodes.AconstNull), byte(opcodes.Athrow)}
	method := newMethod(t, "com/Example", "f", "()V", classloader.ModStatic, bytecode, nil)

	got, err := Explain(Frame{Method: method, Pool: pool, Offset: 1}, nil)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	want := "Throwing null constant"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// TestExplainRequireNonNullIntrinsicRetargetsToCaller: the fault
// is reported inside java.util.Objects.requireNonNull itself, so the
// analysis retargets to the caller's invokestatic call site.
func TestExplainRequireNonNullIntrinsicRetargetsToCaller(t *testing.T) {
	cp := newCPBuilder()
	requireNonNull := cp.addMethodRef("java/util/Objects", "requireNonNull", "(Ljava/lang/Object;)Ljava/lang/Object;")
	pool := cp.build(t)

	callerBytecode := []byte{
		byte(opcodes.Aload_1),
		byte(opcodes.Invokestatic), u2(requireNonNull)[0], u2(requireNonNull)[1],
		byte(opcodes.Pop),
		byte(opcodes.Return),
	}
	caller := newMethod(t, "com/Example", "g", "(Ljava/lang/String;)V", 0, callerBytecode,
		[]localvars.Entry{
			lv(0, "this", "Lcom/Example;", len(callerBytecode)),
			lv(1, "s", "Ljava/lang/String;", len(callerBytecode)),
		})

	intrinsic := classloader.Method{ClassName: "java.util.Objects", Name: "requireNonNull"}

	callerFrame := Frame{Method: caller, Pool: pool, Offset: 1}
	got, err := Explain(Frame{Method: intrinsic}, func(depth int) (Frame, error) {
		if depth != 1 {
			t.Fatalf("expected depth 1, got %d", depth)
		}
		return callerFrame, nil
	})
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	want := "Assertion Objects#requireNonNull failed for null method parameter s:java.lang.String"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// TestExplainUnclassifiedOpcodeReportsUnknownCause covers the "otherwise"
// an opcode that cannot raise an NPE skips the backward walk entirely.
func TestExplainUnclassifiedOpcodeReportsUnknownCause(t *testing.T) {
	pool := newCPBuilder().build(t)
	bytecode := []byte{byte(opcodes.Nop), byte(opcodes.Return)}
	method := newMethod(t, "com/Example", "f", "()V", classloader.ModStatic, bytecode, nil)

	got, err := Explain(Frame{Method: method, Pool: pool, Offset: 0}, nil)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if got != "[Unknown NPE cause]" {
		t.Errorf("got %q, want the unknown-cause marker", got)
	}
}

// TestExplainIsIdempotent runs the same analysis twice and checks the
// output is byte-identical and the method's bytecode untouched.
func TestExplainIsIdempotent(t *testing.T) {
	cp := newCPBuilder()
	mapGet := cp.addMethodRef("java/util/Map", "get", "(Ljava/lang/Object;)Ljava/lang/Object;")
	pool := cp.build(t)

	bytecode := []byte{
		byte(opcodes.Aload_1),
		byte(opcodes.Invokevirtual), u2(mapGet)[0], u2(mapGet)[1],
		byte(opcodes.Pop),
		byte(opcodes.Return),
	}
	method := newMethod(t, "com/Example", "f", "(Ljava/lang/Object;)V", 0, bytecode,
		[]localvars.Entry{lv(1, "x", "Ljava/util/Map;", len(bytecode))})

	snapshot := append([]byte(nil), method.Code.Bytes...)
	first, err := Explain(Frame{Method: method, Pool: pool, Offset: 1}, nil)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	second, err := Explain(Frame{Method: method, Pool: pool, Offset: 1}, nil)
	if err != nil {
		t.Fatalf("Explain (second run): %v", err)
	}
	if first != second {
		t.Errorf("outputs differ across runs: %q vs %q", first, second)
	}
	for i := range snapshot {
		if method.Code.Bytes[i] != snapshot[i] {
			t.Fatalf("bytecode mutated at offset %d", i)
		}
	}
}

// TestExplainRequireNonNullWithoutCallerResolverFails documents that the
// intrinsic rewrite cannot proceed without a caller-frame resolver.
func TestExplainRequireNonNullWithoutCallerResolverFails(t *testing.T) {
	intrinsic := classloader.Method{ClassName: "java.util.Objects", Name: "requireNonNull"}
	if _, err := Explain(Frame{Method: intrinsic}, nil); err == nil {
		t.Errorf("expected an error when no caller frame resolver is available")
	}
}
