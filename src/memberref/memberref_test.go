/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package memberref

import (
	"testing"

	"npeblame/constpool"
)

func u2(v uint16) []byte { return []byte{byte(v >> 8), byte(v)} }
func utf8(s string) []byte {
	out := []byte{1}
	out = append(out, u2(uint16(len(s)))...)
	return append(out, []byte(s)...)
}

// buildPool lays out: 1:Utf8(className) 2:Class->1 3:Utf8(name)
// 4:Utf8(desc) 5:NameAndType(3,4) 6:<refTag>(2,5)
func buildPool(t *testing.T, className, name, desc string, refTag byte) *constpool.Pool {
	t.Helper()
	raw := append([]byte{}, utf8(className)...)
	raw = append(raw, append([]byte{7}, u2(1)...)...)
	raw = append(raw, utf8(name)...)
	raw = append(raw, utf8(desc)...)
	raw = append(raw, append([]byte{12}, append(u2(3), u2(4)...)...)...)
	raw = append(raw, append([]byte{refTag}, append(u2(2), u2(5)...)...)...)
	p, err := constpool.Parse(raw, 7)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return p
}

func TestResolveMethod(t *testing.T) {
	p := buildPool(t, "java/util/Map", "get", "(Ljava/lang/Object;)Ljava/lang/Object;", 10)
	m, err := ResolveMethod(p, 6)
	if err != nil {
		t.Fatalf("ResolveMethod failed: %v", err)
	}
	if m.ClassName != "java.util.Map" || m.Name != "get" {
		t.Errorf("unexpected method: %+v", m)
	}
	if m.Sig.Return != "java.lang.Object" || len(m.Sig.Params) != 1 {
		t.Errorf("unexpected signature: %+v", m.Sig)
	}
}

func TestResolveMethodWrongTag(t *testing.T) {
	p := buildPool(t, "java/util/Map", "get", "(Ljava/lang/Object;)Ljava/lang/Object;", 9) // FieldRef, not MethodRef
	if _, err := ResolveMethod(p, 6); err == nil {
		t.Errorf("expected error resolving a FieldRef as a method")
	}
}

func TestResolveField(t *testing.T) {
	p := buildPool(t, "com/Foo", "bar", "I", 9)
	f, err := ResolveField(p, 6)
	if err != nil {
		t.Fatalf("ResolveField failed: %v", err)
	}
	if f.ClassName != "com.Foo" || f.Name != "bar" || f.HumanType != "int" || f.Width != 1 {
		t.Errorf("unexpected field: %+v", f)
	}
}

func TestIsRequireNonNull(t *testing.T) {
	p := buildPool(t, "java/util/Objects", "requireNonNull", "(Ljava/lang/Object;)Ljava/lang/Object;", 10)
	m, err := ResolveMethod(p, 6)
	if err != nil {
		t.Fatalf("ResolveMethod failed: %v", err)
	}
	if !m.IsRequireNonNull() {
		t.Errorf("expected IsRequireNonNull to be true for %+v", m)
	}
}
