/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package classloader assembles the pieces npeblame/constpool,
// npeblame/code, and npeblame/localvars decode into owned Method records,
// parsing just enough of a class file to analyze a fault in one of its
// methods, and re-checks the cross-component invariants after parsing.
package classloader

import (
	"npeblame/code"
	"npeblame/constpool"
	"npeblame/descriptor"
	"npeblame/errs"
	"npeblame/localvars"
)

// Modifier is one bit of a method's access_flags.
type Modifier uint16

const (
	ModPublic       Modifier = 0x0001
	ModPrivate      Modifier = 0x0002
	ModProtected    Modifier = 0x0004
	ModStatic       Modifier = 0x0008
	ModFinal        Modifier = 0x0010
	ModSynchronized Modifier = 0x0020
	ModBridge       Modifier = 0x0040
	ModVarargs      Modifier = 0x0080
	ModNative       Modifier = 0x0100
	ModAbstract     Modifier = 0x0400
	ModStrict       Modifier = 0x0800
	ModSynthetic    Modifier = 0x1000
)

// Has reports whether mods has every bit in want set.
func (mods Modifier) Has(want Modifier) bool { return mods&want == want }

// Method is a fully parsed method record ready for the NPE analyzer: its
// identity, descriptor (both raw and parsed), access flags, and the
// decoded Code attribute (nil for abstract/native methods, which have no
// Code attribute to analyze).
type Method struct {
	ClassName string
	Name      string
	RawDesc   string
	Sig       descriptor.MethodSignature
	Modifiers Modifier
	Code      *code.Attribute
}

// IsStatic reports whether the method is static, which decides both
// whether "this" occupies slot 0 and whether an invoke of it pops an
// implicit receiver.
func (m Method) IsStatic() bool { return m.Modifiers.Has(ModStatic) }

// ThisWidth is 0 for a static method (no implicit receiver) and 1
// otherwise, the amount by which slot numbering for declared parameters is
// offset from slot 0.
func (m Method) ThisWidth() int {
	if m.IsStatic() {
		return 0
	}
	return 1
}

// ParsedClass owns a class's constant pool and its (possibly partial) set
// of parsed methods, discarded once the exception callback that produced it
// returns.
type ParsedClass struct {
	Name     string
	Pool     *constpool.Pool
	Methods  []Method
}

// NewMethod builds a Method from already-decoded pieces. The 255-slot
// parameter bound is enforced by descriptor.ParseMethod on the way.
func NewMethod(className, name, rawDesc string, mods Modifier, codeBytes []byte, vars *localvars.Table) (Method, error) {
	sig, err := descriptor.ParseMethod(rawDesc)
	if err != nil {
		return Method{}, errs.Wrap(errs.MalformedConstantPool, err, "parsing descriptor of %s.%s", className, name)
	}

	var attr *code.Attribute
	if !mods.Has(ModAbstract) && !mods.Has(ModNative) {
		attr, err = code.Decode(codeBytes, vars)
		if err != nil {
			return Method{}, errs.Wrap(errs.MalformedConstantPool, err, "decoding code of %s.%s", className, name)
		}
	}

	return Method{
		ClassName: className,
		Name:      name,
		RawDesc:   rawDesc,
		Sig:       sig,
		Modifiers: mods,
		Code:      attr,
	}, nil
}

// ParamSlot returns the local-variable slot the Nth declared parameter
// (0-indexed, not counting "this") occupies, accounting for wide
// parameters ahead of it and the implicit "this" width.
func (m Method) ParamSlot(n int) int {
	slot := m.ThisWidth()
	for i := 0; i < n && i < len(m.Sig.Params); i++ {
		slot += descriptor.Width(m.Sig.Params[i])
	}
	return slot
}

// ParamIndexForSlot returns which declared parameter (0-indexed) occupies
// slot, and whether slot is within the parameter range at all (as opposed
// to a local variable declared in the method body), for the positional
// "method parameter at index N" fallback when the variable table is
// absent.
func (m Method) ParamIndexForSlot(slot int) (int, bool) {
	cursor := m.ThisWidth()
	if slot < cursor {
		return 0, false // the "this" slot itself, not a declared parameter
	}
	for i, p := range m.Sig.Params {
		width := descriptor.Width(p)
		if slot >= cursor && slot < cursor+width {
			return i, true
		}
		cursor += width
	}
	return 0, false
}
