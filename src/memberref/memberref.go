/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package memberref resolves a symbolic method/field reference from a code
// site (a FieldRef/MethodRef/InterfaceMethodRef constant-pool index) into
// a class+name+type record with arity/width metadata, following the
// two-hop indirection member-ref -> class_index / name_and_type_index ->
// name + descriptor.
package memberref

import (
	"npeblame/constpool"
	"npeblame/descriptor"
	"npeblame/errs"
)

// Method is a resolved method (or interface-method) reference.
type Method struct {
	ClassName string
	Name      string
	RawDesc   string
	Sig       descriptor.MethodSignature
}

// Field is a resolved field reference.
type Field struct {
	ClassName string
	Name      string
	RawDesc   string
	HumanType string
	Width     int
}

// ResolveMethod resolves the MethodRef/InterfaceMethodRef entry at index.
func ResolveMethod(cp *constpool.Pool, index int) (Method, error) {
	entry, err := cp.Get(index)
	if err != nil {
		return Method{}, err
	}
	if entry.Tag != constpool.TagMethodRef && entry.Tag != constpool.TagInterfaceMethodRef {
		return Method{}, errs.New(errs.MalformedConstantPool,
			"index %d expected MethodRef or InterfaceMethodRef, found %v", index, entry.Tag)
	}

	className, err := cp.ClassName(int(entry.ClassIndex))
	if err != nil {
		return Method{}, err
	}
	nat, err := cp.Get(int(entry.NameAndTypeIndex))
	if err != nil {
		return Method{}, err
	}
	if nat.Tag != constpool.TagNameAndType {
		return Method{}, errs.New(errs.MalformedConstantPool,
			"member-ref %d's name_and_type_index does not reference a NameAndType", index)
	}
	name, err := cp.Utf8At(int(nat.NameIndex))
	if err != nil {
		return Method{}, err
	}
	rawDesc, err := cp.Utf8At(int(nat.DescIndex))
	if err != nil {
		return Method{}, err
	}
	sig, err := descriptor.ParseMethod(rawDesc)
	if err != nil {
		return Method{}, err
	}

	return Method{
		ClassName: descriptor.ClassName(className),
		Name:      name,
		RawDesc:   rawDesc,
		Sig:       sig,
	}, nil
}

// ResolveField resolves the FieldRef entry at index.
func ResolveField(cp *constpool.Pool, index int) (Field, error) {
	entry, err := cp.Get(index)
	if err != nil {
		return Field{}, err
	}
	if entry.Tag != constpool.TagFieldRef {
		return Field{}, errs.New(errs.MalformedConstantPool, "index %d expected FieldRef, found %v", index, entry.Tag)
	}

	className, err := cp.ClassName(int(entry.ClassIndex))
	if err != nil {
		return Field{}, err
	}
	nat, err := cp.Get(int(entry.NameAndTypeIndex))
	if err != nil {
		return Field{}, err
	}
	if nat.Tag != constpool.TagNameAndType {
		return Field{}, errs.New(errs.MalformedConstantPool,
			"field-ref %d's name_and_type_index does not reference a NameAndType", index)
	}
	name, err := cp.Utf8At(int(nat.NameIndex))
	if err != nil {
		return Field{}, err
	}
	rawDesc, err := cp.Utf8At(int(nat.DescIndex))
	if err != nil {
		return Field{}, err
	}
	human, _, err := descriptor.ParseType(rawDesc, 0)
	if err != nil {
		return Field{}, err
	}

	return Field{
		ClassName: descriptor.ClassName(className),
		Name:      name,
		RawDesc:   rawDesc,
		HumanType: human,
		Width:     descriptor.Width(human),
	}, nil
}

// IsRequireNonNull reports whether m is java.util.Objects.requireNonNull,
// the analyzer's intrinsic rewrite target. There are three
// overloads; all share the bare name and declaring class.
func (m Method) IsRequireNonNull() bool {
	return m.ClassName == "java.util.Objects" && m.Name == "requireNonNull"
}
