/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package constpool decodes and indexes a class's constant pool: a typed,
// 1-indexed table of class/method/field/string/numeric constants with a
// recursive pretty-printer. Entries are a tagged struct matched with a
// switch rather than an interface hierarchy; nothing needs to extend the
// set of constant kinds from outside.
package constpool

import "fmt"

// Tag identifies the kind of a constant-pool entry.
type Tag int

const (
	TagPadding Tag = iota
	TagUtf8
	TagInteger
	TagFloat
	TagLong
	TagDouble
	TagClass
	TagString
	TagFieldRef
	TagMethodRef
	TagInterfaceMethodRef
	TagNameAndType
	TagMethodHandle
	TagMethodType
	TagInvokeDynamic
)

func (t Tag) String() string {
	switch t {
	case TagPadding:
		return "Padding"
	case TagUtf8:
		return "Utf8"
	case TagInteger:
		return "Integer"
	case TagFloat:
		return "Float"
	case TagLong:
		return "Long"
	case TagDouble:
		return "Double"
	case TagClass:
		return "Class"
	case TagString:
		return "String"
	case TagFieldRef:
		return "FieldRef"
	case TagMethodRef:
		return "MethodRef"
	case TagInterfaceMethodRef:
		return "InterfaceMethodRef"
	case TagNameAndType:
		return "NameAndType"
	case TagMethodHandle:
		return "MethodHandle"
	case TagMethodType:
		return "MethodType"
	case TagInvokeDynamic:
		return "InvokeDynamic"
	default:
		return "Unknown"
	}
}

// ReferenceKind is the JVMTI/classfile reference_kind byte of a
// CONSTANT_MethodHandle entry (REF_getField=1 .. REF_invokeInterface=9).
type ReferenceKind uint8

const (
	RefGetField ReferenceKind = iota + 1
	RefGetStatic
	RefPutField
	RefPutStatic
	RefInvokeVirtual
	RefInvokeStatic
	RefInvokeSpecial
	RefNewInvokeSpecial
	RefInvokeInterface
)

func (k ReferenceKind) mnemonic() string {
	switch k {
	case RefGetField:
		return "REF_getField"
	case RefGetStatic:
		return "REF_getStatic"
	case RefPutField:
		return "REF_putField"
	case RefPutStatic:
		return "REF_putStatic"
	case RefInvokeVirtual:
		return "REF_invokeVirtual"
	case RefInvokeStatic:
		return "REF_invokeStatic"
	case RefInvokeSpecial:
		return "REF_invokeSpecial"
	case RefNewInvokeSpecial:
		return "REF_newInvokeSpecial"
	case RefInvokeInterface:
		return "REF_invokeInterface"
	default:
		return fmt.Sprintf("REF_unknown(%d)", uint8(k))
	}
}

// Entry is one constant-pool slot. Exactly one of the typed fields is
// meaningful, selected by Tag.
type Entry struct {
	Tag Tag

	// Utf8
	Text string
	// Integer / Float / Long / Double
	IntVal    int32
	FloatVal  float32
	LongVal   int64
	DoubleVal float64
	// Class / String: index into the pool of the referenced Utf8
	Index uint16
	// FieldRef / MethodRef / InterfaceMethodRef
	ClassIndex       uint16
	NameAndTypeIndex uint16
	// NameAndType
	NameIndex uint16
	DescIndex uint16
	// MethodHandle
	RefKind  ReferenceKind
	RefIndex uint16
	// MethodType
	// (DescIndex reused)
	// InvokeDynamic
	BootstrapIndex uint16
}
