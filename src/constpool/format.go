/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package constpool

import (
	"fmt"
	"strconv"

	"npeblame/errs"
)

// Describe resolves index recursively into a human form. When tagPrefix is
// true the top-level formatter prepends the entry's mnemonic; nested
// resolutions never re-prepend.
func (p *Pool) Describe(index int, tagPrefix bool) (string, error) {
	entry, err := p.Get(index)
	if err != nil {
		return "", err
	}
	body, err := p.describeBody(entry)
	if err != nil {
		return "", err
	}
	if tagPrefix {
		return entry.Tag.String() + " " + body, nil
	}
	return body, nil
}

func (p *Pool) describeBody(entry Entry) (string, error) {
	switch entry.Tag {
	case TagUtf8:
		return entry.Text, nil

	case TagInteger:
		return strconv.FormatInt(int64(entry.IntVal), 10), nil

	case TagFloat:
		return strconv.FormatFloat(float64(entry.FloatVal), 'g', -1, 32), nil

	case TagLong:
		return strconv.FormatInt(entry.LongVal, 10), nil

	case TagDouble:
		return strconv.FormatFloat(entry.DoubleVal, 'g', -1, 64), nil

	case TagClass, TagString:
		return p.Describe(int(entry.Index), false)

	case TagNameAndType:
		name, err := p.Describe(int(entry.NameIndex), false)
		if err != nil {
			return "", err
		}
		desc, err := p.Describe(int(entry.DescIndex), false)
		if err != nil {
			return "", err
		}
		return name + ":" + desc, nil

	case TagFieldRef, TagMethodRef, TagInterfaceMethodRef:
		class, err := p.Describe(int(entry.ClassIndex), false)
		if err != nil {
			return "", err
		}
		nat, err := p.Describe(int(entry.NameAndTypeIndex), false)
		if err != nil {
			return "", err
		}
		return class + "." + nat, nil

	case TagMethodHandle:
		ref, err := p.Describe(int(entry.RefIndex), false)
		if err != nil {
			return "", err
		}
		return entry.RefKind.mnemonic() + " " + ref, nil

	case TagMethodType:
		return p.Describe(int(entry.DescIndex), false)

	case TagInvokeDynamic:
		nat, err := p.Describe(int(entry.NameAndTypeIndex), false)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %s", entry.BootstrapIndex, nat), nil

	case TagPadding:
		return "", errs.New(errs.InvalidIndex, "cannot describe a padding entry")

	default:
		return "", errs.New(errs.MalformedConstantPool, "unrecognized constant-pool tag %v", entry.Tag)
	}
}

// Utf8At is a convenience for the very common case of resolving an index
// that must point directly at a Utf8 entry (class names, method names,
// descriptors). A non-Utf8 target is a malformed cross-reference.
func (p *Pool) Utf8At(index int) (string, error) {
	entry, err := p.Get(index)
	if err != nil {
		return "", err
	}
	if entry.Tag != TagUtf8 {
		return "", errs.New(errs.MalformedConstantPool,
			"index %d expected Utf8, found %v", index, entry.Tag)
	}
	return entry.Text, nil
}

// ClassName resolves a Class entry at index to its referenced Utf8 text,
// checking both hops of the indirection.
func (p *Pool) ClassName(index int) (string, error) {
	entry, err := p.Get(index)
	if err != nil {
		return "", err
	}
	if entry.Tag != TagClass {
		return "", errs.New(errs.MalformedConstantPool,
			"index %d expected Class, found %v", index, entry.Tag)
	}
	return p.Utf8At(int(entry.Index))
}
