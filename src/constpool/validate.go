/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package constpool

import "npeblame/errs"

// Validate checks the table's structural invariants: a Padding entry at
// index 0, a Padding after every Long/Double, and every indirect index
// resolving, in type, to the entry kind the class-file format mandates.
func (p *Pool) Validate() error {
	if len(p.entries) == 0 || p.entries[0].Tag != TagPadding {
		return errs.New(errs.MalformedConstantPool, "missing padding entry in slot 0 of constant pool")
	}

	for i := 1; i < len(p.entries); i++ {
		entry := p.entries[i]
		switch entry.Tag {
		case TagClass:
			if err := p.expectTag(int(entry.Index), TagUtf8, i, "Class.name_index"); err != nil {
				return err
			}
		case TagString:
			if err := p.expectTag(int(entry.Index), TagUtf8, i, "String.string_index"); err != nil {
				return err
			}
		case TagFieldRef, TagMethodRef, TagInterfaceMethodRef:
			if err := p.expectTag(int(entry.ClassIndex), TagClass, i, "member-ref.class_index"); err != nil {
				return err
			}
			if err := p.expectTag(int(entry.NameAndTypeIndex), TagNameAndType, i, "member-ref.name_and_type_index"); err != nil {
				return err
			}
		case TagNameAndType:
			if err := p.expectTag(int(entry.NameIndex), TagUtf8, i, "NameAndType.name_index"); err != nil {
				return err
			}
			if err := p.expectTag(int(entry.DescIndex), TagUtf8, i, "NameAndType.descriptor_index"); err != nil {
				return err
			}
		case TagMethodType:
			if err := p.expectTag(int(entry.DescIndex), TagUtf8, i, "MethodType.descriptor_index"); err != nil {
				return err
			}
		case TagInvokeDynamic:
			if err := p.expectTag(int(entry.NameAndTypeIndex), TagNameAndType, i, "InvokeDynamic.name_and_type_index"); err != nil {
				return err
			}
		case TagLong, TagDouble:
			if i+1 >= len(p.entries) || p.entries[i+1].Tag != TagPadding {
				return errs.New(errs.MalformedConstantPool,
					"missing padding entry after Long/Double constant at index %d", i)
			}
			i++ // skip the padding we just validated
		}
	}
	return nil
}

func (p *Pool) expectTag(index int, want Tag, from int, field string) error {
	entry, err := p.Get(index)
	if err != nil {
		return errs.Wrap(errs.MalformedConstantPool, err, "entry %d's %s points out of range", from, field)
	}
	if entry.Tag != want {
		return errs.New(errs.MalformedConstantPool,
			"entry %d's %s must reference %v, found %v at index %d", from, field, want, entry.Tag, index)
	}
	return nil
}
