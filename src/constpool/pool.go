/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package constpool

import (
	"npeblame/errs"
	"npeblame/reader"
)

// Pool is a 1-indexed, index-addressable constant-pool table. Index 0 is
// always TagPadding, and a Long/Double entry is followed by a TagPadding
// entry so on-wire indices keep lining up.
type Pool struct {
	entries []Entry
}

// Parse decodes buf, the payload region the host already trims to contain
// exactly the constant-pool bytes (no leading count field), into a Pool.
// count is the class file's constant_pool_count, i.e. one more than the
// number of real entries.
func Parse(buf []byte, count int) (*Pool, error) {
	return ParseReader(reader.New(buf), count)
}

// ParseReader decodes a constant pool from an already-positioned reader,
// advancing it past exactly the bytes the pool occupies. This lets a
// whole-class-file parser read the constant pool in place without needing
// to know its byte length up front.
func ParseReader(r *reader.Reader, count int) (*Pool, error) {
	p := &Pool{entries: make([]Entry, count)}

	for i := 1; i < count; i++ {
		tag, err := r.U1()
		if err != nil {
			return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading tag at index %d", i)
		}

		entry, err := decodeEntry(r, tag, i)
		if err != nil {
			return nil, err
		}
		p.entries[i] = entry

		if entry.Tag == TagLong || entry.Tag == TagDouble {
			i++
			if i < count {
				p.entries[i] = Entry{Tag: TagPadding}
			}
		}
	}
	return p, nil
}

func decodeEntry(r *reader.Reader, tag uint8, index int) (Entry, error) {
	switch tag {
	case 1: // Utf8
		length, err := r.U2()
		if err != nil {
			return Entry{}, errs.Wrap(errs.MalformedConstantPool, err, "Utf8 length at index %d", index)
		}
		raw, err := r.Bytes(int(length))
		if err != nil {
			return Entry{}, errs.Wrap(errs.MalformedConstantPool, err, "Utf8 bytes at index %d", index)
		}
		return Entry{Tag: TagUtf8, Text: string(raw)}, nil

	case 3: // Integer
		v, err := r.S4()
		if err != nil {
			return Entry{}, errs.Wrap(errs.MalformedConstantPool, err, "Integer at index %d", index)
		}
		return Entry{Tag: TagInteger, IntVal: v}, nil

	case 4: // Float
		bits, err := r.U4()
		if err != nil {
			return Entry{}, errs.Wrap(errs.MalformedConstantPool, err, "Float at index %d", index)
		}
		return Entry{Tag: TagFloat, FloatVal: float32FromBits(bits)}, nil

	case 5: // Long
		v, err := r.S8()
		if err != nil {
			return Entry{}, errs.Wrap(errs.MalformedConstantPool, err, "Long at index %d", index)
		}
		return Entry{Tag: TagLong, LongVal: v}, nil

	case 6: // Double
		bits, err := r.U8()
		if err != nil {
			return Entry{}, errs.Wrap(errs.MalformedConstantPool, err, "Double at index %d", index)
		}
		return Entry{Tag: TagDouble, DoubleVal: float64FromBits(bits)}, nil

	case 7: // Class
		nameIdx, err := r.U2()
		if err != nil {
			return Entry{}, errs.Wrap(errs.MalformedConstantPool, err, "Class at index %d", index)
		}
		return Entry{Tag: TagClass, Index: nameIdx}, nil

	case 8: // String
		strIdx, err := r.U2()
		if err != nil {
			return Entry{}, errs.Wrap(errs.MalformedConstantPool, err, "String at index %d", index)
		}
		return Entry{Tag: TagString, Index: strIdx}, nil

	case 9: // Fieldref
		ci, nt, err := readMemberRef(r, index)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Tag: TagFieldRef, ClassIndex: ci, NameAndTypeIndex: nt}, nil

	case 10: // Methodref
		ci, nt, err := readMemberRef(r, index)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Tag: TagMethodRef, ClassIndex: ci, NameAndTypeIndex: nt}, nil

	case 11: // InterfaceMethodref
		ci, nt, err := readMemberRef(r, index)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Tag: TagInterfaceMethodRef, ClassIndex: ci, NameAndTypeIndex: nt}, nil

	case 12: // NameAndType
		nameIdx, err := r.U2()
		if err != nil {
			return Entry{}, errs.Wrap(errs.MalformedConstantPool, err, "NameAndType name_index at index %d", index)
		}
		descIdx, err := r.U2()
		if err != nil {
			return Entry{}, errs.Wrap(errs.MalformedConstantPool, err, "NameAndType descriptor_index at index %d", index)
		}
		return Entry{Tag: TagNameAndType, NameIndex: nameIdx, DescIndex: descIdx}, nil

	case 15: // MethodHandle
		kind, err := r.U1()
		if err != nil {
			return Entry{}, errs.Wrap(errs.MalformedConstantPool, err, "MethodHandle reference_kind at index %d", index)
		}
		refIdx, err := r.U2()
		if err != nil {
			return Entry{}, errs.Wrap(errs.MalformedConstantPool, err, "MethodHandle reference_index at index %d", index)
		}
		return Entry{Tag: TagMethodHandle, RefKind: ReferenceKind(kind), RefIndex: refIdx}, nil

	case 16: // MethodType
		descIdx, err := r.U2()
		if err != nil {
			return Entry{}, errs.Wrap(errs.MalformedConstantPool, err, "MethodType at index %d", index)
		}
		return Entry{Tag: TagMethodType, DescIndex: descIdx}, nil

	case 18: // InvokeDynamic
		bsm, err := r.U2()
		if err != nil {
			return Entry{}, errs.Wrap(errs.MalformedConstantPool, err, "InvokeDynamic bootstrap index at index %d", index)
		}
		nt, err := r.U2()
		if err != nil {
			return Entry{}, errs.Wrap(errs.MalformedConstantPool, err, "InvokeDynamic name_and_type at index %d", index)
		}
		return Entry{Tag: TagInvokeDynamic, BootstrapIndex: bsm, NameAndTypeIndex: nt}, nil

	default:
		return Entry{}, errs.New(errs.MalformedConstantPool, "unknown constant-pool tag %d at index %d", tag, index)
	}
}

func readMemberRef(r *reader.Reader, index int) (uint16, uint16, error) {
	ci, err := r.U2()
	if err != nil {
		return 0, 0, errs.Wrap(errs.MalformedConstantPool, err, "member-ref class_index at index %d", index)
	}
	nt, err := r.U2()
	if err != nil {
		return 0, 0, errs.Wrap(errs.MalformedConstantPool, err, "member-ref name_and_type_index at index %d", index)
	}
	return ci, nt, nil
}

// Count returns the constant_pool_count, i.e. len(entries) including the
// index-0 padding slot.
func (p *Pool) Count() int { return len(p.entries) }

// Get returns the entry at index in constant time.
func (p *Pool) Get(index int) (Entry, error) {
	if index < 0 || index >= len(p.entries) {
		return Entry{}, errs.New(errs.InvalidIndex, "constant-pool index %d out of range [0,%d)", index, len(p.entries))
	}
	return p.entries[index], nil
}
