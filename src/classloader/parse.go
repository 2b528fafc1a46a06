/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import (
	"npeblame/constpool"
	"npeblame/errs"
	"npeblame/localvars"
	"npeblame/reader"
)

const classFileMagic = 0xCAFEBABE

// Parse reads a complete class file and assembles a ParsedClass: its
// constant pool, and every method with a Code attribute fully decoded
// (bytecode instructions plus local-variable table). Fields and
// non-essential attributes are walked (to stay positioned correctly) but
// discarded, since the analyzer never needs them.
func Parse(raw []byte) (*ParsedClass, error) {
	r := reader.New(raw)

	magic, err := r.U4()
	if err != nil {
		return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading class file magic")
	}
	if magic != classFileMagic {
		return nil, errs.New(errs.MalformedConstantPool, "not a class file: magic 0x%08X", magic)
	}
	if _, err := r.U2(); err != nil { // minor_version
		return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading minor_version")
	}
	if _, err := r.U2(); err != nil { // major_version
		return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading major_version")
	}

	cpCount, err := r.U2()
	if err != nil {
		return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading constant_pool_count")
	}
	pool, err := constpool.ParseReader(r, int(cpCount))
	if err != nil {
		return nil, err
	}

	if _, err := r.U2(); err != nil { // access_flags
		return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading class access_flags")
	}
	thisClassIdx, err := r.U2()
	if err != nil {
		return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading this_class")
	}
	if _, err := r.U2(); err != nil { // super_class
		return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading super_class")
	}

	ifaceCount, err := r.U2()
	if err != nil {
		return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading interfaces_count")
	}
	if err := r.Skip(int(ifaceCount) * 2); err != nil {
		return nil, errs.Wrap(errs.MalformedConstantPool, err, "skipping interfaces")
	}

	if err := skipMembers(r); err != nil { // fields
		return nil, err
	}

	className, err := pool.ClassName(int(thisClassIdx))
	if err != nil {
		return nil, err
	}

	methods, err := parseMethods(r, pool, className)
	if err != nil {
		return nil, err
	}

	pc := &ParsedClass{Name: className, Pool: pool, Methods: methods}
	if err := pc.Validate(); err != nil {
		return nil, err
	}
	return pc, nil
}

// skipMembers walks a fields_count/methods_count-shaped region (same shape
// for both) made of access_flags/name_index/descriptor_index/attributes,
// discarding everything. Used only for the fields section; methods get the
// real treatment in parseMethods.
func skipMembers(r *reader.Reader) error {
	count, err := r.U2()
	if err != nil {
		return errs.Wrap(errs.MalformedConstantPool, err, "reading member count")
	}
	for i := 0; i < int(count); i++ {
		if err := r.Skip(6); err != nil { // access_flags, name_index, descriptor_index
			return errs.Wrap(errs.MalformedConstantPool, err, "skipping member %d header", i)
		}
		if err := skipAttributes(r); err != nil {
			return err
		}
	}
	return nil
}

func skipAttributes(r *reader.Reader) error {
	count, err := r.U2()
	if err != nil {
		return errs.Wrap(errs.MalformedConstantPool, err, "reading attributes_count")
	}
	for i := 0; i < int(count); i++ {
		if _, err := r.U2(); err != nil { // attribute_name_index
			return errs.Wrap(errs.MalformedConstantPool, err, "skipping attribute %d name", i)
		}
		length, err := r.U4()
		if err != nil {
			return errs.Wrap(errs.MalformedConstantPool, err, "skipping attribute %d length", i)
		}
		if err := r.Skip(int(length)); err != nil {
			return errs.Wrap(errs.MalformedConstantPool, err, "skipping attribute %d body", i)
		}
	}
	return nil
}

func parseMethods(r *reader.Reader, pool *constpool.Pool, className string) ([]Method, error) {
	count, err := r.U2()
	if err != nil {
		return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading methods_count")
	}
	methods := make([]Method, 0, count)
	for i := 0; i < int(count); i++ {
		accessFlags, err := r.U2()
		if err != nil {
			return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading method %d access_flags", i)
		}
		nameIdx, err := r.U2()
		if err != nil {
			return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading method %d name_index", i)
		}
		descIdx, err := r.U2()
		if err != nil {
			return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading method %d descriptor_index", i)
		}
		name, err := pool.Utf8At(int(nameIdx))
		if err != nil {
			return nil, err
		}
		rawDesc, err := pool.Utf8At(int(descIdx))
		if err != nil {
			return nil, err
		}

		mods := Modifier(accessFlags)
		var codeBytes []byte
		var vars *localvars.Table

		attrCount, err := r.U2()
		if err != nil {
			return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading method %d attributes_count", i)
		}
		for a := 0; a < int(attrCount); a++ {
			attrNameIdx, err := r.U2()
			if err != nil {
				return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading method %d attribute %d name", i, a)
			}
			length, err := r.U4()
			if err != nil {
				return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading method %d attribute %d length", i, a)
			}
			attrName, err := pool.Utf8At(int(attrNameIdx))
			if err != nil {
				return nil, err
			}
			body, err := r.Bytes(int(length))
			if err != nil {
				return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading method %d attribute %d body", i, a)
			}
			if attrName == "Code" {
				codeBytes, vars, err = parseCodeAttribute(body, pool)
				if err != nil {
					return nil, err
				}
			}
		}

		m, err := NewMethod(className, name, rawDesc, mods, codeBytes, vars)
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, nil
}

// parseCodeAttribute reads a Code attribute's body (already sliced out by
// the caller): max_stack, max_locals, code_length, code[],
// exception_table, and its nested attributes, of which
// LocalVariableTable is the only one this tool cares about.
func parseCodeAttribute(body []byte, pool *constpool.Pool) ([]byte, *localvars.Table, error) {
	r := reader.New(body)
	if _, err := r.U2(); err != nil { // max_stack
		return nil, nil, errs.Wrap(errs.MalformedConstantPool, err, "reading Code max_stack")
	}
	if _, err := r.U2(); err != nil { // max_locals
		return nil, nil, errs.Wrap(errs.MalformedConstantPool, err, "reading Code max_locals")
	}
	codeLen, err := r.U4()
	if err != nil {
		return nil, nil, errs.Wrap(errs.MalformedConstantPool, err, "reading Code code_length")
	}
	codeBytes, err := r.Bytes(int(codeLen))
	if err != nil {
		return nil, nil, errs.Wrap(errs.MalformedConstantPool, err, "reading Code bytecode")
	}

	excCount, err := r.U2()
	if err != nil {
		return nil, nil, errs.Wrap(errs.MalformedConstantPool, err, "reading Code exception_table_length")
	}
	if err := r.Skip(int(excCount) * 8); err != nil {
		return nil, nil, errs.Wrap(errs.MalformedConstantPool, err, "skipping Code exception_table")
	}

	var vars *localvars.Table
	attrCount, err := r.U2()
	if err != nil {
		return nil, nil, errs.Wrap(errs.MalformedConstantPool, err, "reading Code attributes_count")
	}
	for a := 0; a < int(attrCount); a++ {
		nameIdx, err := r.U2()
		if err != nil {
			return nil, nil, errs.Wrap(errs.MalformedConstantPool, err, "reading Code attribute %d name", a)
		}
		length, err := r.U4()
		if err != nil {
			return nil, nil, errs.Wrap(errs.MalformedConstantPool, err, "reading Code attribute %d length", a)
		}
		name, err := pool.Utf8At(int(nameIdx))
		if err != nil {
			return nil, nil, err
		}
		body, err := r.Bytes(int(length))
		if err != nil {
			return nil, nil, errs.Wrap(errs.MalformedConstantPool, err, "reading Code attribute %d body", a)
		}
		if name == "LocalVariableTable" {
			vars, err = parseLocalVariableTable(body, pool)
			if err != nil {
				return nil, nil, err
			}
		}
	}
	if vars == nil {
		vars = localvars.Empty()
	}
	return codeBytes, vars, nil
}

func parseLocalVariableTable(body []byte, pool *constpool.Pool) (*localvars.Table, error) {
	r := reader.New(body)
	count, err := r.U2()
	if err != nil {
		return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading LocalVariableTable length")
	}
	rows := make([]localvars.Entry, 0, count)
	for i := 0; i < int(count); i++ {
		startPC, err := r.U2()
		if err != nil {
			return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading local-variable %d start_pc", i)
		}
		length, err := r.U2()
		if err != nil {
			return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading local-variable %d length", i)
		}
		nameIdx, err := r.U2()
		if err != nil {
			return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading local-variable %d name_index", i)
		}
		descIdx, err := r.U2()
		if err != nil {
			return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading local-variable %d descriptor_index", i)
		}
		slot, err := r.U2()
		if err != nil {
			return nil, errs.Wrap(errs.MalformedConstantPool, err, "reading local-variable %d index", i)
		}
		name, err := pool.Utf8At(int(nameIdx))
		if err != nil {
			return nil, err
		}
		rawDesc, err := pool.Utf8At(int(descIdx))
		if err != nil {
			return nil, err
		}
		rows = append(rows, localvars.Entry{
			Slot: int(slot), Name: name, RawDesc: rawDesc,
			StartPC: int(startPC), Length: int(length),
		})
	}
	return localvars.New(rows)
}
