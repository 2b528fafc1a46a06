/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import "npeblame/errs"

// Validate re-checks the constant pool (invariants C1-C3) and then C4
// (instruction offsets partition the code array) and C5 (parameter_length
// <= 255, already enforced per-method by NewMethod, rechecked here in case
// a Method was constructed some other way).
func (pc *ParsedClass) Validate() error {
	if err := pc.Pool.Validate(); err != nil {
		return err
	}
	for _, m := range pc.Methods {
		if m.Sig.ParameterLength > 255 {
			return errs.New(errs.MalformedConstantPool,
				"%s.%s has parameter_length %d exceeding 255", m.ClassName, m.Name, m.Sig.ParameterLength)
		}
		if m.Code == nil {
			continue
		}
		if err := validateCodeOffsets(m); err != nil {
			return err
		}
	}
	return nil
}

func validateCodeOffsets(m Method) error {
	insts := m.Code.Instructions
	for i := 1; i < len(insts); i++ {
		prev := insts[i-1]
		if prev.Offset+prev.Length != insts[i].Offset {
			return errs.New(errs.MalformedConstantPool,
				"%s.%s: instruction at offset %d (length %d) does not abut the next instruction at offset %d",
				m.ClassName, m.Name, prev.Offset, prev.Length, insts[i].Offset)
		}
	}
	if len(insts) > 0 {
		last := insts[len(insts)-1]
		if last.Offset+last.Length != len(m.Code.Bytes) {
			return errs.New(errs.MalformedConstantPool,
				"%s.%s: last instruction does not end at the code array's length", m.ClassName, m.Name)
		}
	}
	return nil
}
