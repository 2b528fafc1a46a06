/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package descriptor turns internal JVM type/method descriptors
// (Ljava/lang/String;, [I, (II)V) into readable form. Array dimensions are
// stripped as leading '[' counts and rendered as trailing "[]" suffixes,
// so "[[I" displays as "int[][]".
package descriptor

import (
	"strings"

	"npeblame/errs"
)

// ClassName replaces '/' with '.' in a type's internal name.
func ClassName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}

// Width is the number of local-variable slots or operand-stack words a
// value of a given descriptor occupies: 2 for long/double, 1 otherwise.
func Width(humanType string) int {
	if humanType == "long" || humanType == "double" {
		return 2
	}
	return 1
}

// ParseType consumes a single field/type descriptor starting at position
// pos in desc and returns its human-readable form plus the cursor position
// just past what it consumed.
func ParseType(desc string, pos int) (human string, next int, err error) {
	dims := 0
	i := pos
	for i < len(desc) && desc[i] == '[' {
		dims++
		i++
	}
	if i >= len(desc) {
		return "", 0, errs.New(errs.InvalidDescriptor, "truncated descriptor %q at position %d", desc, pos)
	}

	var base string
	switch desc[i] {
	case 'V':
		base, i = "void", i+1
	case 'B':
		base, i = "byte", i+1
	case 'I':
		base, i = "int", i+1
	case 'J':
		base, i = "long", i+1
	case 'Z':
		base, i = "bool", i+1
	case 'C':
		base, i = "char", i+1
	case 'D':
		base, i = "double", i+1
	case 'F':
		base, i = "float", i+1
	case 'S':
		base, i = "short", i+1
	case 'L':
		end := strings.IndexByte(desc[i:], ';')
		if end < 0 {
			return "", 0, errs.New(errs.InvalidDescriptor, "unterminated object type in descriptor %q at position %d", desc, pos)
		}
		base = ClassName(desc[i+1 : i+end])
		i = i + end + 1
	default:
		return "", 0, errs.New(errs.InvalidDescriptor, "unrecognized descriptor character %q at position %d in %q", desc[i], pos, desc)
	}

	return base + strings.Repeat("[]", dims), i, nil
}

// MethodSignature describes one parsed method descriptor: each parameter's
// human type, the return type, and ParameterLength, the sum of parameter
// widths. A method's parameters never occupy more than 255 slots.
type MethodSignature struct {
	Params         []string
	Return         string
	ParameterLength int
}

// ParseMethod parses a method descriptor of the form "(<params>)<return>"
// using ParseType in a loop.
func ParseMethod(desc string) (MethodSignature, error) {
	if len(desc) == 0 || desc[0] != '(' {
		return MethodSignature{}, errs.New(errs.InvalidDescriptor, "method descriptor %q must start with '('", desc)
	}
	sig := MethodSignature{}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		human, next, err := ParseType(desc, i)
		if err != nil {
			return MethodSignature{}, err
		}
		sig.Params = append(sig.Params, human)
		sig.ParameterLength += Width(human)
		i = next
	}
	if i >= len(desc) {
		return MethodSignature{}, errs.New(errs.InvalidDescriptor, "method descriptor %q missing closing ')'", desc)
	}
	i++ // skip ')'

	ret, _, err := ParseType(desc, i)
	if err != nil {
		return MethodSignature{}, err
	}
	sig.Return = ret

	if sig.ParameterLength > 255 {
		return MethodSignature{}, errs.New(errs.InvalidDescriptor,
			"method descriptor %q has parameter_length %d exceeding 255", desc, sig.ParameterLength)
	}
	return sig, nil
}

// HumanMethod renders a signature for debug output, e.g.
// "void foo(int, long)".
func HumanMethod(name string, sig MethodSignature) string {
	return sig.Return + " " + name + "(" + strings.Join(sig.Params, ", ") + ")"
}

// FieldWidth is a convenience for resolving the stack/slot width straight
// from a raw field descriptor string, used by the field opcodes'
// stack-effect rules.
func FieldWidth(fieldDesc string) (int, error) {
	human, _, err := ParseType(fieldDesc, 0)
	if err != nil {
		return 0, err
	}
	return Width(human), nil
}
