/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package object is a minimal simulated Java object model: a class name
// plus a field table, just enough to stand in for the exception object the
// host hands the real agent. The only field this tool ever touches is
// detailMessage.
package object

import "npeblame/errs"

// Field is one object field's declared type descriptor and boxed value.
type Field struct {
	Ftype  string
	Fvalue interface{}
}

// Object is a simulated instance, identified by its class name, with a
// field table keyed by field name.
type Object struct {
	KlassName  string
	FieldTable map[string]Field
}

// NewThrowable builds an Object representing an exception instance with an
// initially empty detailMessage.
func NewThrowable(klassName string) *Object {
	return &Object{
		KlassName: klassName,
		FieldTable: map[string]Field{
			"detailMessage": {Ftype: "Ljava/lang/String;", Fvalue: ""},
		},
	}
}

// DetailMessage returns the exception's current detail message.
func (o *Object) DetailMessage() string {
	f, ok := o.FieldTable["detailMessage"]
	if !ok {
		return ""
	}
	s, _ := f.Fvalue.(string)
	return s
}

// SetDetailMessage writes msg into the exception's detailMessage field. No
// other object state is ever mutated through this package.
func (o *Object) SetDetailMessage(msg string) error {
	if o == nil {
		return errs.New(errs.HostCallbackError, "cannot set detailMessage on a nil object")
	}
	o.FieldTable["detailMessage"] = Field{Ftype: "Ljava/lang/String;", Fvalue: msg}
	return nil
}
