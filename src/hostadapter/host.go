/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package hostadapter is the narrow boundary between the analysis core and
// the runtime hosting it. The Host interface mirrors the diagnostic
// primitives the real agent would call through JVMTI; the Bridge interface
// mirrors the JNI reflection calls it would use to read and write fields on
// live objects. OnException is the registered exception callback: it gates,
// guards against recursive entry, assembles the analyzer's inputs from Host
// primitives, and writes the produced sentence back through the Bridge.
//
// A Sim implementation of both interfaces, backed by class files parsed
// with npeblame/classloader, ships alongside the interfaces so the CLI and
// the tests can drive the full callback path without a native runtime
// attached.
package hostadapter

import (
	"npeblame/localvars"
	"npeblame/object"
)

// ThreadHandle, MethodHandle, and ClassHandle are opaque tokens minted by a
// Host implementation. The core never inspects them; it only passes them
// back into the Host that issued them.
type (
	ThreadHandle interface{}
	MethodHandle interface{}
	ClassHandle  interface{}
)

// Host exposes the diagnostic primitives the exception callback consumes.
// Every method may fail with a HostError carrying the host's named error
// code.
type Host interface {
	// IsMethodNative reports whether method has no bytecode to analyze.
	IsMethodNative(method MethodHandle) (bool, error)

	// GetFrameLocation returns the executing method and bytecode offset at
	// the given stack depth on thread; depth 0 is the innermost frame.
	GetFrameLocation(thread ThreadHandle, depth int) (MethodHandle, int, error)

	// GetFrameCount returns the number of frames on thread's stack.
	GetFrameCount(thread ThreadHandle) (int, error)

	// GetMethodDeclaringClass returns the class that declares method.
	GetMethodDeclaringClass(method MethodHandle) (ClassHandle, error)

	// GetClassSignature returns the class's type signature, e.g.
	// "Ljava/util/Objects;".
	GetClassSignature(class ClassHandle) (string, error)

	// GetBytecodes returns the method's code array.
	GetBytecodes(method MethodHandle) ([]byte, error)

	// GetConstantPoolBytes returns the declared entry count and the raw
	// constant-pool payload region for class.
	GetConstantPoolBytes(class ClassHandle) (int, []byte, error)

	// GetMethodModifiers returns the method's access_flags bit-set.
	GetMethodModifiers(method MethodHandle) (uint16, error)

	// GetMethodNameAndDescriptor returns the method's name and raw
	// descriptor, e.g. ("get", "(Ljava/lang/Object;)Ljava/lang/Object;").
	GetMethodNameAndDescriptor(method MethodHandle) (string, string, error)

	// GetMethodArgumentsSize returns the number of local-variable slots the
	// method's parameters (including any implicit receiver) occupy.
	GetMethodArgumentsSize(method MethodHandle) (uint8, error)

	// GetLocalVariableTable returns the method's debug variable table, or a
	// nil slice when debug info was stripped (absence is not an error).
	GetLocalVariableTable(method MethodHandle) ([]localvars.Entry, error)
}

// Bridge exposes the reflective object operations the callback needs.
// Implementations must validate the supplied descriptor
// string against the target member on every call; a mismatch is a
// HostCallbackError, never a silent coercion.
type Bridge interface {
	// GetClassOf returns the object's concrete class name in dot form.
	GetClassOf(obj *object.Object) (string, error)

	// GetField reads the named field, checking desc against the field's
	// declared type.
	GetField(obj *object.Object, name, desc string) (interface{}, error)

	// PutField writes the named field, checking desc against both the
	// field's declared type and value's runtime type.
	PutField(obj *object.Object, name, desc string, value interface{}) error

	// InvokeVirtual performs a virtual call on obj, checking desc against
	// the argument list.
	InvokeVirtual(obj *object.Object, name, desc string, args ...interface{}) (interface{}, error)
}

// Event is what the host delivers to the registered exception callback: the
// raising thread, the faulting method and bytecode offset, the in-flight
// exception object, and — when the host resolved one — the frame that will
// catch it. The catch location is accepted for interface parity but unused;
// analysis never crosses the exception-handler boundary.
type Event struct {
	Thread    ThreadHandle
	Method    MethodHandle
	Offset    int
	Exception *object.Object

	CatchMethod MethodHandle
	CatchOffset int
}
