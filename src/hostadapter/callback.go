/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package hostadapter

import (
	"npeblame/analyzer"
	"npeblame/classloader"
	"npeblame/constpool"
	"npeblame/descriptor"
	"npeblame/errs"
	"npeblame/globals"
	"npeblame/localvars"
	"npeblame/object"
	"npeblame/trace"
)

// NPEClassName is the host's null-reference-exception class; the callback
// ignores every other exception class.
const NPEClassName = "java.lang.NullPointerException"

const detailMessageDesc = "Ljava/lang/String;"

// OnException is the registered exception callback. It never propagates a
// failure back into the host: every internal error is logged at ERROR level
// with its stack trace and swallowed, leaving the exception's detail
// message exactly as the host set it. Enrichment is best effort and must
// not make the host's own error reporting worse.
func OnException(h Host, b Bridge, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			trace.For(trace.ExceptionCallback).Errorf("panic in exception callback: %v", r)
		}
	}()

	if !globals.GuardRef().Enter(ev.Thread) {
		trace.For(trace.ExceptionCallback).Debug("dropping nested exception event on same thread")
		return
	}
	defer globals.GuardRef().Exit(ev.Thread)

	if err := handleEvent(h, b, ev); err != nil {
		trace.For(trace.ExceptionCallback).Errorf("enrichment failed, leaving message unchanged: %+v", err)
	}
}

// handleEvent applies the gating conditions, runs the analyzer, and writes
// the result back. A gate that doesn't hold is a normal no-op return, not
// an error: the method must be non-native, the offset positive, the
// exception a NullPointerException, and its message still unset.
func handleEvent(h Host, b Bridge, ev Event) error {
	if ev.Exception == nil || ev.Offset <= 0 {
		return nil
	}
	native, err := h.IsMethodNative(ev.Method)
	if err != nil {
		return err
	}
	if native {
		return nil
	}

	className, err := b.GetClassOf(ev.Exception)
	if err != nil {
		return err
	}
	if className != NPEClassName {
		return nil
	}

	current, err := b.GetField(ev.Exception, "detailMessage", detailMessageDesc)
	if err != nil {
		return err
	}
	if msg, _ := current.(string); msg != "" {
		return nil
	}

	frame, err := buildFrame(h, ev.Method, ev.Offset)
	if err != nil {
		return err
	}
	trace.Dump(trace.ExceptionCallback, "faulting frame", frame)

	text, err := analyzer.Explain(frame, func(depth int) (analyzer.Frame, error) {
		m, offset, err := h.GetFrameLocation(ev.Thread, depth)
		if err != nil {
			return analyzer.Frame{}, err
		}
		return buildFrame(h, m, offset)
	})
	if err != nil {
		return err
	}

	if err := b.PutField(ev.Exception, "detailMessage", detailMessageDesc, text); err != nil {
		return err
	}
	trace.For(trace.ExceptionCallback).Infof("enriched NPE: %s", text)
	return nil
}

// buildFrame pulls everything the analyzer needs about one frame's method
// out of the Host and assembles the per-event records: constant pool, code
// attribute, variable table, method record. All of it is stack-local to
// the callback and discarded when it returns.
func buildFrame(h Host, method MethodHandle, offset int) (analyzer.Frame, error) {
	class, err := h.GetMethodDeclaringClass(method)
	if err != nil {
		return analyzer.Frame{}, err
	}
	signature, err := h.GetClassSignature(class)
	if err != nil {
		return analyzer.Frame{}, err
	}
	className, _, err := descriptor.ParseType(signature, 0)
	if err != nil {
		return analyzer.Frame{}, err
	}

	cpCount, cpBytes, err := h.GetConstantPoolBytes(class)
	if err != nil {
		return analyzer.Frame{}, err
	}
	pool, err := constpool.Parse(cpBytes, cpCount)
	if err != nil {
		return analyzer.Frame{}, err
	}

	name, rawDesc, err := h.GetMethodNameAndDescriptor(method)
	if err != nil {
		return analyzer.Frame{}, err
	}
	modifiers, err := h.GetMethodModifiers(method)
	if err != nil {
		return analyzer.Frame{}, err
	}
	bytecode, err := h.GetBytecodes(method)
	if err != nil {
		return analyzer.Frame{}, err
	}

	rows, err := h.GetLocalVariableTable(method)
	if err != nil {
		return analyzer.Frame{}, err
	}
	var vars *localvars.Table
	if len(rows) > 0 {
		vars, err = localvars.New(rows)
		if err != nil {
			return analyzer.Frame{}, err
		}
	}

	m, err := classloader.NewMethod(className, name, rawDesc, classloader.Modifier(modifiers), bytecode, vars)
	if err != nil {
		return analyzer.Frame{}, err
	}
	if err := checkArgumentsSize(h, method, m); err != nil {
		return analyzer.Frame{}, err
	}
	return analyzer.Frame{Method: m, Pool: pool, Offset: offset}, nil
}

// checkArgumentsSize cross-checks the parameter width computed from the
// descriptor against the host's own notion, catching a descriptor that was
// resolved against the wrong method before the analyzer walks with a bad
// parameter_length.
func checkArgumentsSize(h Host, handle MethodHandle, m classloader.Method) error {
	hostSize, err := h.GetMethodArgumentsSize(handle)
	if err != nil {
		return err
	}
	computed := m.Sig.ParameterLength + m.ThisWidth()
	if int(hostSize) != computed {
		return errs.New(errs.InvalidArgument,
			"host reports arguments size %d for %s.%s but descriptor %q implies %d",
			hostSize, m.ClassName, m.Name, m.RawDesc, computed)
	}
	return nil
}

// WriteDetailMessage is the narrow writeback used outside the callback path
// (the CLI's offline mode): it stores text into the exception's
// detailMessage field through the bridge, mutating nothing else.
func WriteDetailMessage(b Bridge, exc *object.Object, text string) error {
	return b.PutField(exc, "detailMessage", detailMessageDesc, text)
}
