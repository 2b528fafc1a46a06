/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package analyzer is the NPE cause analyzer. It classifies the faulting
// opcode into a lead phrase, retargets to the caller frame when the fault
// is inside the compiler-inserted java.util.Objects.requireNonNull
// intrinsic, and walks backward through the method's instructions with the
// stackeffect oracle to find the producer of the null value: a named local
// or parameter, a field load, a returned value, or the null literal.
package analyzer

import (
	"fmt"

	"npeblame/classloader"
	"npeblame/code"
	"npeblame/constpool"
	"npeblame/descriptor"
	"npeblame/errs"
	"npeblame/memberref"
	"npeblame/opcodes"
	"npeblame/stackeffect"
	"npeblame/trace"
)

// Frame is one stack frame's worth of input to the analyzer: the method
// owning the frame, its constant pool, and the bytecode offset of
// interest (the faulting instruction for the innermost frame, or the
// calling instruction for a frame reached via the requireNonNull
// intrinsic rewrite).
type Frame struct {
	Method classloader.Method
	Pool   *constpool.Pool
	Offset int
}

// CallerFrameFunc resolves the frame at the given stack depth above the
// frame currently under analysis (depth 1 is the immediate caller),
// mirroring the host's frame-location query.
type CallerFrameFunc func(depth int) (Frame, error)

// Explain runs the full analysis and returns the sentence to
// write into the exception's detailMessage. caller may be nil if frame's
// method cannot possibly be the requireNonNull intrinsic (callers that
// already know this, such as tests exercising a single frame, may pass
// nil); Explain returns an error if the intrinsic rewrite is needed but no
// caller resolver was supplied.
func Explain(frame Frame, caller CallerFrameFunc) (string, error) {
	if isRequireNonNull(frame.Method) {
		trace.For(trace.Analyzer).Debug("fault is inside Objects.requireNonNull intrinsic, retargeting to caller frame")
		if caller == nil {
			return "", errs.New(errs.InvalidArgument,
				"%s.%s is the requireNonNull intrinsic but no caller frame resolver was supplied", frame.Method.ClassName, frame.Method.Name)
		}
		callerFrame, err := caller(1)
		if err != nil {
			return "", errs.Wrap(errs.HostError, err, "resolving caller frame for requireNonNull intrinsic rewrite")
		}
		return Explain(callerFrame, nil)
	}
	return analyzeFrame(frame.Method, frame.Pool, frame.Offset)
}

func isRequireNonNull(m classloader.Method) bool {
	return m.ClassName == "java.util.Objects" && m.Name == "requireNonNull"
}

func analyzeFrame(method classloader.Method, pool *constpool.Pool, offset int) (string, error) {
	if method.Code == nil {
		return "", errs.New(errs.InvalidArgument,
			"%s.%s has no Code attribute to analyze", method.ClassName, method.Name)
	}
	inst, ok := method.Code.At(offset)
	if !ok {
		return "", errs.New(errs.InvalidArgument,
			"offset %d is not an instruction boundary in %s.%s", offset, method.ClassName, method.Name)
	}

	cls, err := classifyFault(method, pool, inst)
	if err != nil {
		return "", err
	}
	if cls.unknown {
		return "[Unknown NPE cause]", nil
	}

	idx, ok := method.Code.IndexOf(offset)
	if !ok {
		return "", errs.New(errs.InvalidArgument, "offset %d has no instruction index", offset)
	}

	cause := traceProducer(method, pool, idx, cls.stackExcess)
	trace.For(trace.Analyzer).Debugf("%s.%s @%d: %s%s", method.ClassName, method.Name, offset, cls.lead, cause)
	return cls.lead + cause, nil
}

// classification is the first analysis step's output: the lead phrase and
// the stack excess the faulting opcode implies (how many positions below
// the stack top the null sits), or unknown if the opcode isn't one of the
// classified NPE-raising families.
type classification struct {
	lead        string
	stackExcess int
	unknown     bool
}

func classifyFault(method classloader.Method, pool *constpool.Pool, inst code.Instruction) (classification, error) {
	buf := method.Code.Bytes

	switch {
	case isInvoke(inst.Op):
		index := cpIndex2(buf, inst.Offset)
		className, name, sig, err := resolveInvoked(pool, index)
		if err != nil {
			return classification{}, err
		}
		if inst.Op == opcodes.Invokestatic && className == "java.util.Objects" && name == "requireNonNull" {
			return classification{lead: "Assertion Objects#requireNonNull failed for null "}, nil
		}
		if inst.Op == opcodes.Invokestatic {
			// A plain invokestatic has no implicit receiver to null-check;
			// it cannot itself be the faulting instruction of an NPE.
			return classification{unknown: true}, nil
		}
		return classification{
			lead:        fmt.Sprintf("Invoking %s#%s on null ", className, name),
			stackExcess: sig.ParameterLength,
		}, nil

	case inst.Op == opcodes.Getfield:
		f, err := memberref.ResolveField(pool, cpIndex2(buf, inst.Offset))
		if err != nil {
			return classification{}, err
		}
		return classification{lead: fmt.Sprintf("Getting field %s.%s of null ", f.ClassName, f.Name)}, nil

	case inst.Op == opcodes.Putfield:
		f, err := memberref.ResolveField(pool, cpIndex2(buf, inst.Offset))
		if err != nil {
			return classification{}, err
		}
		return classification{lead: fmt.Sprintf("Setting field %s.%s of null ", f.ClassName, f.Name), stackExcess: 1}, nil

	case isArrayStore(inst.Op):
		excess := 2
		if inst.Op == opcodes.Lastore || inst.Op == opcodes.Dastore {
			excess = 3
		}
		return classification{
			lead:        fmt.Sprintf("Storing %s to null array - ", arrayElemType(inst.Op)),
			stackExcess: excess,
		}, nil

	case isArrayLoad(inst.Op):
		return classification{
			lead:        fmt.Sprintf("Loading %s from null array - ", arrayElemType(inst.Op)),
			stackExcess: 1,
		}, nil

	case inst.Op == opcodes.Arraylength:
		return classification{lead: "Getting array length of null "}, nil

	case inst.Op == opcodes.Athrow:
		return classification{lead: "Throwing null "}, nil

	case inst.Op == opcodes.Monitorenter || inst.Op == opcodes.Monitorexit:
		return classification{lead: "Synchronizing on null "}, nil

	default:
		return classification{unknown: true}, nil
	}
}

// traceProducer walks backward from idx (exclusive) through method's instructions,
// applying the stack-effect oracle until it finds the producer of the slot
// stackExcess positions below the operand-stack top. Inside straight-line
// code each consumed slot was pushed by exactly one earlier instruction,
// so tracking the distance from the evolving stack top pins the producer.
func traceProducer(method classloader.Method, pool *constpool.Pool, idx int, stackExcess int) string {
	insts := method.Code.Instructions
	for idx > 0 {
		idx--
		inst := insts[idx]

		delta, err := stackeffect.Effect(inst, pool, method.Code.Bytes, stackExcess)
		if err != nil {
			trace.For(trace.Analyzer).Debugf("stack-effect lookup failed at offset %d: %v", inst.Offset, err)
			return "UNKNOWN"
		}
		if delta == stackeffect.Terminator {
			// Control did not necessarily fall through to the faulting
			// site from here; the straight-line assumption breaks down.
			return "UNKNOWN"
		}

		trace.For(trace.Analyzer).Tracef("op at %d: delta %d, excess %d", inst.Offset, delta, stackExcess)
		stackExcess -= delta
		if stackExcess > 0 || (stackExcess == 0 && delta == 0) {
			continue
		}
		return classifyProducer(method, pool, inst)
	}
	return "UNKNOWN"
}

func classifyProducer(method classloader.Method, pool *constpool.Pool, inst code.Instruction) string {
	buf := method.Code.Bytes

	if slot, ok := loadSlot(inst, buf); ok {
		return describeSlot(method, inst.Offset, slot)
	}

	switch inst.Op {
	case opcodes.AconstNull:
		return "constant"

	case opcodes.Getfield:
		f, err := memberref.ResolveField(pool, cpIndex2(buf, inst.Offset))
		if err != nil {
			return "UNKNOWN"
		}
		return fmt.Sprintf("instance field %s.%s", f.ClassName, f.Name)

	case opcodes.Getstatic:
		f, err := memberref.ResolveField(pool, cpIndex2(buf, inst.Offset))
		if err != nil {
			return "UNKNOWN"
		}
		return fmt.Sprintf("static field %s.%s", f.ClassName, f.Name)

	case opcodes.Invokevirtual, opcodes.Invokespecial, opcodes.Invokestatic, opcodes.Invokeinterface:
		className, name, sig, err := resolveInvoked(pool, cpIndex2(buf, inst.Offset))
		if err != nil || sig.Return == "void" {
			return "UNKNOWN"
		}
		return fmt.Sprintf("object returned from %s#%s", className, name)
	}

	return "UNKNOWN"
}

// describeSlot names a load producer: a slot within the declared-parameter
// range is a "method parameter", otherwise a "local variable", each
// preferring the variable-table name when present and falling back to a
// positional description otherwise.
func describeSlot(method classloader.Method, pc, slot int) string {
	if e, ok := method.Code.LocalVars.Lookup(slot, pc); ok {
		if _, isParam := method.ParamIndexForSlot(slot); isParam {
			return fmt.Sprintf("method parameter %s:%s", e.Name, e.HumanDesc)
		}
		return fmt.Sprintf("local variable %s:%s", e.Name, e.HumanDesc)
	}
	if idx, isParam := method.ParamIndexForSlot(slot); isParam {
		return fmt.Sprintf("method parameter at index %d", idx)
	}
	return fmt.Sprintf("local variable in slot %d", slot)
}

func isInvoke(op opcodes.Opcode) bool {
	switch op {
	case opcodes.Invokevirtual, opcodes.Invokespecial, opcodes.Invokestatic,
		opcodes.Invokeinterface, opcodes.Invokedynamic:
		return true
	}
	return false
}

func isArrayStore(op opcodes.Opcode) bool {
	switch op {
	case opcodes.Iastore, opcodes.Lastore, opcodes.Fastore, opcodes.Dastore,
		opcodes.Aastore, opcodes.Bastore, opcodes.Castore, opcodes.Sastore:
		return true
	}
	return false
}

func isArrayLoad(op opcodes.Opcode) bool {
	switch op {
	case opcodes.Iaload, opcodes.Laload, opcodes.Faload, opcodes.Daload,
		opcodes.Aaload, opcodes.Baload, opcodes.Caload, opcodes.Saload:
		return true
	}
	return false
}

func arrayElemType(op opcodes.Opcode) string {
	switch op {
	case opcodes.Iaload, opcodes.Iastore:
		return "int"
	case opcodes.Laload, opcodes.Lastore:
		return "long"
	case opcodes.Faload, opcodes.Fastore:
		return "float"
	case opcodes.Daload, opcodes.Dastore:
		return "double"
	case opcodes.Aaload, opcodes.Aastore:
		return "object"
	case opcodes.Baload, opcodes.Bastore:
		return "byte"
	case opcodes.Caload, opcodes.Castore:
		return "char"
	case opcodes.Saload, opcodes.Sastore:
		return "short"
	}
	return "value"
}

// loadSlot returns the local-variable slot a load-family instruction
// reads, and whether inst is in fact a load (covering the implicit-slot
// variants and the wide-prefixed form).
func loadSlot(inst code.Instruction, buf []byte) (int, bool) {
	op := inst.Op
	wide := op == opcodes.Wide
	if wide {
		op = inst.WideOp
	}

	switch op {
	case opcodes.Iload, opcodes.Lload, opcodes.Fload, opcodes.Dload, opcodes.Aload:
		if wide {
			return int(buf[inst.Offset+2])<<8 | int(buf[inst.Offset+3]), true
		}
		return int(buf[inst.Offset+1]), true
	case opcodes.Iload_0, opcodes.Lload_0, opcodes.Fload_0, opcodes.Dload_0, opcodes.Aload_0:
		return 0, true
	case opcodes.Iload_1, opcodes.Lload_1, opcodes.Fload_1, opcodes.Dload_1, opcodes.Aload_1:
		return 1, true
	case opcodes.Iload_2, opcodes.Lload_2, opcodes.Fload_2, opcodes.Dload_2, opcodes.Aload_2:
		return 2, true
	case opcodes.Iload_3, opcodes.Lload_3, opcodes.Fload_3, opcodes.Dload_3, opcodes.Aload_3:
		return 3, true
	}
	return 0, false
}

// cpIndex2 reads the 2-byte constant-pool index operand shared by
// getfield/putfield/getstatic/putstatic and every invoke* instruction.
func cpIndex2(buf []byte, offset int) int {
	return int(buf[offset+1])<<8 | int(buf[offset+2])
}

// resolveInvoked resolves any of the invoke family's constant-pool target
// into a (declaring class, member name, signature) triple. invokedynamic
// has no declaring class — its call site binds to a bootstrap method, not
// a symbolic class reference — so it reports the synthetic class name
// "<indy>" rather than failing the analysis outright.
func resolveInvoked(pool *constpool.Pool, index int) (string, string, descriptor.MethodSignature, error) {
	entry, err := pool.Get(index)
	if err != nil {
		return "", "", descriptor.MethodSignature{}, err
	}

	switch entry.Tag {
	case constpool.TagMethodRef, constpool.TagInterfaceMethodRef:
		m, err := memberref.ResolveMethod(pool, index)
		if err != nil {
			return "", "", descriptor.MethodSignature{}, err
		}
		return m.ClassName, m.Name, m.Sig, nil

	case constpool.TagInvokeDynamic:
		nat, err := pool.Get(int(entry.NameAndTypeIndex))
		if err != nil {
			return "", "", descriptor.MethodSignature{}, err
		}
		name, err := pool.Utf8At(int(nat.NameIndex))
		if err != nil {
			return "", "", descriptor.MethodSignature{}, err
		}
		rawDesc, err := pool.Utf8At(int(nat.DescIndex))
		if err != nil {
			return "", "", descriptor.MethodSignature{}, err
		}
		sig, err := descriptor.ParseMethod(rawDesc)
		if err != nil {
			return "", "", descriptor.MethodSignature{}, err
		}
		return "<indy>", name, sig, nil

	default:
		return "", "", descriptor.MethodSignature{}, errs.New(errs.MalformedConstantPool,
			"constant-pool index %d (tag %v) is not an invocable reference", index, entry.Tag)
	}
}
