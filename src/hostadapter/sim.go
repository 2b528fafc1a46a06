/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package hostadapter

import (
	"fmt"
	"sync"

	"npeblame/classloader"
	"npeblame/constpool"
	"npeblame/descriptor"
	"npeblame/errs"
	"npeblame/localvars"
	"npeblame/object"
	"npeblame/reader"
	"npeblame/trace"
)

// Sim is a Host backed by class files parsed in-process. It exists so the
// CLI's offline mode and the tests can run the exact callback path a native
// runtime would drive, handle for handle. Loaded classes and pushed frames
// are guarded by one mutex so concurrent callbacks can share one Sim.
type Sim struct {
	mu      sync.Mutex
	classes map[string]*simClass // keyed by internal (slash) name
	stacks  map[ThreadHandle][]simLocation
	nextTID int
}

type simClass struct {
	name    string // internal form, e.g. "com/Foo"
	parsed  *classloader.ParsedClass
	cpCount int
	cpBytes []byte
}

type simMethod struct {
	class  *simClass
	method classloader.Method
}

// simLocation is one pushed stack frame: innermost at index 0.
type simLocation struct {
	method MethodHandle
	offset int
}

type simThread int

// NewSim returns an empty simulated host.
func NewSim() *Sim {
	return &Sim{
		classes: make(map[string]*simClass),
		stacks:  make(map[ThreadHandle][]simLocation),
	}
}

// LoadClassFile parses a complete class file and registers it, retaining
// the raw constant-pool payload region so GetConstantPoolBytes can hand out
// the same bytes a native host would.
func (s *Sim) LoadClassFile(raw []byte) (string, error) {
	parsed, err := classloader.Parse(raw)
	if err != nil {
		return "", err
	}

	// Locate the constant-pool payload: magic(4) + minor(2) + major(2) +
	// count(2) precede it; re-walking the entries finds where it ends.
	r := reader.New(raw)
	if err := r.Skip(8); err != nil {
		return "", errs.Wrap(errs.HostError, err, "re-reading class file header")
	}
	count, err := r.U2()
	if err != nil {
		return "", errs.Wrap(errs.HostError, err, "re-reading constant_pool_count")
	}
	start := r.Pos()
	if _, err := constpool.ParseReader(r, int(count)); err != nil {
		return "", err
	}
	end := r.Pos()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes[parsed.Name] = &simClass{
		name:    parsed.Name,
		parsed:  parsed,
		cpCount: int(count),
		cpBytes: raw[start:end],
	}
	trace.For(trace.Boot).Debugf("loaded class %s (%d methods)", parsed.Name, len(parsed.Methods))
	return parsed.Name, nil
}

// FindMethod resolves a handle for className's method with the given name,
// and descriptor when desc is non-empty (required when the name is
// overloaded). className is the internal slash form.
func (s *Sim) FindMethod(className, name, desc string) (MethodHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cls, ok := s.classes[className]
	if !ok {
		return nil, errs.New(errs.HostError, "JVMTI_ERROR_INVALID_CLASS: class %s is not loaded", className)
	}
	var found *simMethod
	for _, m := range cls.parsed.Methods {
		if m.Name != name || (desc != "" && m.RawDesc != desc) {
			continue
		}
		if found != nil {
			return nil, errs.New(errs.InvalidArgument,
				"method %s.%s is overloaded, a descriptor is required", className, name)
		}
		found = &simMethod{class: cls, method: m}
	}
	if found == nil {
		return nil, errs.New(errs.HostError, "JVMTI_ERROR_INVALID_METHODID: no method %s.%s%s", className, name, desc)
	}
	return found, nil
}

// NewThread mints a thread handle with an empty stack.
func (s *Sim) NewThread() ThreadHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTID++
	t := simThread(s.nextTID)
	s.stacks[t] = nil
	return t
}

// PushFrame pushes an executing location onto thread's stack; the first
// push is the outermost frame, the last push the innermost.
func (s *Sim) PushFrame(thread ThreadHandle, method MethodHandle, offset int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stacks[thread] = append([]simLocation{{method: method, offset: offset}}, s.stacks[thread]...)
}

func (s *Sim) resolve(method MethodHandle) (*simMethod, error) {
	m, ok := method.(*simMethod)
	if !ok || m == nil {
		return nil, errs.New(errs.HostError, "JVMTI_ERROR_INVALID_METHODID: foreign method handle %T", method)
	}
	return m, nil
}

func (s *Sim) IsMethodNative(method MethodHandle) (bool, error) {
	m, err := s.resolve(method)
	if err != nil {
		return false, err
	}
	return m.method.Modifiers.Has(classloader.ModNative), nil
}

func (s *Sim) GetFrameLocation(thread ThreadHandle, depth int) (MethodHandle, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stack := s.stacks[thread]
	if depth < 0 || depth >= len(stack) {
		return nil, 0, errs.New(errs.HostError, "JVMTI_ERROR_NO_MORE_FRAMES: depth %d of %d", depth, len(stack))
	}
	loc := stack[depth]
	return loc.method, loc.offset, nil
}

func (s *Sim) GetFrameCount(thread ThreadHandle) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stacks[thread]), nil
}

func (s *Sim) GetMethodDeclaringClass(method MethodHandle) (ClassHandle, error) {
	m, err := s.resolve(method)
	if err != nil {
		return nil, err
	}
	return m.class, nil
}

func (s *Sim) GetClassSignature(class ClassHandle) (string, error) {
	cls, ok := class.(*simClass)
	if !ok || cls == nil {
		return "", errs.New(errs.HostError, "JVMTI_ERROR_INVALID_CLASS: foreign class handle %T", class)
	}
	return "L" + cls.name + ";", nil
}

func (s *Sim) GetBytecodes(method MethodHandle) ([]byte, error) {
	m, err := s.resolve(method)
	if err != nil {
		return nil, err
	}
	if m.method.Code == nil {
		return nil, errs.New(errs.HostError, "JVMTI_ERROR_NATIVE_METHOD: %s.%s has no bytecode", m.class.name, m.method.Name)
	}
	return m.method.Code.Bytes, nil
}

func (s *Sim) GetConstantPoolBytes(class ClassHandle) (int, []byte, error) {
	cls, ok := class.(*simClass)
	if !ok || cls == nil {
		return 0, nil, errs.New(errs.HostError, "JVMTI_ERROR_INVALID_CLASS: foreign class handle %T", class)
	}
	return cls.cpCount, cls.cpBytes, nil
}

func (s *Sim) GetMethodModifiers(method MethodHandle) (uint16, error) {
	m, err := s.resolve(method)
	if err != nil {
		return 0, err
	}
	return uint16(m.method.Modifiers), nil
}

func (s *Sim) GetMethodNameAndDescriptor(method MethodHandle) (string, string, error) {
	m, err := s.resolve(method)
	if err != nil {
		return "", "", err
	}
	return m.method.Name, m.method.RawDesc, nil
}

func (s *Sim) GetMethodArgumentsSize(method MethodHandle) (uint8, error) {
	m, err := s.resolve(method)
	if err != nil {
		return 0, err
	}
	return uint8(m.method.Sig.ParameterLength + m.method.ThisWidth()), nil
}

func (s *Sim) GetLocalVariableTable(method MethodHandle) ([]localvars.Entry, error) {
	m, err := s.resolve(method)
	if err != nil {
		return nil, err
	}
	if m.method.Code == nil {
		return nil, nil
	}
	return m.method.Code.LocalVars.Entries(), nil
}

// SimBridge is the reflection bridge over the simulated object model. Every
// operation re-validates the caller's descriptor string before touching the
// object; a mismatch never coerces silently.
type SimBridge struct{}

func (SimBridge) GetClassOf(obj *object.Object) (string, error) {
	if obj == nil {
		return "", errs.New(errs.HostCallbackError, "java.lang.NullPointerException: GetObjectClass on null")
	}
	return obj.KlassName, nil
}

func (SimBridge) GetField(obj *object.Object, name, desc string) (interface{}, error) {
	f, err := checkedField(obj, name, desc)
	if err != nil {
		return nil, err
	}
	return f.Fvalue, nil
}

func (SimBridge) PutField(obj *object.Object, name, desc string, value interface{}) error {
	if _, err := checkedField(obj, name, desc); err != nil {
		return err
	}
	if err := checkValue(desc, value); err != nil {
		return err
	}
	obj.FieldTable[name] = object.Field{Ftype: desc, Fvalue: value}
	return nil
}

// InvokeVirtual dispatches the few methods the sim object model answers.
// The real bridge forwards to JNI; here only java.lang.Throwable's message
// accessor exists to be called.
func (b SimBridge) InvokeVirtual(obj *object.Object, name, desc string, args ...interface{}) (interface{}, error) {
	if _, err := descriptor.ParseMethod(desc); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errs.New(errs.HostCallbackError, "java.lang.NullPointerException: invoke %s on null", name)
	}
	if name == "getMessage" && desc == "()Ljava/lang/String;" && len(args) == 0 {
		return obj.DetailMessage(), nil
	}
	return nil, errs.New(errs.HostCallbackError, "java.lang.NoSuchMethodError: %s.%s%s", obj.KlassName, name, desc)
}

func checkedField(obj *object.Object, name, desc string) (object.Field, error) {
	if _, _, err := descriptor.ParseType(desc, 0); err != nil {
		return object.Field{}, err
	}
	if obj == nil {
		return object.Field{}, errs.New(errs.HostCallbackError, "java.lang.NullPointerException: field %s of null", name)
	}
	f, ok := obj.FieldTable[name]
	if !ok {
		return object.Field{}, errs.New(errs.HostCallbackError, "java.lang.NoSuchFieldError: %s.%s", obj.KlassName, name)
	}
	if f.Ftype != desc {
		return object.Field{}, errs.New(errs.HostCallbackError,
			"descriptor mismatch on %s.%s: declared %s, caller supplied %s", obj.KlassName, name, f.Ftype, desc)
	}
	return f, nil
}

// checkValue enforces that value's runtime type can legally be stored under
// desc. Only the categories the sim object model carries are accepted.
func checkValue(desc string, value interface{}) error {
	switch desc {
	case "Ljava/lang/String;":
		if _, ok := value.(string); !ok {
			return errs.New(errs.HostCallbackError, "cannot store %T into a %s field", value, desc)
		}
		return nil
	case "I", "S", "B", "C", "Z":
		if _, ok := value.(int32); !ok {
			return errs.New(errs.HostCallbackError, "cannot store %T into a %s field", value, desc)
		}
		return nil
	case "J":
		if _, ok := value.(int64); !ok {
			return errs.New(errs.HostCallbackError, "cannot store %T into a %s field", value, desc)
		}
		return nil
	case "F":
		if _, ok := value.(float32); !ok {
			return errs.New(errs.HostCallbackError, "cannot store %T into a %s field", value, desc)
		}
		return nil
	case "D":
		if _, ok := value.(float64); !ok {
			return errs.New(errs.HostCallbackError, "cannot store %T into a %s field", value, desc)
		}
		return nil
	default:
		if value == nil {
			return nil
		}
		if _, ok := value.(*object.Object); !ok {
			return errs.New(errs.HostCallbackError, "cannot store %T into a %s field", value, desc)
		}
		return nil
	}
}

var _ Host = (*Sim)(nil)
var _ Bridge = SimBridge{}
var _ fmt.Stringer = simThread(0)

func (t simThread) String() string { return fmt.Sprintf("thread-%d", int(t)) }
