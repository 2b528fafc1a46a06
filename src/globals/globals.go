/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package globals holds the handful of values that genuinely need to be
// reachable from anywhere in the process: the single configuration option
// string the agent receives at load time, and the recursion guard that
// keeps a nested exception event on the same host thread from re-entering
// the callback. Apart from the log level held by npeblame/trace, everything
// else in the module is stack-local to one callback invocation.
package globals

import (
	"sync"

	"npeblame/trace"
)

// Globals is the process-wide configuration singleton.
type Globals struct {
	Option string // "" (default), "debug", or "trace"; unrecognized values are ignored
}

var global Globals

// Init resets the singleton and applies option (one of "", "debug",
// "trace") to the logger. Called once from the load/subscription path.
func Init(option string) Globals {
	global = Globals{Option: option}
	trace.SetVerbosity(option)
	return global
}

// GetGlobalRef returns a pointer to the singleton.
func GetGlobalRef() *Globals {
	return &global
}

// RecursionGuard tracks, per host thread handle, whether an exception
// callback is currently executing on that thread. The host hands the core
// a thread handle on every callback invocation; that handle, not a Go
// goroutine id (which the language deliberately doesn't expose), is the
// key for the guard, since Go has no thread-local storage.
type RecursionGuard struct {
	active sync.Map // thread handle -> struct{}
}

// Enter reports whether the callback may proceed for threadHandle: true
// the first time for a given handle, false if a callback is already
// running on it. Nested invocations must be dropped, not queued.
func (g *RecursionGuard) Enter(threadHandle interface{}) bool {
	_, alreadyRunning := g.active.LoadOrStore(threadHandle, struct{}{})
	return !alreadyRunning
}

// Exit releases the guard for threadHandle. Callers must defer this
// immediately after a successful Enter.
func (g *RecursionGuard) Exit(threadHandle interface{}) {
	g.active.Delete(threadHandle)
}

var guard RecursionGuard

// GuardRef returns the process-wide recursion guard.
func GuardRef() *RecursionGuard { return &guard }
