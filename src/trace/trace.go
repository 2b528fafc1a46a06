/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package trace is the logging facade used across the module: a small set
// of named logger categories (Bytecode, Analyzer, ExceptionCallback, Boot)
// over one shared logrus instance, so log lines can be filtered per
// subsystem.
package trace

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
)

// Category names a logger category.
type Category string

const (
	Bytecode         Category = "Bytecode"
	Analyzer         Category = "Analyzer"
	ExceptionCallback Category = "ExceptionCallback"
	Boot             Category = "Boot"
)

var base = logrus.New()

func init() {
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetVerbosity applies the agent's option string. "debug" and "trace"
// raise verbosity; any other value, including the empty string, leaves the
// level unchanged.
func SetVerbosity(option string) {
	switch option {
	case "debug":
		base.SetLevel(logrus.DebugLevel)
	case "trace":
		base.SetLevel(logrus.TraceLevel)
	}
}

// For returns the logger entry for a named category.
func For(cat Category) *logrus.Entry {
	return base.WithField("component", string(cat))
}

// Dump renders v with go-spew and logs it at TRACE level under cat. It is a
// no-op unless TRACE verbosity is active, since spew.Sdump is not free.
func Dump(cat Category, label string, v interface{}) {
	if base.IsLevelEnabled(logrus.TraceLevel) {
		For(cat).Tracef("%s:\n%s", label, spew.Sdump(v))
	}
}
