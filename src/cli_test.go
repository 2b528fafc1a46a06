/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package main

import (
	"bytes"
	"strings"
	"testing"

	"npeblame/globals"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAnalyzeRequiresMethodFlag(t *testing.T) {
	_, err := execute(t, "analyze", "whatever.class", "--offset", "1")
	if err == nil {
		t.Error("expected an error when --method is missing")
	}
}

func TestAnalyzeReportsUnreadableClassFile(t *testing.T) {
	_, err := execute(t, "analyze", "/no/such/file.class", "--method", "f", "--offset", "1")
	if err == nil {
		t.Error("expected an error for a class file that cannot be read")
	}
}

func TestDumpRequiresMethodFlag(t *testing.T) {
	_, err := execute(t, "dump", "whatever.class")
	if err == nil {
		t.Error("expected an error when --method is missing")
	}
}

func TestAgentCommandRuns(t *testing.T) {
	if _, err := execute(t, "agent"); err != nil {
		t.Errorf("agent command failed: %v", err)
	}
}

func TestOptionFlagReachesGlobals(t *testing.T) {
	if _, err := execute(t, "--option", "debug", "agent"); err != nil {
		t.Fatalf("agent command failed: %v", err)
	}
	if got := globals.GetGlobalRef().Option; got != "debug" {
		t.Errorf("expected option %q to be recorded, got %q", "debug", got)
	}
	globals.Init("") // reset the recorded option; the log level "debug" set stays in effect
}

func TestUnknownSubcommandFails(t *testing.T) {
	out, err := execute(t, "frobnicate")
	if err == nil {
		t.Errorf("expected an error for an unknown subcommand, output: %s", strings.TrimSpace(out))
	}
}
