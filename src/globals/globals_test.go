/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package globals

import "testing"

func TestInitSetsOption(t *testing.T) {
	g := Init("debug")
	if g.Option != "debug" {
		t.Errorf("expected Option debug, got %q", g.Option)
	}
	if GetGlobalRef().Option != "debug" {
		t.Errorf("expected singleton to reflect Init, got %q", GetGlobalRef().Option)
	}
}

func TestRecursionGuardBlocksReentry(t *testing.T) {
	var g RecursionGuard
	const handle = "thread-1"

	if !g.Enter(handle) {
		t.Fatalf("first Enter should succeed")
	}
	if g.Enter(handle) {
		t.Errorf("nested Enter on the same handle should be rejected")
	}
	g.Exit(handle)
	if !g.Enter(handle) {
		t.Errorf("Enter after Exit should succeed again")
	}
	g.Exit(handle)
}

func TestRecursionGuardIsPerHandle(t *testing.T) {
	var g RecursionGuard
	if !g.Enter("t1") || !g.Enter("t2") {
		t.Errorf("distinct thread handles should not contend with each other")
	}
	g.Exit("t1")
	g.Exit("t2")
}
