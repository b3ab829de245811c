/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package trace

import "testing"

func TestComposeCallsBoth(t *testing.T) {
	var calls []string
	older := &Hooks{
		OnStart: func() { calls = append(calls, "old") },
	}
	newer := &Hooks{
		OnStart: func() { calls = append(calls, "new") },
	}

	merged := newer.Compose(older)
	merged.FireStart()

	if len(calls) != 2 || calls[0] != "new" || calls[1] != "old" {
		t.Fatalf("calls = %v, want [new old]", calls)
	}
}

func TestComposeFallsBackToEitherSide(t *testing.T) {
	var got string
	older := &Hooks{OnRecycle: func() { got = "old" }}
	newer := &Hooks{} // OnRecycle unset

	merged := newer.Compose(older)
	merged.FireRecycle()
	if got != "old" {
		t.Errorf("got %q, want old's hook to fire", got)
	}

	got = ""
	newer2 := &Hooks{OnRecycle: func() { got = "new" }}
	merged2 := newer2.Compose(&Hooks{})
	merged2.FireRecycle()
	if got != "new" {
		t.Errorf("got %q, want new's hook to fire", got)
	}
}

func TestComposeNilSides(t *testing.T) {
	h := &Hooks{OnStart: func() {}}
	if h.Compose(nil) != h {
		t.Error("Compose(nil) should return receiver unchanged")
	}
	var nilHooks *Hooks
	if nilHooks.Compose(h) != h {
		t.Error("nil.Compose(h) should return h")
	}
}

func TestFireOnNilReceiverIsSafe(t *testing.T) {
	var h *Hooks
	h.FireStart()
	h.FireRequestLine("GET", "/")
	h.FireStatusLine(200, "OK")
	h.FireHeadersComplete(0)
	h.FireBodyComplete(0)
	h.FireReplyQueued(200, 0)
	h.FireWriteComplete(nil)
	h.FireRecycle()
}
