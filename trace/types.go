/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package trace provides a struct of optional nil-checked func hooks for
// observing the Flow/SessionData boundary, in the manner of net/http
// client tracing. DNS/dial-level events belong to concrete transport
// dialing, which this module's connection-flow core doesn't touch, so
// they have no hooks here.
package trace

// Hooks is a set of hooks a Flow calls at various points in a session's
// lifecycle. Any hook may be nil. Hooks may be called concurrently with
// each other only insofar as a Flow's own single-goroutine driver permits
// (see flow.go); none are called from more than one goroutine at a time
// for a given session.
type Hooks struct {
	// OnStart fires once Serve begins, before the first line read is issued.
	OnStart func()

	// OnRequestLine fires after a server-role request line parses
	// successfully.
	OnRequestLine func(method, resource string)

	// OnStatusLine fires after a client-role status line parses
	// successfully.
	OnStatusLine func(code int, reason string)

	// OnHeadersComplete fires once the header block's terminating blank
	// line has been absorbed, after AfterHeaders has run.
	OnHeadersComplete func(contentLength int)

	// OnBodyComplete fires once a declared body has been fully read.
	OnBodyComplete func(n int)

	// OnReplyQueued fires each time SessionData.Reply queues a message.
	OnReplyQueued func(status int, bodyLen int)

	// OnWriteComplete fires after a queued write completes, successfully
	// or not.
	OnWriteComplete func(err error)

	// OnRecycle fires once per session, as Flow.recycle begins teardown.
	OnRecycle func()
}

// Each Fire* method is a nil-safe call site: it is always safe to call on
// a nil *Hooks or with the corresponding field unset.

func (h *Hooks) FireStart() {
	if h != nil && h.OnStart != nil {
		h.OnStart()
	}
}

func (h *Hooks) FireRequestLine(method, resource string) {
	if h != nil && h.OnRequestLine != nil {
		h.OnRequestLine(method, resource)
	}
}

func (h *Hooks) FireStatusLine(code int, reason string) {
	if h != nil && h.OnStatusLine != nil {
		h.OnStatusLine(code, reason)
	}
}

func (h *Hooks) FireHeadersComplete(contentLength int) {
	if h != nil && h.OnHeadersComplete != nil {
		h.OnHeadersComplete(contentLength)
	}
}

func (h *Hooks) FireBodyComplete(n int) {
	if h != nil && h.OnBodyComplete != nil {
		h.OnBodyComplete(n)
	}
}

func (h *Hooks) FireReplyQueued(status, bodyLen int) {
	if h != nil && h.OnReplyQueued != nil {
		h.OnReplyQueued(status, bodyLen)
	}
}

func (h *Hooks) FireWriteComplete(err error) {
	if h != nil && h.OnWriteComplete != nil {
		h.OnWriteComplete(err)
	}
}

func (h *Hooks) FireRecycle() {
	if h != nil && h.OnRecycle != nil {
		h.OnRecycle()
	}
}
