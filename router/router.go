/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package router is a demonstration flowhttp.Processor that dispatches
// completed requests against a table of registered patterns, with
// longest-match precedence and optional host-qualified patterns. Routing
// is a collaborator of the connection-flow core, not part of it, so the
// flowhttp package never imports this one.
package router

import (
	"strings"
	"sync"

	flowhttp "github.com/badu/flowhttp"
	"github.com/badu/flowhttp/hdr"
)

// Handler answers one completed request by reading session state
// (InboundRequest, Content, Inbound) and queuing a reply via
// session.Reply. It is the routing-table's equivalent of http.Handler,
// narrowed to the single Handle hook flowhttp.Processor exposes.
type Handler func(session *flowhttp.SessionData)

type entry struct {
	explicit bool
	h        Handler
	pattern  string
	methods  map[string]bool
}

// Router is a flowhttp.Processor that matches InboundRequest.Resource
// against a table of registered patterns with longest-match,
// optional-host-qualified precedence.
type Router struct {
	mu    sync.RWMutex
	m     map[string]entry
	hosts bool

	// NotFound, if set, answers requests matching no registered pattern.
	// Defaults to a canned 404 reply.
	NotFound Handler
}

// New constructs an empty Router.
func New() *Router {
	return &Router{m: make(map[string]entry)}
}

// HandleFunc registers h for pattern, restricted to methods if non-empty
// (any method is accepted if methods is empty). Patterns follow the
// ServeMux convention: a trailing slash names a rooted subtree, otherwise
// an exact path; an optional leading "host/" qualifies the match to that
// Host header. (Named HandleFunc, not Handle, because Handle is already
// taken by the flowhttp.Processor dispatch hook below.)
func (r *Router) HandleFunc(pattern string, h Handler, methods ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pattern == "" {
		panic("router: invalid pattern")
	}
	if h == nil {
		panic("router: nil handler")
	}
	var methodSet map[string]bool
	if len(methods) > 0 {
		methodSet = make(map[string]bool, len(methods))
		for _, m := range methods {
			methodSet[m] = true
		}
	}
	r.m[pattern] = entry{explicit: true, h: h, pattern: pattern, methods: methodSet}
	if pattern[0] != '/' {
		r.hosts = true
	}
}

// match finds the registered entry for host and path, applying the
// longest-pattern-wins rule among subtree registrations.
func (r *Router) match(host, path string) (entry, bool) {
	if r.hosts {
		if e, ok := r.m[host+path]; ok {
			return e, true
		}
	}
	if e, ok := r.m[path]; ok {
		return e, true
	}

	var best entry
	var bestLen int
	for pattern, e := range r.m {
		if e.explicit && pattern == path {
			continue // already checked above; avoids a spurious subtree match
		}
		p := pattern
		if r.hosts {
			if i := strings.IndexByte(p, '/'); i >= 0 {
				if p[:i] != "" && p[:i] != host {
					continue
				}
				p = p[i:]
			}
		}
		if !strings.HasSuffix(p, "/") || !strings.HasPrefix(path, p) {
			continue
		}
		if len(p) > bestLen {
			best, bestLen = e, len(p)
		}
	}
	return best, bestLen > 0
}

// Start implements flowhttp.Processor. Routers need no per-connection setup.
func (r *Router) Start(*flowhttp.SessionData) {}

// AfterHeaders implements flowhttp.Processor: a body is expected iff
// Content-Length was declared.
func (r *Router) AfterHeaders(session *flowhttp.SessionData) flowhttp.Status {
	if session.ContentLength > 0 {
		return flowhttp.StatusContent
	}
	return flowhttp.StatusProcessing
}

// Handle implements flowhttp.Processor: dispatch to the matching
// registered Handler, or answer 404/405 via the session's Trigger405
// helper.
func (r *Router) Handle(session *flowhttp.SessionData) {
	req := session.InboundRequest
	host, path := req.Resource, req.Resource
	if h := session.Inbound.Get(hdr.Host); h != "" {
		host = h
	}

	r.mu.RLock()
	e, ok := r.match(host, path)
	r.mu.RUnlock()

	if !ok {
		r.notFound(session)
		return
	}
	if e.methods != nil && !e.methods[req.Method] {
		if session.Trigger405(keys(e.methods)) {
			session.Reply(405, []byte("Method Not Allowed"), nil)
			return
		}
		r.notFound(session)
		return
	}
	e.h(session)
}

func (r *Router) notFound(session *flowhttp.SessionData) {
	if r.NotFound != nil {
		r.NotFound(session)
		return
	}
	session.Reply(404, []byte("Not Found"), nil)
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// AfterProcessing implements flowhttp.Processor: keep the connection alive
// for another request unless a reply queued during Handle already latched
// CloseAfterSend.
func (r *Router) AfterProcessing(session *flowhttp.SessionData) flowhttp.Status {
	return session.NextStatus(flowhttp.StatusRequest)
}

// Recycle implements flowhttp.Processor. Router holds no per-session state.
func (r *Router) Recycle(*flowhttp.SessionData) {}

var _ flowhttp.Processor = (*Router)(nil)
