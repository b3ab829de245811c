/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package flowtest

import (
	"fmt"
	"sort"
	"strings"
)

// RawMessage builds literal wire bytes for feeding a Pipe. Tests drive a
// Flow at the byte level, so the fixture is the wire bytes themselves
// rather than a parsed request struct.
type RawMessage struct {
	firstLine string
	headers   map[string][]string
	order     []string
	body      []byte
}

// Request starts building a request message.
func Request(method, resource string) *RawMessage {
	return &RawMessage{
		firstLine: fmt.Sprintf("%s %s HTTP/1.1", method, resource),
		headers:   map[string][]string{},
	}
}

// Response starts building a response message.
func Response(code int, reason string) *RawMessage {
	return &RawMessage{
		firstLine: fmt.Sprintf("HTTP/1.1 %d %s", code, reason),
		headers:   map[string][]string{},
	}
}

// Header adds a header line, preserving first-seen insertion order.
func (m *RawMessage) Header(name, value string) *RawMessage {
	if _, ok := m.headers[name]; !ok {
		m.order = append(m.order, name)
	}
	m.headers[name] = append(m.headers[name], value)
	return m
}

// Body sets the message body and, unless already set explicitly via
// Header, adds a matching Content-Length.
func (m *RawMessage) Body(body string) *RawMessage {
	m.body = []byte(body)
	if _, ok := m.headers["Content-Length"]; !ok {
		m.Header("Content-Length", fmt.Sprintf("%d", len(m.body)))
	}
	return m
}

// Bytes renders the message as literal HTTP/1.1 wire bytes.
func (m *RawMessage) Bytes() []byte {
	var b strings.Builder
	b.WriteString(m.firstLine)
	b.WriteString("\r\n")
	for _, name := range m.order {
		for _, v := range m.headers[name] {
			b.WriteString(name)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\r\n")
		}
	}
	b.WriteString("\r\n")
	b.Write(m.body)
	return []byte(b.String())
}

// SortedHeaderNames is a convenience for tests that want to assert on
// header presence irrespective of insertion order.
func (m *RawMessage) SortedHeaderNames() []string {
	names := append([]string(nil), m.order...)
	sort.Strings(names)
	return names
}
