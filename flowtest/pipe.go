/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package flowtest provides in-memory fixtures for exercising a Flow:
// Pipe drives one without a real socket, and RawMessage builds the wire
// bytes a test feeds it.
package flowtest

import (
	"net"

	"github.com/badu/flowhttp/transport"
)

// DefaultBufSize is the bufio.Reader size Pipe's transports are
// constructed with, matching transport.NewSocket's own default-sized
// usage elsewhere in this module.
const DefaultBufSize = 4096

// Pipe is a pair of in-memory transports connected by net.Pipe: Server is
// what a Flow under test should be constructed with, Client is the far
// end the test drives by writing requests and reading replies.
type Pipe struct {
	Server transport.Transport
	Client transport.Transport

	serverConn net.Conn
	clientConn net.Conn
}

// NewPipe constructs a connected Pipe. Both ends share nothing with a
// real socket, so tests run with no network access and no timing
// dependency on an OS scheduler.
func NewPipe() *Pipe {
	c1, c2 := net.Pipe()
	return &Pipe{
		Server:     transport.NewSocket(c1, DefaultBufSize),
		Client:     transport.NewSocket(c2, DefaultBufSize),
		serverConn: c1,
		clientConn: c2,
	}
}

// Close closes both ends. Safe to call after a Flow under test has
// already recycled and closed Server; net.Pipe's Close is idempotent.
func (p *Pipe) Close() {
	_ = p.serverConn.Close()
	_ = p.clientConn.Close()
}
