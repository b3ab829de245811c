/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Command flowserver is a demonstration TCP server wiring flowhttp's core
// Flow/SessionData state machine to the router.Router example Processor.
package main

import (
	"flag"
	"net"

	"go.uber.org/zap"

	flowhttp "github.com/badu/flowhttp"
	"github.com/badu/flowhttp/hdr"
	"github.com/badu/flowhttp/router"
	"github.com/badu/flowhttp/sniff"
	"github.com/badu/flowhttp/transport"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "listen address")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck

	r := router.New()
	r.HandleFunc("/", func(s *flowhttp.SessionData) {
		s.Reply(200, []byte("flowhttp\n"), nil)
	})
	r.HandleFunc("/echo", func(s *flowhttp.SessionData) {
		// GenerateReply never guesses Content-Type on its own; a
		// Processor that wants sniffed detection asks for it explicitly.
		extra := hdr.Header{}
		extra.Set(hdr.ContentType, sniff.DetectContentType(s.Content))
		s.Reply(200, s.Content, extra)
	}, "POST")

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatal("listen", zap.Error(err))
	}
	log.Info("flowserver listening", zap.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Warn("accept", zap.Error(err))
			continue
		}
		go serveConn(conn, r, log)
	}
}

// serveConn runs one connection's Flow to completion. Each accepted
// net.Conn gets its own SessionData/Flow pair; sameHandle is true because
// the same net.Conn serves both read and write directions.
func serveConn(conn net.Conn, proc flowhttp.Processor, log *zap.Logger) {
	t := transport.NewSocket(conn, 0)
	session := flowhttp.NewSession(flowhttp.StatusRequest)
	flow := flowhttp.NewFlow(session, proc, t, t, true, log)
	flow.Serve()
}
