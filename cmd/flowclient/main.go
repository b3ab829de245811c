/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Command flowclient demonstrates the client role of flowhttp's Flow state
// machine: a single GET request driven over a transport.Socket, with
// responses (including any Set-Cookie headers) surfaced to stdout.
package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"

	"go.uber.org/zap"

	flowhttp "github.com/badu/flowhttp"
	"github.com/badu/flowhttp/cookiejar"
	"github.com/badu/flowhttp/hdr"
	"github.com/badu/flowhttp/transport"
)

// clientProcessor implements flowhttp.Processor for the client role: it
// issues one GET on Start, prints the response body on Handle, and closes
// the connection after the single exchange completes.
type clientProcessor struct {
	target *url.URL
	jar    *cookiejar.Jar
	done   chan struct{}
}

func (p *clientProcessor) Start(session *flowhttp.SessionData) {
	headers := hdr.Header{}
	if cookieHeader := p.jar.RequestHeader(p.target); cookieHeader != "" {
		headers.Set(hdr.CookieHeader, cookieHeader)
	}
	session.Request("GET", p.target.RequestURI(), headers, nil)
}

func (p *clientProcessor) AfterHeaders(session *flowhttp.SessionData) flowhttp.Status {
	if session.ContentLength > 0 {
		return flowhttp.StatusContent
	}
	return flowhttp.StatusProcessing
}

func (p *clientProcessor) Handle(session *flowhttp.SessionData) {
	p.jar.StoreResponseHeaders(p.target, session.Inbound)
	fmt.Printf("%d %s\n", session.InboundStatus.Code, session.InboundStatus.Reason)
	for k, vv := range session.Inbound {
		for _, v := range vv {
			fmt.Printf("%s: %s\n", k, v)
		}
	}
	fmt.Printf("\n%s\n", session.Content)
}

func (p *clientProcessor) AfterProcessing(*flowhttp.SessionData) flowhttp.Status {
	return flowhttp.StatusShutdown
}

func (p *clientProcessor) Recycle(*flowhttp.SessionData) {
	close(p.done)
}

var _ flowhttp.Processor = (*clientProcessor)(nil)

func main() {
	target := flag.String("url", "http://127.0.0.1:8080/", "request URL")
	flag.Parse()

	u, err := url.Parse(*target)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid -url:", err)
		os.Exit(1)
	}

	conn, err := transport.DialSocket("tcp", u.Host, transport.DialOptions{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}

	proc := &clientProcessor{target: u, jar: cookiejar.NewJar(), done: make(chan struct{})}
	session := flowhttp.NewSession(flowhttp.StatusStatusLine)
	session.DefaultRequestHeaders = hdr.Header{hdr.UserAgent: []string{"flowclient/1.0"}}
	flow := flowhttp.NewFlow(session, proc, conn, conn, true, zap.NewNop())

	go flow.Serve()
	<-proc.done
}
