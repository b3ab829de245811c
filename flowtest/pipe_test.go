/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package flowtest

import (
	"testing"
)

func TestRawMessageRequestBytes(t *testing.T) {
	msg := Request("GET", "/hello").Header("Host", "example.com").Bytes()
	want := "GET /hello HTTP/1.1\r\nHost: example.com\r\n\r\n"
	if string(msg) != want {
		t.Fatalf("Bytes() = %q, want %q", msg, want)
	}
}

func TestRawMessageWithBodySetsContentLength(t *testing.T) {
	msg := Request("POST", "/submit").
		Header("Host", "example.com").
		Body("hello").
		Bytes()
	want := "POST /submit HTTP/1.1\r\nHost: example.com\r\nContent-Length: 5\r\n\r\nhello"
	if string(msg) != want {
		t.Fatalf("Bytes() = %q, want %q", msg, want)
	}
}

func TestRawMessageResponseBytes(t *testing.T) {
	msg := Response(200, "OK").Header("Content-Length", "0").Bytes()
	want := "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"
	if string(msg) != want {
		t.Fatalf("Bytes() = %q, want %q", msg, want)
	}
}

func TestRawMessageSortedHeaderNames(t *testing.T) {
	msg := Request("GET", "/hello").
		Header("Host", "example.com").
		Header("Accept", "*/*").
		Header("Accept-Encoding", "gzip")

	names := msg.SortedHeaderNames()
	want := []string{"Accept", "Accept-Encoding", "Host"}
	if len(names) != len(want) {
		t.Fatalf("SortedHeaderNames = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("SortedHeaderNames = %v, want %v", names, want)
		}
	}
}

func TestPipeRoundTrip(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	msg := []byte("ping")
	done := make(chan error, 1)
	go func() {
		_, err := p.Client.Write(msg)
		done <- err
	}()

	buf := make([]byte, len(msg))
	n, err := p.Server.Reader().Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Write: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Fatalf("got %q, want ping", buf[:n])
	}
}
