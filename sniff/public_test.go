/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package sniff

import "testing"

var sniffTests = []struct {
	desc        string
	data        []byte
	contentType string
}{
	{"Empty", []byte{}, "text/plain; charset=utf-8"},
	{"Binary", []byte{1, 2, 3}, "application/octet-stream"},

	{"HTML document #1", []byte(`<HtMl><bOdY>blah blah blah</body></html>`), "text/html; charset=utf-8"},
	{"HTML document #2", []byte(`<HTML></HTML>`), "text/html; charset=utf-8"},
	{"HTML document #3 (leading whitespace)", []byte(`   <!DOCTYPE HTML>...`), "text/html; charset=utf-8"},
	{"HTML document #4 (leading CRLF)", []byte("\r\n<html>..."), "text/html; charset=utf-8"},

	{"Plain text", []byte(`This is not HTML. It has snowmen though.`), "text/plain; charset=utf-8"},

	{"XML", []byte("\n<?xml!"), "text/xml; charset=utf-8"},

	{"GIF 87a", []byte(`GIF87a`), "image/gif"},
	{"GIF 89a", []byte(`GIF89a...`), "image/gif"},
	{"PNG", []byte("\x89PNG\r\n\x1a\n..."), "image/png"},
	{"JPEG", []byte("\xFF\xD8\xFF..."), "image/jpeg"},
	{"PDF", []byte("%PDF-1.4..."), "application/pdf"},
	{"ZIP", []byte("PK\x03\x04..."), "application/zip"},
	{"GZIP", []byte("\x1F\x8B\x08..."), "application/x-gzip"},
}

func TestDetectContentType(t *testing.T) {
	for _, tt := range sniffTests {
		if ct := DetectContentType(tt.data); ct != tt.contentType {
			t.Errorf("%v: DetectContentType(%q) = %q, want %q", tt.desc, tt.data, ct, tt.contentType)
		}
	}
}

func TestDetectContentTypeTruncatesAtSniffLen(t *testing.T) {
	data := append([]byte("<html>"), make([]byte, SniffLen*2)...)
	for i := range data[6:] {
		data[6+i] = 'a'
	}
	if ct := DetectContentType(data); ct != "text/html; charset=utf-8" {
		t.Errorf("DetectContentType on oversized input = %q, want text/html", ct)
	}
}
