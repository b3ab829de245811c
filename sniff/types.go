/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package sniff implements a reduced slice of the WHATWG MIME-sniffing
// algorithm: enough signatures to tell HTML, XML, common image and archive
// formats, plain text, and arbitrary binary apart, for a Processor
// choosing a Content-Type for a buffered reply body. Audio, video, and
// font signature detection is not attempted; callers serving such content
// should set an explicit Content-Type instead.
package sniff

// Sig is a single content-sniffing signature: a way of testing whether a
// prefix of a body matches a known content type.
type Sig interface {
	// match returns the MIME type for data, or "" if the data doesn't match.
	// firstNonWS is the index of the first non-whitespace byte.
	match(data []byte, firstNonWS int) string
}

type exactSig struct {
	sig []byte
	ct  string
}

// htmlSig matches an HTML tag signature: the bytes in h followed by a space
// or '>', case-insensitively over ASCII letters.
type htmlSig []byte

type textSig struct{}

// SniffLen is the maximum number of bytes examined, matching the WHATWG
// spec's read-ahead limit.
const SniffLen = 512
