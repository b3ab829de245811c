/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package trace

import "reflect"

// Compose returns a new Hooks whose fields call both h and old wherever
// both set the same hook, h first. A nil field in h falls back to old's,
// and vice versa. Returns a new value instead of mutating the receiver,
// so composing connection-scoped hooks with a later per-request set does
// not change the caller's original.
func (h *Hooks) Compose(old *Hooks) *Hooks {
	if old == nil {
		return h
	}
	if h == nil {
		return old
	}

	merged := &Hooks{}
	mv := reflect.ValueOf(merged).Elem()
	hv := reflect.ValueOf(h).Elem()
	ov := reflect.ValueOf(old).Elem()
	structType := hv.Type()

	for i := 0; i < structType.NumField(); i++ {
		hf := hv.Field(i)
		of := ov.Field(i)
		switch {
		case hf.IsNil() && of.IsNil():
			continue
		case hf.IsNil():
			mv.Field(i).Set(of)
		case of.IsNil():
			mv.Field(i).Set(hf)
		default:
			hookType := hf.Type()
			hCopy := reflect.ValueOf(hf.Interface())
			oCopy := reflect.ValueOf(of.Interface())
			newFunc := reflect.MakeFunc(hookType, func(args []reflect.Value) []reflect.Value {
				hCopy.Call(args)
				return oCopy.Call(args)
			})
			mv.Field(i).Set(newFunc)
		}
	}
	return merged
}
