// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package kverrors defines the error taxonomy shared across kvnetd and the
// conversion rules into wire-level response statuses.
package kverrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error for the purpose of status-code conversion.
type Kind uint8

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidCommand
	KindConvert
	KindStorage
	KindFrame
	KindCertificate
	KindTLS
	KindMux
	KindIO
	KindEncode
	KindDecode
)

// HTTPStatus converts a Kind into the status code a CommandResponse carries.
func (k Kind) HTTPStatus() uint32 {
	switch k {
	case KindNotFound:
		return 404
	case KindInvalidCommand:
		return 400
	case KindConvert:
		return 422
	default:
		return 500
	}
}

// Error is a kvnetd error: a Kind plus a wrapped cause.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Kind returns the error's taxonomy classification.
func (e *Error) Kind() Kind { return e.kind }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error      { return newf(KindNotFound, format, args...) }
func InvalidCommand(format string, args ...any) *Error { return newf(KindInvalidCommand, format, args...) }
func Convert(format string, args ...any) *Error       { return newf(KindConvert, format, args...) }
func Internal(format string, args ...any) *Error      { return newf(KindInternal, format, args...) }
func Storage(format string, args ...any) *Error       { return newf(KindStorage, format, args...) }
func Frame(format string, args ...any) *Error         { return newf(KindFrame, format, args...) }
func Certificate(format string, args ...any) *Error   { return newf(KindCertificate, format, args...) }
func TLS(format string, args ...any) *Error           { return newf(KindTLS, format, args...) }
func Mux(format string, args ...any) *Error           { return newf(KindMux, format, args...) }
func IO(format string, args ...any) *Error            { return newf(KindIO, format, args...) }
func Encode(format string, args ...any) *Error        { return newf(KindEncode, format, args...) }
func Decode(format string, args ...any) *Error        { return newf(KindDecode, format, args...) }

// Wrap attaches a Kind to an existing error, preserving it as the cause.
// msg carries the added context; err is kept as-is rather than re-wrapped
// with the same text, so Error() renders the context once, not twice.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), err: err}
}

// StatusOf converts any error into the status code its CommandResponse
// should carry: a *Error maps through Kind.HTTPStatus, anything else is 500.
func StatusOf(err error) uint32 {
	var e *Error
	if errors.As(err, &e) {
		return e.kind.HTTPStatus()
	}
	return 500
}
