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

// Package wire defines the canonical command/response message schema and
// its protobuf-wire-compatible encoding.
package wire

// Kind tags the variant carried by a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindString
	KindBytes
	KindInteger
	KindFloat
	KindBool
)

// Value is the tagged variant carried by KvPair.Value, Response.Values and
// Publish.Data. The zero Value is KindNone.
type Value struct {
	kind Kind
	str  string
	bin  []byte
	i64  int64
	f64  float64
	b    bool
}

// None returns the absence value.
func None() Value { return Value{} }

func String(s string) Value { return Value{kind: KindString, str: s} }
func Bytes(b []byte) Value  { return Value{kind: KindBytes, bin: b} }
func Integer(i int64) Value { return Value{kind: KindInteger, i64: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f64: f} }
func Bool(b bool) Value     { return Value{kind: KindBool, b: b} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNone() bool { return v.kind == KindNone }

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.bin, true
}

func (v Value) AsInteger() (int64, bool) {
	if v.kind != KindInteger {
		return 0, false
	}
	return v.i64, true
}

func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.f64, true
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Equal reports whether two Values carry the same variant and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindBytes:
		return string(v.bin) == string(o.bin)
	case KindInteger:
		return v.i64 == o.i64
	case KindFloat:
		return v.f64 == o.f64
	case KindBool:
		return v.b == o.b
	default:
		return true
	}
}

// KvPair is a (key, value) pair within a table.
type KvPair struct {
	Key   string
	Value Value
}
