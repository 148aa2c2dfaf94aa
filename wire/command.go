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

package wire

import "fmt"

// Command is the sum type carried by a CommandRequest frame: exactly one of
// the concrete types below. The oneof tag number each carries below mirrors
// the field number it occupies on the wire (see codec.go).
type Command interface {
	Tag() uint32
}

const (
	tagHGet        uint32 = 1
	tagHGetAll     uint32 = 2
	tagHMGet       uint32 = 3
	tagHSet        uint32 = 4
	tagHMSet       uint32 = 5
	tagHDel        uint32 = 6
	tagHMDel       uint32 = 7
	tagHExist      uint32 = 8
	tagHMExist     uint32 = 9
	tagSubscribe   uint32 = 10
	tagUnsubscribe uint32 = 11
	tagPublish     uint32 = 12
)

type HGet struct {
	Table string
	Key   string
}

type HGetAll struct {
	Table string
}

type HMGet struct {
	Table string
	Keys  []string
}

type HSet struct {
	Table string
	Pair  *KvPair
}

type HMSet struct {
	Table string
	Pairs []KvPair
}

type HDel struct {
	Table string
	Key   string
}

type HMDel struct {
	Table string
	Keys  []string
}

type HExist struct {
	Table string
	Key   string
}

type HMExist struct {
	Table string
	Keys  []string
}

type Subscribe struct {
	Topic string
}

type Unsubscribe struct {
	Topic string
	ID    uint32
}

type Publish struct {
	Topic string
	Data  []Value
}

func (*HGet) Tag() uint32        { return tagHGet }
func (*HGetAll) Tag() uint32     { return tagHGetAll }
func (*HMGet) Tag() uint32       { return tagHMGet }
func (*HSet) Tag() uint32        { return tagHSet }
func (*HMSet) Tag() uint32       { return tagHMSet }
func (*HDel) Tag() uint32        { return tagHDel }
func (*HMDel) Tag() uint32       { return tagHMDel }
func (*HExist) Tag() uint32      { return tagHExist }
func (*HMExist) Tag() uint32     { return tagHMExist }
func (*Subscribe) Tag() uint32   { return tagSubscribe }
func (*Unsubscribe) Tag() uint32 { return tagUnsubscribe }
func (*Publish) Tag() uint32     { return tagPublish }

// Response is the single message kind carried by a CommandResponse frame.
// Status mirrors HTTP semantics; the zero value (status 0) is treated as 200
// by producers.
type Response struct {
	Status  uint32
	Message string
	Values  []Value
	Pairs   []KvPair
}

// EffectiveStatus returns Status, or 200 if Status is the zero value.
func (r *Response) EffectiveStatus() uint32 {
	if r.Status == 0 {
		return 200
	}
	return r.Status
}

// OK builds a bare {200} response.
func OK() *Response { return &Response{Status: 200} }

// OKValues builds a {200, values: ...} response.
func OKValues(values ...Value) *Response {
	return &Response{Status: 200, Values: values}
}

// OKPairs builds a {200, pairs: ...} response.
func OKPairs(pairs []KvPair) *Response {
	return &Response{Status: 200, Pairs: pairs}
}

// Errorf builds an error response from a status and message.
func Errorf(status uint32, format string, args ...any) *Response {
	return &Response{Status: status, Message: fmt.Sprintf(format, args...)}
}
