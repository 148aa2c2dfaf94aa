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

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// The canonical encoding below is hand-written against the protobuf wire
// format (field tag/wire-type + varint/length-delimited payload), matching
// field and oneof tag numbers to the schema's reference `prost` definition.
// There is no .proto/protoc step: each message type implements its own
// Marshal/Unmarshal pair using protowire's low-level primitives directly,
// which keeps the encoding protobuf-wire-compatible without a codegen step.

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendUint32(b []byte, num protowire.Number, v uint32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func float64FromBits(u uint64) float64 {
	return math.Float64frombits(u)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// appendMessage writes a singular optional submessage field: inner == nil
// means absent, and the field is omitted entirely.
func appendMessage(b []byte, num protowire.Number, inner []byte) []byte {
	if inner == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

// appendRepeatedMessage writes one element of a repeated submessage field.
// Unlike appendMessage it always emits the tag and length, even when inner
// is empty: each call is one list element, and every element the caller
// iterated over must produce a field on the wire, or it silently vanishes
// from the repeated field and collapses positional alignment with whatever
// parallel list (e.g. HMGET's keys) the caller relies on.
func appendRepeatedMessage(b []byte, num protowire.Number, inner []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

// fieldValue holds a decoded field: raw holds the bytes payload for
// BytesType fields, num64 holds the decoded integer for Varint/Fixed64
// fields.
type fieldValue struct {
	raw   []byte
	num64 uint64
}

// forEachField walks the top-level fields of a length-delimited message,
// invoking fn for each (number, wire type, decoded value).
func forEachField(data []byte, fn func(num protowire.Number, typ protowire.Type, v fieldValue) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "wire: bad tag")
		}
		data = data[n:]

		var val fieldValue
		var m int
		switch typ {
		case protowire.VarintType:
			v, mm := protowire.ConsumeVarint(data)
			if mm < 0 {
				return errors.Wrap(protowire.ParseError(mm), "wire: bad varint")
			}
			val, m = fieldValue{num64: v}, mm
		case protowire.Fixed64Type:
			v, mm := protowire.ConsumeFixed64(data)
			if mm < 0 {
				return errors.Wrap(protowire.ParseError(mm), "wire: bad fixed64")
			}
			val, m = fieldValue{num64: v}, mm
		case protowire.BytesType:
			v, mm := protowire.ConsumeBytes(data)
			if mm < 0 {
				return errors.Wrap(protowire.ParseError(mm), "wire: bad bytes")
			}
			val, m = fieldValue{raw: v}, mm
		case protowire.Fixed32Type:
			v, mm := protowire.ConsumeFixed32(data)
			if mm < 0 {
				return errors.Wrap(protowire.ParseError(mm), "wire: bad fixed32")
			}
			val, m = fieldValue{num64: uint64(v)}, mm
		default:
			mm := protowire.ConsumeFieldValue(num, typ, data)
			if mm < 0 {
				return errors.Wrap(protowire.ParseError(mm), "wire: bad field")
			}
			val, m = fieldValue{}, mm
		}

		if err := fn(num, typ, val); err != nil {
			return err
		}
		data = data[m:]
	}
	return nil
}

// ---- Value ----

// MarshalValue encodes v using the same canonical encoding used for wire
// messages, for storage backends that persist Values as opaque bytes.
func MarshalValue(v Value) []byte { return marshalValue(v) }

// UnmarshalValue decodes bytes produced by MarshalValue.
func UnmarshalValue(data []byte) (Value, error) { return unmarshalValue(data) }

// marshalValue always writes the field for v's kind, even when the payload
// equals that field's proto3 zero value: unlike a plain scalar field, the
// kind itself is the oneof's discriminant and must round-trip (e.g. an
// explicit Integer(0) must not decode back as None).
func marshalValue(v Value) []byte {
	var b []byte
	switch v.kind {
	case KindString:
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, v.str)
	case KindBytes:
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, v.bin)
	case KindInteger:
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.i64))
	case KindFloat:
		b = protowire.AppendTag(b, 4, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(v.f64))
	case KindBool:
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(v.b))
	}
	return b
}

func unmarshalValue(data []byte) (Value, error) {
	v := None()
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, fv fieldValue) error {
		switch num {
		case 1:
			v = String(string(fv.raw))
		case 2:
			v = Bytes(append([]byte(nil), fv.raw...))
		case 3:
			v = Integer(int64(fv.num64))
		case 4:
			v = Float(float64FromBits(fv.num64))
		case 5:
			v = Bool(fv.num64 != 0)
		}
		return nil
	})
	return v, err
}

// ---- KvPair ----

func marshalKvPair(p KvPair) []byte {
	var b []byte
	b = appendString(b, 1, p.Key)
	if inner := marshalValue(p.Value); len(inner) > 0 {
		b = appendMessage(b, 2, inner)
	}
	return b
}

func unmarshalKvPair(data []byte) (KvPair, error) {
	p := KvPair{Value: None()}
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, fv fieldValue) error {
		switch num {
		case 1:
			p.Key = string(fv.raw)
		case 2:
			v, err := unmarshalValue(fv.raw)
			if err != nil {
				return err
			}
			p.Value = v
		}
		return nil
	})
	return p, err
}

// ---- Commands ----

// MarshalCommand encodes a Command as a CommandRequest frame payload: a
// single field at the variant's oneof tag number carrying the marshaled
// inner message.
func MarshalCommand(cmd Command) ([]byte, error) {
	var inner []byte
	switch c := cmd.(type) {
	case *HGet:
		inner = appendString(appendString(nil, 1, c.Table), 2, c.Key)
	case *HGetAll:
		inner = appendString(nil, 1, c.Table)
	case *HMGet:
		inner = marshalTableKeys(c.Table, c.Keys)
	case *HSet:
		inner = appendString(nil, 1, c.Table)
		if c.Pair != nil {
			inner = appendRepeatedMessage(inner, 2, marshalKvPair(*c.Pair))
		}
	case *HMSet:
		inner = appendString(nil, 1, c.Table)
		for _, p := range c.Pairs {
			inner = appendRepeatedMessage(inner, 2, marshalKvPair(p))
		}
	case *HDel:
		inner = appendString(appendString(nil, 1, c.Table), 2, c.Key)
	case *HMDel:
		inner = marshalTableKeys(c.Table, c.Keys)
	case *HExist:
		inner = appendString(appendString(nil, 1, c.Table), 2, c.Key)
	case *HMExist:
		inner = marshalTableKeys(c.Table, c.Keys)
	case *Subscribe:
		inner = appendString(nil, 1, c.Topic)
	case *Unsubscribe:
		inner = appendUint32(appendString(nil, 1, c.Topic), 2, c.ID)
	case *Publish:
		inner = appendString(nil, 1, c.Topic)
		for _, v := range c.Data {
			inner = appendRepeatedMessage(inner, 2, marshalValue(v))
		}
	default:
		return nil, errors.Errorf("wire: unknown command type %T", cmd)
	}

	// The oneof field is always emitted, even with an empty inner message
	// (e.g. HGETALL on table ""), so the variant survives the round trip.
	b := protowire.AppendTag(nil, protowire.Number(cmd.Tag()), protowire.BytesType)
	return protowire.AppendBytes(b, inner), nil
}

func marshalTableKeys(table string, keys []string) []byte {
	b := appendString(nil, 1, table)
	for _, k := range keys {
		b = appendString(b, 2, k)
	}
	return b
}

// UnmarshalCommand decodes a CommandRequest frame payload back into its
// concrete Command variant.
func UnmarshalCommand(data []byte) (Command, error) {
	var cmd Command
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, fv fieldValue) error {
		var err error
		switch uint32(num) {
		case tagHGet:
			cmd, err = decodeTableKey(fv.raw, func(t, k string) Command { return &HGet{Table: t, Key: k} })
		case tagHGetAll:
			cmd, err = decodeTable(fv.raw, func(t string) Command { return &HGetAll{Table: t} })
		case tagHMGet:
			cmd, err = decodeTableKeys(fv.raw, func(t string, ks []string) Command { return &HMGet{Table: t, Keys: ks} })
		case tagHSet:
			cmd, err = decodeHSet(fv.raw)
		case tagHMSet:
			cmd, err = decodeHMSet(fv.raw)
		case tagHDel:
			cmd, err = decodeTableKey(fv.raw, func(t, k string) Command { return &HDel{Table: t, Key: k} })
		case tagHMDel:
			cmd, err = decodeTableKeys(fv.raw, func(t string, ks []string) Command { return &HMDel{Table: t, Keys: ks} })
		case tagHExist:
			cmd, err = decodeTableKey(fv.raw, func(t, k string) Command { return &HExist{Table: t, Key: k} })
		case tagHMExist:
			cmd, err = decodeTableKeys(fv.raw, func(t string, ks []string) Command { return &HMExist{Table: t, Keys: ks} })
		case tagSubscribe:
			cmd, err = decodeTopic(fv.raw, func(t string) Command { return &Subscribe{Topic: t} })
		case tagUnsubscribe:
			cmd, err = decodeUnsubscribe(fv.raw)
		case tagPublish:
			cmd, err = decodePublish(fv.raw)
		default:
			return errors.Errorf("wire: unknown command oneof tag %d", num)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if cmd == nil {
		return nil, errors.New("wire: empty command request")
	}
	return cmd, nil
}

func decodeTable(data []byte, build func(string) Command) (Command, error) {
	var table string
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, fv fieldValue) error {
		if num == 1 {
			table = string(fv.raw)
		}
		return nil
	})
	return build(table), err
}

func decodeTableKey(data []byte, build func(table, key string) Command) (Command, error) {
	var table, key string
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, fv fieldValue) error {
		switch num {
		case 1:
			table = string(fv.raw)
		case 2:
			key = string(fv.raw)
		}
		return nil
	})
	return build(table, key), err
}

func decodeTableKeys(data []byte, build func(table string, keys []string) Command) (Command, error) {
	var table string
	var keys []string
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, fv fieldValue) error {
		switch num {
		case 1:
			table = string(fv.raw)
		case 2:
			keys = append(keys, string(fv.raw))
		}
		return nil
	})
	return build(table, keys), err
}

func decodeTopic(data []byte, build func(string) Command) (Command, error) {
	return decodeTable(data, build)
}

func decodeHSet(data []byte) (Command, error) {
	cmd := &HSet{}
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, fv fieldValue) error {
		switch num {
		case 1:
			cmd.Table = string(fv.raw)
		case 2:
			p, err := unmarshalKvPair(fv.raw)
			if err != nil {
				return err
			}
			cmd.Pair = &p
		}
		return nil
	})
	return cmd, err
}

func decodeHMSet(data []byte) (Command, error) {
	cmd := &HMSet{}
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, fv fieldValue) error {
		switch num {
		case 1:
			cmd.Table = string(fv.raw)
		case 2:
			p, err := unmarshalKvPair(fv.raw)
			if err != nil {
				return err
			}
			cmd.Pairs = append(cmd.Pairs, p)
		}
		return nil
	})
	return cmd, err
}

func decodeUnsubscribe(data []byte) (Command, error) {
	cmd := &Unsubscribe{}
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, fv fieldValue) error {
		switch num {
		case 1:
			cmd.Topic = string(fv.raw)
		case 2:
			cmd.ID = uint32(fv.num64)
		}
		return nil
	})
	return cmd, err
}

func decodePublish(data []byte) (Command, error) {
	cmd := &Publish{}
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, fv fieldValue) error {
		switch num {
		case 1:
			cmd.Topic = string(fv.raw)
		case 2:
			v, err := unmarshalValue(fv.raw)
			if err != nil {
				return err
			}
			cmd.Data = append(cmd.Data, v)
		}
		return nil
	})
	return cmd, err
}

// ---- Response ----

// MarshalResponse encodes a Response as a CommandResponse frame payload.
func MarshalResponse(r *Response) []byte {
	var b []byte
	b = appendUint32(b, 1, r.Status)
	b = appendString(b, 2, r.Message)
	for _, v := range r.Values {
		b = appendRepeatedMessage(b, 3, marshalValue(v))
	}
	for _, p := range r.Pairs {
		b = appendRepeatedMessage(b, 4, marshalKvPair(p))
	}
	return b
}

// UnmarshalResponse decodes a CommandResponse frame payload.
func UnmarshalResponse(data []byte) (*Response, error) {
	r := &Response{}
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, fv fieldValue) error {
		switch num {
		case 1:
			r.Status = uint32(fv.num64)
		case 2:
			r.Message = string(fv.raw)
		case 3:
			v, err := unmarshalValue(fv.raw)
			if err != nil {
				return err
			}
			r.Values = append(r.Values, v)
		case 4:
			p, err := unmarshalKvPair(fv.raw)
			if err != nil {
				return err
			}
			r.Pairs = append(r.Pairs, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}
