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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueRoundTrip(t *testing.T) {
	cases := []Value{
		None(),
		String(""),
		String("hello"),
		Bytes(nil),
		Bytes([]byte{1, 2, 3}),
		Integer(0),
		Integer(-42),
		Integer(1 << 40),
		Float(0),
		Float(-1.5),
		Bool(false),
		Bool(true),
	}
	for _, v := range cases {
		encoded := marshalValue(v)
		got, err := unmarshalValue(encoded)
		require.NoError(t, err)
		assert.True(t, v.Equal(got), "want %+v got %+v", v, got)
	}
}

func TestCommandRoundTrip(t *testing.T) {
	pair := &KvPair{Key: "k1", Value: String("v1")}
	cases := []Command{
		&HGet{Table: "t", Key: "k"},
		&HGetAll{Table: "t"},
		&HMGet{Table: "t", Keys: []string{"a", "b", "c"}},
		&HMGet{Table: "t", Keys: nil},
		&HSet{Table: "t", Pair: pair},
		&HMSet{Table: "t", Pairs: []KvPair{{Key: "a", Value: Integer(1)}, {Key: "b", Value: Bool(false)}}},
		&HDel{Table: "t", Key: "k"},
		&HMDel{Table: "t", Keys: []string{"x", "y"}},
		&HExist{Table: "t", Key: "k"},
		&HMExist{Table: "t", Keys: []string{"x"}},
		&Subscribe{Topic: "news"},
		&Unsubscribe{Topic: "news", ID: 7},
		&Publish{Topic: "news", Data: []Value{String("hi"), Integer(1), Bool(true)}},
		&Publish{Topic: "news", Data: []Value{String("hi"), None(), String("bye")}},
		&HMSet{Table: "t", Pairs: []KvPair{{Key: "", Value: None()}, {Key: "b", Value: Bool(false)}}},
	}

	for _, cmd := range cases {
		data, err := MarshalCommand(cmd)
		require.NoError(t, err)

		got, err := UnmarshalCommand(data)
		require.NoError(t, err)
		assert.Equal(t, cmd, got)
	}
}

func TestHSetNilPairRoundTrip(t *testing.T) {
	cmd := &HSet{Table: "t", Pair: nil}
	data, err := MarshalCommand(cmd)
	require.NoError(t, err)

	got, err := UnmarshalCommand(data)
	require.NoError(t, err)

	hset, ok := got.(*HSet)
	require.True(t, ok)
	assert.Equal(t, "t", hset.Table)
	assert.Nil(t, hset.Pair)
}

func TestUnmarshalCommandRejectsEmptyPayload(t *testing.T) {
	_, err := UnmarshalCommand(nil)
	assert.Error(t, err)
}

func TestUnmarshalCommandRejectsUnknownTag(t *testing.T) {
	// Field 99, a length-delimited empty payload: not a recognized oneof tag.
	bad := appendMessage(nil, 99, []byte{})
	_, err := UnmarshalCommand(bad)
	assert.Error(t, err)
}

func TestResponseRoundTrip(t *testing.T) {
	cases := []*Response{
		OK(),
		OKValues(String("v"), Integer(0), Bool(false)),
		OKValues(None()),
		OKValues(String("val_a"), None(), String("val_c")),
		OKPairs([]KvPair{{Key: "a", Value: Integer(5)}}),
		Errorf(404, "Not found: subscription %d", 9527),
		{Status: 0, Message: ""},
	}
	for _, r := range cases {
		data := MarshalResponse(r)
		got, err := UnmarshalResponse(data)
		require.NoError(t, err)
		assert.Equal(t, r.EffectiveStatus(), got.EffectiveStatus())
		assert.Equal(t, r.Message, got.Message)
		require.Len(t, got.Values, len(r.Values))
		for i := range r.Values {
			assert.True(t, r.Values[i].Equal(got.Values[i]))
		}
		assert.Equal(t, r.Pairs, got.Pairs)
	}
}

func TestResponseEffectiveStatusDefaultsTo200(t *testing.T) {
	r := &Response{}
	assert.Equal(t, uint32(200), r.EffectiveStatus())
}
