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

package framing

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		[]byte("hello"),
		bytes.Repeat([]byte("x"), CompressionLimit),
		bytes.Repeat([]byte("y"), CompressionLimit+1),
		bytes.Repeat([]byte("z"), 1<<20),
	}

	for _, payload := range cases {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, payload))

		got, err := Decode(&buf)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	}
}

func TestEncodeSetsCompressionBitAboveThreshold(t *testing.T) {
	var small, large bytes.Buffer
	require.NoError(t, Encode(&small, []byte("short")))
	require.NoError(t, Encode(&large, bytes.Repeat([]byte("a"), CompressionLimit+1)))

	assert.Less(t, small.Len(), CompressionLimit)

	smallHeader := readHeader(t, small.Bytes())
	largeHeader := readHeader(t, large.Bytes())

	_, smallCompressed := decodeHeader(smallHeader)
	_, largeCompressed := decodeHeader(largeHeader)

	assert.False(t, smallCompressed)
	assert.True(t, largeCompressed)

	// The compressed frame's on-wire body is shorter than the raw payload it
	// replaced, since it's all one repeated byte.
	assert.Less(t, large.Len(), CompressionLimit+1+HeaderLen)
}

func readHeader(t *testing.T, frame []byte) uint32 {
	t.Helper()
	require.GreaterOrEqual(t, len(frame), HeaderLen)
	return uint32(frame[0])<<24 | uint32(frame[1])<<16 | uint32(frame[2])<<8 | uint32(frame[3])
}

func TestDecodeErrorsOnShortHeader(t *testing.T) {
	_, err := Decode(strings.NewReader("ab"))
	assert.Error(t, err)
}

func TestDecodeErrorsOnTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, []byte("hello world")))

	truncated := buf.Bytes()[:buf.Len()-2]
	_, err := Decode(bytes.NewReader(truncated))
	assert.Error(t, err)
}
