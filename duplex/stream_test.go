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

package duplex

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeString(s string) ([]byte, error) { return []byte(s), nil }
func decodeString(b []byte) (string, error) { return string(b), nil }

func TestSendProduceRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	clientStream := New[string, string](client, decodeString, encodeString)
	serverStream := New[string, string](server, decodeString, encodeString)

	done := make(chan error, 1)
	go func() {
		done <- clientStream.SendAndFlush("hello")
	}()

	got, err := serverStream.Produce()
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	require.NoError(t, <-done)
}

func TestSendBuffersMultipleMessagesUntilFlush(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	clientStream := New[string, string](client, decodeString, encodeString)
	serverStream := New[string, string](server, decodeString, encodeString)

	require.NoError(t, clientStream.Send("one"))
	require.NoError(t, clientStream.Send("two"))

	done := make(chan error, 1)
	go func() { done <- clientStream.Flush() }()

	first, err := serverStream.Produce()
	require.NoError(t, err)
	assert.Equal(t, "one", first)

	second, err := serverStream.Produce()
	require.NoError(t, err)
	assert.Equal(t, "two", second)

	require.NoError(t, <-done)
}

func TestFlushResetsWriteBuffer(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	clientStream := New[string, string](client, decodeString, encodeString)

	go func() {
		buf := make([]byte, 1024)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()

	require.NoError(t, clientStream.SendAndFlush("a"))
	assert.Equal(t, 0, clientStream.wbuf.Len())
	assert.Equal(t, 0, clientStream.written)

	require.NoError(t, clientStream.SendAndFlush("b"))
	assert.Equal(t, 0, clientStream.wbuf.Len())

	client.Close()
}
