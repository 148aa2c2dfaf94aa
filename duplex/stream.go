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

// Package duplex wraps a raw byte stream with a typed producer/consumer
// pair: Produce decodes one inbound message per call, Send buffers one
// outbound message, and Flush pushes the buffered writes to the underlying
// stream in one go.
package duplex

import (
	"io"

	"github.com/valyala/bytebufferpool"

	"github.com/kvnet/kvnetd/framing"
	"github.com/kvnet/kvnetd/kverrors"
)

// Stream drives a raw io.ReadWriteCloser with typed In/Out frames. A Stream
// is not safe for concurrent use in the same direction — concurrent Produce
// calls, or concurrent Send/Flush calls, must be externally serialized —
// but one goroutine may Produce while another Send/Flush, since reads and
// writes touch independent buffers.
type Stream[In, Out any] struct {
	conn io.ReadWriteCloser

	decode func([]byte) (In, error)
	encode func(Out) ([]byte, error)

	wbuf    *bytebufferpool.ByteBuffer
	written int
}

// New wraps conn, using decode to turn inbound frame payloads into In
// values and encode to turn Out values into outbound frame payloads.
func New[In, Out any](conn io.ReadWriteCloser, decode func([]byte) (In, error), encode func(Out) ([]byte, error)) *Stream[In, Out] {
	return &Stream[In, Out]{
		conn:   conn,
		decode: decode,
		encode: encode,
		wbuf:   bytebufferpool.Get(),
	}
}

// Produce blocks for one complete frame, decodes its payload, and returns
// it. The stream's read side carries no state across calls.
func (s *Stream[In, Out]) Produce() (In, error) {
	var zero In
	payload, err := framing.Decode(s.conn)
	if err != nil {
		return zero, err
	}
	return s.decode(payload)
}

// Send encodes v and appends its framed bytes to the write buffer without
// touching the underlying stream; call Flush to push buffered writes out.
func (s *Stream[In, Out]) Send(v Out) error {
	payload, err := s.encode(v)
	if err != nil {
		return err
	}
	return framing.Encode(s.wbuf, payload)
}

// Flush writes every buffered frame to the underlying stream, then clears
// the write buffer and resets the written counter.
func (s *Stream[In, Out]) Flush() error {
	body := s.wbuf.Bytes()
	for s.written != len(body) {
		n, err := s.conn.Write(body[s.written:])
		if err != nil {
			return kverrors.Wrap(kverrors.KindIO, err, "duplex: flush write")
		}
		s.written += n
	}
	s.wbuf.Reset()
	s.written = 0
	return nil
}

// SendAndFlush is a convenience wrapper for the common case of one message
// per flush.
func (s *Stream[In, Out]) SendAndFlush(v Out) error {
	if err := s.Send(v); err != nil {
		return err
	}
	return s.Flush()
}

// Close flushes any buffered writes, releases the write buffer back to its
// pool, and closes the underlying stream.
func (s *Stream[In, Out]) Close() error {
	err := s.Flush()
	bytebufferpool.Put(s.wbuf)
	if closeErr := s.conn.Close(); closeErr != nil && err == nil {
		err = kverrors.Wrap(kverrors.KindIO, closeErr, "duplex: close")
	}
	return err
}
