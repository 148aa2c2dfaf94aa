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

// Package framing implements the length-prefixed frame codec shared by every
// substream: a 4-byte big-endian header whose high bit flags gzip
// compression and whose remaining 31 bits carry the payload length, followed
// by the (possibly compressed) payload.
package framing

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/valyala/bytebufferpool"

	"github.com/kvnet/kvnetd/kverrors"
)

const (
	// HeaderLen is the fixed size, in bytes, of the length header.
	HeaderLen = 4

	// MaxFrame is the largest payload a frame may carry: the header reserves
	// its high bit for the compression flag, leaving 31 bits for length.
	MaxFrame = 1<<31 - 1

	// CompressionLimit is the payload size, in bytes, above which Encode
	// gzip-compresses the payload before framing it.
	CompressionLimit = 1436

	compressionBit uint32 = 1 << 31
)

// Encode writes payload as a single frame to w: a 4-byte length header
// followed by the frame body, which is gzip-compressed (flagged by the
// header's high bit) when payload exceeds CompressionLimit.
func Encode(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrame {
		return kverrors.Frame("framing: payload of %d bytes exceeds max frame size %d", len(payload), MaxFrame)
	}

	if len(payload) <= CompressionLimit {
		return writeHeaderAndBody(w, uint32(len(payload)), payload)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	gz := gzip.NewWriter(buf)
	if _, err := gz.Write(payload); err != nil {
		return kverrors.Wrap(kverrors.KindFrame, err, "framing: gzip write")
	}
	if err := gz.Close(); err != nil {
		return kverrors.Wrap(kverrors.KindFrame, err, "framing: gzip close")
	}

	return writeHeaderAndBody(w, uint32(buf.Len())|compressionBit, buf.Bytes())
}

func writeHeaderAndBody(w io.Writer, header uint32, body []byte) error {
	var hdr [HeaderLen]byte
	binary.BigEndian.PutUint32(hdr[:], header)
	if _, err := w.Write(hdr[:]); err != nil {
		return kverrors.Wrap(kverrors.KindIO, err, "framing: write header")
	}
	if _, err := w.Write(body); err != nil {
		return kverrors.Wrap(kverrors.KindIO, err, "framing: write body")
	}
	return nil
}

// Decode reads a single frame from r and returns its decoded payload,
// transparently gunzipping it when the header's compression bit is set.
func Decode(r io.Reader) ([]byte, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, kverrors.Wrap(kverrors.KindIO, err, "framing: read header")
	}

	header := binary.BigEndian.Uint32(hdr[:])
	length, compressed := decodeHeader(header)

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, kverrors.Wrap(kverrors.KindIO, err, "framing: read body")
	}

	if !compressed {
		return body, nil
	}

	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, kverrors.Wrap(kverrors.KindFrame, err, "framing: open gzip reader")
	}
	defer gz.Close()

	out, err := io.ReadAll(gz)
	if err != nil {
		return nil, kverrors.Wrap(kverrors.KindFrame, err, "framing: gzip read")
	}
	return out, nil
}

func decodeHeader(header uint32) (length uint32, compressed bool) {
	return header &^ compressionBit, header&compressionBit == compressionBit
}
