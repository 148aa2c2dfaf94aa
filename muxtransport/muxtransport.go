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

// Package muxtransport carries many independent logical exchanges over one
// underlying connection using yamux-family stream multiplexing: one
// exchange (one command plus its response stream) per substream.
package muxtransport

import (
	"net"
	"time"

	"github.com/hashicorp/yamux"

	"github.com/kvnet/kvnetd/kverrors"
)

// Config tunes the underlying yamux session. The zero value is usable and
// falls back to yamux's own defaults for every unset field.
type Config struct {
	AcceptBacklog          int
	KeepAliveInterval      time.Duration
	ConnectionWriteTimeout time.Duration
}

func (c Config) yamuxConfig() *yamux.Config {
	cfg := yamux.DefaultConfig()
	if c.AcceptBacklog > 0 {
		cfg.AcceptBacklog = c.AcceptBacklog
	}
	if c.KeepAliveInterval > 0 {
		cfg.KeepAliveInterval = c.KeepAliveInterval
	}
	if c.ConnectionWriteTimeout > 0 {
		cfg.ConnectionWriteTimeout = c.ConnectionWriteTimeout
	}
	return cfg
}

// Client wraps conn as a yamux client session: the side that opens
// substreams.
type Client struct {
	session *yamux.Session
}

// NewClient establishes a yamux client session over conn.
func NewClient(conn net.Conn, cfg Config) (*Client, error) {
	session, err := yamux.Client(conn, cfg.yamuxConfig())
	if err != nil {
		return nil, kverrors.Wrap(kverrors.KindMux, err, "muxtransport: start client session")
	}
	return &Client{session: session}, nil
}

// OpenStream opens a new substream for one logical exchange.
func (c *Client) OpenStream() (net.Conn, error) {
	stream, err := c.session.Open()
	if err != nil {
		return nil, kverrors.Wrap(kverrors.KindMux, err, "muxtransport: open substream")
	}
	return stream, nil
}

// Close tears down the underlying session and every open substream.
func (c *Client) Close() error {
	if err := c.session.Close(); err != nil {
		return kverrors.Wrap(kverrors.KindMux, err, "muxtransport: close client session")
	}
	return nil
}

// Server wraps conn as a yamux server session: the side that accepts
// substreams opened by the peer.
type Server struct {
	session *yamux.Session
}

// NewServer establishes a yamux server session over conn.
func NewServer(conn net.Conn, cfg Config) (*Server, error) {
	session, err := yamux.Server(conn, cfg.yamuxConfig())
	if err != nil {
		return nil, kverrors.Wrap(kverrors.KindMux, err, "muxtransport: start server session")
	}
	return &Server{session: session}, nil
}

// Serve accepts substreams until the session closes or accept fails,
// spawning handle in its own goroutine for each one. Serve returns once
// accepting stops.
func (s *Server) Serve(handle func(net.Conn)) error {
	for {
		stream, err := s.session.Accept()
		if err != nil {
			if s.session.IsClosed() {
				return nil
			}
			return kverrors.Wrap(kverrors.KindMux, err, "muxtransport: accept substream")
		}
		go handle(stream)
	}
}

// Close tears down the underlying session and every open substream.
func (s *Server) Close() error {
	if err := s.session.Close(); err != nil {
		return kverrors.Wrap(kverrors.KindMux, err, "muxtransport: close server session")
	}
	return nil
}
