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

// Package kvclient dials a kvserver over TLS, multiplexes the connection
// with muxtransport, and opens one substream per command exchange.
package kvclient

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/kvnet/kvnetd/duplex"
	"github.com/kvnet/kvnetd/kverrors"
	"github.com/kvnet/kvnetd/muxtransport"
	"github.com/kvnet/kvnetd/tlsconf"
	"github.com/kvnet/kvnetd/wire"
)

// Config describes how to reach and authenticate to a kvserver.
type Config struct {
	// Address is the server's "host:port".
	Address string

	// ServerName is the expected server certificate name.
	ServerName string

	// IdentityCert/IdentityKey, if both set, present a client certificate
	// for mutual TLS.
	IdentityCert string
	IdentityKey  string

	// CAFile, if set, is trusted as a root in addition to the system pool.
	CAFile string
}

// Client holds one multiplexed connection to a kvserver. Every command
// opens a fresh substream, so a Client is safe for concurrent use.
type Client struct {
	conn    net.Conn
	session *muxtransport.Client
}

// Dial connects to cfg.Address, completes the TLS handshake, and starts a
// yamux session over the resulting connection.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	tlsCfg, err := tlsconf.ClientConfig(cfg.ServerName, cfg.IdentityCert, cfg.IdentityKey, cfg.CAFile)
	if err != nil {
		return nil, err
	}

	var d tls.Dialer
	d.Config = tlsCfg
	conn, err := d.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, kverrors.Wrap(kverrors.KindIO, err, "kvclient: dial %s", cfg.Address)
	}

	session, err := muxtransport.NewClient(conn, muxtransport.Config{})
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Client{conn: conn, session: session}, nil
}

// Close tears down the multiplexed session and the underlying connection.
func (c *Client) Close() error {
	err := c.session.Close()
	if closeErr := c.conn.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// openExchange opens a substream and wraps it with the wire codec, sending
// cmd immediately.
func (c *Client) openExchange(cmd wire.Command) (*duplex.Stream[*wire.Response, wire.Command], error) {
	stream, err := c.session.OpenStream()
	if err != nil {
		return nil, err
	}

	ds := duplex.New(stream, wire.UnmarshalResponse, func(c wire.Command) ([]byte, error) {
		return wire.MarshalCommand(c)
	})

	if err := ds.SendAndFlush(cmd); err != nil {
		stream.Close()
		return nil, err
	}
	return ds, nil
}

// ExecuteUnary sends a non-streaming command and returns its single
// response.
func (c *Client) ExecuteUnary(cmd wire.Command) (*wire.Response, error) {
	ds, err := c.openExchange(cmd)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	return ds.Produce()
}

// Subscribe opens a SUBSCRIBE exchange and returns a Subscription exposing
// the subscription id and the published payload stream.
func (c *Client) Subscribe(topic string) (*Subscription, error) {
	ds, err := c.openExchange(&wire.Subscribe{Topic: topic})
	if err != nil {
		return nil, err
	}

	idResp, err := ds.Produce()
	if err != nil {
		ds.Close()
		return nil, err
	}
	if idResp.EffectiveStatus() != 200 || len(idResp.Values) != 1 {
		ds.Close()
		return nil, kverrors.Internal("kvclient: malformed subscribe response: %+v", idResp)
	}
	id, ok := idResp.Values[0].AsInteger()
	if !ok {
		ds.Close()
		return nil, kverrors.Internal("kvclient: subscribe id not an integer")
	}

	return &Subscription{id: uint32(id), topic: topic, ds: ds}, nil
}

// Subscription reads published payloads for one topic subscription.
type Subscription struct {
	id    uint32
	topic string
	ds    *duplex.Stream[*wire.Response, wire.Command]
}

// ID returns the subscription id assigned by the server, used with
// UNSUBSCRIBE.
func (s *Subscription) ID() uint32 { return s.id }

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }

// Next blocks for the next published payload, or returns ctx.Err() if ctx
// is done first. On cancellation the in-flight read is abandoned, not
// interrupted; it unblocks once the subscription is Closed.
func (s *Subscription) Next(ctx context.Context) (*wire.Response, error) {
	type result struct {
		resp *wire.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := s.ds.Produce()
		done <- result{resp, err}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the underlying substream. The server observes the close,
// ends the subscription's response stream, and removes the subscription
// from its broker.
func (s *Subscription) Close() error {
	return s.ds.Close()
}
