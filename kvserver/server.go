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

// Package kvserver binds a listener, accepts TLS connections (mutually
// authenticated when a client CA is configured), multiplexes each one with
// muxtransport, and dispatches every substream's commands through a
// dispatcher.Dispatcher.
package kvserver

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/kvnet/kvnetd/broker"
	"github.com/kvnet/kvnetd/confengine"
	"github.com/kvnet/kvnetd/dispatcher"
	"github.com/kvnet/kvnetd/duplex"
	"github.com/kvnet/kvnetd/internal/rescue"
	"github.com/kvnet/kvnetd/kverrors"
	"github.com/kvnet/kvnetd/logger"
	"github.com/kvnet/kvnetd/muxtransport"
	"github.com/kvnet/kvnetd/opsserver"
	"github.com/kvnet/kvnetd/storage"
	"github.com/kvnet/kvnetd/tlsconf"
	"github.com/kvnet/kvnetd/wire"
)

// Config describes how a Server binds and authenticates its listener, and
// which storage backend its dispatcher runs against.
type Config struct {
	// Address is the TCP address to listen on, e.g. ":7380".
	Address string `config:"address"`

	// TLSCertFile/TLSKeyFile are the server's own identity.
	TLSCertFile string `config:"tlsCertFile"`
	TLSKeyFile  string `config:"tlsKeyFile"`
	// TLSClientCAFile, if set, requires and verifies client certificates
	// signed by this CA (mutual TLS).
	TLSClientCAFile string `config:"tlsClientCAFile"`

	// Backend selects the storage implementation: "memory" or "bolt".
	Backend string `config:"backend"`
	// BoltPath is the database file path when Backend is "bolt".
	BoltPath string `config:"boltPath"`

	// KeepAliveInterval/ConnectionWriteTimeout tune the yamux session
	// underlying every connection.
	KeepAliveInterval      time.Duration `config:"keepAliveInterval"`
	ConnectionWriteTimeout time.Duration `config:"connectionWriteTimeout"`
}

func (c Config) muxConfig() muxtransport.Config {
	return muxtransport.Config{
		KeepAliveInterval:      c.KeepAliveInterval,
		ConnectionWriteTimeout: c.ConnectionWriteTimeout,
	}
}

// Server accepts kvnetd connections and serves every substream off one
// shared dispatcher and storage backend.
type Server struct {
	cfg Config

	store      storage.Storage
	broker     *broker.Broker
	dispatcher *dispatcher.Dispatcher

	ln net.Listener

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Server from the "server" section of conf. The storage
// backend is opened immediately; the listener is bound by Start.
func New(conf *confengine.Config) (*Server, error) {
	var cfg Config
	if err := conf.UnpackChild("server", &cfg); err != nil {
		return nil, err
	}

	store, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}

	br := broker.New()
	ctx, cancel := context.WithCancel(context.Background())

	d := dispatcher.New(store, br, func(where string, r any) {
		logger.Errorf("recovered panic in %s: %v", where, r)
	})
	registerMetricsHooks(d)

	return &Server{
		cfg:        cfg,
		store:      store,
		broker:     br,
		dispatcher: d,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

func openStorage(cfg Config) (storage.Storage, error) {
	switch cfg.Backend {
	case "", "memory":
		return storage.NewMemTable(), nil
	case "bolt":
		return storage.OpenBoltStore(cfg.BoltPath)
	default:
		return nil, kverrors.InvalidCommand("kvserver: unknown storage backend %q", cfg.Backend)
	}
}

// Start binds the listener and begins accepting connections in the
// background. It returns once the listener is bound; accept errors after
// that are logged rather than returned.
func (s *Server) Start() error {
	if err := tlsconf.ValidateServerConfig(s.cfg.TLSCertFile, s.cfg.TLSKeyFile, s.cfg.TLSClientCAFile); err != nil {
		return err
	}

	tlsCfg, err := tlsconf.ServerConfig(s.cfg.TLSCertFile, s.cfg.TLSKeyFile, s.cfg.TLSClientCAFile)
	if err != nil {
		return err
	}

	ln, err := tls.Listen("tcp", s.cfg.Address, tlsCfg)
	if err != nil {
		return kverrors.Wrap(kverrors.KindIO, err, "kvserver: listen on %s", s.cfg.Address)
	}
	s.ln = ln

	logger.Infof("kvserver listening on %s", s.cfg.Address)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			logger.Errorf("kvserver: accept: %v", err)
			return
		}
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer rescue.HandleCrash()

	// connID has no protocol meaning; it only ties together the log lines
	// of one multiplexed connection's lifetime and substreams.
	connID := uuid.NewString()

	session, err := muxtransport.NewServer(conn, s.cfg.muxConfig())
	if err != nil {
		logger.Errorf("kvserver: conn=%s start session for %s: %v", connID, conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	logger.Infof("kvserver: conn=%s session established with %s", connID, conn.RemoteAddr())
	if err := session.Serve(s.serveSubstream); err != nil {
		logger.Errorf("kvserver: conn=%s session ended: %v", connID, err)
	}
}

// serveSubstream carries exactly one exchange: one decoded command, and
// every response it produces (a single reply for unary commands, an
// unbounded stream of published payloads for SUBSCRIBE) until the
// dispatcher closes the response channel or the peer goes away.
func (s *Server) serveSubstream(stream net.Conn) {
	defer rescue.HandleCrash()
	defer stream.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	ds := duplex.New(stream, wire.UnmarshalCommand, encodeResponse)

	cmd, err := ds.Produce()
	if err != nil {
		return
	}

	// The peer sends nothing after its command, so the read side ends only
	// when the peer closes the substream or the session goes away; either
	// cancels the exchange.
	go func() {
		_, _ = io.Copy(io.Discard, stream)
		cancel()
	}()

	respCh := s.dispatcher.Execute(ctx, cmd)
	for resp := range respCh {
		if err := ds.SendAndFlush(resp); err != nil {
			return
		}
	}
}

func encodeResponse(r *wire.Response) ([]byte, error) {
	return wire.MarshalResponse(r), nil
}

// registerMetricsHooks wires every unary command type into the
// commands_total counter via a post-hook, plus the active_subscriptions
// gauge for SUBSCRIBE/UNSUBSCRIBE. SUBSCRIBE never reaches the unary
// post-hook path (Execute branches to its own streaming goroutine before
// running post-hooks), so it is counted from a pre-hook instead; it always
// succeeds, so the status is fixed at 200.
func registerMetricsHooks(d *dispatcher.Dispatcher) {
	samples := map[string]wire.Command{
		"hget":        &wire.HGet{},
		"hgetall":     &wire.HGetAll{},
		"hmget":       &wire.HMGet{},
		"hset":        &wire.HSet{},
		"hmset":       &wire.HMSet{},
		"hdel":        &wire.HDel{},
		"hmdel":       &wire.HMDel{},
		"hexist":      &wire.HExist{},
		"hmexist":     &wire.HMExist{},
		"unsubscribe": &wire.Unsubscribe{},
		"publish":     &wire.Publish{},
	}
	for name, sample := range samples {
		name := name
		d.RegisterPostHook(sample, func(cmd wire.Command, resp *wire.Response) {
			opsserver.RecordCommand(name, resp.EffectiveStatus())
		})
	}

	d.RegisterPreHook(&wire.Subscribe{}, func(wire.Command, *wire.Response) {
		opsserver.RecordCommand("subscribe", 200)
		opsserver.IncSubscriptions()
	})
	d.RegisterPostHook(&wire.Unsubscribe{}, func(cmd wire.Command, resp *wire.Response) {
		if resp.EffectiveStatus() == 200 {
			opsserver.DecSubscriptions()
		}
	})
}

// Stop closes the listener and every outstanding connection's in-flight
// dispatch context, then closes the storage backend.
func (s *Server) Stop() {
	s.cancel()
	if s.ln != nil {
		s.ln.Close()
	}
	s.store.Close()
}
