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

// Package tlsconf builds the client and server TLS configuration shared by
// every connection: TLS 1.2+, ALPN negotiated as "kv", and optional mutual
// authentication via a configured CA.
//
// TLS itself is carried on the standard library's crypto/tls: the Go
// ecosystem has no third-party replacement for certificate/handshake
// handling the way rustls needed one in the reference implementation, so
// this package is a thin, idiomatic wrapper rather than a port of one.
package tlsconf

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/kvnet/kvnetd/kverrors"
)

// alpnKV is this protocol's ALPN identifier.
const alpnKV = "kv"

// ValidateServerConfig checks that the files ServerConfig will need are
// present before a listener binds, collecting every missing path into one
// error instead of failing on the first. certFile/keyFile are always
// required; caFile is checked only when non-empty.
func ValidateServerConfig(certFile, keyFile, caFile string) error {
	var errs *multierror.Error
	if certFile == "" {
		errs = multierror.Append(errs, fmt.Errorf("tlsCertFile is required"))
	} else if _, err := os.Stat(certFile); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("tlsCertFile: %w", err))
	}
	if keyFile == "" {
		errs = multierror.Append(errs, fmt.Errorf("tlsKeyFile is required"))
	} else if _, err := os.Stat(keyFile); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("tlsKeyFile: %w", err))
	}
	if caFile != "" {
		if _, err := os.Stat(caFile); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("tlsClientCAFile: %w", err))
		}
	}
	if errs.ErrorOrNil() != nil {
		return kverrors.Wrap(kverrors.KindCertificate, errs.ErrorOrNil(), "tlsconf: invalid server TLS configuration")
	}
	return nil
}

// ServerConfig builds the *tls.Config a listener accepts connections with.
// certFile/keyFile hold the server's own certificate and private key; caFile,
// if non-empty, is a client CA bundle that enables mutual TLS.
func ServerConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, kverrors.Wrap(kverrors.KindCertificate, err, "tlsconf: load server cert/key")
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{alpnKV},
	}

	if caFile != "" {
		pool, err := loadCAPool(caFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return cfg, nil
}

// ClientConfig builds the *tls.Config a client dials with. serverName is
// the expected server certificate name. identityCert/identityKey, if both
// non-empty, present a client certificate for mutual TLS. caFile, if
// non-empty, is added to the trusted root pool so a server certificate
// signed by a private CA verifies without being in the system trust store.
func ClientConfig(serverName, identityCert, identityKey, caFile string) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
		NextProtos: []string{alpnKV},
	}

	if identityCert != "" && identityKey != "" {
		cert, err := tls.LoadX509KeyPair(identityCert, identityKey)
		if err != nil {
			return nil, kverrors.Wrap(kverrors.KindCertificate, err, "tlsconf: load client cert/key")
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if caFile != "" {
		pool, err := loadCAPool(caFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

func loadCAPool(caFile string) (*x509.CertPool, error) {
	raw, err := os.ReadFile(caFile)
	if err != nil {
		return nil, kverrors.Wrap(kverrors.KindCertificate, err, "tlsconf: read CA file %q", caFile)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(raw) {
		return nil, kverrors.Certificate("tlsconf: no certificates found in CA file %q", caFile)
	}
	return pool, nil
}
