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

package kvclient

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvnet/kvnetd/confengine"
	"github.com/kvnet/kvnetd/kvserver"
	"github.com/kvnet/kvnetd/wire"
)

func generateTestCert(t *testing.T, dir, name string) (certFile, keyFile string) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)

	certFile = filepath.Join(dir, name+".cert")
	keyFile = filepath.Join(dir, name+".key")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}

func startServer(t *testing.T) (addr, certFile string) {
	t.Helper()
	dir := t.TempDir()
	certFile, keyFile := generateTestCert(t, dir, "server")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr = ln.Addr().String()
	ln.Close()

	conf, err := confengine.LoadContent([]byte(`
server:
  address: "` + addr + `"
  tlsCertFile: "` + certFile + `"
  tlsKeyFile: "` + keyFile + `"
  backend: "memory"
`))
	require.NoError(t, err)

	srv, err := kvserver.New(conf)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	return addr, certFile
}

func TestClientExecuteUnary(t *testing.T) {
	addr, certFile := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, Config{Address: addr, ServerName: "127.0.0.1", CAFile: certFile})
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.ExecuteUnary(&wire.HSet{Table: "t", Pair: &wire.KvPair{Key: "k", Value: wire.Integer(42)}})
	require.NoError(t, err)
	assert.Equal(t, uint32(200), resp.EffectiveStatus())

	resp, err = client.ExecuteUnary(&wire.HGet{Table: "t", Key: "k"})
	require.NoError(t, err)
	v, ok := resp.Values[0].AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(42), v)
}

func TestClientSubscribeAndUnsubscribe(t *testing.T) {
	addr, certFile := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, Config{Address: addr, ServerName: "127.0.0.1", CAFile: certFile})
	require.NoError(t, err)
	defer client.Close()

	sub, err := client.Subscribe("lobby")
	require.NoError(t, err)
	defer sub.Close()
	assert.GreaterOrEqual(t, sub.ID(), uint32(1))

	pubResp, err := client.ExecuteUnary(&wire.Publish{Topic: "lobby", Data: []wire.Value{wire.String("hello")}})
	require.NoError(t, err)
	assert.Equal(t, uint32(200), pubResp.EffectiveStatus())

	msg, err := sub.Next(ctx)
	require.NoError(t, err)
	require.Len(t, msg.Values, 1)
	s, ok := msg.Values[0].AsString()
	require.True(t, ok)
	assert.Equal(t, "hello", s)

	unsubResp, err := client.ExecuteUnary(&wire.Unsubscribe{Topic: "lobby", ID: sub.ID()})
	require.NoError(t, err)
	assert.Equal(t, uint32(200), unsubResp.EffectiveStatus())
}

func TestClientUnsubscribeUnknownIsNotFound(t *testing.T) {
	addr, certFile := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, Config{Address: addr, ServerName: "127.0.0.1", CAFile: certFile})
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.ExecuteUnary(&wire.Unsubscribe{Topic: "lobby", ID: 999})
	require.NoError(t, err)
	assert.Equal(t, uint32(404), resp.EffectiveStatus())
}
