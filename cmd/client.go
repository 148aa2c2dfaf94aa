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

package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kvnet/kvnetd/kvclient"
	"github.com/kvnet/kvnetd/wire"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Run one-shot kvnetd commands against a running server",
}

var (
	clientAddr       string
	clientServerName string
	clientCAFile     string
	clientCertFile   string
	clientKeyFile    string
)

func init() {
	clientCmd.PersistentFlags().StringVar(&clientAddr, "addr", "127.0.0.1:7380", "kvnetd server address")
	clientCmd.PersistentFlags().StringVar(&clientServerName, "server-name", "localhost", "expected server certificate name")
	clientCmd.PersistentFlags().StringVar(&clientCAFile, "ca", "", "CA bundle to trust, in addition to the system pool")
	clientCmd.PersistentFlags().StringVar(&clientCertFile, "cert", "", "client certificate for mutual TLS")
	clientCmd.PersistentFlags().StringVar(&clientKeyFile, "key", "", "client private key for mutual TLS")

	clientCmd.AddCommand(hgetCmd, hgetAllCmd, hmgetCmd, hsetCmd, hmsetCmd, hdelCmd, hmdelCmd,
		hexistCmd, hmexistCmd, subscribeCmd, unsubscribeCmd, publishCmd)
	rootCmd.AddCommand(clientCmd)
}

func dialClient(ctx context.Context) (*kvclient.Client, error) {
	return kvclient.Dial(ctx, kvclient.Config{
		Address:      clientAddr,
		ServerName:   clientServerName,
		CAFile:       clientCAFile,
		IdentityCert: clientCertFile,
		IdentityKey:  clientKeyFile,
	})
}

func runUnary(cmd wire.Command) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := dialClient(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	resp, err := c.ExecuteUnary(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "execute: %v\n", err)
		os.Exit(1)
	}
	printResponse(resp)
}

func printResponse(resp *wire.Response) {
	if resp.EffectiveStatus() != 200 {
		fmt.Fprintf(os.Stderr, "error %d: %s\n", resp.EffectiveStatus(), resp.Message)
		os.Exit(1)
	}
	for _, v := range resp.Values {
		fmt.Println(formatValue(v))
	}
	for _, p := range resp.Pairs {
		fmt.Printf("%s\t%s\n", p.Key, formatValue(p.Value))
	}
}

func formatValue(v wire.Value) string {
	if v.IsNone() {
		return "(none)"
	}
	if s, ok := v.AsString(); ok {
		return s
	}
	if i, ok := v.AsInteger(); ok {
		return strconv.FormatInt(i, 10)
	}
	if f, ok := v.AsFloat(); ok {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	if b, ok := v.AsBool(); ok {
		return strconv.FormatBool(b)
	}
	if b, ok := v.AsBytes(); ok {
		return string(b)
	}
	return "(unknown)"
}

var hgetCmd = &cobra.Command{
	Use:   "hget <table> <key>",
	Short: "Get one value",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runUnary(&wire.HGet{Table: args[0], Key: args[1]})
	},
}

var hgetAllCmd = &cobra.Command{
	Use:   "hgetall <table>",
	Short: "Get every pair in a table",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runUnary(&wire.HGetAll{Table: args[0]})
	},
}

var hmgetCmd = &cobra.Command{
	Use:   "hmget <table> <key>...",
	Short: "Get many values",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runUnary(&wire.HMGet{Table: args[0], Keys: args[1:]})
	},
}

var hsetCmd = &cobra.Command{
	Use:   "hset <table> <key> <value>",
	Short: "Set one value, printing the prior one",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		runUnary(&wire.HSet{Table: args[0], Pair: &wire.KvPair{Key: args[1], Value: wire.String(args[2])}})
	},
}

var hmsetCmd = &cobra.Command{
	Use:   "hmset <table> <key> <value> [<key> <value>...]",
	Short: "Set many values",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) < 3 || (len(args)-1)%2 != 0 {
			return fmt.Errorf("expected <table> followed by key/value pairs")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		table := args[0]
		kvs := args[1:]
		pairs := make([]wire.KvPair, 0, len(kvs)/2)
		for i := 0; i < len(kvs); i += 2 {
			pairs = append(pairs, wire.KvPair{Key: kvs[i], Value: wire.String(kvs[i+1])})
		}
		runUnary(&wire.HMSet{Table: table, Pairs: pairs})
	},
}

var hdelCmd = &cobra.Command{
	Use:   "hdel <table> <key>",
	Short: "Delete one value, printing the prior one",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runUnary(&wire.HDel{Table: args[0], Key: args[1]})
	},
}

var hmdelCmd = &cobra.Command{
	Use:   "hmdel <table> <key>...",
	Short: "Delete many values",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runUnary(&wire.HMDel{Table: args[0], Keys: args[1:]})
	},
}

var hexistCmd = &cobra.Command{
	Use:   "hexist <table> <key>",
	Short: "Check whether one key exists",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runUnary(&wire.HExist{Table: args[0], Key: args[1]})
	},
}

var hmexistCmd = &cobra.Command{
	Use:   "hmexist <table> <key>...",
	Short: "Check whether many keys exist",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runUnary(&wire.HMExist{Table: args[0], Keys: args[1:]})
	},
}

var publishCmd = &cobra.Command{
	Use:   "pub <topic> <value>...",
	Short: "Publish one message to a topic",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		values := make([]wire.Value, len(args)-1)
		for i, a := range args[1:] {
			values[i] = wire.String(a)
		}
		runUnary(&wire.Publish{Topic: args[0], Data: values})
	},
}

var unsubscribeCmd = &cobra.Command{
	Use:   "unsub <topic> <id>",
	Short: "Unsubscribe from a topic by subscription id",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid subscription id %q: %v\n", args[1], err)
			os.Exit(1)
		}
		runUnary(&wire.Unsubscribe{Topic: args[0], ID: uint32(id)})
	},
}

var subscribeCmd = &cobra.Command{
	Use:   "sub <topic>",
	Short: "Subscribe to a topic and print published messages until interrupted",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c, err := dialClient(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dial: %v\n", err)
			os.Exit(1)
		}
		defer c.Close()

		sub, err := c.Subscribe(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "subscribe: %v\n", err)
			os.Exit(1)
		}
		defer sub.Close()

		fmt.Printf("subscribed to %q, id=%d\n", sub.Topic(), sub.ID())
		for {
			msg, err := sub.Next(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "subscription ended: %v\n", err)
				return
			}
			for _, v := range msg.Values {
				fmt.Println(formatValue(v))
			}
		}
	},
}
