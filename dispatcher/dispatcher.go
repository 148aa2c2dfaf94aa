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

// Package dispatcher maps a decoded command, plus the shared storage and
// broker handles, to a response stream: unary commands yield exactly one
// response, SUBSCRIBE yields an unbounded stream that starts with the new
// subscription's id and continues with published payloads.
package dispatcher

import (
	"context"
	"reflect"

	"github.com/kvnet/kvnetd/broker"
	"github.com/kvnet/kvnetd/kverrors"
	"github.com/kvnet/kvnetd/storage"
	"github.com/kvnet/kvnetd/wire"
)

// Hook observes a command and, for post-hooks, the response the dispatcher
// just produced; pre-hooks run before dispatch and receive a nil response.
// Hooks must not mutate either value and must not block; a panicking hook
// is recovered, reported to the Dispatcher's onPanic callback, and otherwise
// has no effect on dispatch.
type Hook func(cmd wire.Command, resp *wire.Response)

// Dispatcher binds a storage backend and a broker to the command contracts
// in this package, with optional per-command-kind hooks.
type Dispatcher struct {
	storage storage.Storage
	broker  *broker.Broker

	preHooks  map[reflect.Type][]Hook
	postHooks map[reflect.Type][]Hook

	onPanic func(where string, recovered any)
}

// New returns a Dispatcher bound to store and br. onPanic, if non-nil, is
// invoked whenever a hook panics; it must not itself panic or block.
func New(store storage.Storage, br *broker.Broker, onPanic func(where string, recovered any)) *Dispatcher {
	return &Dispatcher{
		storage:   store,
		broker:    br,
		preHooks:  make(map[reflect.Type][]Hook),
		postHooks: make(map[reflect.Type][]Hook),
		onPanic:   onPanic,
	}
}

// RegisterPreHook registers hook to run, best-effort, before dispatching
// any command of the same concrete type as sample.
func (d *Dispatcher) RegisterPreHook(sample wire.Command, hook Hook) {
	t := reflect.TypeOf(sample)
	d.preHooks[t] = append(d.preHooks[t], hook)
}

// RegisterPostHook registers hook to run, best-effort, after dispatching
// any command of the same concrete type as sample.
func (d *Dispatcher) RegisterPostHook(sample wire.Command, hook Hook) {
	t := reflect.TypeOf(sample)
	d.postHooks[t] = append(d.postHooks[t], hook)
}

func (d *Dispatcher) runHooks(hooks []Hook, cmd wire.Command, resp *wire.Response, where string) {
	for _, h := range hooks {
		d.runHookSafely(h, cmd, resp, where)
	}
}

func (d *Dispatcher) runHookSafely(h Hook, cmd wire.Command, resp *wire.Response, where string) {
	defer func() {
		if r := recover(); r != nil && d.onPanic != nil {
			d.onPanic(where, r)
		}
	}()
	h(cmd, resp)
}

// Execute dispatches cmd and returns a channel of responses. For every
// command except SUBSCRIBE the channel carries exactly one response and is
// then closed. For SUBSCRIBE the channel stays open, delivering the
// subscription-id response first and then one response per published
// message, until ctx is done, the client unsubscribes, or the subscription
// is evicted for falling behind.
func (d *Dispatcher) Execute(ctx context.Context, cmd wire.Command) <-chan *wire.Response {
	preType := reflect.TypeOf(cmd)
	if hooks := d.preHooks[preType]; len(hooks) > 0 {
		d.runHooks(hooks, cmd, nil, "pre")
	}

	if sub, ok := cmd.(*wire.Subscribe); ok {
		return d.executeSubscribe(ctx, sub)
	}

	resp := d.executeUnary(cmd)

	if hooks := d.postHooks[preType]; len(hooks) > 0 {
		d.runHooks(hooks, cmd, resp, "post")
	}

	out := make(chan *wire.Response, 1)
	out <- resp
	close(out)
	return out
}

func (d *Dispatcher) executeUnary(cmd wire.Command) *wire.Response {
	switch c := cmd.(type) {
	case *wire.HGet:
		v, ok, err := d.storage.Get(c.Table, c.Key)
		if err != nil {
			return storageError(err)
		}
		return wire.OKValues(valueOrNone(v, ok))

	case *wire.HGetAll:
		pairs, err := d.storage.GetAll(c.Table)
		if err != nil {
			return storageError(err)
		}
		return wire.OKPairs(pairs)

	case *wire.HMGet:
		values := make([]wire.Value, len(c.Keys))
		for i, k := range c.Keys {
			v, ok, err := d.storage.Get(c.Table, k)
			if err != nil {
				return storageError(err)
			}
			values[i] = valueOrNone(v, ok)
		}
		return wire.OKValues(values...)

	case *wire.HSet:
		if c.Pair == nil {
			return wire.Errorf(400, "HSET requires a pair")
		}
		prior, ok, err := d.storage.Set(c.Table, c.Pair.Key, c.Pair.Value)
		if err != nil {
			return storageError(err)
		}
		return wire.OKValues(valueOrNone(prior, ok))

	case *wire.HMSet:
		values := make([]wire.Value, len(c.Pairs))
		for i, p := range c.Pairs {
			prior, ok, err := d.storage.Set(c.Table, p.Key, p.Value)
			if err != nil {
				return storageError(err)
			}
			values[i] = valueOrNone(prior, ok)
		}
		return wire.OKValues(values...)

	case *wire.HDel:
		prior, ok, err := d.storage.Del(c.Table, c.Key)
		if err != nil {
			return storageError(err)
		}
		return wire.OKValues(valueOrNone(prior, ok))

	case *wire.HMDel:
		values := make([]wire.Value, len(c.Keys))
		for i, k := range c.Keys {
			prior, ok, err := d.storage.Del(c.Table, k)
			if err != nil {
				return storageError(err)
			}
			values[i] = valueOrNone(prior, ok)
		}
		return wire.OKValues(values...)

	case *wire.HExist:
		ok, err := d.storage.Contains(c.Table, c.Key)
		if err != nil {
			return storageError(err)
		}
		return wire.OKValues(wire.Bool(ok))

	case *wire.HMExist:
		values := make([]wire.Value, len(c.Keys))
		for i, k := range c.Keys {
			ok, err := d.storage.Contains(c.Table, k)
			if err != nil {
				return storageError(err)
			}
			values[i] = wire.Bool(ok)
		}
		return wire.OKValues(values...)

	case *wire.Publish:
		d.broker.Publish(c.Topic, c.Data)
		return wire.OK()

	case *wire.Unsubscribe:
		if err := d.broker.Unsubscribe(c.Topic, c.ID); err != nil {
			return wire.Errorf(kverrors.StatusOf(err), "%s", err.Error())
		}
		return wire.OK()

	default:
		return wire.Errorf(400, "unrecognized command %T", cmd)
	}
}

func (d *Dispatcher) executeSubscribe(ctx context.Context, cmd *wire.Subscribe) <-chan *wire.Response {
	id, q := d.broker.Subscribe(cmd.Topic)

	out := make(chan *wire.Response, 1)
	out <- wire.OKValues(wire.Integer(int64(id)))

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				_ = d.broker.Unsubscribe(cmd.Topic, id)
				return
			case values, ok := <-q.Pop():
				if !ok {
					return
				}
				select {
				case out <- wire.OKValues(values...):
				case <-ctx.Done():
					_ = d.broker.Unsubscribe(cmd.Topic, id)
					return
				}
			}
		}
	}()

	return out
}

func valueOrNone(v wire.Value, ok bool) wire.Value {
	if !ok {
		return wire.None()
	}
	return v
}

func storageError(err error) *wire.Response {
	return wire.Errorf(500, "%s", err.Error())
}
