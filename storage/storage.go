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

// Package storage defines the table-scoped key/value storage contract and
// its two implementations: an in-process MemTable and a BoltStore backed by
// an embedded on-disk database.
package storage

import "github.com/kvnet/kvnetd/wire"

// Storage is the contract every backend satisfies for a given table name.
// Tables are created implicitly on first write; reads and Contains against
// a table that was never written return the zero value / false, never an
// error. Every method is safe to call concurrently from many goroutines.
type Storage interface {
	// Get returns the value at (table, key), or ok=false if absent.
	Get(table, key string) (value wire.Value, ok bool, err error)

	// Set writes (table, key) = value and returns the value it replaced, or
	// ok=false if the key was previously absent.
	Set(table, key string, value wire.Value) (prior wire.Value, ok bool, err error)

	// Del removes (table, key) and returns the value it held, or ok=false
	// if the key was already absent.
	Del(table, key string) (prior wire.Value, ok bool, err error)

	// Contains reports whether key exists in table.
	Contains(table, key string) (bool, error)

	// GetAll returns every pair currently stored in table.
	GetAll(table string) ([]wire.KvPair, error)

	// GetIter returns a finite, non-restartable snapshot of table's pairs
	// taken at call time: later writes to table are not reflected in it.
	GetIter(table string) (Iterator, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Iterator walks a snapshot of pairs taken at the moment GetIter was
// called.
type Iterator interface {
	// Next returns the next pair, or ok=false once the snapshot is
	// exhausted.
	Next() (pair wire.KvPair, ok bool)
}

// sliceIterator adapts a pre-materialized snapshot slice to Iterator. Both
// backends take their snapshot eagerly (a full table copy under one lock /
// one read transaction), so a lazily-advancing slice walk satisfies
// "non-restartable, snapshot semantics at call time" without holding any
// lock or transaction open across the caller's iteration.
type sliceIterator struct {
	pairs []wire.KvPair
	pos   int
}

func (it *sliceIterator) Next() (wire.KvPair, bool) {
	if it.pos >= len(it.pairs) {
		return wire.KvPair{}, false
	}
	p := it.pairs[it.pos]
	it.pos++
	return p, true
}
