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

package storage

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/kvnet/kvnetd/wire"
)

// memTableShards is the number of independently-locked shards a MemTable
// spreads its keys across. A (table, key) pair's shard is picked by hashing
// both together, so a single table's keys are spread across every shard
// rather than serializing on one lock.
const memTableShards = 32

type memShard struct {
	mut    sync.RWMutex
	tables map[string]map[string]wire.Value
}

// MemTable is an in-process, sharded-map Storage implementation.
type MemTable struct {
	shards [memTableShards]*memShard
}

// NewMemTable returns an empty MemTable.
func NewMemTable() *MemTable {
	m := &MemTable{}
	for i := range m.shards {
		m.shards[i] = &memShard{tables: make(map[string]map[string]wire.Value)}
	}
	return m
}

func (m *MemTable) shardFor(table, key string) *memShard {
	h := xxhash.Sum64String(table + "\xff" + key)
	return m.shards[h%memTableShards]
}

func (m *MemTable) Get(table, key string) (wire.Value, bool, error) {
	s := m.shardFor(table, key)
	s.mut.RLock()
	defer s.mut.RUnlock()

	row, ok := s.tables[table]
	if !ok {
		return wire.Value{}, false, nil
	}
	v, ok := row[key]
	return v, ok, nil
}

func (m *MemTable) Set(table, key string, value wire.Value) (wire.Value, bool, error) {
	s := m.shardFor(table, key)
	s.mut.Lock()
	defer s.mut.Unlock()

	row, ok := s.tables[table]
	if !ok {
		row = make(map[string]wire.Value)
		s.tables[table] = row
	}
	prior, had := row[key]
	row[key] = value
	return prior, had, nil
}

func (m *MemTable) Del(table, key string) (wire.Value, bool, error) {
	s := m.shardFor(table, key)
	s.mut.Lock()
	defer s.mut.Unlock()

	row, ok := s.tables[table]
	if !ok {
		return wire.Value{}, false, nil
	}
	prior, had := row[key]
	if had {
		delete(row, key)
	}
	return prior, had, nil
}

func (m *MemTable) Contains(table, key string) (bool, error) {
	_, ok, err := m.Get(table, key)
	return ok, err
}

// GetAll scans every shard for pairs belonging to table, since a table's
// keys are spread across shards by (table, key) hash rather than by table
// alone.
func (m *MemTable) GetAll(table string) ([]wire.KvPair, error) {
	var pairs []wire.KvPair
	for _, s := range m.shards {
		s.mut.RLock()
		if row, ok := s.tables[table]; ok {
			for k, v := range row {
				pairs = append(pairs, wire.KvPair{Key: k, Value: v})
			}
		}
		s.mut.RUnlock()
	}
	return pairs, nil
}

// GetIter takes an eager snapshot of table across all shards and returns an
// Iterator over it; later writes are not reflected.
func (m *MemTable) GetIter(table string) (Iterator, error) {
	pairs, err := m.GetAll(table)
	if err != nil {
		return nil, err
	}
	return &sliceIterator{pairs: pairs}, nil
}

func (m *MemTable) Close() error { return nil }

var _ Storage = (*MemTable)(nil)
