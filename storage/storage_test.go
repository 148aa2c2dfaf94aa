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
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvnet/kvnetd/wire"
)

func backends(t *testing.T) map[string]Storage {
	t.Helper()
	bolt, err := OpenBoltStore(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })

	return map[string]Storage{
		"memtable": NewMemTable(),
		"bolt":     bolt,
	}
}

func TestStorageContract(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get("missing", "k")
			require.NoError(t, err)
			assert.False(t, ok)

			contains, err := s.Contains("missing", "k")
			require.NoError(t, err)
			assert.False(t, contains)

			prior, had, err := s.Set("t1", "k1", wire.Integer(1))
			require.NoError(t, err)
			assert.False(t, had)
			assert.True(t, prior.IsNone())

			prior, had, err = s.Set("t1", "k1", wire.Integer(2))
			require.NoError(t, err)
			require.True(t, had)
			v, ok := prior.AsInteger()
			require.True(t, ok)
			assert.Equal(t, int64(1), v)

			got, ok, err := s.Get("t1", "k1")
			require.NoError(t, err)
			require.True(t, ok)
			v, ok = got.AsInteger()
			require.True(t, ok)
			assert.Equal(t, int64(2), v)

			contains, err = s.Contains("t1", "k1")
			require.NoError(t, err)
			assert.True(t, contains)

			deleted, had, err := s.Del("t1", "k1")
			require.NoError(t, err)
			require.True(t, had)
			v, ok = deleted.AsInteger()
			require.True(t, ok)
			assert.Equal(t, int64(2), v)

			_, had, err = s.Del("t1", "k1")
			require.NoError(t, err)
			assert.False(t, had)
		})
	}
}

func TestStorageGetAllAndGetIter(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, _, err := s.Set("t1", "a", wire.String("1"))
			require.NoError(t, err)
			_, _, err = s.Set("t1", "b", wire.String("2"))
			require.NoError(t, err)
			_, _, err = s.Set("t2", "x", wire.String("other-table"))
			require.NoError(t, err)

			pairs, err := s.GetAll("t1")
			require.NoError(t, err)
			assert.Len(t, pairs, 2)

			byKey := make(map[string]wire.Value, len(pairs))
			for _, p := range pairs {
				byKey[p.Key] = p.Value
			}
			v, ok := byKey["a"].AsString()
			require.True(t, ok)
			assert.Equal(t, "1", v)

			it, err := s.GetIter("t1")
			require.NoError(t, err)
			count := 0
			for {
				_, ok := it.Next()
				if !ok {
					break
				}
				count++
			}
			assert.Equal(t, 2, count)
		})
	}
}

func TestStorageMissingTableReadsAreEmptyNotErrors(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			pairs, err := s.GetAll("never-written")
			require.NoError(t, err)
			assert.Empty(t, pairs)

			it, err := s.GetIter("never-written")
			require.NoError(t, err)
			_, ok := it.Next()
			assert.False(t, ok)
		})
	}
}

func TestStorageConcurrentAccessIsSafe(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, _, err := s.Set("concurrent", "k", wire.Integer(int64(i)))
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			_, ok, err := s.Get("concurrent", "k")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}
