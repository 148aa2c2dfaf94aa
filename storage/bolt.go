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
	"time"

	"go.etcd.io/bbolt"

	"github.com/kvnet/kvnetd/kverrors"
	"github.com/kvnet/kvnetd/wire"
)

// BoltStore persists tables as buckets in an embedded on-disk database,
// relying on bbolt's transactions (one writer at a time, concurrent readers)
// for concurrency.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (creating if absent) the bbolt database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, kverrors.Wrap(kverrors.KindStorage, err, "storage: open bolt database %q", path)
	}
	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Get(table, key string) (wire.Value, bool, error) {
	var value wire.Value
	var found bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(table))
		if bucket == nil {
			return nil
		}
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return nil
		}
		v, err := wire.UnmarshalValue(raw)
		if err != nil {
			return err
		}
		value, found = v, true
		return nil
	})
	if err != nil {
		return wire.Value{}, false, kverrors.Wrap(kverrors.KindStorage, err, "storage: get %s/%s", table, key)
	}
	return value, found, nil
}

func (b *BoltStore) Set(table, key string, value wire.Value) (wire.Value, bool, error) {
	var prior wire.Value
	var had bool
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(table))
		if err != nil {
			return err
		}
		if raw := bucket.Get([]byte(key)); raw != nil {
			p, err := wire.UnmarshalValue(raw)
			if err != nil {
				return err
			}
			prior, had = p, true
		}
		return bucket.Put([]byte(key), wire.MarshalValue(value))
	})
	if err != nil {
		return wire.Value{}, false, kverrors.Wrap(kverrors.KindStorage, err, "storage: set %s/%s", table, key)
	}
	return prior, had, nil
}

func (b *BoltStore) Del(table, key string) (wire.Value, bool, error) {
	var prior wire.Value
	var had bool
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(table))
		if bucket == nil {
			return nil
		}
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return nil
		}
		p, err := wire.UnmarshalValue(raw)
		if err != nil {
			return err
		}
		prior, had = p, true
		return bucket.Delete([]byte(key))
	})
	if err != nil {
		return wire.Value{}, false, kverrors.Wrap(kverrors.KindStorage, err, "storage: del %s/%s", table, key)
	}
	return prior, had, nil
}

func (b *BoltStore) Contains(table, key string) (bool, error) {
	_, ok, err := b.Get(table, key)
	return ok, err
}

func (b *BoltStore) GetAll(table string) ([]wire.KvPair, error) {
	var pairs []wire.KvPair
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(table))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, raw []byte) error {
			v, err := wire.UnmarshalValue(raw)
			if err != nil {
				return err
			}
			pairs = append(pairs, wire.KvPair{Key: string(k), Value: v})
			return nil
		})
	})
	if err != nil {
		return nil, kverrors.Wrap(kverrors.KindStorage, err, "storage: get_all %s", table)
	}
	return pairs, nil
}

// GetIter walks table's bucket with a cursor inside a single View
// transaction, materializing the full snapshot before the transaction
// closes: the returned Iterator never holds the transaction open.
func (b *BoltStore) GetIter(table string) (Iterator, error) {
	pairs, err := b.GetAll(table)
	if err != nil {
		return nil, err
	}
	return &sliceIterator{pairs: pairs}, nil
}

func (b *BoltStore) Close() error {
	if err := b.db.Close(); err != nil {
		return kverrors.Wrap(kverrors.KindStorage, err, "storage: close bolt database")
	}
	return nil
}

var _ Storage = (*BoltStore)(nil)
