// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package memdb

import (
	"strings"
	"sync"

	"github.com/google/btree"

	"github.com/solvault-io/solvaultd/database"
)

const defaultBTreeDegree = 16

var _ database.Database = (*Database)(nil)

// Database is an ephemeral key-value store for testing and in-memory nodes.
// Keys are indexed in a btree so iteration is ordered without sorting on
// every iterator creation.
type Database struct {
	lock  sync.RWMutex
	db    map[string][]byte
	index *btree.BTreeG[string]
}

func New() *Database {
	return &Database{
		db:    make(map[string][]byte),
		index: btree.NewG(defaultBTreeDegree, func(a, b string) bool { return a < b }),
	}
}

func (db *Database) Has(key []byte) (bool, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.db == nil {
		return false, database.ErrClosed
	}
	_, ok := db.db[string(key)]
	return ok, nil
}

func (db *Database) Get(key []byte) ([]byte, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.db == nil {
		return nil, database.ErrClosed
	}
	if entry, ok := db.db[string(key)]; ok {
		ret := make([]byte, len(entry))
		copy(ret, entry)
		return ret, nil
	}
	return nil, database.ErrNotFound
}

func (db *Database) Put(key []byte, value []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	return db.put(key, value)
}

func (db *Database) put(key []byte, value []byte) error {
	if db.db == nil {
		return database.ErrClosed
	}
	k := string(key)
	v := make([]byte, len(value))
	copy(v, value)
	db.db[k] = v
	db.index.ReplaceOrInsert(k)
	return nil
}

func (db *Database) Delete(key []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	return db.delete(key)
}

func (db *Database) delete(key []byte) error {
	if db.db == nil {
		return database.ErrClosed
	}
	k := string(key)
	delete(db.db, k)
	db.index.Delete(k)
	return nil
}

func (db *Database) NewBatch() database.Batch {
	return &batch{db: db}
}

func (db *Database) NewIterator() database.Iterator {
	return db.NewIteratorWithPrefix(nil)
}

func (db *Database) NewIteratorWithPrefix(prefix []byte) database.Iterator {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.db == nil {
		return &iterator{err: database.ErrClosed}
	}

	prefixStr := string(prefix)
	keys := make([]string, 0)
	db.index.AscendGreaterOrEqual(prefixStr, func(k string) bool {
		if !strings.HasPrefix(k, prefixStr) {
			return false
		}
		keys = append(keys, k)
		return true
	})

	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = db.db[k]
	}
	return &iterator{
		keys:   keys,
		values: values,
	}
}

func (db *Database) Close() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.db == nil {
		return database.ErrClosed
	}
	db.db = nil
	db.index = nil
	return nil
}

type keyValue struct {
	key    []byte
	value  []byte
	delete bool
}

type batch struct {
	db   *Database
	ops  []keyValue
	size int
}

func (b *batch) Put(key, value []byte) error {
	kCopy := make([]byte, len(key))
	copy(kCopy, key)
	vCopy := make([]byte, len(value))
	copy(vCopy, value)
	b.ops = append(b.ops, keyValue{key: kCopy, value: vCopy})
	b.size += len(key) + len(value)
	return nil
}

func (b *batch) Delete(key []byte) error {
	kCopy := make([]byte, len(key))
	copy(kCopy, key)
	b.ops = append(b.ops, keyValue{key: kCopy, delete: true})
	b.size += len(key)
	return nil
}

func (b *batch) Size() int {
	return b.size
}

// Write applies all the queued operations under one lock hold, so readers
// observe the batch atomically.
func (b *batch) Write() error {
	b.db.lock.Lock()
	defer b.db.lock.Unlock()

	for _, op := range b.ops {
		var err error
		if op.delete {
			err = b.db.delete(op.key)
		} else {
			err = b.db.put(op.key, op.value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *batch) Reset() {
	b.ops = b.ops[:0]
	b.size = 0
}

type iterator struct {
	pos    int
	keys   []string
	values [][]byte
	err    error
}

func (it *iterator) Next() bool {
	if it.err != nil || it.pos >= len(it.keys) {
		return false
	}
	it.pos++
	return it.pos <= len(it.keys)
}

func (it *iterator) Error() error {
	return it.err
}

func (it *iterator) Key() []byte {
	if it.pos == 0 || it.pos > len(it.keys) {
		return nil
	}
	return []byte(it.keys[it.pos-1])
}

func (it *iterator) Value() []byte {
	if it.pos == 0 || it.pos > len(it.values) {
		return nil
	}
	return it.values[it.pos-1]
}

func (it *iterator) Release() {
	it.keys = nil
	it.values = nil
}
