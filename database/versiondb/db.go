// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package versiondb

import (
	"sort"
	"strings"
	"sync"

	"github.com/solvault-io/solvaultd/database"
)

var _ database.Database = (*Database)(nil)

// Database implements the database interface by buffering all changes in
// memory until commit. Reads fall through to the underlying database. This
// is the unit-of-work primitive: either every staged write lands atomically
// on Commit, or none do on Abort.
type Database struct {
	lock sync.RWMutex
	mem  map[string]valueDelete
	db   database.Database
}

type valueDelete struct {
	value  []byte
	delete bool
}

func New(db database.Database) *Database {
	return &Database{
		mem: make(map[string]valueDelete),
		db:  db,
	}
}

func (db *Database) Has(key []byte) (bool, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.mem == nil {
		return false, database.ErrClosed
	}
	if val, ok := db.mem[string(key)]; ok {
		return !val.delete, nil
	}
	return db.db.Has(key)
}

func (db *Database) Get(key []byte) ([]byte, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.mem == nil {
		return nil, database.ErrClosed
	}
	if val, ok := db.mem[string(key)]; ok {
		if val.delete {
			return nil, database.ErrNotFound
		}
		ret := make([]byte, len(val.value))
		copy(ret, val.value)
		return ret, nil
	}
	return db.db.Get(key)
}

func (db *Database) Put(key, value []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.mem == nil {
		return database.ErrClosed
	}
	valCopy := make([]byte, len(value))
	copy(valCopy, value)
	db.mem[string(key)] = valueDelete{value: valCopy}
	return nil
}

func (db *Database) Delete(key []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.mem == nil {
		return database.ErrClosed
	}
	db.mem[string(key)] = valueDelete{delete: true}
	return nil
}

func (db *Database) NewBatch() database.Batch {
	return &batch{db: db}
}

func (db *Database) NewIterator() database.Iterator {
	return db.NewIteratorWithPrefix(nil)
}

// NewIteratorWithPrefix merges the staged writes over the underlying
// database's iterator.
func (db *Database) NewIteratorWithPrefix(prefix []byte) database.Iterator {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.mem == nil {
		return &staticIterator{err: database.ErrClosed}
	}

	prefixStr := string(prefix)
	keys := make([]string, 0)
	for key := range db.mem {
		if strings.HasPrefix(key, prefixStr) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	values := make([]valueDelete, len(keys))
	for i, key := range keys {
		values[i] = db.mem[key]
	}

	return &iterator{
		db:       db,
		Iterator: db.db.NewIteratorWithPrefix(prefix),
		keys:     keys,
		values:   values,
	}
}

// Commit writes all the staged operations to the underlying database as one
// batch and resets the staging area.
func (db *Database) Commit() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.mem == nil {
		return database.ErrClosed
	}
	batch := db.db.NewBatch()
	for key, value := range db.mem {
		if value.delete {
			if err := batch.Delete([]byte(key)); err != nil {
				return err
			}
		} else if err := batch.Put([]byte(key), value.value); err != nil {
			return err
		}
	}
	if err := batch.Write(); err != nil {
		return err
	}
	db.abort()
	return nil
}

// Abort discards all staged operations.
func (db *Database) Abort() {
	db.lock.Lock()
	defer db.lock.Unlock()
	db.abort()
}

func (db *Database) abort() {
	if db.mem != nil {
		db.mem = make(map[string]valueDelete)
	}
}

func (db *Database) Close() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.mem == nil {
		return database.ErrClosed
	}
	db.mem = nil
	return nil
}

type batch struct {
	db   *Database
	ops  []op
	size int
}

type op struct {
	key    []byte
	value  []byte
	delete bool
}

func (b *batch) Put(key, value []byte) error {
	kCopy := make([]byte, len(key))
	copy(kCopy, key)
	vCopy := make([]byte, len(value))
	copy(vCopy, value)
	b.ops = append(b.ops, op{key: kCopy, value: vCopy})
	b.size += len(key) + len(value)
	return nil
}

func (b *batch) Delete(key []byte) error {
	kCopy := make([]byte, len(key))
	copy(kCopy, key)
	b.ops = append(b.ops, op{key: kCopy, delete: true})
	b.size += len(key)
	return nil
}

func (b *batch) Size() int {
	return b.size
}

func (b *batch) Write() error {
	b.db.lock.Lock()
	defer b.db.lock.Unlock()

	if b.db.mem == nil {
		return database.ErrClosed
	}
	for _, o := range b.ops {
		b.db.mem[string(o.key)] = valueDelete{value: o.value, delete: o.delete}
	}
	return nil
}

func (b *batch) Reset() {
	b.ops = b.ops[:0]
	b.size = 0
}

// iterator walks the underlying iterator and the staged keys in merged key
// order, with staged values shadowing underlying ones.
type iterator struct {
	db *Database
	database.Iterator

	key, value []byte
	keys       []string
	values     []valueDelete

	initialized, exhausted bool
}

func (it *iterator) Next() bool {
	if !it.initialized {
		it.exhausted = !it.Iterator.Next()
		it.initialized = true
	}

	for {
		switch {
		case it.exhausted && len(it.keys) == 0:
			it.key = nil
			it.value = nil
			return false
		case it.exhausted:
			nextKey := it.keys[0]
			nextValue := it.values[0]
			it.keys = it.keys[1:]
			it.values = it.values[1:]
			if !nextValue.delete {
				it.key = []byte(nextKey)
				it.value = nextValue.value
				return true
			}
		case len(it.keys) == 0:
			it.key = it.Iterator.Key()
			it.value = it.Iterator.Value()
			it.exhausted = !it.Iterator.Next()
			return true
		default:
			memKey := it.keys[0]
			dbKey := it.Iterator.Key()
			dbKeyStr := string(dbKey)

			switch {
			case memKey < dbKeyStr:
				nextValue := it.values[0]
				it.keys = it.keys[1:]
				it.values = it.values[1:]
				if !nextValue.delete {
					it.key = []byte(memKey)
					it.value = nextValue.value
					return true
				}
			case memKey == dbKeyStr:
				nextValue := it.values[0]
				it.keys = it.keys[1:]
				it.values = it.values[1:]
				it.exhausted = !it.Iterator.Next()
				if !nextValue.delete {
					it.key = []byte(memKey)
					it.value = nextValue.value
					return true
				}
			default:
				it.key = dbKey
				it.value = it.Iterator.Value()
				it.exhausted = !it.Iterator.Next()
				return true
			}
		}
	}
}

func (it *iterator) Key() []byte {
	return it.key
}

func (it *iterator) Value() []byte {
	return it.value
}

type staticIterator struct {
	err error
}

func (it *staticIterator) Next() bool {
	return false
}

func (it *staticIterator) Error() error {
	return it.err
}

func (*staticIterator) Key() []byte {
	return nil
}

func (*staticIterator) Value() []byte {
	return nil
}

func (*staticIterator) Release() {}
