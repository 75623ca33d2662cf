// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package prefixdb

import (
	"github.com/solvault-io/solvaultd/database"
)

var _ database.Database = (*Database)(nil)

// Database partitions a database into a sub-database by prefixing all keys.
type Database struct {
	prefix []byte
	db     database.Database
}

func New(prefix []byte, db database.Database) *Database {
	prefixCopy := make([]byte, len(prefix))
	copy(prefixCopy, prefix)
	return &Database{
		prefix: prefixCopy,
		db:     db,
	}
}

func (db *Database) prefixKey(key []byte) []byte {
	prefixed := make([]byte, 0, len(db.prefix)+len(key))
	prefixed = append(prefixed, db.prefix...)
	prefixed = append(prefixed, key...)
	return prefixed
}

func (db *Database) Has(key []byte) (bool, error) {
	return db.db.Has(db.prefixKey(key))
}

func (db *Database) Get(key []byte) ([]byte, error) {
	return db.db.Get(db.prefixKey(key))
}

func (db *Database) Put(key, value []byte) error {
	return db.db.Put(db.prefixKey(key), value)
}

func (db *Database) Delete(key []byte) error {
	return db.db.Delete(db.prefixKey(key))
}

func (db *Database) NewBatch() database.Batch {
	return &batch{
		db:    db,
		inner: db.db.NewBatch(),
	}
}

func (db *Database) NewIterator() database.Iterator {
	return db.NewIteratorWithPrefix(nil)
}

func (db *Database) NewIteratorWithPrefix(prefix []byte) database.Iterator {
	return &iterator{
		prefixLen: len(db.prefix),
		inner:     db.db.NewIteratorWithPrefix(db.prefixKey(prefix)),
	}
}

// Close does not close the underlying database; the prefixdb is a view.
func (db *Database) Close() error {
	return nil
}

type batch struct {
	db    *Database
	inner database.Batch
}

func (b *batch) Put(key, value []byte) error {
	return b.inner.Put(b.db.prefixKey(key), value)
}

func (b *batch) Delete(key []byte) error {
	return b.inner.Delete(b.db.prefixKey(key))
}

func (b *batch) Size() int {
	return b.inner.Size()
}

func (b *batch) Write() error {
	return b.inner.Write()
}

func (b *batch) Reset() {
	b.inner.Reset()
}

type iterator struct {
	prefixLen int
	inner     database.Iterator
}

func (it *iterator) Next() bool {
	return it.inner.Next()
}

func (it *iterator) Error() error {
	return it.inner.Error()
}

// Key strips the database prefix so callers see the keys they wrote.
func (it *iterator) Key() []byte {
	key := it.inner.Key()
	if len(key) < it.prefixLen {
		return key
	}
	return key[it.prefixLen:]
}

func (it *iterator) Value() []byte {
	return it.inner.Value()
}

func (it *iterator) Release() {
	it.inner.Release()
}
