// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package leveldb

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	ldbiterator "github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/solvault-io/solvaultd/database"
)

var _ database.Database = (*Database)(nil)

// Database is a durable key-value store backed by goleveldb.
type Database struct {
	db *leveldb.DB
}

func New(path string) (*Database, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
			db, err = leveldb.RecoverFile(path, nil)
		}
		if err != nil {
			return nil, err
		}
	}
	return &Database{db: db}, nil
}

func (db *Database) Has(key []byte) (bool, error) {
	has, err := db.db.Has(key, nil)
	return has, updateError(err)
}

func (db *Database) Get(key []byte) ([]byte, error) {
	value, err := db.db.Get(key, nil)
	return value, updateError(err)
}

func (db *Database) Put(key, value []byte) error {
	return updateError(db.db.Put(key, value, nil))
}

func (db *Database) Delete(key []byte) error {
	return updateError(db.db.Delete(key, nil))
}

func (db *Database) NewBatch() database.Batch {
	return &batch{db: db.db}
}

func (db *Database) NewIterator() database.Iterator {
	return &iterator{it: db.db.NewIterator(nil, nil)}
}

func (db *Database) NewIteratorWithPrefix(prefix []byte) database.Iterator {
	return &iterator{it: db.db.NewIterator(util.BytesPrefix(prefix), nil)}
}

func (db *Database) Close() error {
	return updateError(db.db.Close())
}

// updateError maps goleveldb errors onto the database package's sentinels so
// callers never depend on the backend.
func updateError(err error) error {
	switch err {
	case leveldb.ErrClosed:
		return database.ErrClosed
	case leveldb.ErrNotFound:
		return database.ErrNotFound
	default:
		return err
	}
}

type batch struct {
	db    *leveldb.DB
	batch leveldb.Batch
}

func (b *batch) Put(key, value []byte) error {
	b.batch.Put(key, value)
	return nil
}

func (b *batch) Delete(key []byte) error {
	b.batch.Delete(key)
	return nil
}

func (b *batch) Size() int {
	return len(b.batch.Dump())
}

func (b *batch) Write() error {
	return updateError(b.db.Write(&b.batch, nil))
}

func (b *batch) Reset() {
	b.batch.Reset()
}

type iterator struct {
	it ldbiterator.Iterator
}

func (it *iterator) Next() bool {
	return it.it.Next()
}

func (it *iterator) Error() error {
	return updateError(it.it.Error())
}

func (it *iterator) Key() []byte {
	return it.it.Key()
}

func (it *iterator) Value() []byte {
	return it.it.Value()
}

func (it *iterator) Release() {
	it.it.Release()
}
