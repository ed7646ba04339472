// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package store implements the abstract single wide-row key-value table
// the engine is specified against: a composite primary key (PK, SK),
// conditional put, atomic numeric update, range query over SK within a
// PK, and prefix deletion for cascading cleanup. BadgerDB backs the
// implementation; its serializable transactions give us the conditional
// semantics the abstract contract needs without a dedicated
// compare-and-swap primitive.
package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/cartographus/internal/ledgererr"
)

// keySeparator joins PK and SK into Badger's single flat keyspace. A NUL
// byte is used because it does not appear in the fixed PK/SK vocabulary
// used by this engine (STREAM#, SUB#, SEQ#, COUNTER, OFFSET#, COMPACT,
// KEY#). Caller-supplied identifiers are only checked to be non-empty, so
// a NUL byte inside one is not rejected.
const keySeparator = 0x00

// ErrNotFound is returned by Get when a row does not exist. Callers translate this into a domain-specific
// ledgererr.Error (StreamNotFound, SubscriptionNotFound, ...).
var ErrNotFound = fmt.Errorf("store: row not found")

// ErrAlreadyExists is returned by PutIfAbsent when a row already exists
// under the requested key.
var ErrAlreadyExists = fmt.Errorf("store: row already exists")

// Row is a single (PK, SK) addressed value as read back from the table.
type Row struct {
	PK    string
	SK    string
	Value []byte
}

func encodeKey(pk, sk string) []byte {
	buf := make([]byte, 0, len(pk)+len(sk)+1)
	buf = append(buf, []byte(pk)...)
	buf = append(buf, keySeparator)
	buf = append(buf, []byte(sk)...)
	return buf
}

func decodeKey(k []byte) (pk, sk string) {
	idx := bytes.IndexByte(k, keySeparator)
	if idx < 0 {
		return string(k), ""
	}
	return string(k[:idx]), string(k[idx+1:])
}

// Store is the engine's view of the backing table. Every method takes a
// context so callers can bound blocking I/O with a deadline; Badger
// itself does not support cancellation mid-transaction, so the context
// deadline is checked before the call is attempted and surfaced as a
// ledgererr.Database error on expiry.
type Store struct {
	db *badger.DB
}

// Open creates or opens a BadgerDB instance at path for use as the
// engine's backing table.
func Open(path string, syncWrites bool) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = syncWrites
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger at %q: %w", path, err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for components (value-log GC,
// diagnostics) that need it directly.
func (s *Store) DB() *badger.DB { return s.db }

// Close releases the underlying BadgerDB handle.
func (s *Store) Close() error { return s.db.Close() }

func checkCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Get reads a single row. Returns ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, pk, sk string) ([]byte, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, ledgererr.Database("get", err)
	}
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(encodeKey(pk, sk))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, ledgererr.Database("get", err)
	}
	return value, nil
}

// Put unconditionally writes a row, overwriting any existing value.
func (s *Store) Put(ctx context.Context, pk, sk string, value []byte) error {
	if err := checkCtx(ctx); err != nil {
		return ledgererr.Database("put", err)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(encodeKey(pk, sk), value)
	})
	if err != nil {
		return ledgererr.Database("put", err)
	}
	return nil
}

// PutIfAbsent writes a row only if no row currently exists at (pk, sk).
// Returns ErrAlreadyExists otherwise. The read and write happen inside a
// single Badger transaction, which is serializable, giving us the
// conditional-put primitive the abstract store contract requires.
func (s *Store) PutIfAbsent(ctx context.Context, pk, sk string, value []byte) error {
	if err := checkCtx(ctx); err != nil {
		return ledgererr.Database("put_if_absent", err)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(encodeKey(pk, sk))
		if err == nil {
			return ErrAlreadyExists
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(encodeKey(pk, sk), value)
	})
	if err == ErrAlreadyExists {
		return ErrAlreadyExists
	}
	if err != nil {
		return ledgererr.Database("put_if_absent", err)
	}
	return nil
}

// Increment performs an atomic read-modify-write on a row whose value is
// a big-endian uint64 counter, returning the counter's new value. A
// missing row is treated as implicit zero and created as part of the
// same transaction (see SPEC_FULL.md §9 on the counter-row
// partial-initialization open question), which is what lets the append
// path self-heal a stream whose COUNTER rows did not finish writing.
func (s *Store) Increment(ctx context.Context, pk, sk string) (uint64, error) {
	if err := checkCtx(ctx); err != nil {
		return 0, ledgererr.Database("increment", err)
	}
	var newValue uint64
	err := s.db.Update(func(txn *badger.Txn) error {
		key := encodeKey(pk, sk)
		var current uint64
		item, err := txn.Get(key)
		switch {
		case err == nil:
			if verr := item.Value(func(v []byte) error {
				if len(v) != 8 {
					return fmt.Errorf("counter row %s/%s has malformed value (%d bytes)", pk, sk, len(v))
				}
				current = binary.BigEndian.Uint64(v)
				return nil
			}); verr != nil {
				return verr
			}
		case err == badger.ErrKeyNotFound:
			current = 0
		default:
			return err
		}
		newValue = current + 1
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, newValue)
		return txn.Set(key, buf)
	})
	if err != nil {
		return 0, ledgererr.Database("increment", err)
	}
	return newValue, nil
}

// ReadCounter reads a counter row's current value without incrementing
// it, treating an absent row as zero.
func (s *Store) ReadCounter(ctx context.Context, pk, sk string) (uint64, error) {
	value, err := s.Get(ctx, pk, sk)
	if err == ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(value) != 8 {
		return 0, ledgererr.Internal(fmt.Sprintf("counter row %s/%s has malformed value", pk, sk), nil)
	}
	return binary.BigEndian.Uint64(value), nil
}

// CounterValue encodes a uint64 into the fixed-width form Increment and
// ReadCounter expect, for callers that need to seed a counter row
// directly (stream creation writing sequence=0).
func CounterValue(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// RangeAfter returns up to limit rows under pk whose SK is strictly
// greater than afterSK, in SK order. Passing an empty afterSK scans from
// the beginning of the pk's row range.
func (s *Store) RangeAfter(ctx context.Context, pk, afterSK string, limit int) ([]Row, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, ledgererr.Database("range_after", err)
	}
	var rows []Row
	prefix := append(encodeKey(pk, ""))
	startKey := encodeKey(pk, afterSK)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(startKey); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			if afterSK != "" && bytes.Compare(k, startKey) <= 0 {
				continue
			}
			_, sk := decodeKey(k)
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rows = append(rows, Row{PK: pk, SK: sk, Value: value})
			if len(rows) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, ledgererr.Database("range_after", err)
	}
	return rows, nil
}

// ScanPrefix returns every row whose PK begins with pkPrefix and whose SK
// equals skEqual (when skEqual is non-empty) or every row under that PK
// prefix (when skEqual is empty). Used by the stream registry's List and
// Delete and by the compactor's List.
func (s *Store) ScanPrefix(ctx context.Context, pkPrefix, skEqual string) ([]Row, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, ledgererr.Database("scan_prefix", err)
	}
	var rows []Row
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(pkPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			pk, sk := decodeKey(k)
			if skEqual != "" && sk != skEqual {
				continue
			}
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rows = append(rows, Row{PK: pk, SK: sk, Value: value})
		}
		return nil
	})
	if err != nil {
		return nil, ledgererr.Database("scan_prefix", err)
	}
	return rows, nil
}

// Delete removes a single row. Deleting a row that does not exist is not
// an error.
func (s *Store) Delete(ctx context.Context, pk, sk string) error {
	if err := checkCtx(ctx); err != nil {
		return ledgererr.Database("delete", err)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(encodeKey(pk, sk))
	})
	if err != nil {
		return ledgererr.Database("delete", err)
	}
	return nil
}

// DeletePK removes every row filed under the exact PK pk, paged at
// pageSize keys per transaction to bound individual transaction size on
// large cascades (stream deletion). The PK/separator boundary keeps this
// from matching a different PK that merely shares pk as a string prefix
// (e.g. streams "orders" and "orders1").
func (s *Store) DeletePK(ctx context.Context, pk string, pageSize int) error {
	return s.deleteByBytePrefix(ctx, encodeKey(pk, ""), pageSize)
}

func (s *Store) deleteByBytePrefix(ctx context.Context, prefix []byte, pageSize int) error {
	if pageSize <= 0 {
		pageSize = 500
	}
	for {
		if err := checkCtx(ctx); err != nil {
			return ledgererr.Database("delete_prefix", err)
		}
		var keys [][]byte
		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			defer it.Close()
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
				if len(keys) >= pageSize {
					break
				}
			}
			return nil
		})
		if err != nil {
			return ledgererr.Database("delete_prefix", err)
		}
		if len(keys) == 0 {
			return nil
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			for _, k := range keys {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return ledgererr.Database("delete_prefix", err)
		}
		if len(keys) < pageSize {
			return nil
		}
	}
}

// CompareAndPutSequence implements the compactor's monotonic guard as a
// single serializable transaction: it writes value under (pk, sk) only
// if no row currently exists there, or the existing row's sequence
// (first 8 bytes, big-endian) is strictly less than newSequence. This is
// the conditional write spec.md §9 asks for in place of a backend
// comparison primitive.
func (s *Store) CompareAndPutSequence(ctx context.Context, pk, sk string, newSequence uint64, value []byte) (applied bool, err error) {
	if err := checkCtx(ctx); err != nil {
		return false, ledgererr.Database("compare_and_put_sequence", err)
	}
	txnErr := s.db.Update(func(txn *badger.Txn) error {
		key := encodeKey(pk, sk)
		item, getErr := txn.Get(key)
		if getErr != nil && getErr != badger.ErrKeyNotFound {
			return getErr
		}
		if getErr == nil {
			var existingSeq uint64
			if verr := item.Value(func(v []byte) error {
				if len(v) < 8 {
					return fmt.Errorf("compacted row %s/%s missing sequence prefix", pk, sk)
				}
				existingSeq = binary.BigEndian.Uint64(v[:8])
				return nil
			}); verr != nil {
				return verr
			}
			if existingSeq >= newSequence {
				applied = false
				return nil
			}
		}
		applied = true
		return txn.Set(key, value)
	})
	if txnErr != nil {
		return false, ledgererr.Database("compare_and_put_sequence", txnErr)
	}
	return applied, nil
}
