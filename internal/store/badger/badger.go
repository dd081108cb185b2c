// Package badger stores preferences in an embedded BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const prefix = "pref/"

type DB struct {
	db *badger.DB
}

// badgerLogger adapts slog to BadgerDB's Logger interface.
type badgerLogger struct{ l *slog.Logger }

func (b badgerLogger) Errorf(f string, a ...interface{}) {
	b.l.Error(strings.TrimSpace(fmt.Sprintf(f, a...)))
}
func (b badgerLogger) Warningf(f string, a ...interface{}) {
	b.l.Warn(strings.TrimSpace(fmt.Sprintf(f, a...)))
}
func (b badgerLogger) Infof(f string, a ...interface{}) {
	b.l.Debug(strings.TrimSpace(fmt.Sprintf(f, a...)))
}
func (b badgerLogger) Debugf(f string, a ...interface{}) {
	b.l.Debug(strings.TrimSpace(fmt.Sprintf(f, a...)))
}

// New opens the database in dir. ":memory:" opens an in-memory instance.
func New(dir string) (*DB, error) {
	var opts badger.Options
	if dir == ":memory:" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if dir == "" {
			return nil, errors.New("empty badger path")
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create badger dir: %w", err)
		}
		opts = badger.DefaultOptions(dir).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(badgerLogger{l: slog.Default().With("component", "badger")})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) EnsureSchema(context.Context) error { return nil }

func (d *DB) Get(_ context.Context, key string) (string, bool, error) {
	var out string
	err := d.db.View(func(txn *badger.Txn) error {
		it, err := txn.Get([]byte(prefix + key))
		if err != nil {
			return err
		}
		v, err := it.ValueCopy(nil)
		out = string(v)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return out, true, nil
}

func (d *DB) Set(_ context.Context, key, value string) error {
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefix+key), []byte(value))
	})
}

func (d *DB) SetMany(_ context.Context, kv map[string]string) error {
	return d.db.Update(func(txn *badger.Txn) error {
		for k, v := range kv {
			if err := txn.Set([]byte(prefix+k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *DB) Delete(_ context.Context, key string) error {
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefix + key))
	})
}

func (d *DB) List(context.Context) (map[string]string, error) {
	out := map[string]string{}
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[strings.TrimPrefix(string(item.Key()), prefix)] = string(v)
		}
		return nil
	})
	return out, err
}

func (d *DB) Clear(context.Context) error {
	return d.db.DropPrefix([]byte(prefix))
}

func (d *DB) Close() error { return d.db.Close() }
