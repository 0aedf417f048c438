package db

import (
	"bytes"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"placestore/src/types"
)

// BadgerKV implements types.KV on an embedded badger database.
type BadgerKV struct {
	db *badger.DB
}

// badger wants Warningf, zap calls it Warnf.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}

func OpenBadger(path string, inMemory bool, log *zap.Logger) (*BadgerKV, error) {
	opt := badger.DefaultOptions(path)
	if inMemory {
		opt = badger.DefaultOptions("").WithInMemory(true)
	} else if path == "" {
		return nil, errors.New("database path is not set")
	}
	opt = opt.WithLogger(badgerLogger{log.Named("badger").Sugar()}).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opt)
	if err != nil {
		return nil, errors.Wrapf(err, "opening badger at %q", path)
	}
	return &BadgerKV{db: db}, nil
}

func (kv *BadgerKV) Get(key []byte) ([]byte, error) {
	var val []byte
	err := kv.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, types.ErrKeyNotFound
	}
	return val, err
}

func (kv *BadgerKV) Put(key, value []byte) error {
	return kv.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (kv *BadgerKV) Delete(key []byte) error {
	return kv.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Batch commits all ops in a single transaction.
func (kv *BadgerKV) Batch(ops []types.Op) error {
	return kv.db.Update(func(txn *badger.Txn) error {
		for _, op := range ops {
			var err error
			switch op.Type {
			case types.OpPut:
				err = txn.Set(op.Key, op.Value)
			case types.OpDelete:
				err = txn.Delete(op.Key)
			default:
				err = errors.Errorf("unknown op type %d", op.Type)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (kv *BadgerKV) Iterate(lower, upper []byte, fn func(key, value []byte) error) error {
	return kv.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(lower); it.Valid(); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)
			if upper != nil && bytes.Compare(k, upper) >= 0 {
				break
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (kv *BadgerKV) IsClosed() bool {
	return kv.db.IsClosed()
}

func (kv *BadgerKV) Close() error {
	return kv.db.Close()
}

// Destroy irreversibly removes the database directory at path.
func Destroy(path string) error {
	if path == "" {
		return errors.New("database path is not set")
	}
	return errors.Wrapf(os.RemoveAll(path), "removing %q", path)
}

// prefixEnd returns the smallest key greater than every key with the given prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
