package persistence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/neogan74/bakery/internal/logger"
)

const docPrefix = "audit:"

// BadgerEngine implements Engine using BadgerDB
type BadgerEngine struct {
	db   *badger.DB
	log  logger.Logger
	stop chan struct{}
	once sync.Once
}

// NewBadgerEngine opens (or creates) a BadgerDB store under dataDir
func NewBadgerEngine(dataDir string, syncWrites bool, log logger.Logger) (*BadgerEngine, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	opts := badger.DefaultOptions(dataDir)
	opts.SyncWrites = syncWrites
	opts.Logger = nil

	// Audit documents are small and written once
	opts.ValueLogFileSize = 64 << 20
	opts.MemTableSize = 32 << 20
	opts.NumMemtables = 3
	opts.Compression = options.Snappy

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	engine := &BadgerEngine{
		db:   db,
		log:  log,
		stop: make(chan struct{}),
	}

	go engine.runGarbageCollection(5 * time.Minute)

	log.Info("BadgerDB audit store initialized",
		logger.String("data_dir", dataDir),
		logger.Bool("sync_writes", syncWrites))

	return engine, nil
}

func (b *BadgerEngine) runGarbageCollection(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				b.log.Warn("BadgerDB garbage collection failed", logger.Error(err))
			}
		}
	}
}

func (b *BadgerEngine) Append(ctx context.Context, key string, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullKey := []byte(docPrefix + key)
	err := b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(fullKey)
		switch {
		case err == nil:
			return ErrDocumentExists
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(fullKey, doc)
	})
	return b.mapErr(err)
}

func (b *BadgerEngine) Scan(ctx context.Context, fn ScanFunc) error {
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(docPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			key := string(item.Key()[len(prefix):])
			if err := item.Value(func(val []byte) error {
				return fn(key, val)
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return b.mapErr(err)
}

func (b *BadgerEngine) Count(ctx context.Context) (int, error) {
	count := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(docPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, b.mapErr(err)
}

func (b *BadgerEngine) Ping(context.Context) error {
	if b.db.IsClosed() {
		return ErrClosed
	}
	return nil
}

func (b *BadgerEngine) Close() error {
	var err error
	b.once.Do(func() {
		close(b.stop)
		err = b.db.Close()
	})
	return err
}

func (b *BadgerEngine) mapErr(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return err
}
