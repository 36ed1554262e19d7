package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// BadgerStore implements Store on top of BadgerDB. Entry expiry is handled
// by badger's native TTL support.
type BadgerStore struct {
	db  *badger.DB
	log logrus.FieldLogger
}

// NewBadgerStore opens a BadgerDB at path. An empty path opens an in-memory
// database that is lost on close.
func NewBadgerStore(path string, logger logrus.FieldLogger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db at %q: %w", path, err)
	}
	logger.WithField("path", path).Info("Cache opened")

	return &BadgerStore{
		db:  db,
		log: logger.WithField("component", "cache"),
	}, nil
}

// Get implements Store.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("Cache read failed")
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return val, true, nil
}

// Set implements Store. A non-positive ttl stores the value without expiry.
func (s *BadgerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("Cache write failed")
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// RunGC reclaims value log space. It is scheduled periodically by main.
func (s *BadgerStore) RunGC() {
	err := s.db.RunValueLogGC(0.5)
	switch {
	case err == nil:
		s.log.Debug("Value log GC completed")
	case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrGCInMemoryMode):
		s.log.Debug("Value log GC: nothing to rewrite")
	default:
		s.log.WithError(err).Warn("Value log GC failed")
	}
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	s.log.Info("Closing cache...")
	return s.db.Close()
}

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
