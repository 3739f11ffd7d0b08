package checkpoints

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v3"
	"github.com/goccy/go-json"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/avi3tal/graphflow/pkg/types"
)

const keyPrefix = "checkpoint/"

// BadgerStore persists checkpoints in an embedded badger database.
// Keys have the form checkpoint/<graph id>/<execution id>.
type BadgerStore struct {
	db     *badger.DB
	owned  bool
	logger hclog.Logger
}

var _ types.CheckpointStore = (*BadgerStore)(nil)

// BadgerOption configures a BadgerStore
type BadgerOption func(*badgerConfig)

type badgerConfig struct {
	logger      hclog.Logger
	syncWrites  bool
	compression bool
}

// WithBadgerLogger routes badger's own logging to logger
func WithBadgerLogger(logger hclog.Logger) BadgerOption {
	return func(c *badgerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSyncWrites makes every write durable before Save returns
func WithSyncWrites(sync bool) BadgerOption {
	return func(c *badgerConfig) {
		c.syncWrites = sync
	}
}

// NewBadgerStore opens a badger database at path. An empty path opens an in-memory database.
func NewBadgerStore(path string, opts ...BadgerOption) (*BadgerStore, error) {
	cfg := badgerConfig{logger: hclog.NewNullLogger()}
	for _, o := range opts {
		o(&cfg)
	}
	logger := cfg.logger.Named("checkpoints")

	badgerOpts := badger.DefaultOptions(path)
	if path == "" {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	badgerOpts = badgerOpts.WithSyncWrites(cfg.syncWrites)
	badgerOpts.Logger = &badgerLogger{logger: logger.Named("badger")}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, errors.Wrapf(err, "open checkpoint database %q", path)
	}
	return &BadgerStore{db: db, owned: true, logger: logger}, nil
}

// NewBadgerStoreFromDB wraps an already open database. Close leaves it open.
func NewBadgerStoreFromDB(db *badger.DB, logger hclog.Logger) *BadgerStore {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &BadgerStore{db: db, logger: logger.Named("checkpoints")}
}

func (s *BadgerStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *BadgerStore) Save(_ context.Context, checkpoint types.Checkpoint) error {
	value, err := json.Marshal(checkpoint)
	if err != nil {
		return errors.Wrap(err, "marshal checkpoint")
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(storageKey(checkpoint.Key), value)
	})
	if err != nil {
		return errors.Wrapf(err, "store checkpoint %v", checkpoint.Key)
	}
	s.logger.Trace("checkpoint saved", "graph_id", checkpoint.Key.GraphID, "execution_id", checkpoint.Key.ExecutionID, "steps", checkpoint.Meta.Steps)
	return nil
}

func (s *BadgerStore) Load(_ context.Context, key types.CheckpointKey) (*types.Checkpoint, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storageKey(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrCheckpointNotFound, key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read checkpoint %v", key)
	}

	var cp types.Checkpoint
	if err := json.Unmarshal(value, &cp); err != nil {
		return nil, errors.Wrapf(err, "unmarshal checkpoint %v", key)
	}
	if cp.Context.NodeAttempts == nil {
		cp.Context.NodeAttempts = make(map[string]int)
	}
	return &cp, nil
}

func (s *BadgerStore) Delete(_ context.Context, key types.CheckpointKey) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(storageKey(key))
	})
	return errors.Wrapf(err, "delete checkpoint %v", key)
}

func (s *BadgerStore) List(_ context.Context, graphID string) ([]types.CheckpointKey, error) {
	prefix := keyPrefix + graphID + "/"
	var keys []types.CheckpointKey

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			k := string(it.Item().KeyCopy(nil))
			executionID := strings.TrimPrefix(k, prefix)
			if executionID == "" || strings.Contains(executionID, "/") {
				continue
			}
			keys = append(keys, types.CheckpointKey{GraphID: graphID, ExecutionID: executionID})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list checkpoints for graph %q", graphID)
	}
	return keys, nil
}

func storageKey(key types.CheckpointKey) []byte {
	return []byte(keyPrefix + key.GraphID + "/" + key.ExecutionID)
}

// badgerLogger adapts hclog to badger.Logger
type badgerLogger struct {
	logger hclog.Logger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Trace(strings.TrimSpace(fmt.Sprintf(f, v...)))
}
