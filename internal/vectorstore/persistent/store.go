package persistent

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"

	"jansahay/internal/domain"
)

// ErrMissingVector is returned by Load when a document has no stored vector.
var ErrMissingVector = errors.New("vector not in persistent index")

// Namespace scopes stored vectors. Family is the embedder identity; Version
// changes whenever stored vectors of the family become invalid.
type Namespace struct {
	Family  string
	Version string
}

func (n Namespace) prefix() []byte {
	return []byte("vec/" + n.Family + "/" + n.Version + "/")
}

func (n Namespace) key(docID string) []byte {
	return append(n.prefix(), docID...)
}

func versionKey(family string) []byte {
	return []byte("ver/" + family)
}

// EmbedFunc produces the vector for one document text.
type EmbedFunc func(ctx context.Context, text string) ([]float64, error)

// Store keeps document vectors in badger across runs.
type Store struct {
	db     *badger.DB
	logger *zap.Logger
}

type badgerLogger struct {
	l *zap.SugaredLogger
}

func (b badgerLogger) Errorf(msg string, args ...any)   { b.l.Errorf(msg, args...) }
func (b badgerLogger) Warningf(msg string, args ...any) { b.l.Warnf(msg, args...) }
func (b badgerLogger) Infof(msg string, args ...any)    { b.l.Debugf(msg, args...) }
func (b badgerLogger) Debugf(msg string, args ...any)   { b.l.Debugf(msg, args...) }

// Open opens (creating if needed) the store at path. An empty path opens an in-memory store.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, err
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = badgerLogger{l: logger.Named("badger").Sugar()}
	opts.Compression = options.None
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open persistent index: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Sync ensures every doc has a vector under ns, embedding only the missing ones.
// Vectors stored under an older version of the same family are dropped first.
// It returns the number of documents embedded.
func (s *Store) Sync(ctx context.Context, ns Namespace, docs []domain.Document, embed EmbedFunc) (int, error) {
	if err := s.switchVersion(ns); err != nil {
		return 0, err
	}
	var missing []domain.Document
	err := s.db.View(func(txn *badger.Txn) error {
		seen := make(map[string]struct{}, len(docs))
		for _, d := range docs {
			if _, dup := seen[d.ID]; dup {
				continue
			}
			seen[d.ID] = struct{}{}
			_, err := txn.Get(ns.key(d.ID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				missing = append(missing, d)
				continue
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(missing) == 0 {
		return 0, nil
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, d := range missing {
		vec, err := embed(ctx, d.Text)
		if err != nil {
			return 0, err
		}
		if err := wb.Set(ns.key(d.ID), encode(vec)); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	s.logger.Debug("persistent index synced", zap.String("family", ns.Family), zap.Int("embedded", len(missing)))
	return len(missing), nil
}

// Load returns the stored vectors for docs, in the same order.
func (s *Store) Load(ns Namespace, docs []domain.Document) ([][]float64, error) {
	out := make([][]float64, len(docs))
	err := s.db.View(func(txn *badger.Txn) error {
		for i, d := range docs {
			item, err := txn.Get(ns.key(d.ID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s (%s)", ErrMissingVector, d.SchemeName, d.ID)
			}
			if err != nil {
				return err
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			vec, err := decode(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", d.ID, err)
			}
			out[i] = vec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) switchVersion(ns Namespace) error {
	var current string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(versionKey(ns.Family))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		current = string(v)
		return err
	})
	if err != nil || current == ns.Version {
		return err
	}
	if current != "" {
		old := Namespace{Family: ns.Family, Version: current}
		if err := s.db.DropPrefix(old.prefix()); err != nil {
			return fmt.Errorf("drop stale vectors: %w", err)
		}
		s.logger.Info("dropped stale persistent vectors", zap.String("family", ns.Family), zap.String("version", current))
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(versionKey(ns.Family), []byte(ns.Version))
	})
}

func encode(vec []float64) []byte {
	buf := make([]byte, 8*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decode(raw []byte) ([]float64, error) {
	if len(raw)%8 != 0 {
		return nil, errors.New("corrupt vector encoding")
	}
	vec := make([]float64, len(raw)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return vec, nil
}
