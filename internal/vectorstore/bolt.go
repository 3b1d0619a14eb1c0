package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"

	"github.com/agentoven/ragjenkins/pkg/models"
)

// BoltStore persists vectors in a single bbolt file, one bucket per
// collection. Search is brute force over the bucket, like MemoryStore.
type BoltStore struct {
	db   *bbolt.DB
	path string
}

// NewBoltStore opens (or creates) the database file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("bolt store: create %s: %w", dir, err)
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt store: open %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("Bolt vector store initialized")
	return &BoltStore{db: db, path: path}, nil
}

func (s *BoltStore) Kind() string { return "bolt" }

// Upsert writes all docs in one transaction.
func (s *BoltStore) Upsert(_ context.Context, collection string, docs []models.VectorDoc) error {
	if len(docs) == 0 {
		return nil
	}
	now := time.Now()
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName(collection))
		if err != nil {
			return fmt.Errorf("bolt store: bucket %s: %w", collection, err)
		}
		for _, d := range docs {
			if d.ID == "" {
				return fmt.Errorf("bolt store: document without id")
			}
			d.Collection = collection
			if d.CreatedAt.IsZero() {
				d.CreatedAt = now
			}
			data, err := json.Marshal(d)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(d.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) Search(_ context.Context, collection string, vector []float64, topK int) ([]models.SearchResult, error) {
	var candidates []models.SearchResult
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var doc models.VectorDoc
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("bolt store: decode: %w", err)
			}
			if len(doc.Vector) != len(vector) {
				return nil
			}
			candidates = append(candidates, models.SearchResult{Doc: doc, Score: cosineSimilarity(vector, doc.Vector)})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return topResults(candidates, topK), nil
}

func (s *BoltStore) Drop(_ context.Context, collection string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket(bucketName(collection))
		if err == bbolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
}

func (s *BoltStore) Count(_ context.Context, collection string) (int, error) {
	count := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketName(collection)); b != nil {
			count = b.Stats().KeyN
		}
		return nil
	})
	return count, err
}

func (s *BoltStore) HealthCheck(_ context.Context) error {
	return s.db.View(func(*bbolt.Tx) error { return nil })
}

// Close releases the database file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func bucketName(collection string) []byte {
	return []byte("collection:" + collection)
}
