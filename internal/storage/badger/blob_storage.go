package badger

import (
	"context"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
)

const blobKeyPrefix = "blob:"

// BlobStorage stores raw uploaded file bytes using the underlying Badger
// key space directly - blobs have no queryable fields, so badgerhold's
// typed store adds nothing here.
type BlobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBlobStorage creates a new BlobStorage instance
func NewBlobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.BlobStorage {
	return &BlobStorage{db: db, logger: logger}
}

func (s *BlobStorage) PutBlob(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return fmt.Errorf("blob key is required")
	}

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(blobKeyPrefix+key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store blob: %w", err)
	}

	s.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("Blob stored")
	return nil
}

func (s *BlobStorage) GetBlob(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(blobKeyPrefix + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if err == badgerdb.ErrKeyNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}
	return data, nil
}

func (s *BlobStorage) DeleteBlob(ctx context.Context, key string) error {
	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(blobKeyPrefix + key))
	})
	if err != nil && err != badgerdb.ErrKeyNotFound {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}
