package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/NamanBalaji/mmsdl/internal/mms"
)

const (
	downloadsBucket = "mms_downloads"
	metadataBucket  = "metadata"
	schemaVersion   = 1
)

var (
	// ErrDownloadNotFound is returned when a download cannot be found
	ErrDownloadNotFound = errors.New("download not found")
	ErrNilDownload      = errors.New("cannot save nil download")
	ErrEmptyID          = errors.New("download ID cannot be empty")
)

// BboltRepository stores MMS download records in a bbolt file.
type BboltRepository struct {
	db *bbolt.DB
}

// NewBboltRepository creates a new bbolt repository
func NewBboltRepository(dbPath string) (*BboltRepository, error) {
	options := &bbolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bbolt.Open(dbPath, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &BboltRepository{
		db: db,
	}

	if err := repo.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

// initialize sets up buckets and schema
func (r *BboltRepository) initialize() error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(downloadsBucket))
		if err != nil {
			return fmt.Errorf("failed to create downloads bucket: %w", err)
		}

		metadata, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}

		if v := metadata.Get([]byte("schema_version")); v != nil {
			stored, err := strconv.Atoi(string(v))
			if err != nil || stored > schemaVersion {
				return fmt.Errorf("unsupported schema version %q", v)
			}
		}

		err = metadata.Put([]byte("schema_version"), []byte(strconv.Itoa(schemaVersion)))
		if err != nil {
			return fmt.Errorf("failed to store schema version: %w", err)
		}

		return nil
	})
}

// Save persists a download record, replacing any earlier version.
func (r *BboltRepository) Save(download *mms.Download) error {
	if download == nil {
		return ErrNilDownload
	}

	data, err := json.Marshal(download)
	if err != nil {
		return fmt.Errorf("failed to marshal download: %w", err)
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(downloadsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", downloadsBucket)
		}

		if err := bucket.Put([]byte(download.GetID().String()), data); err != nil {
			return fmt.Errorf("failed to save download: %w", err)
		}

		return nil
	})
}

// Find retrieves a download by ID
func (r *BboltRepository) Find(id uuid.UUID) (*mms.Download, error) {
	if id == uuid.Nil {
		return nil, ErrEmptyID
	}

	var data []byte
	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(downloadsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", downloadsBucket)
		}

		// bbolt memory is only valid inside the transaction
		v := bucket.Get([]byte(id.String()))
		if v == nil {
			return ErrDownloadNotFound
		}

		data = append([]byte(nil), v...)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return decode(data)
}

// FindAll returns every stored download, oldest first.
func (r *BboltRepository) FindAll() ([]*mms.Download, error) {
	var downloads []*mms.Download

	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(downloadsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", downloadsBucket)
		}

		return bucket.ForEach(func(_, v []byte) error {
			download, err := decode(v)
			if err != nil {
				return err
			}

			downloads = append(downloads, download)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(downloads, func(a, b *mms.Download) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return downloads, nil
}

// Delete removes a download
func (r *BboltRepository) Delete(id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrEmptyID
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(downloadsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", downloadsBucket)
		}

		if bucket.Get([]byte(id.String())) == nil {
			return ErrDownloadNotFound
		}

		return bucket.Delete([]byte(id.String()))
	})
}

// Close closes the database
func (r *BboltRepository) Close() error {
	return r.db.Close()
}

func decode(data []byte) (*mms.Download, error) {
	download := &mms.Download{}
	if err := json.Unmarshal(data, download); err != nil {
		return nil, fmt.Errorf("failed to unmarshal download: %w", err)
	}

	return download, nil
}
