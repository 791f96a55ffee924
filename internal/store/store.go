package store

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gmsas95/docsheet/internal/config"
)

// Store provides unified access to SQLite and BadgerDB
type Store struct {
	db     *gorm.DB
	badger *badger.DB
	config *config.StorageConfig
}

// New creates a new Store instance
func New(cfg *config.Config) (*Store, error) {
	sqlitePath := cfg.Storage.SQLitePath
	if sqlitePath == "" {
		sqlitePath = filepath.Join(cfg.Storage.DataDir, "docsheet.db")
	}

	// Open SQLite with optimizations
	sqliteDB, err := sql.Open("sqlite", sqlitePath+"?_journal=WAL&_synchronous=NORMAL&_busy_timeout=5000&_cache_size=-64000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqliteDB.SetMaxOpenConns(10)
	sqliteDB.SetMaxIdleConns(5)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqliteDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if err := db.AutoMigrate(
		&User{},
		&Document{},
		&LoginEvent{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	badgerPath := cfg.Storage.BadgerPath
	if badgerPath == "" {
		badgerPath = filepath.Join(cfg.Storage.DataDir, "badger")
	}

	badgerOpts := badger.DefaultOptions(badgerPath).
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(16 << 20).
		WithMemTableSize(16 << 20)

	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Store{
		db:     db,
		badger: badgerDB,
		config: &cfg.Storage,
	}, nil
}

// Close closes all database connections
func (s *Store) Close() error {
	return s.badger.Close()
}

// DB returns the GORM database instance
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Badger returns the BadgerDB instance
func (s *Store) Badger() *badger.DB {
	return s.badger
}

// ==================== User Methods ====================

func (s *Store) CreateUser(u *User) error {
	return s.db.Create(u).Error
}

func (s *Store) GetUserByEmail(email string) (*User, error) {
	var u User
	if err := s.db.First(&u, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByUsername(username string) (*User, error) {
	var u User
	if err := s.db.First(&u, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers() ([]User, error) {
	var users []User
	err := s.db.Order("created_at ASC").Find(&users).Error
	return users, err
}

func (s *Store) UpdateUser(u *User) error {
	return s.db.Save(u).Error
}

func (s *Store) DeleteUser(email string) error {
	return s.db.Delete(&User{}, "email = ?", email).Error
}

func (s *Store) CountUsers() (int64, error) {
	var count int64
	err := s.db.Model(&User{}).Count(&count).Error
	return count, err
}

// ==================== Document Methods ====================

func (s *Store) CreateDocument(d *Document) error {
	return s.db.Create(d).Error
}

func (s *Store) GetDocument(id string) (*Document, error) {
	var d Document
	if err := s.db.First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) UpdateDocument(d *Document) error {
	return s.db.Save(d).Error
}

func (s *Store) ListDocuments(ownerEmail string, limit, offset int) ([]Document, error) {
	var docs []Document
	q := s.db.Order("created_at DESC").Limit(limit).Offset(offset)
	if ownerEmail != "" {
		q = q.Where("owner_email = ?", ownerEmail)
	}
	err := q.Find(&docs).Error
	return docs, err
}

// ListDocumentsForExport returns reviewable documents of one type,
// newest first. Filtering in the query keeps the limit honest.
func (s *Store) ListDocumentsForExport(ownerEmail, docType string, limit int) ([]Document, error) {
	var docs []Document
	q := s.db.Order("created_at DESC").Limit(limit).
		Where("type = ?", docType).
		Where("status IN ?", []string{StatusCompleted, StatusSaved})
	if ownerEmail != "" {
		q = q.Where("owner_email = ?", ownerEmail)
	}
	err := q.Find(&docs).Error
	return docs, err
}

func (s *Store) DeleteDocument(id string) error {
	return s.db.Delete(&Document{}, "id = ?", id).Error
}

// IsDuplicateID reports whether err is a primary key collision on
// insert. The pure Go driver surfaces it as a plain constraint message.
func IsDuplicateID(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint")
}

// ==================== Login Audit Methods ====================

func (s *Store) CreateLoginEvent(e *LoginEvent) error {
	return s.db.Create(e).Error
}

func (s *Store) ListLoginEvents(email string, limit int) ([]LoginEvent, error) {
	var events []LoginEvent
	q := s.db.Order("created_at DESC").Limit(limit)
	if email != "" {
		q = q.Where("email = ?", email)
	}
	err := q.Find(&events).Error
	return events, err
}

// ==================== Blob Methods (BadgerDB) ====================

// SetBlob caches raw image bytes so the review screen can serve them
// after the on-disk copy is cleaned up.
func (s *Store) SetBlob(id string, data []byte, ttl time.Duration) error {
	return s.badger.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte("blob:"+id), data)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// GetBlob retrieves cached image bytes
func (s *Store) GetBlob(id string) ([]byte, error) {
	var val []byte
	err := s.badger.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("blob:" + id))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = append([]byte{}, v...)
			return nil
		})
	})
	return val, err
}

// DeleteBlob removes cached image bytes
func (s *Store) DeleteBlob(id string) error {
	return s.badger.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte("blob:" + id))
	})
}

// IsBlobMissing reports whether err means the blob was never cached or expired
func IsBlobMissing(err error) bool {
	return err == badger.ErrKeyNotFound
}

// ==================== Queue Methods (BadgerDB) ====================

// Enqueue adds a job to the durable queue. Jobs survive restarts; the
// pipeline drains the queue on startup before watching for new work.
func (s *Store) Enqueue(queue string, job []byte) error {
	return s.badger.Update(func(txn *badger.Txn) error {
		// Use timestamp as key for FIFO
		key := fmt.Sprintf("queue:%s:%d", queue, time.Now().UnixNano())
		return txn.Set([]byte(key), job)
	})
}

// ErrQueueEmpty is returned by Dequeue when no jobs are pending
var ErrQueueEmpty = fmt.Errorf("queue empty")

// Dequeue retrieves and removes the oldest job from the queue
func (s *Store) Dequeue(queue string) ([]byte, error) {
	var job []byte
	prefix := []byte("queue:" + queue + ":")

	err := s.badger.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(prefix)
		if !it.ValidForPrefix(prefix) {
			return ErrQueueEmpty
		}

		item := it.Item()
		key := item.Key()

		if err := item.Value(func(v []byte) error {
			job = append([]byte{}, v...)
			return nil
		}); err != nil {
			return err
		}

		return txn.Delete(key)
	})

	return job, err
}

// QueueLen counts pending jobs, used to seed the depth gauge at startup
func (s *Store) QueueLen(queue string) (int, error) {
	n := 0
	prefix := []byte("queue:" + queue + ":")

	err := s.badger.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
