package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/clubstack/memberhub/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// recordRow is the single-table representation of a record: JSON payload plus
// a version counter driving conflict detection. Deleted records are kept as
// tombstones so their version history survives, which makes delete-then-
// recreate races detectable.
type recordRow struct {
	Key       string `gorm:"column:record_key;primaryKey;size:255"`
	Data      string `gorm:"type:text"`
	Version   int64  `gorm:"not null;default:0"`
	Deleted   bool   `gorm:"not null;default:false"`
	UpdatedAt time.Time
}

func (recordRow) TableName() string { return "records" }

// SQLStore is a Store backed by a relational database through gorm. The
// driver is selected by configuration: sqlite for single-node deployments,
// mysql or postgres otherwise.
type SQLStore struct {
	db          *gorm.DB
	maxAttempts int
}

// OpenSQL connects per the database configuration and migrates the records table.
func OpenSQL(cfg *config.DatabaseConfig) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate records table: %w", err)
	}
	return &SQLStore{db: db, maxAttempts: DefaultMaxAttempts}, nil
}

func (s *SQLStore) RunTransaction(ctx context.Context, fn func(tx Txn) error) error {
	return runWithRetry(ctx, s.maxAttempts, func() error {
		tx := &sqlTxn{
			store:  s,
			ctx:    ctx,
			reads:  make(map[string]int64),
			writes: make(map[string]pendingWrite),
		}
		if err := fn(tx); err != nil {
			return err
		}
		return tx.commit()
	})
}

func (s *SQLStore) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	var row recordRow
	err := s.db.WithContext(ctx).Where("record_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if row.Deleted {
		return false, nil
	}
	if err := json.Unmarshal([]byte(row.Data), dst); err != nil {
		return false, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *SQLStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	q := s.db.WithContext(ctx).Model(&recordRow{}).Where("deleted = ?", false)
	if prefix != "" {
		// range scan instead of LIKE: record keys may contain LIKE wildcards
		q = q.Where("record_key >= ?", prefix)
		if end, ok := prefixEnd(prefix); ok {
			q = q.Where("record_key < ?", end)
		}
	}
	if err := q.Order("record_key").Pluck("record_key", &keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// prefixEnd returns the smallest key greater than every key with the prefix.
func prefixEnd(prefix string) (string, bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}

type sqlTxn struct {
	store  *SQLStore
	ctx    context.Context
	reads  map[string]int64 // key -> version observed (0 = never written)
	writes map[string]pendingWrite
}

func (t *sqlTxn) read(key string) ([]byte, bool, error) {
	var row recordRow
	err := t.store.db.WithContext(t.ctx).Where("record_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if _, seen := t.reads[key]; !seen {
			t.reads[key] = 0
		}
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = row.Version
	}
	if row.Deleted {
		return nil, false, nil
	}
	return []byte(row.Data), true, nil
}

func (t *sqlTxn) Get(key string, dst interface{}) (bool, error) {
	if w, ok := t.writes[key]; ok {
		if w.delete {
			return false, nil
		}
		if err := json.Unmarshal(w.data, dst); err != nil {
			return false, fmt.Errorf("store: decode %s: %w", key, err)
		}
		return true, nil
	}
	data, ok, err := t.read(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return true, nil
}

func (t *sqlTxn) Set(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	t.writes[key] = pendingWrite{data: data}
	return nil
}

func (t *sqlTxn) Update(key string, fields map[string]interface{}) error {
	var current map[string]interface{}
	ok, err := t.Get(key, &current)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAbsent, key)
	}
	for k, v := range fields {
		current[k] = v
	}
	return t.Set(key, current)
}

func (t *sqlTxn) Delete(key string) {
	if _, seen := t.reads[key]; !seen {
		_, _, _ = t.read(key)
	}
	t.writes[key] = pendingWrite{delete: true}
}

// commit re-checks every read key's version and applies buffered writes in a
// single serializable database transaction. A version moved since the read, a
// lost version-guarded update, or a duplicate insert all surface as
// ErrConflict, which triggers a full re-run of the transaction callback.
func (t *sqlTxn) commit() error {
	return t.store.db.WithContext(t.ctx).Transaction(func(dbtx *gorm.DB) error {
		for key, seen := range t.reads {
			var row recordRow
			err := dbtx.Where("record_key = ?", key).First(&row).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				if seen != 0 {
					return ErrConflict
				}
			case err != nil:
				return err
			case row.Version != seen:
				return ErrConflict
			}
		}
		now := time.Now().UTC()
		for key, w := range t.writes {
			expected, wasRead := t.reads[key]
			if !wasRead {
				var row recordRow
				err := dbtx.Where("record_key = ?", key).First(&row).Error
				switch {
				case errors.Is(err, gorm.ErrRecordNotFound):
					expected = 0
				case err != nil:
					return err
				default:
					expected = row.Version
				}
			}
			if expected == 0 {
				row := recordRow{Key: key, Data: string(w.data), Version: 1, Deleted: w.delete, UpdatedAt: now}
				if err := dbtx.Create(&row).Error; err != nil {
					if errors.Is(err, gorm.ErrDuplicatedKey) {
						return ErrConflict
					}
					return err
				}
				continue
			}
			res := dbtx.Model(&recordRow{}).
				Where("record_key = ? AND version = ?", key, expected).
				Updates(map[string]interface{}{
					"data":       string(w.data),
					"deleted":    w.delete,
					"version":    expected + 1,
					"updated_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrConflict
			}
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
}
