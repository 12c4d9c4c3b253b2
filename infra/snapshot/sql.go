// Package snapshot implements exchange.SnapshotStore over SQL databases,
// Redis and process memory.
package snapshot

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/amirasaad/unitconv/pkg/exchange"
	"github.com/amirasaad/unitconv/pkg/units"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// rateRow is one row of the snapshot table.
type rateRow struct {
	Currency   string    `gorm:"primaryKey;size:3"`
	Rate       float64   `gorm:"not null"`
	LastUpdate time.Time `gorm:"not null"`
}

func (rateRow) TableName() string { return "exchange_rates" }

// SQLStore keeps the snapshot in an exchange_rates table, one row per
// currency.
type SQLStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) a sqlite database file.
func OpenSQLite(path, appEnv string) (*gorm.DB, error) {
	if path == "" {
		return nil, errors.New("SNAPSHOT_SQLITE_PATH is not set")
	}
	return gorm.Open(sqlite.Open(path), gormConfig(appEnv))
}

// OpenPostgres opens a postgres connection pool.
func OpenPostgres(dsn, appEnv string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("SNAPSHOT_DSN is not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), gormConfig(appEnv))
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}

func gormConfig(appEnv string) *gorm.Config {
	logMode := logger.Silent
	if appEnv == "development" {
		logMode = logger.Warn
	}
	return &gorm.Config{
		Logger:                 logger.Default.LogMode(logMode),
		SkipDefaultTransaction: true,
	}
}

// NewSQLStore wraps an open database. Call Migrate before first use.
func NewSQLStore(db *gorm.DB, log *slog.Logger) *SQLStore {
	if log == nil {
		log = slog.Default()
	}
	return &SQLStore{db: db, logger: log.With(slog.String("store", "sql"))}
}

// Migrate creates the snapshot table if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&rateRow{})
}

// Save replaces every row with snap in one transaction.
func (s *SQLStore) Save(ctx context.Context, snap exchange.Snapshot) error {
	rows := toRows(snap)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&rateRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("save rate snapshot: %w", err)
	}
	s.logger.Debug("Rate snapshot saved", "count", len(rows))
	return nil
}

// Load reads every row back. The snapshot timestamp is the newest row's.
func (s *SQLStore) Load(ctx context.Context) (*exchange.Snapshot, error) {
	var rows []rateRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load rate snapshot: %w", err)
	}
	return fromRows(rows, s.logger), nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRows(snap exchange.Snapshot) []rateRow {
	rows := make([]rateRow, 0, len(snap.Rates))
	for cur, rate := range snap.Rates {
		rows = append(rows, rateRow{Currency: cur.Code(), Rate: rate, LastUpdate: snap.LastRefreshed.UTC()})
	}
	slices.SortFunc(rows, func(a, b rateRow) int { return cmp.Compare(a.Currency, b.Currency) })
	return rows
}

func fromRows(rows []rateRow, log *slog.Logger) *exchange.Snapshot {
	if len(rows) == 0 {
		return nil
	}
	snap := &exchange.Snapshot{Rates: make(map[units.Currency]float64, len(rows))}
	for _, row := range rows {
		cur, ok := units.ParseCurrency(row.Currency)
		if !ok {
			log.Warn("Ignoring snapshot row for unknown currency", "currency", row.Currency)
			continue
		}
		snap.Rates[cur] = row.Rate
		if row.LastUpdate.After(snap.LastRefreshed) {
			snap.LastRefreshed = row.LastUpdate
		}
	}
	if len(snap.Rates) == 0 {
		return nil
	}
	return snap
}

var _ exchange.SnapshotStore = (*SQLStore)(nil)
