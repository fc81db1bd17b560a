// Package persist stores best-effort session snapshots in Postgres so a
// restarted server can show finished rounds and let operators pick up a
// session's final scoreboard. The live game never reads from here on the
// hot path.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pewpew-tabletop/range-backend/internal/engine"
)

var ErrNotFound = errors.New("session snapshot not found")

// Snapshot is the persisted view of one session: the summary columns that
// an operator dashboard queries, plus the full engine state as a blob.
type Snapshot struct {
	SessionID  string    `json:"session_id" gorm:"primaryKey;type:varchar(64)"`
	ScenarioID string    `json:"scenario_id" gorm:"type:varchar(64);index"`
	Status     string    `json:"status" gorm:"type:varchar(16);not null"`
	Mode       string    `json:"mode" gorm:"type:varchar(16)"`
	RedScore   int       `json:"red_score"`
	BlueScore  int       `json:"blue_score"`
	LastSeq    int64     `json:"last_seq"`
	State      []byte    `json:"-" gorm:"type:jsonb"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Snapshot) TableName() string { return "session_snapshots" }

// FromState builds a Snapshot row from live engine state.
func FromState(s engine.State, lastSeq int64) (Snapshot, error) {
	blob, err := json.Marshal(s)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		SessionID:  s.SessionID,
		ScenarioID: s.ScenarioID,
		Status:     string(s.Status),
		Mode:       string(s.Mode),
		RedScore:   s.Score.Red,
		BlueScore:  s.Score.Blue,
		LastSeq:    lastSeq,
		State:      blob,
	}, nil
}

// DecodeState unpacks the stored engine state blob.
func (sn Snapshot) DecodeState() (engine.State, error) {
	var s engine.State
	if err := json.Unmarshal(sn.State, &s); err != nil {
		return engine.State{}, err
	}
	return s, nil
}

type Store interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	LoadSnapshot(ctx context.Context, sessionID string) (Snapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error)
	Close() error
}

// GormStore is the Postgres-backed Store.
type GormStore struct {
	db *gorm.DB
}

// Open connects, migrates the snapshot table and returns the store.
func Open(dsn string, logger *zap.Logger) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Snapshot{}); err != nil {
		return nil, err
	}
	logger.Info("snapshot table migrated")
	return &GormStore{db: db}, nil
}

func (g *GormStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	return g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			UpdateAll: true,
		}).
		Create(&snap).Error
}

func (g *GormStore) LoadSnapshot(ctx context.Context, sessionID string) (Snapshot, error) {
	var snap Snapshot
	err := g.db.WithContext(ctx).First(&snap, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (g *GormStore) ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	var snaps []Snapshot
	err := g.db.WithContext(ctx).
		Order("updated_at desc").
		Limit(limit).
		Find(&snaps).Error
	return snaps, err
}

func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NopStore is used when no database is configured. Saves succeed silently;
// loads always miss.
type NopStore struct{}

func (NopStore) SaveSnapshot(context.Context, Snapshot) error { return nil }

func (NopStore) LoadSnapshot(context.Context, string) (Snapshot, error) {
	return Snapshot{}, ErrNotFound
}

func (NopStore) ListSnapshots(context.Context, int) ([]Snapshot, error) { return nil, nil }

func (NopStore) Close() error { return nil }
