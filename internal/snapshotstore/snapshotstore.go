// Package snapshotstore persists state.Snapshot rows to Postgres through
// pkg/conn's gorm connection wrapper, an alternative to the flat-file
// snapshot path in internal/state/snapshot.go for a deployment that wants
// every market-index snapshot queryable centrally instead of scattered
// across each reactor instance's local disk.
package snapshotstore

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ordermesh/pingpong/internal/state"
	"github.com/ordermesh/pingpong/pkg/conn"
)

// Row is the gorm model backing one stored snapshot.
type Row struct {
	ID          uint64 `gorm:"primaryKey"`
	Reactor     string `gorm:"uniqueIndex;not null"`
	Timestamp   int64  `gorm:"not null"`
	LastSeq     uint64
	LastEventTs int64
	Body        []byte `gorm:"type:jsonb;not null"`
	CreatedAt   time.Time
}

func (Row) TableName() string { return "position_snapshots" }

// Store persists and retrieves state.Snapshot rows for a named reactor.
type Store struct {
	client *conn.Client
}

// New wraps an already-connected conn.Client. AutoMigrate must be run once
// at startup before Save/Latest are called.
func New(client *conn.Client) *Store {
	return &Store{client: client}
}

// AutoMigrate creates/updates the backing table.
func (s *Store) AutoMigrate() error {
	return s.client.DB().AutoMigrate(&Row{})
}

// Save upserts the row for reactor with snapshot's metadata and body, the
// snapshot as the caller already encoded it (cmd/trader uses sonic).
func (s *Store) Save(ctx context.Context, reactor string, snapshot state.Snapshot, body []byte) error {
	row := Row{
		Reactor:     reactor,
		Timestamp:   snapshot.Timestamp,
		LastSeq:     snapshot.LastSeq,
		LastEventTs: snapshot.LastEventTs,
		Body:        body,
	}
	return s.client.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reactor"}},
			DoUpdates: clause.AssignmentColumns([]string{"timestamp", "last_seq", "last_event_ts", "body", "created_at"}),
		}).
		Create(&row).Error
}

// Latest returns the most recently saved snapshot body for reactor.
func (s *Store) Latest(ctx context.Context, reactor string) ([]byte, error) {
	var row Row
	err := s.client.DB().WithContext(ctx).
		Where("reactor = ?", reactor).
		Order("timestamp DESC").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.Body, nil
}
