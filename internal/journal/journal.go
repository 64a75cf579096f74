// Package journal keeps a queryable log of every notification emitted during a
// session, in SQLite through gorm.
package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OCAP2/draw/internal/config"
	"github.com/OCAP2/draw/pkg/core"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// EventRecord is one stored notification.
type EventRecord struct {
	ID           uint      `gorm:"primarykey"`
	CreatedAt    time.Time `gorm:"index"`
	Kind         string    `gorm:"size:32;index"`
	FeatureID    string    `gorm:"size:64;index"`
	GeometryType string    `gorm:"size:16"`
	GeoJSON      datatypes.JSON
}

// TableName pins the table name.
func (EventRecord) TableName() string {
	return "draw_events"
}

// Feature decodes the stored GeoJSON. It returns nil when none was stored.
func (r EventRecord) Feature() (*geojson.Feature, error) {
	if len(r.GeoJSON) == 0 || string(r.GeoJSON) == "null" {
		return nil, nil
	}
	return geojson.UnmarshalFeature(r.GeoJSON)
}

// Journal records notifications.
type Journal struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	logger zerolog.Logger
}

// Open creates the journal. An empty path keeps it in a private in-memory
// database that disappears on Close.
func Open(cfg config.JournalConfig, log zerolog.Logger) (*Journal, error) {
	log = log.With().Str("component", "journal").Logger()

	dsn := cfg.Path
	if dsn == "" {
		dsn = fmt.Sprintf("file:journal-%s?mode=memory&cache=shared", uuid.NewString())
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	// a single connection keeps a private in-memory database alive
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}

	if cfg.Path != "" {
		log.Info().Str("path", cfg.Path).Msg("Using SQLite journal file")
	} else {
		log.Debug().Msg("Using in-memory journal")
	}

	return &Journal{db: db, sqlDB: sqlDB, logger: log}, nil
}

// Record stores e. Its signature matches the dispatcher handler type.
func (j *Journal) Record(e core.Event) error {
	rec := EventRecord{
		Kind:      string(e.Kind),
		FeatureID: e.ID,
	}
	if e.GeoJSON != nil {
		raw, err := json.Marshal(e.GeoJSON)
		if err != nil {
			return fmt.Errorf("encoding %s geojson: %w", e.ID, err)
		}
		rec.GeoJSON = datatypes.JSON(raw)
		if e.GeoJSON.Geometry != nil {
			rec.GeometryType = e.GeoJSON.Geometry.GeoJSONType()
		}
	}

	if err := j.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("recording %s for %s: %w", e.Kind, e.ID, err)
	}
	j.logger.Trace().Str("kind", rec.Kind).Str("id", rec.FeatureID).Msg("recorded")
	return nil
}

// History returns the notifications for one feature in emission order.
func (j *Journal) History(id string) ([]EventRecord, error) {
	var out []EventRecord
	err := j.db.Where("feature_id = ?", id).Order("id").Find(&out).Error
	return out, err
}

// All returns every notification in emission order.
func (j *Journal) All() ([]EventRecord, error) {
	var out []EventRecord
	err := j.db.Order("id").Find(&out).Error
	return out, err
}

// Counts returns the number of notifications per kind.
func (j *Journal) Counts() (map[core.EventKind]int64, error) {
	var rows []struct {
		Kind string
		N    int64
	}
	err := j.db.Model(&EventRecord{}).
		Select("kind, count(*) AS n").
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[core.EventKind]int64, len(rows))
	for _, r := range rows {
		out[core.EventKind(r.Kind)] = r.N
	}
	return out, nil
}

// LastGeometry returns the geometry carried by the latest notification for id.
func (j *Journal) LastGeometry(id string) (*geojson.Feature, error) {
	var rec EventRecord
	err := j.db.Where("feature_id = ? AND geo_json IS NOT NULL", id).Order("id DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.Feature()
}

// Close releases the database.
func (j *Journal) Close() error {
	return j.sqlDB.Close()
}
