package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ThreatRecord is one confirmed SCAM entry in the shared community ledger.
// Records are append-only: this service writes them once and never updates
// or deletes them.
type ThreatRecord struct {
	ID        string    `db:"id" json:"id"`
	BrandName string    `db:"brand_name" json:"brand_name"`
	Domain    string    `db:"domain" json:"domain"`
	Category  string    `db:"category" json:"category"`
	Verdict   string    `db:"verdict" json:"verdict"`
	UserID    string    `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ThreatRepository handles community threat ledger operations
type ThreatRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewThreatRepository creates a new threat repository
func NewThreatRepository(db *sqlx.DB, logger *slog.Logger) *ThreatRepository {
	return &ThreatRepository{db: db, logger: logger}
}

// Create inserts a new threat record
func (r *ThreatRepository) Create(ctx context.Context, record *ThreatRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO community_threats (
			id, brand_name, domain, category, verdict, user_id, created_at
		) VALUES (
			:id, :brand_name, :domain, :category, :verdict, :user_id, :created_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return fmt.Errorf("failed to create threat record: %w", err)
	}

	r.logger.Info("Threat record created",
		"record_id", record.ID,
		"brand_name", record.BrandName,
		"category", record.Category)
	return nil
}

// Recent returns the newest threat records, most recent first
func (r *ThreatRepository) Recent(ctx context.Context, limit int) ([]ThreatRecord, error) {
	query := `
		SELECT * FROM community_threats
		ORDER BY created_at DESC
		LIMIT $1`

	records := []ThreatRecord{}
	if err := r.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list recent threats: %w", err)
	}
	return records, nil
}

// HistoryByUser returns every record reported by one user, newest first
func (r *ThreatRepository) HistoryByUser(ctx context.Context, userID string) ([]ThreatRecord, error) {
	query := `
		SELECT * FROM community_threats
		WHERE user_id = $1
		ORDER BY created_at DESC`

	records := []ThreatRecord{}
	if err := r.db.SelectContext(ctx, &records, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list user history: %w", err)
	}
	return records, nil
}

// SearchBrand returns the newest record whose brand name contains the query,
// case-insensitively. A miss is reported as (nil, nil).
func (r *ThreatRepository) SearchBrand(ctx context.Context, brand string) (*ThreatRecord, error) {
	query := `
		SELECT * FROM community_threats
		WHERE brand_name ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC
		LIMIT 1`

	records := []ThreatRecord{}
	if err := r.db.SelectContext(ctx, &records, query, brand); err != nil {
		return nil, fmt.Errorf("failed to search threats by brand: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// CountAll returns the total number of ledger records
func (r *ThreatRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM community_threats`); err != nil {
		return 0, fmt.Errorf("failed to count threats: %w", err)
	}
	return count, nil
}
