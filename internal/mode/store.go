package mode

import (
	"context"

	"execution-core/pkg/db"
)

// SQLiteAudit adapts the database layer to the AuditStore contract.
type SQLiteAudit struct {
	DB *db.Database
}

// NewSQLiteAudit wraps the database.
func NewSQLiteAudit(d *db.Database) *SQLiteAudit {
	return &SQLiteAudit{DB: d}
}

func (s *SQLiteAudit) AppendAudit(ctx context.Context, e AuditEntry) error {
	return s.DB.AppendAudit(ctx, db.AuditRecord{
		ID:           e.ID,
		UserID:       e.UserID,
		Action:       e.Action,
		PreviousMode: string(e.PreviousMode),
		NewMode:      string(e.NewMode),
		Details:      e.Details,
		CreatedAt:    e.Timestamp,
	})
}

func (s *SQLiteAudit) ListAudit(ctx context.Context, userID string, limit int) ([]AuditEntry, error) {
	records, err := s.DB.ListAudit(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]AuditEntry, 0, len(records))
	for _, r := range records {
		out = append(out, AuditEntry{
			ID:           r.ID,
			UserID:       r.UserID,
			Action:       r.Action,
			PreviousMode: Mode(r.PreviousMode),
			NewMode:      Mode(r.NewMode),
			Details:      r.Details,
			Timestamp:    r.CreatedAt,
		})
	}
	return out, nil
}
