package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sternrassler/flight-search-cache/pkg/flight"
)

// RawStore is the append-only log of provider responses. It implements
// client.RawSink.
type RawStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewRawStore creates a raw store on db.
func NewRawStore(db *sql.DB) *RawStore {
	return &RawStore{db: db, now: time.Now}
}

// InsertRaw appends rec and returns its row id.
func (s *RawStore) InsertRaw(ctx context.Context, rec flight.RawRecord) (int64, error) {
	params, err := json.Marshal(rec.Parameters)
	if err != nil {
		return 0, fmt.Errorf("encoding raw query parameters: %w", err)
	}
	fetched := rec.FetchedAt
	if fetched.IsZero() {
		fetched = s.now()
	}
	body := rec.Body
	if body == nil {
		body = []byte{}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO api_queries (search_id, request_id, query_parameters, status_code, raw_response, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		nullString(rec.SearchID), nullString(rec.RequestID), string(params), rec.StatusCode, body, fetched.UnixMicro())
	if err != nil {
		return 0, fmt.Errorf("inserting raw response: %w", err)
	}
	return res.LastInsertId()
}

// Get loads one raw record by id. It returns sql.ErrNoRows when absent.
func (s *RawStore) Get(ctx context.Context, id int64) (flight.RawRecord, error) {
	var (
		rec       flight.RawRecord
		searchID  sql.NullString
		requestID sql.NullString
		params    string
		created   int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT search_id, request_id, query_parameters, status_code, raw_response, created_at
		FROM api_queries WHERE id = ?`, id).
		Scan(&searchID, &requestID, &params, &rec.StatusCode, &rec.Body, &created)
	if err != nil {
		return flight.RawRecord{}, err
	}
	if err := json.Unmarshal([]byte(params), &rec.Parameters); err != nil {
		return flight.RawRecord{}, fmt.Errorf("decoding raw query parameters: %w", err)
	}
	rec.SearchID = searchID.String
	rec.RequestID = requestID.String
	rec.FetchedAt = time.UnixMicro(created).UTC()
	return rec, nil
}

// Count returns the number of stored raw records.
func (s *RawStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_queries").Scan(&n)
	return n, err
}

// PruneOlderThan deletes raw records older than days. days <= 0 disables
// retention and deletes nothing. Searches referencing a pruned record keep
// their data; their api_query_id is cleared.
func (s *RawStore) PruneOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	res, err := s.db.ExecContext(ctx, "DELETE FROM api_queries WHERE created_at < ?", cutoff.UnixMicro())
	if err != nil {
		return 0, fmt.Errorf("pruning raw responses: %w", err)
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
