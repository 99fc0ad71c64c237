package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Vector ledger methods. The remote index is the source of truth for vectors;
// these rows only remember which ids were written for which file so they can
// be deleted later.

func (s *SQLiteStore) RecordVectorIDs(ctx context.Context, botID, fileID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin vector ledger insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO vector_entries (id, bot_id, file_id, created_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare vector ledger insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id, botID, fileID, now); err != nil {
			return fmt.Errorf("failed to insert vector ledger row: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) VectorIDsForBot(ctx context.Context, botID string) ([]string, error) {
	return s.queryIDs(ctx, "SELECT id FROM vector_entries WHERE bot_id = ? ORDER BY created_at", botID)
}

func (s *SQLiteStore) VectorIDsForFile(ctx context.Context, botID, fileID string) ([]string, error) {
	return s.queryIDs(ctx, "SELECT id FROM vector_entries WHERE bot_id = ? AND file_id = ? ORDER BY created_at", botID, fileID)
}

// OrphanedVectorIDs lists ledger rows whose file is no longer attached to any
// bot, e.g. after a remote delete failed.
func (s *SQLiteStore) OrphanedVectorIDs(ctx context.Context) ([]string, error) {
	return s.queryIDs(ctx, `
        SELECT v.id FROM vector_entries v
        LEFT JOIN context_files f ON f.id = v.file_id AND f.bot_id = v.bot_id
        WHERE f.id IS NULL ORDER BY v.created_at`)
}

func (s *SQLiteStore) DeleteVectorRecords(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM vector_entries WHERE id IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("failed to delete vector ledger rows: %w", err)
	}
	return nil
}

func (s *SQLiteStore) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector ledger: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan vector ledger row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
