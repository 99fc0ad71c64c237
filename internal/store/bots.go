package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Bot methods
func (s *SQLiteStore) CreateBot(ctx context.Context, bot *Bot) error {
	bot.ID = uuid.NewString()
	now := time.Now().UTC()
	bot.CreatedAt = now
	bot.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO bots (id, owner_id, name, description, initial_context, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		bot.ID, bot.OwnerID, bot.Name, bot.Description, bot.InitialContext, bot.CreatedAt, bot.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert bot: %w", err)
	}
	if bot.ContextFiles == nil {
		bot.ContextFiles = []ContextFile{}
	}
	return nil
}

// GetBotByIDAndOwner returns the bot with its context files, or nil when no bot
// with that id belongs to ownerID.
func (s *SQLiteStore) GetBotByIDAndOwner(ctx context.Context, botID, ownerID string) (*Bot, error) {
	return s.getBot(ctx,
		"SELECT id, owner_id, name, description, initial_context, created_at, updated_at FROM bots WHERE id = ? AND owner_id = ?",
		botID, ownerID)
}

// GetBotByID looks a bot up without an ownership check. Only operator tooling
// uses it.
func (s *SQLiteStore) GetBotByID(ctx context.Context, botID string) (*Bot, error) {
	return s.getBot(ctx,
		"SELECT id, owner_id, name, description, initial_context, created_at, updated_at FROM bots WHERE id = ?",
		botID)
}

func (s *SQLiteStore) getBot(ctx context.Context, query string, args ...any) (*Bot, error) {
	var bot Bot
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&bot.ID, &bot.OwnerID, &bot.Name, &bot.Description, &bot.InitialContext, &bot.CreatedAt, &bot.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get bot: %w", err)
	}

	files, err := s.listContextFiles(ctx, bot.ID)
	if err != nil {
		return nil, err
	}
	bot.ContextFiles = files
	return &bot, nil
}

func (s *SQLiteStore) ListBotsByOwner(ctx context.Context, ownerID string) ([]Bot, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, owner_id, name, description, initial_context, created_at, updated_at FROM bots WHERE owner_id = ? ORDER BY created_at DESC, rowid DESC",
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bots: %w", err)
	}
	defer rows.Close()

	bots := []Bot{}
	for rows.Next() {
		var bot Bot
		if err := rows.Scan(&bot.ID, &bot.OwnerID, &bot.Name, &bot.Description, &bot.InitialContext, &bot.CreatedAt, &bot.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bot row: %w", err)
		}
		bots = append(bots, bot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bots: %w", err)
	}

	for i := range bots {
		files, err := s.listContextFiles(ctx, bots[i].ID)
		if err != nil {
			return nil, err
		}
		bots[i].ContextFiles = files
	}
	return bots, nil
}

// UpdateBot writes name, description and initial context of an owned bot.
func (s *SQLiteStore) UpdateBot(ctx context.Context, bot *Bot) error {
	bot.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"UPDATE bots SET name = ?, description = ?, initial_context = ?, updated_at = ? WHERE id = ? AND owner_id = ?",
		bot.Name, bot.Description, bot.InitialContext, bot.UpdatedAt, bot.ID, bot.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to execute bot update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBot removes an owned bot together with its context files and every chat
// message addressed to it. Vector ledger rows stay until the caller has deleted
// the vectors themselves.
func (s *SQLiteStore) DeleteBot(ctx context.Context, botID, ownerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin bot delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM bots WHERE id = ? AND owner_id = ?", botID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete bot: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}

	for _, q := range []string{
		"DELETE FROM context_files WHERE bot_id = ?",
		"DELETE FROM chat_messages WHERE bot_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, q, botID); err != nil {
			return fmt.Errorf("failed to cascade bot delete: %w", err)
		}
	}
	return tx.Commit()
}

// Context file methods
func (s *SQLiteStore) AddContextFile(ctx context.Context, botID string, file *ContextFile) error {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.UploadedAt.IsZero() {
		file.UploadedAt = time.Now().UTC()
	}
	file.BotID = botID

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO context_files (id, bot_id, position, file_name, file_path, file_type, file_size, mime_type, uploaded_at)
        VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM context_files WHERE bot_id = ?), ?, ?, ?, ?, ?, ?)`,
		file.ID, botID, botID, file.FileName, file.FilePath, file.FileType, file.FileSize, file.MimeType, file.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to insert context file: %w", err)
	}
	return nil
}

func (s *SQLiteStore) HasContextFile(ctx context.Context, botID, fileID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM context_files WHERE bot_id = ? AND id = ?", botID, fileID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query context file: %w", err)
	}
	return n > 0, nil
}

// ReplaceContextFiles swaps the bot's ordered file set for files.
func (s *SQLiteStore) ReplaceContextFiles(ctx context.Context, botID string, files []ContextFile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin context file update: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM context_files WHERE bot_id = ?", botID); err != nil {
		return fmt.Errorf("failed to clear context files: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO context_files (id, bot_id, position, file_name, file_path, file_type, file_size, mime_type, uploaded_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare context file insert: %w", err)
	}
	defer stmt.Close()

	for i := range files {
		f := &files[i]
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if f.UploadedAt.IsZero() {
			f.UploadedAt = time.Now().UTC()
		}
		f.BotID = botID
		if _, err := stmt.ExecContext(ctx, f.ID, botID, i, f.FileName, f.FilePath, f.FileType, f.FileSize, f.MimeType, f.UploadedAt); err != nil {
			return fmt.Errorf("failed to insert context file: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) listContextFiles(ctx context.Context, botID string) ([]ContextFile, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, bot_id, file_name, file_path, file_type, file_size, mime_type, uploaded_at FROM context_files WHERE bot_id = ? ORDER BY position ASC",
		botID)
	if err != nil {
		return nil, fmt.Errorf("failed to query context files: %w", err)
	}
	defer rows.Close()

	files := []ContextFile{}
	for rows.Next() {
		var f ContextFile
		if err := rows.Scan(&f.ID, &f.BotID, &f.FileName, &f.FilePath, &f.FileType, &f.FileSize, &f.MimeType, &f.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan context file row: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
