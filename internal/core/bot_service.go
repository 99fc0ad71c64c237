package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gwi.com/persona-chat/internal/logger"
	"gwi.com/persona-chat/internal/store"
)

// BotStore is the persistence the bot service needs.
type BotStore interface {
	CreateBot(ctx context.Context, bot *store.Bot) error
	GetBotByID(ctx context.Context, botID string) (*store.Bot, error)
	GetBotByIDAndOwner(ctx context.Context, botID, ownerID string) (*store.Bot, error)
	ListBotsByOwner(ctx context.Context, ownerID string) ([]store.Bot, error)
	UpdateBot(ctx context.Context, bot *store.Bot) error
	DeleteBot(ctx context.Context, botID, ownerID string) error
	AddContextFile(ctx context.Context, botID string, file *store.ContextFile) error
	ReplaceContextFiles(ctx context.Context, botID string, files []store.ContextFile) error
	VectorIDsForBot(ctx context.Context, botID string) ([]string, error)
	VectorIDsForFile(ctx context.Context, botID, fileID string) ([]string, error)
	DeleteVectorRecords(ctx context.Context, ids []string) error
	OrphanedVectorIDs(ctx context.Context) ([]string, error)
}

// Ingester indexes documents, synchronously or in the background.
type Ingester interface {
	Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error)
	Submit(req IngestRequest) error
}

const (
	DefaultMaxUploadBytes = 10 * 1024 * 1024

	// uploadURLPrefix is the public path stored for every uploaded file.
	uploadURLPrefix = "/uploads/"
)

type BotInput struct {
	Name           string
	Description    string
	InitialContext string
}

// BotUpdate is a partial update. Empty strings keep the current value and a
// nil ContextFiles keeps the current file set.
type BotUpdate struct {
	Name           string
	Description    string
	InitialContext string
	ContextFiles   *[]store.ContextFile
}

type Upload struct {
	FileName string
	MimeType string
	Content  io.Reader
}

type BotService struct {
	store     BotStore
	ingester  Ingester
	index     VectorIndex
	uploadDir string
	maxBytes  int64
	log       *logger.Logger
}

// NewBotService accepts a nil ingester or index when document search is not
// configured; files are then stored without being indexed.
func NewBotService(db BotStore, ingester Ingester, index VectorIndex, uploadDir string, maxBytes int64, log *logger.Logger) *BotService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &BotService{
		store:     db,
		ingester:  ingester,
		index:     index,
		uploadDir: uploadDir,
		maxBytes:  maxBytes,
		log:       log.With("service", "BotService"),
	}
}

func (s *BotService) Create(ctx context.Context, ownerID string, in BotInput) (*store.Bot, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Description) == "" || strings.TrimSpace(in.InitialContext) == "" {
		return nil, fmt.Errorf("%w: name, description, and initialContext are required", ErrValidation)
	}
	bot := &store.Bot{
		OwnerID:        ownerID,
		Name:           in.Name,
		Description:    in.Description,
		InitialContext: in.InitialContext,
	}
	if err := s.store.CreateBot(ctx, bot); err != nil {
		return nil, err
	}
	s.log.Info("bot created", "bot_id", bot.ID, "owner_id", ownerID)
	return bot, nil
}

func (s *BotService) List(ctx context.Context, ownerID string) ([]store.Bot, error) {
	return s.store.ListBotsByOwner(ctx, ownerID)
}

func (s *BotService) Get(ctx context.Context, ownerID, botID string) (*store.Bot, error) {
	bot, err := s.store.GetBotByIDAndOwner(ctx, botID, ownerID)
	if err != nil {
		return nil, err
	}
	if bot == nil {
		return nil, fmt.Errorf("%w: bot %s", ErrNotFound, botID)
	}
	return bot, nil
}

// Update applies a partial update. A replacement file list may drop or
// reorder existing files but cannot introduce new ones; files dropped from the
// list have their vectors removed from the index.
func (s *BotService) Update(ctx context.Context, ownerID, botID string, upd BotUpdate) (*store.Bot, error) {
	bot, err := s.Get(ctx, ownerID, botID)
	if err != nil {
		return nil, err
	}

	var next []store.ContextFile
	kept := make(map[string]bool)
	if upd.ContextFiles != nil {
		current := make(map[string]store.ContextFile, len(bot.ContextFiles))
		for _, f := range bot.ContextFiles {
			current[f.ID] = f
		}
		next = make([]store.ContextFile, 0, len(*upd.ContextFiles))
		for _, f := range *upd.ContextFiles {
			existing, ok := current[f.ID]
			if !ok {
				return nil, fmt.Errorf("%w: unknown context file %q, upload files through the files endpoint", ErrValidation, f.ID)
			}
			if kept[f.ID] {
				continue
			}
			kept[f.ID] = true
			next = append(next, existing)
		}
	}

	if upd.Name != "" {
		bot.Name = upd.Name
	}
	if upd.Description != "" {
		bot.Description = upd.Description
	}
	if upd.InitialContext != "" {
		bot.InitialContext = upd.InitialContext
	}
	if err := s.store.UpdateBot(ctx, bot); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: bot %s", ErrNotFound, botID)
		}
		return nil, err
	}

	if upd.ContextFiles == nil {
		return bot, nil
	}
	if err := s.store.ReplaceContextFiles(ctx, botID, next); err != nil {
		return nil, err
	}

	for _, f := range bot.ContextFiles {
		if !kept[f.ID] {
			s.forgetFile(ctx, botID, f)
		}
	}
	bot.ContextFiles = next
	return bot, nil
}

// Delete removes the bot, its files, its conversations and its vectors.
func (s *BotService) Delete(ctx context.Context, ownerID, botID string) error {
	bot, err := s.Get(ctx, ownerID, botID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteBot(ctx, botID, ownerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: bot %s", ErrNotFound, botID)
		}
		return err
	}
	for _, f := range bot.ContextFiles {
		s.removeStoredFile(f)
	}

	// read after the files are gone: ingestion that records later sees the
	// file detached and removes its own vectors
	ids, err := s.store.VectorIDsForBot(ctx, botID)
	if err != nil {
		s.log.Error("failed to look up bot vectors", "bot_id", botID, "err", err)
		return nil
	}
	s.purgeVectors(ctx, ids, "bot_id", botID)
	s.log.Info("bot deleted", "bot_id", botID, "vectors", len(ids))
	return nil
}

// SweepOrphanedVectors deletes vectors whose file is gone but whose earlier
// delete did not complete.
func (s *BotService) SweepOrphanedVectors(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	ids, err := s.store.OrphanedVectorIDs(ctx)
	if err != nil {
		return 0, err
	}
	if !s.purgeVectors(ctx, ids) {
		return 0, fmt.Errorf("%w: failed to delete %d orphaned vectors", ErrIndexWrite, len(ids))
	}
	return len(ids), nil
}

// purgeVectors deletes ids from the index and then from the ledger. Ledger
// rows survive a failed index delete so a later sweep can retry.
func (s *BotService) purgeVectors(ctx context.Context, ids []string, logKV ...any) bool {
	if len(ids) == 0 || s.index == nil {
		return true
	}
	log := s.log.With(logKV...)
	if err := s.index.Delete(ctx, ids); err != nil {
		log.Error("failed to delete vectors", "count", len(ids), "err", err)
		return false
	}
	if err := s.store.DeleteVectorRecords(ctx, ids); err != nil {
		log.Error("failed to delete vector records", "count", len(ids), "err", err)
	}
	return true
}

// AttachFile stores an uploaded file against an owned bot. Documents are
// queued for background ingestion; photos are only stored.
func (s *BotService) AttachFile(ctx context.Context, ownerID, botID string, up Upload) (*store.ContextFile, error) {
	bot, err := s.Get(ctx, ownerID, botID)
	if err != nil {
		return nil, err
	}
	file, err := s.storeFile(ctx, bot, up)
	if err != nil {
		return nil, err
	}

	if s.ingester != nil && Ingestible(*file) {
		if err := s.ingester.Submit(s.ingestRequest(file)); err != nil {
			s.log.Error("failed to queue ingestion", "bot_id", botID, "file_id", file.ID, "err", err)
		}
	}
	return file, nil
}

// ImportFile copies a local document into a bot and ingests it before
// returning. It skips the ownership check and is meant for operator tooling.
func (s *BotService) ImportFile(ctx context.Context, botID, localPath, mimeType string) (*store.ContextFile, *IngestResult, error) {
	bot, err := s.store.GetBotByID(ctx, botID)
	if err != nil {
		return nil, nil, err
	}
	if bot == nil {
		return nil, nil, fmt.Errorf("%w: bot %s", ErrNotFound, botID)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	file, err := s.storeFile(ctx, bot, Upload{FileName: filepath.Base(localPath), MimeType: mimeType, Content: f})
	if err != nil {
		return nil, nil, err
	}
	if !Ingestible(*file) {
		return file, &IngestResult{}, nil
	}
	if s.ingester == nil {
		return file, nil, fmt.Errorf("%w: embedding and vector index credentials are required for ingestion", ErrConfigMissing)
	}
	res, err := s.ingester.Ingest(ctx, s.ingestRequest(file))
	return file, res, err
}

func (s *BotService) storeFile(ctx context.Context, bot *store.Bot, up Upload) (*store.ContextFile, error) {
	if up.Content == nil || up.FileName == "" {
		return nil, fmt.Errorf("%w: no file provided", ErrValidation)
	}
	fileType, err := ClassifyFile(up.MimeType)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	name := storedFileName(up.FileName)
	diskPath := filepath.Join(s.uploadDir, name)
	out, err := os.Create(diskPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}

	// read one byte past the limit to detect oversized uploads
	size, err := io.Copy(out, io.LimitReader(up.Content, s.maxBytes+1))
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(diskPath)
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	if size > s.maxBytes {
		os.Remove(diskPath)
		return nil, fmt.Errorf("%w: file size exceeds %dMB limit", ErrValidation, s.maxBytes/(1024*1024))
	}

	file := &store.ContextFile{
		FileName: up.FileName,
		FilePath: uploadURLPrefix + name,
		FileType: fileType,
		FileSize: size,
		MimeType: normalizeMime(up.MimeType),
	}
	if err := s.store.AddContextFile(ctx, bot.ID, file); err != nil {
		os.Remove(diskPath)
		return nil, err
	}
	s.log.Info("context file stored", "bot_id", bot.ID, "file_id", file.ID, "type", file.FileType, "size", size)
	return file, nil
}

func (s *BotService) ingestRequest(file *store.ContextFile) IngestRequest {
	return IngestRequest{
		BotID:    file.BotID,
		FileID:   file.ID,
		Path:     s.resolvePath(file.FilePath),
		MimeType: file.MimeType,
		Source:   file.FileName,
	}
}

// resolvePath maps a stored public file path to its location on disk.
func (s *BotService) resolvePath(filePath string) string {
	return filepath.Join(s.uploadDir, path.Base(filePath))
}

// forgetFile removes a detached file's vectors and bytes.
func (s *BotService) forgetFile(ctx context.Context, botID string, f store.ContextFile) {
	ids, err := s.store.VectorIDsForFile(ctx, botID, f.ID)
	if err != nil {
		s.log.Error("failed to look up file vectors", "bot_id", botID, "file_id", f.ID, "err", err)
	} else {
		s.purgeVectors(ctx, ids, "bot_id", botID, "file_id", f.ID)
	}
	s.removeStoredFile(f)
}

func (s *BotService) removeStoredFile(f store.ContextFile) {
	if err := os.Remove(s.resolvePath(f.FilePath)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("failed to remove stored file", "path", f.FilePath, "err", err)
	}
}

func storedFileName(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	return fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), uuid.NewString()[:8], ext)
}
