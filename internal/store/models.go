package store

import "time"

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt    time.Time `json:"createdAt"`
}

type FileType string

const (
	FileTypePhoto FileType = "photo"
	FileTypePDF   FileType = "pdf"
	FileTypeOther FileType = "other"
)

type ContextFile struct {
	ID         string    `json:"id"`
	BotID      string    `json:"botId"`
	FileName   string    `json:"fileName"`
	FilePath   string    `json:"filePath"`
	FileType   FileType  `json:"fileType"`
	FileSize   int64     `json:"fileSize"`
	MimeType   string    `json:"mimeType"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type Bot struct {
	ID             string        `json:"id"`
	OwnerID        string        `json:"createdBy"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	InitialContext string        `json:"initialContext"`
	ContextFiles   []ContextFile `json:"contextFiles"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// HasDocuments reports whether the bot has any context files attached.
// A bot without files never triggers retrieval.
func (b *Bot) HasDocuments() bool {
	return len(b.ContextFiles) > 0
}

type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	BotID     string    `json:"botId"`
	Message   string    `json:"message"`
	IsUser    bool      `json:"isUser"`
	Timestamp time.Time `json:"timestamp"`
}
