package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestUser(t *testing.T, s *SQLiteStore, email string) *User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), "Test", email, "hash")
	require.NoError(t, err)
	return u
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, "Alice", "Alice@Example.com", "hash")
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, "Alice again", "alice@example.com", "hash")
	assert.ErrorIs(t, err, ErrDuplicate)

	u, err := s.GetUserByEmail(ctx, " ALICE@example.com ")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Alice", u.Name)

	missing, err := s.GetUserByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBotOwnership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, s, "alice@example.com")
	bob := createTestUser(t, s, "bob@example.com")

	bot := &Bot{OwnerID: alice.ID, Name: "Nova", Description: "witty assistant", InitialContext: "Be brief."}
	require.NoError(t, s.CreateBot(ctx, bot))
	require.NotEmpty(t, bot.ID)

	got, err := s.GetBotByIDAndOwner(ctx, bot.ID, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Nova", got.Name)
	assert.Empty(t, got.ContextFiles)
	assert.False(t, got.HasDocuments())

	other, err := s.GetBotByIDAndOwner(ctx, bot.ID, bob.ID)
	require.NoError(t, err)
	assert.Nil(t, other)

	unscoped, err := s.GetBotByID(ctx, bot.ID)
	require.NoError(t, err)
	require.NotNil(t, unscoped)
	assert.Equal(t, alice.ID, unscoped.OwnerID)

	bot.OwnerID = bob.ID
	assert.ErrorIs(t, s.UpdateBot(ctx, bot), ErrNotFound)
	assert.ErrorIs(t, s.DeleteBot(ctx, bot.ID, bob.ID), ErrNotFound)
}

func TestListBotsByOwner_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, s, "alice@example.com")

	for _, name := range []string{"first", "second", "third"} {
		require.NoError(t, s.CreateBot(ctx, &Bot{OwnerID: alice.ID, Name: name, Description: "d", InitialContext: "c"}))
	}

	bots, err := s.ListBotsByOwner(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, bots, 3)
	assert.Equal(t, "third", bots[0].Name)
	assert.Equal(t, "first", bots[2].Name)
}

func TestContextFiles_OrderAndReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, s, "alice@example.com")
	bot := &Bot{OwnerID: alice.ID, Name: "Nova", Description: "d", InitialContext: "c"}
	require.NoError(t, s.CreateBot(ctx, bot))

	a := &ContextFile{FileName: "a.pdf", FilePath: "/uploads/a.pdf", FileType: FileTypePDF, FileSize: 10, MimeType: "application/pdf"}
	b := &ContextFile{FileName: "b.png", FilePath: "/uploads/b.png", FileType: FileTypePhoto, FileSize: 20, MimeType: "image/png"}
	require.NoError(t, s.AddContextFile(ctx, bot.ID, a))
	require.NoError(t, s.AddContextFile(ctx, bot.ID, b))

	got, err := s.GetBotByIDAndOwner(ctx, bot.ID, alice.ID)
	require.NoError(t, err)
	require.Len(t, got.ContextFiles, 2)
	assert.Equal(t, "a.pdf", got.ContextFiles[0].FileName)
	assert.Equal(t, FileTypePhoto, got.ContextFiles[1].FileType)

	require.NoError(t, s.ReplaceContextFiles(ctx, bot.ID, []ContextFile{got.ContextFiles[1]}))
	got, err = s.GetBotByIDAndOwner(ctx, bot.ID, alice.ID)
	require.NoError(t, err)
	require.Len(t, got.ContextFiles, 1)
	assert.Equal(t, b.ID, got.ContextFiles[0].ID)
}

func TestChatMessages_OrderingAndClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, text := range []string{"one", "two", "three"} {
		require.NoError(t, s.CreateChatMessage(ctx, &ChatMessage{UserID: "u1", BotID: "b1", Message: text, IsUser: i%2 == 0}))
	}
	require.NoError(t, s.CreateChatMessage(ctx, &ChatMessage{UserID: "u2", BotID: "b1", Message: "other user", IsUser: true}))

	msgs, err := s.ListChatMessages(ctx, "u1", "b1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Message)
	assert.True(t, msgs[0].IsUser)
	assert.Equal(t, "three", msgs[2].Message)

	deleted, err := s.DeleteChatMessages(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	msgs, err = s.ListChatMessages(ctx, "u2", "b1")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestDeleteBot_Cascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, s, "alice@example.com")
	bot := &Bot{OwnerID: alice.ID, Name: "Nova", Description: "d", InitialContext: "c"}
	require.NoError(t, s.CreateBot(ctx, bot))
	file := &ContextFile{FileName: "a.pdf", FilePath: "/a", FileType: FileTypePDF, MimeType: "application/pdf"}
	require.NoError(t, s.AddContextFile(ctx, bot.ID, file))
	require.NoError(t, s.CreateChatMessage(ctx, &ChatMessage{UserID: alice.ID, BotID: bot.ID, Message: "hi", IsUser: true}))
	require.NoError(t, s.RecordVectorIDs(ctx, bot.ID, file.ID, []string{"v1", "v2"}))

	attached, err := s.HasContextFile(ctx, bot.ID, file.ID)
	require.NoError(t, err)
	assert.True(t, attached)
	orphans, err := s.OrphanedVectorIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans)

	require.NoError(t, s.DeleteBot(ctx, bot.ID, alice.ID))

	msgs, err := s.ListChatMessages(ctx, alice.ID, bot.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	attached, err = s.HasContextFile(ctx, bot.ID, file.ID)
	require.NoError(t, err)
	assert.False(t, attached)

	// ledger rows outlive the bot until the vectors are gone
	ids, err := s.VectorIDsForBot(ctx, bot.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1", "v2"}, ids)
	orphans, err = s.OrphanedVectorIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1", "v2"}, orphans)
}

func TestVectorLedger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordVectorIDs(ctx, "b1", "f1", []string{"v1", "v2"}))
	require.NoError(t, s.RecordVectorIDs(ctx, "b1", "f2", []string{"v3"}))

	ids, err := s.VectorIDsForFile(ctx, "b1", "f1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1", "v2"}, ids)

	ids, err = s.VectorIDsForBot(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	require.NoError(t, s.DeleteVectorRecords(ctx, []string{"v1", "v3"}))
	ids, err = s.VectorIDsForBot(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, ids)
}
