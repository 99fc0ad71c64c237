package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gwi.com/persona-chat/internal/logger"
	"gwi.com/persona-chat/internal/store"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestClassifyFile(t *testing.T) {
	cases := map[string]store.FileType{
		"image/png":                 store.FileTypePhoto,
		"image/webp":                store.FileTypePhoto,
		"application/pdf":           store.FileTypePDF,
		"text/plain; charset=utf-8": store.FileTypeOther,
		"text/html":                 store.FileTypeOther,
	}
	for mime, want := range cases {
		got, err := ClassifyFile(mime)
		require.NoError(t, err, mime)
		assert.Equal(t, want, got, mime)
	}

	_, err := ClassifyFile("application/zip")
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}

func TestIngestible(t *testing.T) {
	assert.True(t, Ingestible(store.ContextFile{FileType: store.FileTypePDF, MimeType: "application/pdf"}))
	assert.True(t, Ingestible(store.ContextFile{FileType: store.FileTypeOther, MimeType: "text/markdown"}))
	assert.False(t, Ingestible(store.ContextFile{FileType: store.FileTypePhoto, MimeType: "image/png"}))
}

func TestFileExtractor_PlainText(t *testing.T) {
	e := NewFileExtractor(logger.Nop())
	path := writeFile(t, "notes.txt", "The capital of Freedonia is Fredville.")

	text, err := e.Extract(context.Background(), path, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "The capital of Freedonia is Fredville.", text)
}

func TestFileExtractor_HTML(t *testing.T) {
	e := NewFileExtractor(logger.Nop())
	path := writeFile(t, "page.html", "<html><body><h1>Menu</h1><p>Soup of the <b>day</b></p></body></html>")

	text, err := e.Extract(context.Background(), path, "text/html")
	require.NoError(t, err)
	assert.Contains(t, text, "Menu")
	assert.Contains(t, text, "Soup of the **day**")
}

func TestFileExtractor_Failures(t *testing.T) {
	e := NewFileExtractor(logger.Nop())
	ctx := context.Background()

	_, err := e.Extract(ctx, writeFile(t, "empty.txt", "  \n "), "text/plain")
	assert.ErrorIs(t, err, ErrExtraction)

	_, err = e.Extract(ctx, filepath.Join(t.TempDir(), "missing.txt"), "text/plain")
	assert.ErrorIs(t, err, ErrExtraction)

	_, err = e.Extract(ctx, writeFile(t, "photo.png", "png"), "image/png")
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = e.Extract(ctx, writeFile(t, "broken.pdf", "not a pdf"), "application/pdf")
	assert.ErrorIs(t, err, ErrExtraction)
}

func TestFileExtractor_PDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(40, 10, "Freedonia exports duck soup.")
	pdf.AddPage()
	pdf.Cell(40, 10, "Second page text.")
	require.NoError(t, pdf.OutputFileAndClose(path))

	e := NewFileExtractor(logger.Nop())
	text, err := e.Extract(context.Background(), path, "application/pdf")
	require.NoError(t, err)
	assert.Contains(t, text, "Freedonia exports duck soup.")
	assert.Contains(t, text, "Second page text.")
}

func TestDecodeContentStream(t *testing.T) {
	stream := []byte(`BT /F1 12 Tf 72 712 Td (Hello \(PDF\)) Tj T* [(Wor) -20 (ld) -300 (again)] TJ ET
% a comment (ignored) Tj
BT <48692e> Tj ET`)

	text := decodeContentStream(stream)
	assert.Equal(t, "Hello (PDF)\nWorld again\nHi.\n", text)
}

func TestReadLiteralString_Escapes(t *testing.T) {
	s, n := readLiteralString([]byte(`(a\nb\101(nested)) rest`))
	assert.Equal(t, "a\nbA(nested)", s)
	assert.Equal(t, len(`(a\nb\101(nested))`), n)
}
