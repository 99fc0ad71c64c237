package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"gwi.com/persona-chat/internal/logger"
	"gwi.com/persona-chat/internal/store"
)

// Extractor turns a stored document into plain text.
type Extractor interface {
	Extract(ctx context.Context, path, mimeType string) (string, error)
}

// FileExtractor reads documents from the local filesystem. PDFs go through
// pdfcpu, HTML is converted to markdown and plain text is read as is.
type FileExtractor struct {
	log     *logger.Logger
	tempDir string
}

var _ Extractor = (*FileExtractor)(nil)

func NewFileExtractor(log *logger.Logger) *FileExtractor {
	return &FileExtractor{
		log:     log.With("service", "FileExtractor"),
		tempDir: os.TempDir(),
	}
}

var (
	photoMimeTypes = map[string]bool{
		"image/jpeg": true, "image/jpg": true, "image/png": true, "image/gif": true, "image/webp": true,
	}
	textMimeTypes = map[string]bool{
		"text/plain": true, "text/markdown": true, "text/html": true,
	}
)

// ClassifyFile maps an upload's MIME type to its stored file type.
func ClassifyFile(mimeType string) (store.FileType, error) {
	mimeType = normalizeMime(mimeType)
	switch {
	case photoMimeTypes[mimeType]:
		return store.FileTypePhoto, nil
	case mimeType == "application/pdf":
		return store.FileTypePDF, nil
	case textMimeTypes[mimeType]:
		return store.FileTypeOther, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, mimeType)
}

// Ingestible reports whether a context file feeds the vector index. Photos are
// stored but never embedded.
func Ingestible(f store.ContextFile) bool {
	return f.FileType == store.FileTypePDF || textMimeTypes[normalizeMime(f.MimeType)]
}

func normalizeMime(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func (e *FileExtractor) Extract(ctx context.Context, path, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var (
		text string
		err  error
	)
	switch normalizeMime(mimeType) {
	case "application/pdf":
		text, err = e.extractPDF(path)
	case "text/html":
		text, err = e.extractHTML(path)
	case "text/plain", "text/markdown":
		text, err = readText(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, mimeType)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrExtraction, filepath.Base(path), err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s: document has no text content", ErrExtraction, filepath.Base(path))
	}

	e.log.Debug("extracted document text", "path", path, "length", len(text))
	return text, nil
}

func readText(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func (e *FileExtractor) extractHTML(path string) (string, error) {
	html, err := readText(path)
	if err != nil {
		return "", err
	}
	converter := md.NewConverter("", true, nil)
	return converter.ConvertString(html)
}

var pageFileNumber = regexp.MustCompile(`(\d+)\.txt$`)

// extractPDF dumps each page's content stream with pdfcpu and decodes the text
// showing operators. Pages are joined with blank lines.
func (e *FileExtractor) extractPDF(path string) (string, error) {
	outDir, err := os.MkdirTemp(e.tempDir, "persona-chat-pdf-")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(path, outDir, nil, conf); err != nil {
		return "", fmt.Errorf("failed to extract PDF content: %w", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return "", err
	}

	type page struct {
		num  int
		text string
	}
	var pages []page
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := pageFileNumber.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		raw, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			e.log.Warn("failed to read extracted page", "file", entry.Name(), "err", err)
			continue
		}
		pages = append(pages, page{num: num, text: decodeContentStream(raw)})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].num < pages[j].num })

	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		if t := strings.TrimSpace(p.text); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n\n"), nil
}
