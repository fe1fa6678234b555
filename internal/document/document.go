package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/billbuster/billpoints/internal/point"
)

// Format identifies the source file format of a document.
type Format string

const (
	FormatText     Format = "text"
	FormatPDF      Format = "pdf"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatDOCX     Format = "docx"
)

// Document is the normalized text of one source file. Immutable for the
// lifetime of a processing run.
type Document struct {
	Path   string
	Name   string
	Format Format
	Text   string
}

// SupportedExtensions lists file extensions the loader can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".text":     true,
	".pdf":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".docx":     true,
}

// IsSupported reports whether the file extension is a loadable format.
func IsSupported(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

func formatFor(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".text", "":
		return FormatText, nil
	case ".pdf":
		return FormatPDF, nil
	case ".md", ".markdown":
		return FormatMarkdown, nil
	case ".html", ".htm":
		return FormatHTML, nil
	case ".docx":
		return FormatDOCX, nil
	default:
		return "", fmt.Errorf("unsupported file extension: %s", filepath.Ext(filename))
	}
}

// Load reads a source file and normalizes it to plain text.
// Returns *point.EmptyDocumentError when the file has no extractable text.
func Load(path string) (*Document, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat document: %w", err)
	}

	format, err := formatFor(path)
	if err != nil {
		return nil, err
	}

	var text string
	switch format {
	case FormatPDF:
		text, err = loadPDF(path)
	case FormatDOCX:
		text, err = loadDOCX(path)
	case FormatMarkdown:
		text, err = loadFileWith(path, readMarkdown)
	case FormatHTML:
		text, err = loadFileWith(path, readHTML)
	default:
		text, err = loadFileWith(path, readText)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	text = normalize(text)
	if text == "" {
		return nil, &point.EmptyDocumentError{Path: path}
	}

	return &Document{
		Path:   path,
		Name:   filepath.Base(path),
		Format: format,
		Text:   text,
	}, nil
}

// LoadReader normalizes a raw byte stream. Formats that need random access
// (pdf, docx) are staged through a temp file.
func LoadReader(r io.Reader, filename string) (*Document, error) {
	format, err := formatFor(filename)
	if err != nil {
		return nil, err
	}

	var text string
	switch format {
	case FormatPDF, FormatDOCX:
		tmpPath, cleanup, err := stageTemp(r, format)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		if format == FormatPDF {
			text, err = loadPDF(tmpPath)
		} else {
			text, err = loadDOCX(tmpPath)
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", filename, err)
		}
	case FormatMarkdown:
		text, err = readMarkdown(r)
	case FormatHTML:
		text, err = readHTML(r)
	default:
		text, err = readText(r)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filename, err)
	}

	text = normalize(text)
	if text == "" {
		return nil, &point.EmptyDocumentError{Path: filename}
	}

	return &Document{
		Path:   filename,
		Name:   filepath.Base(filename),
		Format: format,
		Text:   text,
	}, nil
}

func loadFileWith(path string, read func(io.Reader) (string, error)) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return read(f)
}

func stageTemp(r io.Reader, format Format) (string, func(), error) {
	tmp, err := os.CreateTemp("", "billpoints-*."+string(format))
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()
	return tmpPath, func() { os.Remove(tmpPath) }, nil
}

// normalize standardizes line endings and trims surrounding whitespace so
// chunk offsets are stable across platforms.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}
