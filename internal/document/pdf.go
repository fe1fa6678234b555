package document

import (
	"fmt"
	"os/exec"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// pdfFallbackEnabled controls whether the pdftotext binary is tried when
// the Go library fails on a malformed file.
var pdfFallbackEnabled = true

// loadPDF extracts text from a PDF, inserting a [PAGE n] marker before each
// page so extracted points can carry page numbers.
func loadPDF(path string) (string, error) {
	text, err := extractPDFText(path)
	if err != nil && pdfFallbackEnabled {
		text, err = extractPdftotext(path)
	}
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	return text, nil
}

func extractPDFText(path string) (string, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(fmt.Sprintf("\n\n[PAGE %d]\n\n", i))
		buf.WriteString(pageText)
	}
	return buf.String(), nil
}

func extractPdftotext(path string) (string, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	// pdftotext separates pages with form feeds.
	pages := strings.Split(string(out), "\f")
	var buf strings.Builder
	for i, page := range pages {
		if strings.TrimSpace(page) == "" {
			continue
		}
		buf.WriteString(fmt.Sprintf("\n\n[PAGE %d]\n\n", i+1))
		buf.WriteString(page)
	}
	return buf.String(), nil
}
