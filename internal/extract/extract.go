// Package extract pulls plain text out of source files for ingestion.
package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Text returns the textual content of the file at path. PDF files go
// through text extraction; everything else is read as UTF-8 plain text.
func Text(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return pdfText(path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func pdfText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("extract: opening pdf %q: %w", path, err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract: reading pdf %q: %w", path, err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("extract: reading pdf %q: %w", path, err)
	}
	return buf.String(), nil
}
