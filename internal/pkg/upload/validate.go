package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrContentMismatch = errors.New("file content does not match its extension")
)

// PDF accepts invoice documents only.
var PDF = map[string]string{
	".pdf": "application/pdf",
}

// Receipts accepts payment proofs: PDFs and common photo formats.
var Receipts = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

const sniffLen = 512

// Sniff checks filename against allowed (extension -> mime) and verifies the
// first bytes of body carry the same type. It returns the content type and a
// reader that still yields the complete body.
func Sniff(filename string, allowed map[string]string, body io.Reader) (string, io.Reader, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	want, ok := allowed[ext]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	detected := http.DetectContentType(head)
	if strings.HasPrefix(detected, "text/html") || strings.HasPrefix(detected, "text/xml") ||
		strings.HasPrefix(detected, "application/xml") || detected == "image/svg+xml" {
		return "", nil, fmt.Errorf("%w: %s", ErrContentMismatch, detected)
	}
	if !strings.HasPrefix(detected, want) {
		return "", nil, fmt.Errorf("%w: %s declared, %s detected", ErrContentMismatch, want, detected)
	}
	return want, io.MultiReader(bytes.NewReader(head), body), nil
}
