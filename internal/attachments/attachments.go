// Package attachments materializes attachment references into payload
// attachments: file refs are read from disk and carried as bytes, URL
// refs are passed through for the provider to fetch.
package attachments

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/patternforge/patternforge/pkg/models"
)

// NotFoundError is returned when a file ref does not resolve to readable
// content.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return "attachment content not found: " + e.Ref
}

// maxFileSize caps inlined attachment content at 20 MiB.
const maxFileSize = 20 << 20

var mimeByExtension = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

// Resolver implements assembler.AttachmentResolver over the local
// filesystem and pass-through URLs.
type Resolver struct{}

// New returns a Resolver.
func New() *Resolver {
	return &Resolver{}
}

// Materialize resolves one attachment reference.
func (Resolver) Materialize(_ context.Context, ref models.AttachmentRef) (models.Attachment, error) {
	att := models.Attachment{Name: ref.Name, Kind: ref.Kind}

	if strings.HasPrefix(ref.Ref, "http://") || strings.HasPrefix(ref.Ref, "https://") {
		att.URL = ref.Ref
		att.MIMEType = mimeFor(ref)
		return att, nil
	}

	info, err := os.Stat(ref.Ref)
	if err != nil {
		if os.IsNotExist(err) {
			return att, &NotFoundError{Ref: ref.Ref}
		}
		return att, fmt.Errorf("stat attachment %s: %w", ref.Ref, err)
	}
	if info.IsDir() {
		return att, fmt.Errorf("attachment %s is a directory", ref.Ref)
	}
	if info.Size() > maxFileSize {
		return att, fmt.Errorf("attachment %s is %d bytes, exceeds %d byte limit",
			ref.Ref, info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(ref.Ref)
	if err != nil {
		return att, fmt.Errorf("read attachment %s: %w", ref.Ref, err)
	}
	att.Data = data
	att.MIMEType = mimeFor(ref)
	return att, nil
}

// mimeFor derives the MIME type from the ref's extension, falling back
// to a kind-level default for extensionless refs.
func mimeFor(ref models.AttachmentRef) string {
	if mime, ok := mimeByExtension[strings.ToLower(filepath.Ext(ref.Ref))]; ok {
		return mime
	}
	if ref.Kind == models.MediaPDF {
		return "application/pdf"
	}
	return "image/png"
}
