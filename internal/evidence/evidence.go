// Package evidence stores uploaded evidence files for citations. Citations
// only persist the metadata returned by a Store.
package evidence

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "vtrack/pkg/domain-errors"
)

//go:generate mockgen -source=evidence.go -destination=mocks/mocks.go -package=mocks Store

// Upload is one file received from a client.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Stored describes where an upload was written.
type Stored struct {
	Key  string
	Path string
	Size int64
}

// Store writes and removes evidence blobs.
type Store interface {
	Put(ctx context.Context, upload Upload) (Stored, error)
	Delete(ctx context.Context, key string) error
}

var allowedTypes = map[string][]string{
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".png":  {"image/png"},
	".gif":  {"image/gif"},
	".pdf":  {"application/pdf"},
	".doc":  {"application/msword"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
}

// Limits bounds one request's uploads.
type Limits struct {
	MaxFiles int
	MaxBytes int64
}

// Validate checks count, size and type before anything is stored.
func (l Limits) Validate(uploads []Upload) error {
	if l.MaxFiles > 0 && len(uploads) > l.MaxFiles {
		return dErrors.Newf(dErrors.CodeInvalidArgument, "at most %d evidence files are allowed", l.MaxFiles)
	}
	for _, u := range uploads {
		if l.MaxBytes > 0 && u.Size > l.MaxBytes {
			return dErrors.Newf(dErrors.CodeInvalidArgument, "%s exceeds the %d byte limit", u.Name, l.MaxBytes)
		}
		if !allowed(u.Name, u.ContentType) {
			return dErrors.Newf(dErrors.CodeInvalidArgument, "%s: only images and documents are allowed", u.Name)
		}
	}
	return nil
}

func allowed(name, contentType string) bool {
	mimes, ok := allowedTypes[strings.ToLower(filepath.Ext(name))]
	if !ok {
		return false
	}
	mediaType, _, _ := strings.Cut(contentType, ";")
	for _, m := range mimes {
		if strings.EqualFold(strings.TrimSpace(mediaType), m) {
			return true
		}
	}
	return false
}

// StoredName is the generated blob name: evidence-<unix-ms>-<uuid><ext>.
func StoredName(original string, now time.Time) string {
	return fmt.Sprintf("evidence-%d-%s%s", now.UnixMilli(), uuid.NewString(), strings.ToLower(filepath.Ext(original)))
}
