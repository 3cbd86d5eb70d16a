// Package blob stores uploaded photos behind opaque references.
package blob

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a reference resolves to nothing.
var ErrNotFound = errors.New("blob not found")

// ErrNotImage is returned when an upload does not sniff as an image.
var ErrNotImage = errors.New("upload is not an image")

// Object is a stored blob opened for reading.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// Store persists blobs. Put returns the reference to hand to Get.
type Store interface {
	Put(ctx context.Context, prefix string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, ref string) (*Object, error)
	Delete(ctx context.Context, ref string) error
}

// DetectImage sniffs the payload and returns its MIME type when it is an image.
func DetectImage(data []byte) (string, error) {
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", ErrNotImage
	}
	return mt.String(), nil
}

func newRef(prefix, contentType string) string {
	ext := mimetype.Lookup(contentType)
	suffix := ""
	if ext != nil {
		suffix = ext.Extension()
	}
	prefix = strings.Trim(sanitizeSegment(prefix), "/")
	if prefix == "" {
		return uuid.NewString() + suffix
	}
	return prefix + "/" + uuid.NewString() + suffix
}

// sanitizeSegment keeps references free of path traversal.
func sanitizeSegment(s string) string {
	out := make([]string, 0, 4)
	for _, part := range strings.Split(s, "/") {
		part = strings.TrimSpace(part)
		if part == "" || part == "." || part == ".." {
			continue
		}
		out = append(out, strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
				return r
			}
			return '_'
		}, part))
	}
	return strings.Join(out, "/")
}
