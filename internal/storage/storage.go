// Package storage keeps report attachments in object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Attachment kinds and their object folders.
const (
	KindImage = "images"
	KindAudio = "audio"
)

const publicURLPrefix = "https://storage.googleapis.com/"

var (
	// ErrDisabled is returned when no bucket is configured.
	ErrDisabled = errors.New("object storage not configured")
	// ErrForeignURL is returned when deleting a URL outside the bucket.
	ErrForeignURL = errors.New("url does not belong to the bucket")
)

// ObjectStore uploads and deletes public objects.
type ObjectStore interface {
	// Upload stores r under object and returns its public URL.
	Upload(ctx context.Context, object, contentType string, r io.Reader) (string, error)
	// Delete removes the object behind a URL returned by Upload.
	Delete(ctx context.Context, url string) error
}

// ObjectName is the object path of an attachment of reportID.
func ObjectName(reportID, kind, filename string) string {
	return fmt.Sprintf("reports/%s/%s/%s-%s", reportID, kind, uuid.NewString(), cleanFilename(filename))
}

func cleanFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r < 0x20 || r == 0x7f || r == '?' || r == '#':
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == "/" {
		return "file"
	}
	return name
}

// PublicURL is the public URL of object in bucket.
func PublicURL(bucket, object string) string {
	return publicURLPrefix + bucket + "/" + object
}

// ObjectFromURL returns the object name of a public URL in bucket.
func ObjectFromURL(bucket, url string) (string, error) {
	prefix := publicURLPrefix + bucket + "/"
	if bucket == "" || !strings.HasPrefix(url, prefix) || len(url) == len(prefix) {
		return "", ErrForeignURL
	}
	return strings.TrimPrefix(url, prefix), nil
}

// KindForContentType maps a MIME type to an attachment kind. Only image/*
// and audio/* are accepted.
func KindForContentType(contentType string) (string, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return KindImage, true
	case strings.HasPrefix(ct, "audio/"):
		return KindAudio, true
	}
	return "", false
}
