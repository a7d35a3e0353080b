// Package blobstore uploads clinical images and returns durable URLs. The
// records core treats the returned URL as an opaque string.
package blobstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrEmptyContent       = errors.New("image data is empty")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrInvalidEncoding    = errors.New("image data is not valid base64")
	ErrBlobNotFound       = errors.New("blob not found")
)

// MaxImageSize is the largest decoded image accepted (10 MB).
const MaxImageSize = 10 * 1024 * 1024

var AllowedContentTypes = map[string]string{
	"image/png":   ".png",
	"image/jpeg":  ".jpg",
	"image/gif":   ".gif",
	"image/webp":  ".webp",
	"image/dicom": ".dcm",
}

// Uploader stores bytes under folder and returns the object's URL.
type Uploader interface {
	Upload(ctx context.Context, folder, contentType string, data []byte) (string, error)
	Ping(ctx context.Context) error
}

// DecodeImage accepts either a data URL ("data:image/png;base64,...") or bare
// base64 and returns the bytes with their content type. Bare payloads are
// sniffed.
func DecodeImage(encoded string) ([]byte, string, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, "", ErrEmptyContent
	}

	contentType := ""
	if strings.HasPrefix(encoded, "data:") {
		header, payload, ok := strings.Cut(encoded, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, "", ErrInvalidEncoding
		}
		contentType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		encoded = payload
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyContent
	}
	if len(data) > MaxImageSize {
		return nil, "", ErrFileTooLarge
	}

	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}
	if _, ok := AllowedContentTypes[contentType]; !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrInvalidContentType, contentType)
	}
	return data, contentType, nil
}

// ObjectKey names a new object inside folder.
func ObjectKey(folder, contentType string) string {
	return strings.Trim(folder, "/") + "/" + uuid.NewString() + AllowedContentTypes[contentType]
}

type storedBlob struct {
	contentType string
	data        []byte
}

// InMemoryStore keeps blobs in process memory. Used in tests and when no
// object store is configured.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]storedBlob
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[string]storedBlob)}
}

func (s *InMemoryStore) Upload(_ context.Context, folder, contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyContent
	}
	key := ObjectKey(folder, contentType)

	s.mu.Lock()
	s.blobs[key] = storedBlob{contentType: contentType, data: bytes.Clone(data)}
	s.mu.Unlock()

	return "memory://" + key, nil
}

// Get returns a stored blob by the URL Upload produced.
func (s *InMemoryStore) Get(url string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[strings.TrimPrefix(url, "memory://")]
	if !ok {
		return nil, "", ErrBlobNotFound
	}
	return bytes.Clone(b.data), b.contentType, nil
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }
