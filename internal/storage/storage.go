// Package storage defines the Backend interface used to write exported
// audit reports.
//
// Backends register themselves with the factory from an init() function in
// their own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return New(cfg)
//	    })
//	}
//
// The CLI imports each backend with a blank import to trigger init().
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"path"
	"strings"
)

// Storage writes report objects addressed by key.
type Storage interface {
	// Upload stores an object, replacing any earlier one. The backend applies
	// its own prefix to key.
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) (*UploadResult, error)

	// Exists reports whether an object is present
	Exists(ctx context.Context, key string) (bool, error)
}

// UploadResult describes a stored object
type UploadResult struct {
	// Key is the full object key including the backend prefix
	Key string

	// Location is a human readable address, e.g. s3://bucket/key or a file path
	Location string

	// Size is the object size in bytes
	Size int64

	// Checksum is the hex SHA256 of the contents
	Checksum string
}

// ObjectKey joins a configured prefix and a key. Empty and "." prefixes
// leave the key unchanged.
func ObjectKey(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" || prefix == "." {
		return key
	}
	return path.Join(prefix, key)
}

// Checksum returns the hex SHA256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
