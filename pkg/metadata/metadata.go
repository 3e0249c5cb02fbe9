// Package metadata builds the bookkeeping branch attached to every stored
// trial record: timestamps, source file, schema version, and a hash of the
// source document.
package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	// Key is the top-level record branch holding the metadata.
	Key = "metadata"
	// Version is the stored document schema version.
	Version = "1.0"
)

// Metadata errors.
var (
	ErrNoMetadata   = errors.New("no metadata branch found")
	ErrNoHashFound  = errors.New("no hash found in metadata")
	ErrHashMismatch = errors.New("hash mismatch")
)

// Metadata describes where a stored record came from and when.
type Metadata struct {
	CreatedAt  time.Time
	UpdatedAt  time.Time
	SourceFile string
	Version    string
	SourceHash string
}

// New stamps metadata for a record read from sourceFile at now.
func New(sourceFile, hash string, now time.Time) Metadata {
	now = now.UTC()

	return Metadata{
		CreatedAt:  now,
		UpdatedAt:  now,
		SourceFile: sourceFile,
		Version:    Version,
		SourceHash: hash,
	}
}

// CalculateHash computes the SHA-256 hash of content.
func CalculateHash(content []byte) string {
	hash := sha256.Sum256(content)

	return hex.EncodeToString(hash[:])
}

// HashFile hashes the file at path without loading it whole.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Branch renders the metadata as a record branch. Timestamps are RFC 3339
// in UTC.
func (m Metadata) Branch() map[string]any {
	return map[string]any{
		"created_at":  m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":  m.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"source_file": m.SourceFile,
		"version":     m.Version,
		"source_hash": m.SourceHash,
	}
}

// Attach returns a shallow copy of rec carrying m as its metadata branch.
func Attach(rec map[string]any, m Metadata) map[string]any {
	out := make(map[string]any, len(rec)+1)
	for k, v := range rec {
		out[k] = v
	}

	out[Key] = m.Branch()

	return out
}

// Extract reads the metadata branch back from a stored record.
func Extract(rec map[string]any) (*Metadata, error) {
	branch, ok := rec[Key].(map[string]any)
	if !ok {
		return nil, ErrNoMetadata
	}

	meta := &Metadata{}
	meta.SourceFile, _ = branch["source_file"].(string)
	meta.Version, _ = branch["version"].(string)
	meta.SourceHash, _ = branch["source_hash"].(string)
	meta.CreatedAt = parseTime(branch["created_at"])
	meta.UpdatedAt = parseTime(branch["updated_at"])

	return meta, nil
}

// parseTime accepts RFC 3339 strings and time values (MongoDB decodes
// dates natively).
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed.UTC()
		}
	}

	return time.Time{}
}

// Verify checks that content still matches the hash recorded in rec.
func Verify(rec map[string]any, content []byte) (bool, error) {
	meta, err := Extract(rec)
	if err != nil {
		return false, err
	}

	if meta.SourceHash == "" {
		return false, ErrNoHashFound
	}

	calculated := CalculateHash(content)
	if calculated != meta.SourceHash {
		return false, fmt.Errorf("%w: expected %s, got %s", ErrHashMismatch, meta.SourceHash, calculated)
	}

	return true, nil
}
