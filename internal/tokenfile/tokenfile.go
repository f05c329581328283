// Package tokenfile reads and writes the persisted Bling OAuth token pair.
// The file is the only state blingpick keeps across restarts. It is a leaf
// package imported by bling/ and the CLI so both agree on one on-disk format.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token file's directory.
const DirPerms = 0o700

// SafetyMargin is subtracted from the ERP-reported lifetime so a token is
// refreshed before the ERP starts rejecting it.
const SafetyMargin = 60 * time.Second

// Record is the in-memory form of the token file.
type Record struct {
	AccessToken  string
	RefreshToken string
	// ExpiresAt already has SafetyMargin applied. Zero means expired.
	ExpiresAt time.Time
}

// NewRecord builds a Record from a token grant response received at now.
func NewRecord(access, refresh string, expiresIn time.Duration, now time.Time) Record {
	return Record{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(expiresIn - SafetyMargin),
	}
}

// Valid reports whether the access token can be used at now.
func (r Record) Valid(now time.Time) bool {
	return r.AccessToken != "" && now.Before(r.ExpiresAt)
}

// file is the on-disk JSON shape. expires_at is epoch milliseconds.
type file struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Load reads a saved token file. Returns a zero Record and nil error if the
// file does not exist.
func Load(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, nil
	}

	if err != nil {
		return Record{}, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return Record{}, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	rec := Record{
		AccessToken:  f.AccessToken,
		RefreshToken: f.RefreshToken,
	}

	if f.ExpiresAt > 0 {
		rec.ExpiresAt = time.UnixMilli(f.ExpiresAt)
	}

	return rec, nil
}

// Save writes the token file atomically (write-to-temp + rename) with 0600
// permissions, replacing any previous content. Never logs token values.
func Save(path string, rec Record) error {
	f := file{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
	}

	if !rec.ExpiresAt.IsZero() {
		f.ExpiresAt = rec.ExpiresAt.UnixMilli()
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}
