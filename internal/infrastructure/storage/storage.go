// ABOUTME: File store over local paths and http(s) URLs
// ABOUTME: Normalizes user paths and sniffs MIME types for playlist imports
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/harper/radio-tuner/internal/domain"
)

var (
	urlPattern  = regexp.MustCompile(`(?i)^[a-z]+://\S+$`)
	fileScheme  = regexp.MustCompile(`^file:/{0,2}`)
	errNoPath   = errors.New("empty path")
	errNotLocal = errors.New("remote paths are read-only")
)

type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	UserAgent    string
}

type Store struct {
	remote *Remote
}

func New(cfg Config) *Store {
	return &Store{remote: NewRemote(cfg)}
}

// IsURL reports whether s looks like scheme://something.
func IsURL(s string) bool {
	return urlPattern.MatchString(s)
}

// Normalize strips a file: scheme, expands ~ and makes local paths absolute.
// URLs other than file: are returned unchanged.
func (s *Store) Normalize(path string) string {
	if path == "" {
		return ""
	}

	path = fileScheme.ReplaceAllString(path, "")
	if IsURL(path) {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return filepath.Clean(path)
}

// Read returns the contents of a local file or an http(s) URL. Remote reads
// are bound to ctx.
func (s *Store) Read(ctx context.Context, path string) ([]byte, error) {
	if path == "" {
		return nil, domain.IOError("read", errNoPath)
	}
	path = s.Normalize(path)

	if IsURL(path) {
		data, err := s.remote.Fetch(ctx, path)
		if err != nil {
			return nil, domain.IOError("read "+path, err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.IOError("read "+path, err)
	}
	return data, nil
}

// Write replaces the file at path, creating parent directories. The data goes
// to a temporary file in the same directory first and is renamed into place,
// so readers never see a partial file.
func (s *Store) Write(path string, data []byte) error {
	if path == "" {
		return domain.IOError("write", errNoPath)
	}
	path = s.Normalize(path)
	if IsURL(path) {
		return domain.IOError("write "+path, errNotLocal)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.IOError("write "+path, fmt.Errorf("create directory: %w", err))
	}
	if err := writeAtomic(path, data); err != nil {
		return domain.IOError("write "+path, err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Exists reports whether path names a regular local file.
func (s *Store) Exists(path string) bool {
	if path == "" {
		return false
	}
	path = s.Normalize(path)
	if IsURL(path) {
		return false
	}

	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// MimeType detects the content type of a local file, "" when unreadable.
func (s *Store) MimeType(path string) string {
	if path == "" {
		return ""
	}
	path = s.Normalize(path)
	if IsURL(path) {
		return ""
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return ""
	}
	return mt.String()
}

// playlistTypes are detected for playlist files that do not descend from
// text/plain.
var playlistTypes = []string{
	"application/vnd.apple.mpegurl",
	"audio/mpegurl",
	"audio/x-mpegurl",
	"audio/x-scpls",
	"video/x-ms-asf",
}

// IsPlaylistType reports whether mime is text/plain, one of its descendants
// or a known playlist type.
func IsPlaylistType(mime string) bool {
	name := strings.TrimSpace(strings.SplitN(mime, ";", 2)[0])
	if name == "" {
		return false
	}
	for _, t := range playlistTypes {
		if strings.EqualFold(name, t) {
			return true
		}
	}
	for mt := mimetype.Lookup(name); mt != nil; mt = mt.Parent() {
		if mt.Is("text/plain") {
			return true
		}
	}
	return false
}
