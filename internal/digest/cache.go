package digest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/drumstick90/authordigest/internal/domain"
)

// cacheFilePattern keeps subject IDs filesystem-safe when they come from a
// request rather than a resolved author.
var cacheFilePattern = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// FileCache persists extraction sessions as one flat JSON file per subject
// so a restarted process can serve synthesis without re-extracting.
type FileCache struct {
	dir    string
	logger zerolog.Logger
}

// NewFileCache creates a cache rooted at dir. An empty dir falls back to
// the OS temp directory.
func NewFileCache(dir string, logger zerolog.Logger) *FileCache {
	if dir == "" {
		dir = os.TempDir()
	}
	return &FileCache{
		dir:    dir,
		logger: logger.With().Str("component", "extract_cache").Logger(),
	}
}

// Path returns the cache file path for a subject.
func (c *FileCache) Path(subjectID string) string {
	if subjectID == "" {
		subjectID = "unknown"
	}
	name := cacheFilePattern.ReplaceAllString(subjectID, "_")
	return filepath.Join(c.dir, fmt.Sprintf("authordigest_extracts_%s.json", name))
}

// Save writes the session for a subject atomically: the entry is written to
// a temp file in the same directory, then renamed over the target so readers
// never observe a partial file.
func (c *FileCache) Save(subjectID, subjectName string, session domain.Session) error {
	entry := domain.CacheEntry{
		SubjectID:   subjectID,
		SubjectName: subjectName,
		Extracts:    session,
		Count:       len(session),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	path := c.Path(subjectID)
	tmp, err := os.CreateTemp(c.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename cache file: %w", err)
	}

	c.logger.Info().
		Str("subject_id", subjectID).
		Int("count", len(session)).
		Str("path", path).
		Msg("saved extracts")
	return nil
}

// Load reads the session cached for a subject. A missing or corrupt file is
// treated as a cache miss, not an error; corruption is logged and the file
// ignored.
func (c *FileCache) Load(subjectID string) (domain.Session, bool) {
	path := c.Path(subjectID)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("ignoring corrupt extract cache")
		return nil, false
	}
	if len(entry.Extracts) == 0 {
		return nil, false
	}
	return entry.Extracts, true
}

// Remove deletes the cached session for a subject, if present.
func (c *FileCache) Remove(subjectID string) {
	if err := os.Remove(c.Path(subjectID)); err != nil && !os.IsNotExist(err) {
		c.logger.Warn().Err(err).Str("subject_id", subjectID).Msg("failed to remove extract cache")
	}
}
