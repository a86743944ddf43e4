// Package archive persists per-contact transcripts and media files.
//
// Layout, kept compatible with the archives written by the previous bot:
//
//	<root>/<contactID>/mensajes.txt        transcript, append-only
//	<root>/<contactID>/imagen_<ms>.jpg     received images
//	<root>/<contactID>/pdf_<ms>.pdf        received PDF documents
package archive

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const transcriptFile = "mensajes.txt"

// Store writes contact archives under a single root directory. It holds no
// in-memory state; concurrent writes for different contacts are fully
// independent.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = "conversaciones"
	}
	return &Store{root: dir}
}

// Root returns the archive root directory.
func (s *Store) Root() string {
	return s.root
}

// ContactDir returns the storage directory for a contact.
func (s *Store) ContactDir(contactID string) string {
	return filepath.Join(s.root, safeName(contactID))
}

// Ensure idempotently creates the contact's storage area. Concurrent and
// repeated creation are both success.
func (s *Store) Ensure(contactID string) error {
	if err := os.MkdirAll(s.ContactDir(contactID), 0755); err != nil {
		return fmt.Errorf("creating archive for %s: %w", contactID, err)
	}
	return nil
}

// AppendTranscript appends one "[<ISO-8601>] <body>" line to the contact's
// transcript.
func (s *Store) AppendTranscript(contactID, body string, ts time.Time) error {
	path := filepath.Join(s.ContactDir(contactID), transcriptFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening transcript: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "[%s] %s\n", isoTimestamp(ts), body); err != nil {
		return fmt.Errorf("appending transcript: %w", err)
	}
	return nil
}

// SaveMedia writes a media payload as <kind>_<unixMillis>.<ext> and returns
// the resulting path. An existing file for the same millisecond is never
// overwritten: the collision is logged and the new payload gets a numeric
// suffix.
func (s *Store) SaveMedia(contactID, kind, ext string, data []byte, ts time.Time) (string, error) {
	dir := s.ContactDir(contactID)
	ms := ts.UnixMilli()
	path := filepath.Join(dir, fmt.Sprintf("%s_%d.%s", kind, ms, ext))

	if _, err := os.Stat(path); err == nil {
		log.Printf("[Archive] ⚠️ Filename collision for %s, keeping both files", path)
		for i := 1; ; i++ {
			alt := filepath.Join(dir, fmt.Sprintf("%s_%d_%d.%s", kind, ms, i, ext))
			if _, err := os.Stat(alt); os.IsNotExist(err) {
				path = alt
				break
			}
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("saving media: %w", err)
	}
	return path, nil
}

// isoTimestamp formats ts as an ISO-8601 UTC string with millisecond
// precision, matching the existing transcript format exactly.
func isoTimestamp(ts time.Time) string {
	return ts.UTC().Format("2006-01-02T15:04:05.000Z")
}

// safeName keeps contact identifiers usable as directory names. JIDs are
// already filesystem-safe; this only guards against separator characters
// from an unexpected transport.
func safeName(contactID string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return r.Replace(contactID)
}
