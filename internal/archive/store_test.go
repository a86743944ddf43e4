package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAppendTranscript_Format(t *testing.T) {
	s := NewStore(t.TempDir())
	contact := "111@s.whatsapp.net"
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Ensure(contact); err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if err := s.AppendTranscript(contact, "hello", ts); err != nil {
		t.Fatalf("AppendTranscript() error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(s.ContactDir(contact), "mensajes.txt"))
	if err != nil {
		t.Fatalf("reading transcript: %v", err)
	}
	want := "[2024-01-01T00:00:00.000Z] hello\n"
	if string(data) != want {
		t.Errorf("transcript = %q, want %q", string(data), want)
	}
}

func TestAppendTranscript_PreservesOrder(t *testing.T) {
	s := NewStore(t.TempDir())
	contact := "111@s.whatsapp.net"
	ts := time.Date(2024, 6, 1, 12, 30, 45, int(123*time.Millisecond), time.UTC)

	if err := s.Ensure(contact); err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	for i := 0; i < 3; i++ {
		body := fmt.Sprintf("mensaje %d", i)
		if err := s.AppendTranscript(contact, body, ts.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("AppendTranscript() error: %v", err)
		}
	}

	data, _ := os.ReadFile(filepath.Join(s.ContactDir(contact), "mensajes.txt"))
	want := "[2024-06-01T12:30:45.123Z] mensaje 0\n" +
		"[2024-06-01T12:30:46.123Z] mensaje 1\n" +
		"[2024-06-01T12:30:47.123Z] mensaje 2\n"
	if string(data) != want {
		t.Errorf("transcript = %q, want %q", string(data), want)
	}
}

func TestEnsure_Idempotent(t *testing.T) {
	s := NewStore(t.TempDir())
	contact := "222@s.whatsapp.net"

	for i := 0; i < 3; i++ {
		if err := s.Ensure(contact); err != nil {
			t.Fatalf("Ensure() iteration %d error: %v", i, err)
		}
	}
	info, err := os.Stat(s.ContactDir(contact))
	if err != nil || !info.IsDir() {
		t.Fatalf("contact dir missing after Ensure: %v", err)
	}
}

func TestSaveMedia_Naming(t *testing.T) {
	s := NewStore(t.TempDir())
	contact := "111@s.whatsapp.net"
	ts := time.UnixMilli(1704067200000) // 2024-01-01T00:00:00Z

	if err := s.Ensure(contact); err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}

	path, err := s.SaveMedia(contact, "imagen", "jpg", []byte{0xff, 0xd8}, ts)
	if err != nil {
		t.Fatalf("SaveMedia() error: %v", err)
	}
	if got := filepath.Base(path); got != "imagen_1704067200000.jpg" {
		t.Errorf("filename = %q, want %q", got, "imagen_1704067200000.jpg")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading media: %v", err)
	}
	if string(data) != string([]byte{0xff, 0xd8}) {
		t.Error("media payload mismatch")
	}
}

func TestSaveMedia_CollisionKeepsBoth(t *testing.T) {
	s := NewStore(t.TempDir())
	contact := "111@s.whatsapp.net"
	ts := time.UnixMilli(1704067200000)

	if err := s.Ensure(contact); err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}

	first, err := s.SaveMedia(contact, "pdf", "pdf", []byte("first"), ts)
	if err != nil {
		t.Fatalf("SaveMedia() error: %v", err)
	}
	second, err := s.SaveMedia(contact, "pdf", "pdf", []byte("second"), ts)
	if err != nil {
		t.Fatalf("SaveMedia() collision error: %v", err)
	}

	if first == second {
		t.Fatalf("collision produced the same path %q", first)
	}
	data, _ := os.ReadFile(first)
	if string(data) != "first" {
		t.Errorf("earlier file was overwritten: %q", string(data))
	}
	data, _ = os.ReadFile(second)
	if string(data) != "second" {
		t.Errorf("later file content = %q, want %q", string(data), "second")
	}
}

func TestContactDir_SanitizesSeparators(t *testing.T) {
	s := NewStore(t.TempDir())
	dir := s.ContactDir("../evil/../../etc")
	rel, err := filepath.Rel(s.Root(), dir)
	if err != nil || filepath.IsAbs(rel) || strings.HasPrefix(rel, "..") {
		t.Errorf("ContactDir escaped the root: %q", dir)
	}
}
