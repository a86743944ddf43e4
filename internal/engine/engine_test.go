package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lromero/chatvault/internal/archive"
	"github.com/lromero/chatvault/internal/bus"
	"github.com/lromero/chatvault/internal/classify"
	"github.com/lromero/chatvault/internal/session"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []bus.OutboundMessage
	fail bool
}

func (f *fakeSender) Send(_ context.Context, contactID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("transport down")
	}
	f.sent = append(f.sent, bus.OutboundMessage{ContactID: contactID, Body: text})
	return nil
}

func (f *fakeSender) messages() []bus.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bus.OutboundMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

type fixture struct {
	eng      *Engine
	registry *session.Registry
	store    *archive.Store
	sender   *fakeSender
}

func newFixture(t *testing.T, ttl time.Duration) *fixture {
	t.Helper()
	registry := session.NewRegistry(ttl, nil)
	t.Cleanup(registry.Stop)
	store := archive.NewStore(t.TempDir())
	sender := &fakeSender{}
	eng := New(Config{
		Bus:      bus.NewMessageBus(),
		Registry: registry,
		Store:    store,
		Trigger:  "start",
		Sender:   sender,
	})
	return &fixture{eng: eng, registry: registry, store: store, sender: sender}
}

func (f *fixture) transcript(t *testing.T, contactID string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.store.ContactDir(contactID), "mensajes.txt"))
	if err != nil {
		t.Fatalf("reading transcript: %v", err)
	}
	return string(data)
}

func TestHandle_TriggerActivatesSession(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	f.eng.Handle(ctx, bus.InboundMessage{ContactID: "111", Body: "start"})

	if !f.registry.IsActive("111") {
		t.Fatal("session should be active after trigger")
	}
	if len(f.sender.messages()) != 0 {
		t.Error("trigger must not produce a reply")
	}
	if got := f.transcript(t, "111"); !strings.HasSuffix(got, "] start\n") {
		t.Errorf("trigger body not archived, transcript = %q", got)
	}
}

func TestHandle_TriggerCaseInsensitive(t *testing.T) {
	f := newFixture(t, time.Minute)

	f.eng.Handle(context.Background(), bus.InboundMessage{ContactID: "111", Body: "START"})

	if !f.registry.IsActive("111") {
		t.Fatal("uppercase trigger should activate the session")
	}
}

func TestHandle_TriggerTwiceKeepsOneSession(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	f.eng.Handle(ctx, bus.InboundMessage{ContactID: "111", Body: "start"})
	f.eng.Handle(ctx, bus.InboundMessage{ContactID: "111", Body: "start"})

	if f.registry.Len() != 1 {
		t.Errorf("Len() = %d, want 1", f.registry.Len())
	}
}

func TestHandle_GreetingRepliesAndArchives(t *testing.T) {
	f := newFixture(t, time.Minute)

	f.eng.Handle(context.Background(), bus.InboundMessage{ContactID: "111", Body: "Hola"})

	sent := f.sender.messages()
	if len(sent) != 1 {
		t.Fatalf("got %d replies, want 1", len(sent))
	}
	if sent[0].ContactID != "111" || sent[0].Body != "¡Hola!" {
		t.Errorf("reply = %+v, want ¡Hola! to 111", sent[0])
	}
	if got := f.transcript(t, "111"); !strings.HasSuffix(got, "] Hola\n") {
		t.Errorf("greeting body not archived, transcript = %q", got)
	}
	if f.registry.IsActive("111") {
		t.Error("greeting alone must not create a session")
	}
}

func TestHandle_GreetingLowercaseGetsNoReply(t *testing.T) {
	f := newFixture(t, time.Minute)

	f.eng.Handle(context.Background(), bus.InboundMessage{ContactID: "111", Body: "hola"})

	if len(f.sender.messages()) != 0 {
		t.Error("lowercase greeting must not trigger the canned reply")
	}
	if got := f.transcript(t, "111"); !strings.HasSuffix(got, "] hola\n") {
		t.Errorf("body should still be archived as text, transcript = %q", got)
	}
}

func TestHandle_ReplySendFailureIsContained(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.sender.fail = true

	f.eng.Handle(context.Background(), bus.InboundMessage{ContactID: "111", Body: "Hola"})

	// The transcript append still happens after a failed send.
	if got := f.transcript(t, "111"); !strings.HasSuffix(got, "] Hola\n") {
		t.Errorf("transcript = %q", got)
	}
}

func TestHandle_ImageSaved(t *testing.T) {
	f := newFixture(t, time.Minute)
	ts := time.UnixMilli(1704067200000)
	payload := []byte{0xff, 0xd8, 0xff}

	f.eng.Handle(context.Background(), bus.InboundMessage{
		ContactID: "111",
		MediaKind: bus.MediaImage,
		Timestamp: ts,
		Download: func(context.Context) ([]byte, error) {
			return payload, nil
		},
	})

	path := filepath.Join(f.store.ContactDir("111"), "imagen_1704067200000.jpg")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("image not saved: %v", err)
	}
	if string(data) != string(payload) {
		t.Error("image payload mismatch")
	}
}

func TestHandle_PDFSaved(t *testing.T) {
	f := newFixture(t, time.Minute)
	ts := time.UnixMilli(1704067200000)

	f.eng.Handle(context.Background(), bus.InboundMessage{
		ContactID: "111",
		Body:      "informe.PDF",
		MediaKind: bus.MediaDocument,
		Timestamp: ts,
		Download: func(context.Context) ([]byte, error) {
			return []byte("%PDF-1.4"), nil
		},
	})

	path := filepath.Join(f.store.ContactDir("111"), "pdf_1704067200000.pdf")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("pdf not saved: %v", err)
	}
}

func TestHandle_VideoNotPersisted(t *testing.T) {
	f := newFixture(t, time.Minute)
	downloaded := false

	f.eng.Handle(context.Background(), bus.InboundMessage{
		ContactID: "111",
		MediaKind: bus.MediaVideo,
		Download: func(context.Context) ([]byte, error) {
			downloaded = true
			return []byte("video"), nil
		},
	})

	if downloaded {
		t.Error("video bytes must not be fetched")
	}
	entries, _ := os.ReadDir(f.store.ContactDir("111"))
	if len(entries) != 0 {
		t.Errorf("contact dir has %d files, want 0", len(entries))
	}
}

func TestHandle_DownloadFailureIsContained(t *testing.T) {
	f := newFixture(t, time.Minute)

	f.eng.Handle(context.Background(), bus.InboundMessage{
		ContactID: "111",
		MediaKind: bus.MediaImage,
		Download: func(context.Context) ([]byte, error) {
			return nil, errors.New("network error")
		},
	})

	entries, _ := os.ReadDir(f.store.ContactDir("111"))
	if len(entries) != 0 {
		t.Errorf("contact dir has %d files after failed download, want 0", len(entries))
	}

	// The engine keeps processing afterwards.
	f.eng.Handle(context.Background(), bus.InboundMessage{ContactID: "111", Body: "sigo aquí"})
	if got := f.transcript(t, "111"); !strings.HasSuffix(got, "] sigo aquí\n") {
		t.Errorf("transcript = %q", got)
	}
}

func TestHandle_StatusUpdateHasNoEffects(t *testing.T) {
	f := newFixture(t, time.Minute)

	f.eng.Handle(context.Background(), bus.InboundMessage{
		ContactID: "status@broadcast",
		Body:      "start",
		IsStatus:  true,
	})

	if _, err := os.Stat(f.store.ContactDir("status@broadcast")); !os.IsNotExist(err) {
		t.Error("status update must not create an archive directory")
	}
	if f.registry.Len() != 0 {
		t.Error("status update must not touch the registry")
	}
	stats := f.eng.Stats()
	if stats.Processed != 0 || stats.Dropped != 1 {
		t.Errorf("stats = %+v, want processed=0 dropped=1", stats)
	}
}

func TestHandle_MessagesRefreshActiveSession(t *testing.T) {
	f := newFixture(t, 150*time.Millisecond)
	ctx := context.Background()

	f.eng.Handle(ctx, bus.InboundMessage{ContactID: "111", Body: "start"})

	// Messages arriving under the TTL keep the session alive past the
	// original deadline.
	for i := 0; i < 3; i++ {
		time.Sleep(90 * time.Millisecond)
		f.eng.Handle(ctx, bus.InboundMessage{ContactID: "111", Body: "ping"})
	}
	if !f.registry.IsActive("111") {
		t.Fatal("session expired despite steady messages")
	}

	time.Sleep(300 * time.Millisecond)
	if f.registry.IsActive("111") {
		t.Fatal("session should expire after messages stop")
	}
}

func TestHandle_TextFromInactiveContactDoesNotActivate(t *testing.T) {
	f := newFixture(t, time.Minute)

	f.eng.Handle(context.Background(), bus.InboundMessage{ContactID: "222", Body: "buenas"})

	if f.registry.IsActive("222") {
		t.Error("plain text must not create a session")
	}
	if got := f.transcript(t, "222"); !strings.HasSuffix(got, "] buenas\n") {
		t.Errorf("transcript = %q", got)
	}
}

func TestHandle_ContactsAreIndependent(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	f.eng.Handle(ctx, bus.InboundMessage{ContactID: "111", Body: "start"})
	f.eng.Handle(ctx, bus.InboundMessage{ContactID: "222", Body: "hola que tal"})

	if !f.registry.IsActive("111") || f.registry.IsActive("222") {
		t.Error("session state leaked across contacts")
	}
}

func TestHandle_EmitsActivity(t *testing.T) {
	f := newFixture(t, time.Minute)

	var mu sync.Mutex
	var acts []Activity
	f.eng.SetOnActivity(func(a Activity) {
		mu.Lock()
		acts = append(acts, a)
		mu.Unlock()
	})

	f.eng.Handle(context.Background(), bus.InboundMessage{ContactID: "111", Body: "hola que tal"})

	mu.Lock()
	defer mu.Unlock()
	if len(acts) != 1 {
		t.Fatalf("got %d activity events, want 1", len(acts))
	}
	if acts[0].ContactID != "111" || acts[0].Category != classify.CategoryText {
		t.Errorf("activity = %+v", acts[0])
	}
}

func TestRun_ProcessesInboundConcurrently(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go f.eng.Run(ctx)

	for _, id := range []string{"111", "222", "333"} {
		f.eng.bus.PublishInbound(bus.InboundMessage{ContactID: id, Body: "start"})
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.registry.Len() != 3 {
		if time.Now().After(deadline) {
			t.Fatalf("Len() = %d, want 3", f.registry.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
