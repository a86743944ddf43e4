// Package engine routes every inbound message through classification,
// session bookkeeping, archiving, and auto-replies.
//
// Messages are handled concurrently, but all handling for one contact is
// serialized through a per-contact lock: rapid-fire messages from the same
// contact never race the registry or the transcript order, while distinct
// contacts proceed fully in parallel. Any failure during handling is
// contained at the single-message boundary; losing one message's
// persistence is preferable to stopping the bot.
package engine

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lromero/chatvault/internal/archive"
	"github.com/lromero/chatvault/internal/bus"
	"github.com/lromero/chatvault/internal/classify"
	"github.com/lromero/chatvault/internal/replies"
	"github.com/lromero/chatvault/internal/session"
)

// Sender delivers outbound text through the transport.
type Sender interface {
	Send(ctx context.Context, contactID, text string) error
}

// Activity is an observability event emitted once per processed message.
type Activity struct {
	ContactID string            `json:"contactId"`
	Category  classify.Category `json:"category"`
	Detail    string            `json:"detail,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Stats holds engine counters.
type Stats struct {
	Processed    int64 `json:"processed"`
	Dropped      int64 `json:"dropped"`
	ArchivedText int64 `json:"archivedText"`
	SavedMedia   int64 `json:"savedMedia"`
	RepliesSent  int64 `json:"repliesSent"`
}

// Config wires an Engine.
type Config struct {
	Bus      *bus.MessageBus
	Registry *session.Registry
	Store    *archive.Store
	Trigger  string
	Replies  *replies.Table
	Sender   Sender
}

// Engine consumes inbound messages and drives the session registry,
// archive store, and auto-replies.
type Engine struct {
	bus        *bus.MessageBus
	registry   *session.Registry
	store      *archive.Store
	classifier *classify.Classifier
	table      *replies.Table
	sender     Sender

	activityMu sync.RWMutex
	onActivity func(Activity)

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	processed    atomic.Int64
	dropped      atomic.Int64
	archivedText atomic.Int64
	savedMedia   atomic.Int64
	repliesSent  atomic.Int64
}

// New creates an Engine.
func New(cfg Config) *Engine {
	table := cfg.Replies
	if table == nil {
		table = replies.Default()
	}
	return &Engine{
		bus:        cfg.Bus,
		registry:   cfg.Registry,
		store:      cfg.Store,
		classifier: classify.New(cfg.Trigger, table.Has),
		table:      table,
		sender:     cfg.Sender,
		locks:      make(map[string]*sync.Mutex),
	}
}

// SetOnActivity registers a sink for activity events.
func (e *Engine) SetOnActivity(fn func(Activity)) {
	e.activityMu.Lock()
	e.onActivity = fn
	e.activityMu.Unlock()
}

// Run consumes inbound messages from the bus until ctx is cancelled. Each
// message is handled in its own goroutine so slow I/O for one contact
// never blocks the stream.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-e.bus.Inbound:
			go e.Handle(ctx, msg)
		}
	}
}

// Handle processes a single inbound message to completion. All branches
// are terminal: nothing is queued or retried.
func (e *Engine) Handle(ctx context.Context, msg bus.InboundMessage) {
	// Status updates are discarded before any side effect: no archive
	// directory, no classification, no session mutation.
	if msg.IsStatus {
		e.dropped.Add(1)
		return
	}

	lock := e.contactLock(msg.ContactID)
	lock.Lock()
	defer lock.Unlock()

	e.processed.Add(1)

	if err := e.store.Ensure(msg.ContactID); err != nil {
		log.Printf("[Engine] Archive ensure failed for %s: %v", msg.ContactID, err)
	}

	cat := e.classifier.Classify(&msg)

	if cat == classify.CategoryTrigger {
		if !e.registry.Activate(msg.ContactID) {
			log.Printf("[Engine] Session already active: %s", msg.ContactID)
		}
	}

	// Every message from an active contact rearms the inactivity timer,
	// including the trigger message that just activated the session.
	if e.registry.IsActive(msg.ContactID) {
		e.registry.Refresh(msg.ContactID)
	}

	detail := ""
	switch cat {
	case classify.CategoryImage:
		detail = e.saveMedia(ctx, &msg, "imagen", "jpg")
	case classify.CategoryPDF:
		detail = e.saveMedia(ctx, &msg, "pdf", "pdf")
	case classify.CategoryDocument:
		log.Printf("[Engine] Non-PDF document from %s, not persisted", msg.ContactID)
	case classify.CategoryOtherMedia:
		log.Printf("[Engine] Unhandled media kind %q from %s", msg.MediaKind, msg.ContactID)
	case classify.CategoryGreeting:
		e.sendReply(ctx, &msg)
		e.appendTranscript(&msg)
	case classify.CategoryText, classify.CategoryTrigger:
		e.appendTranscript(&msg)
	default:
		log.Printf("[Engine] Unclassified message from %s", msg.ContactID)
	}

	e.emit(Activity{
		ContactID: msg.ContactID,
		Category:  cat,
		Detail:    detail,
		Timestamp: time.Now(),
	})
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Processed:    e.processed.Load(),
		Dropped:      e.dropped.Load(),
		ArchivedText: e.archivedText.Load(),
		SavedMedia:   e.savedMedia.Load(),
		RepliesSent:  e.repliesSent.Load(),
	}
}

// --- internal ---

func (e *Engine) contactLock(contactID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[contactID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[contactID] = l
	}
	return l
}

// saveMedia fetches the payload and persists it, returning the saved path
// for the activity feed. Fetch and write failures are logged and dropped.
func (e *Engine) saveMedia(ctx context.Context, msg *bus.InboundMessage, kind, ext string) string {
	if msg.Download == nil {
		log.Printf("[Engine] %s message from %s has no payload to fetch", kind, msg.ContactID)
		return ""
	}
	data, err := msg.Download(ctx)
	if err != nil {
		log.Printf("[Engine] Media download failed for %s: %v", msg.ContactID, err)
		return ""
	}

	path, err := e.store.SaveMedia(msg.ContactID, kind, ext, data, e.timestamp(msg))
	if err != nil {
		log.Printf("[Engine] Media save failed for %s: %v", msg.ContactID, err)
		return ""
	}
	e.savedMedia.Add(1)
	log.Printf("[Engine] Saved %s (%d bytes)", path, len(data))
	return path
}

func (e *Engine) appendTranscript(msg *bus.InboundMessage) {
	if err := e.store.AppendTranscript(msg.ContactID, msg.Body, e.timestamp(msg)); err != nil {
		log.Printf("[Engine] Transcript append failed for %s: %v", msg.ContactID, err)
		return
	}
	e.archivedText.Add(1)
	log.Printf("[Engine] Text from %s: %s", msg.ContactID, msg.Body)
}

func (e *Engine) sendReply(ctx context.Context, msg *bus.InboundMessage) {
	reply, ok := e.table.Reply(msg.Body)
	if !ok || e.sender == nil {
		return
	}
	if err := e.sender.Send(ctx, msg.ContactID, reply); err != nil {
		log.Printf("[Engine] Reply to %s failed: %v", msg.ContactID, err)
		return
	}
	e.repliesSent.Add(1)
}

func (e *Engine) timestamp(msg *bus.InboundMessage) time.Time {
	if msg.Timestamp.IsZero() {
		return time.Now()
	}
	return msg.Timestamp
}

func (e *Engine) emit(act Activity) {
	e.activityMu.RLock()
	fn := e.onActivity
	e.activityMu.RUnlock()
	if fn != nil {
		fn(act)
	}
}
