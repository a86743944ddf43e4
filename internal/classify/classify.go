// Package classify assigns each inbound message to exactly one category.
package classify

import (
	"strings"

	"github.com/lromero/chatvault/internal/bus"
)

// Category is the single classification assigned to an inbound message.
type Category string

const (
	CategoryTrigger    Category = "trigger"     // body equals the session trigger keyword
	CategoryGreeting   Category = "greeting"    // body matches an auto-reply rule
	CategoryText       Category = "text"        // non-empty body, no media
	CategoryImage      Category = "image"       // image attachment
	CategoryPDF        Category = "pdf"         // document attachment named/captioned .pdf
	CategoryDocument   Category = "document"    // document attachment, not a PDF
	CategoryOtherMedia Category = "other_media" // video or any other attachment
	CategoryUnknown    Category = "unknown"     // no body, no media
)

// Classifier classifies messages against a trigger keyword and a greeting
// matcher. Classification is a pure, total function: every message maps to
// exactly one category and nothing is mutated.
type Classifier struct {
	trigger  string
	greeting func(body string) bool
}

// New creates a Classifier. The trigger keyword matches case-insensitively.
// greeting decides exact-reply matches and may be nil.
func New(trigger string, greeting func(body string) bool) *Classifier {
	return &Classifier{trigger: trigger, greeting: greeting}
}

// Classify assigns the category for one inbound message. Status updates are
// filtered upstream and never reach this function.
//
// The trigger matches case-insensitively while greeting rules match
// case-sensitively. The asymmetry is inherited behavior; keep it unless the
// product decides otherwise.
func (c *Classifier) Classify(msg *bus.InboundMessage) Category {
	if strings.EqualFold(msg.Body, c.trigger) {
		return CategoryTrigger
	}
	if msg.HasMedia() {
		switch msg.MediaKind {
		case bus.MediaImage:
			return CategoryImage
		case bus.MediaDocument:
			if strings.Contains(strings.ToLower(msg.Body), ".pdf") {
				return CategoryPDF
			}
			return CategoryDocument
		default:
			return CategoryOtherMedia
		}
	}
	if c.greeting != nil && c.greeting(msg.Body) {
		return CategoryGreeting
	}
	if msg.Body != "" {
		return CategoryText
	}
	return CategoryUnknown
}
