// Package redis mirrors active session state to Redis so external tooling
// (the status command, dashboards) can see which contacts are engaged.
//
// Graceful fallback: if Redis is unavailable, operations silently return
// zero values instead of blocking the business logic. The in-memory
// registry remains the source of truth either way.
package redis

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeySession prefixes mirrored session keys.
const KeySession = "session:"

// Config holds Redis connection settings.
type Config struct {
	URL      string // redis://host:port
	Password string
	DB       int
}

var (
	client    *redis.Client
	connected bool
	mu        sync.RWMutex
)

// Init initializes the Redis connection. Returns true if connected.
func Init(cfg Config) bool {
	if cfg.URL == "" {
		return false
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		log.Printf("[Redis] ❌ Invalid URL: %v", err)
		return false
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3

	c := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Ping(ctx).Err(); err != nil {
		log.Printf("[Redis] ❌ Connection failed: %v", err)
		return false
	}

	mu.Lock()
	client = c
	connected = true
	mu.Unlock()

	log.Println("[Redis] ✅ Connected")
	return true
}

// Close closes the Redis connection.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if client != nil {
		client.Close()
		client = nil
		connected = false
		log.Println("[Redis] Connection closed")
	}
}

// Client returns the Redis client. Returns nil if not available.
func Client() *redis.Client {
	mu.RLock()
	defer mu.RUnlock()
	if connected {
		return client
	}
	return nil
}

// IsAvailable checks if Redis is connected.
func IsAvailable() bool {
	mu.RLock()
	defer mu.RUnlock()
	return connected && client != nil
}

// --- Session mirror (best-effort) ---

// MarkSession records a contact as active with the registry's TTL.
func MarkSession(ctx context.Context, contactID string, ttl time.Duration) {
	c := Client()
	if c == nil {
		return
	}
	if err := c.Set(ctx, KeySession+contactID, "1", ttl).Err(); err != nil {
		log.Printf("[Redis] Session mark failed for %s: %v", contactID, err)
	}
}

// ClearSession removes a contact's session mirror key.
func ClearSession(ctx context.Context, contactID string) {
	c := Client()
	if c == nil {
		return
	}
	if err := c.Del(ctx, KeySession+contactID).Err(); err != nil {
		log.Printf("[Redis] Session clear failed for %s: %v", contactID, err)
	}
}

// ActiveSessions lists the contact IDs currently mirrored as active.
// Returns nil if Redis is unavailable.
func ActiveSessions(ctx context.Context) []string {
	c := Client()
	if c == nil {
		return nil
	}

	var contacts []string
	iter := c.Scan(ctx, 0, KeySession+"*", 100).Iterator()
	for iter.Next(ctx) {
		contacts = append(contacts, strings.TrimPrefix(iter.Val(), KeySession))
	}
	if err := iter.Err(); err != nil {
		log.Printf("[Redis] Session scan failed: %v", err)
	}
	return contacts
}
