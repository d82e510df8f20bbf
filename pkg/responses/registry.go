// Package responses tracks outstanding requests and delivers their
// responses to locally attached listeners.
package responses

import (
	"encoding/json"
	"strings"
	"time"

	"relaymesh/pkg/memkv"
)

const keyPrefix = "resp:"

// Entry is the bookkeeping kept for one outstanding request.
type Entry struct {
	MessageID string `json:"message_id"`
	Recipient string `json:"recipient"`
	Directive string `json:"directive,omitempty"`
	SentAt    int64  `json:"sent_at_unix_ms"`
}

// Registry maps request message ids to their Entry. Entries expire after the
// ttl given at registration.
type Registry struct {
	kv *memkv.Store
}

func NewRegistry(kv *memkv.Store) *Registry { return &Registry{kv: kv} }

func key(id string) string { return keyPrefix + id }

// Register records an outstanding request. ttl <= 0 keeps it until Remove.
func (r *Registry) Register(id string, e Entry, ttl time.Duration) {
	if e.MessageID == "" {
		e.MessageID = id
	}
	if e.SentAt == 0 {
		e.SentAt = time.Now().UnixMilli()
	}
	b, _ := json.Marshal(e)
	r.kv.Set(key(id), b, ttl)
}

// Lookup returns the entry of an outstanding request. An empty id never matches.
func (r *Registry) Lookup(id string) (Entry, bool) {
	if id == "" {
		return Entry{}, false
	}
	b, ok := r.kv.Get(key(id))
	if !ok {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, false
	}
	return e, true
}

func (r *Registry) Remove(id string) bool { return r.kv.Delete(key(id)) }

// IDs lists outstanding request ids.
func (r *Registry) IDs() []string {
	keys := r.kv.Keys(keyPrefix)
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, keyPrefix)
	}
	return keys
}
