package loupe

import (
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// MessageCache holds the ordered message list for each conversation, keyed
// by conversation id. Entries never expire on their own; Rekey moves a list
// when the backend assigns a session id to a brand-new conversation.
// Finalized messages are immutable: mutation happens only through Update,
// which the orchestrator uses for the live placeholder.
type MessageCache struct {
	mu    sync.Mutex
	store *gocache.Cache
}

// NewMessageCache creates an empty cache.
func NewMessageCache() *MessageCache {
	return &MessageCache{
		store: gocache.New(gocache.NoExpiration, 0),
	}
}

// Messages returns a copy of the conversation's ordered message list.
func (m *MessageCache) Messages(conversationID string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.list(conversationID)...)
}

// Append adds a message to the end of the conversation's list.
func (m *MessageCache) Append(conversationID string, msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(conversationID, append(m.list(conversationID), msg))
}

// Update applies fn to the identified message in place. It reports whether
// the message was found.
func (m *MessageCache) Update(conversationID, messageID string, fn func(*Message)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.list(conversationID)
	for i := range msgs {
		if msgs[i].ID == messageID {
			fn(&msgs[i])
			m.put(conversationID, msgs)
			return true
		}
	}
	return false
}

// Splice replaces the identified message with final, preserving order. When
// the target is missing (e.g. removed by a racing cancel), final is not
// inserted.
func (m *MessageCache) Splice(conversationID, messageID string, final Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.list(conversationID)
	for i := range msgs {
		if msgs[i].ID == messageID {
			msgs[i] = final
			m.put(conversationID, msgs)
			return true
		}
	}
	return false
}

// Remove deletes the identified message. It reports whether the message was
// found.
func (m *MessageCache) Remove(conversationID, messageID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.list(conversationID)
	for i := range msgs {
		if msgs[i].ID == messageID {
			m.put(conversationID, append(msgs[:i], msgs[i+1:]...))
			return true
		}
	}
	return false
}

// Hydrate replaces the conversation's entire list with messages built from
// persisted history.
func (m *MessageCache) Hydrate(conversationID string, msgs []Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(conversationID, append([]Message(nil), msgs...))
}

// Rekey moves a conversation's list to a new id. Used when the backend
// assigns a session id to a conversation started without one.
func (m *MessageCache) Rekey(oldID, newID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if oldID == newID {
		return
	}
	msgs := m.list(oldID)
	m.store.Delete(oldID)
	m.put(newID, msgs)
}

// StreamingCount returns the number of messages with IsStreaming set in the
// conversation. The orchestrator maintains the invariant that this is at
// most one.
func (m *MessageCache) StreamingCount(conversationID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.list(conversationID) {
		if msg.IsStreaming {
			n++
		}
	}
	return n
}

func (m *MessageCache) list(conversationID string) []Message {
	if v, ok := m.store.Get(conversationID); ok {
		return v.([]Message)
	}
	return nil
}

func (m *MessageCache) put(conversationID string, msgs []Message) {
	m.store.Set(conversationID, msgs, gocache.NoExpiration)
}
