package chat

import (
	"sync"
	"time"
)

// DefaultRetain is how many messages a feed keeps.
const DefaultRetain = 100

// Feed is the bounded in-memory chat history.
type Feed struct {
	mu       sync.RWMutex
	messages []Message
	retain   int
	nextID   uint64
	now      func() time.Time
}

// NewFeed keeps the most recent retain messages; non-positive means DefaultRetain.
func NewFeed(retain int) *Feed {
	if retain <= 0 {
		retain = DefaultRetain
	}
	return &Feed{retain: retain, now: time.Now}
}

// WithClock overrides the timestamp source.
func (f *Feed) WithClock(clock func() time.Time) {
	if clock != nil {
		f.now = clock
	}
}

// Append sanitizes and stores a message, evicting the oldest past the limit.
func (f *Feed) Append(user, body string) (Message, error) {
	user, body, err := Sanitize(user, body)
	if err != nil {
		return Message{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	message := Message{ID: f.nextID, User: user, Body: body, CreatedAt: f.now().UTC()}
	f.messages = append(f.messages, message)
	if overflow := len(f.messages) - f.retain; overflow > 0 {
		f.messages = append(f.messages[:0:0], f.messages[overflow:]...)
	}
	return message, nil
}

// Backlog returns up to n of the latest messages, oldest first.
func (f *Feed) Backlog(n int) []Message {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if n <= 0 || len(f.messages) == 0 {
		return nil
	}
	start := max(len(f.messages)-n, 0)
	return append([]Message(nil), f.messages[start:]...)
}

// Len reports the number of retained messages.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.messages)
}

// Restore seeds the feed with previously persisted messages. Invalid entries
// are skipped and ids continue after the highest restored one.
func (f *Feed) Restore(messages []Message) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	restored := 0
	for _, message := range messages {
		user, body, err := Sanitize(message.User, message.Body)
		if err != nil {
			continue
		}
		message.User, message.Body = user, body
		if message.ID <= f.nextID {
			message.ID = f.nextID + 1
		}
		f.nextID = message.ID
		f.messages = append(f.messages, message)
		restored++
	}
	if overflow := len(f.messages) - f.retain; overflow > 0 {
		f.messages = append(f.messages[:0:0], f.messages[overflow:]...)
	}
	return restored
}
