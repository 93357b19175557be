package chat

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxUserRunes caps the displayed author name.
	MaxUserRunes = 16
	// MaxBodyRunes caps a message body.
	MaxBodyRunes = 160
	// DefaultUser names anonymous authors.
	DefaultUser = "Guest"
)

// ErrEmptyMessage rejects bodies that are blank after trimming.
var ErrEmptyMessage = errors.New("empty chat message")

// Message is one chat line.
type Message struct {
	ID        uint64    `json:"id"`
	User      string    `json:"user"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Line renders the message as "user: body".
func (m Message) Line() string {
	return m.User + ": " + m.Body
}

// Sanitize trims and bounds the author and body.
func Sanitize(user, body string) (string, string, error) {
	body = truncate(strings.TrimSpace(body), MaxBodyRunes)
	if body == "" {
		return "", "", ErrEmptyMessage
	}
	user = truncate(strings.TrimSpace(user), MaxUserRunes)
	if user == "" {
		user = DefaultUser
	}
	return user, body, nil
}

// RenderLines formats messages oldest first, or a placeholder when empty.
func RenderLines(messages []Message) []string {
	if len(messages) == 0 {
		return []string{"No messages yet"}
	}
	lines := make([]string, 0, len(messages))
	for _, message := range messages {
		lines = append(lines, message.Line())
	}
	return lines
}

func truncate(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return strings.TrimSpace(string([]rune(value)[:limit]))
}
