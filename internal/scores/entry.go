package scores

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const (
	// TopLimit is how many entries a leaderboard shows.
	TopLimit = 10
	// MaxNameRunes caps the length of a stored player name.
	MaxNameRunes = 12
	// DefaultName is used for blank player names.
	DefaultName = "Guest"
)

// ErrInvalidEntry reports a score that cannot be stored.
var ErrInvalidEntry = errors.New("invalid score entry")

// Entry is one leaderboard row.
type Entry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Store persists scores. Implementations must be safe for concurrent use.
type Store interface {
	SaveScore(ctx context.Context, name string, score int) error
	TopScores(ctx context.Context) ([]Entry, error)
}

// Normalize trims and bounds the name and floors the score at zero.
func Normalize(name string, score float64) (Entry, error) {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return Entry{}, errors.Wrapf(ErrInvalidEntry, "score %v", score)
	}
	return Entry{Name: NormalizeName(name), Score: int(math.Max(0, math.Floor(score)))}, nil
}

// NormalizeName applies the default and rune limit to a player name.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultName
	}
	if utf8.RuneCountInString(name) > MaxNameRunes {
		name = strings.TrimSpace(string([]rune(name)[:MaxNameRunes]))
	}
	return name
}

// Rank sorts entries by descending score, keeping insertion order for ties,
// and truncates to limit when limit is positive.
func Rank(entries []Entry, limit int) []Entry {
	ranked := append([]Entry(nil), entries...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// Render formats entries as numbered leaderboard lines.
func Render(entries []Entry) []string {
	if len(entries) == 0 {
		return []string{"No scores yet"}
	}
	lines := make([]string, 0, len(entries))
	for i, entry := range entries {
		name := entry.Name
		if name == "" {
			name = DefaultName
		}
		lines = append(lines, fmt.Sprintf("%d. %s — %d", i+1, name, entry.Score))
	}
	return lines
}
