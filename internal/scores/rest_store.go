package scores

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// RESTStore talks to a hosted PostgREST-style scores table.
type RESTStore struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewRESTStore targets {baseURL}/rest/v1/scores. A nil client gets a 5 s timeout.
func NewRESTStore(baseURL, apiKey string, client *http.Client) *RESTStore {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &RESTStore{
		endpoint: strings.TrimRight(baseURL, "/") + "/rest/v1/scores",
		apiKey:   apiKey,
		client:   client,
	}
}

// SaveScore inserts one row.
func (s *RESTStore) SaveScore(ctx context.Context, name string, score int) error {
	entry, err := Normalize(name, float64(score))
	if err != nil {
		return err
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "could not encode score")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "could not build score request")
	}
	s.decorate(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "could not submit score")
	}
	defer drain(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("score submission rejected with status %d", resp.StatusCode)
	}
	return nil
}

// TopScores fetches the best TopLimit rows ordered by score.
func (s *RESTStore) TopScores(ctx context.Context) ([]Entry, error) {
	url := s.endpoint + "?select=name,score&order=score.desc&limit=10"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not build leaderboard request")
	}
	s.decorate(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch leaderboard")
	}
	defer drain(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("leaderboard request failed with status %d", resp.StatusCode)
	}
	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, errors.Wrap(err, "could not decode leaderboard")
	}
	return Rank(entries, TopLimit), nil
}

func (s *RESTStore) decorate(req *http.Request) {
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
