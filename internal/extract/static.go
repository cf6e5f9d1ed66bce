package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StaticSource fetches a page once over plain HTTP and extracts its
// visible text. It cannot observe mutations: pages that render their
// content with scripts need the browser source instead.
type StaticSource struct {
	URL    string
	Client *http.Client
}

// NewStaticSource builds a source for the given URL with a bounded
// default client.
func NewStaticSource(url string) *StaticSource {
	return &StaticSource{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Snapshot fetches the page and returns its visible text. Transport and
// parse failures surface as errors; the stabilizer degrades them to an
// empty snapshot.
func (s *StaticSource) Snapshot(ctx context.Context) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return "", false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("fetch %s: %w", s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false, fmt.Errorf("fetch %s: status %d", s.URL, resp.StatusCode)
	}

	// The visible-text cap bounds useful input; reading a fixed multiple
	// of it tolerates markup overhead without trusting Content-Length.
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(MaxContentLength)*64))
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", s.URL, err)
	}

	text, truncated := VisibleTextFromHTML(string(body))
	return text, truncated, nil
}

// TextSource wraps already-extracted text (e.g. submitted directly by a
// client) in the Source interface.
type TextSource string

// Snapshot returns the wrapped text, applying the snapshot cap.
func (t TextSource) Snapshot(context.Context) (string, bool, error) {
	s := string(t)
	if len(s) > MaxContentLength {
		return truncate(s, MaxContentLength), true, nil
	}
	return s, false, nil
}
