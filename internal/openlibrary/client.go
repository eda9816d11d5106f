// Package openlibrary предоставляет клиент для получения метаданных книг из Open Library.
package openlibrary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL    = "https://openlibrary.org"
	defaultMaxRetries = 3
	defaultRetryAfter = time.Second
	userAgent         = "library-system/1.0"
)

var (
	// ErrNotFound возвращается, если Open Library не знает ISBN.
	ErrNotFound = errors.New("isbn not found in open library")
	// ErrRateLimited возвращается, когда повторы после 429 исчерпаны.
	ErrRateLimited = errors.New("open library rate limit exceeded")
)

// Client инкапсулирует HTTP-взаимодействие с Open Library.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// Edition описывает издание, найденное по ISBN.
type Edition struct {
	Title       string  `json:"title"`
	Subtitle    string  `json:"subtitle"`
	PublishDate string  `json:"publish_date"`
	Authors     []Named `json:"authors"`
	Subjects    []Named `json:"subjects"`
	Publishers  []Named `json:"publishers"`
}

// Named описывает элемент списка Open Library с именем.
type Named struct {
	Name string `json:"name"`
}

// AuthorName возвращает имя первого автора или пустую строку.
func (e *Edition) AuthorName() string {
	if len(e.Authors) == 0 {
		return ""
	}
	return e.Authors[0].Name
}

// Subject возвращает первую тему издания или пустую строку.
func (e *Edition) Subject() string {
	if len(e.Subjects) == 0 {
		return ""
	}
	return e.Subjects[0].Name
}

// NewClient создаёт клиент Open Library. rps ограничивает частоту исходящих запросов.
func NewClient(baseURL string, rps float64) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if rps <= 0 {
		rps = 1
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		maxRetries: defaultMaxRetries,
	}
}

// GetEdition выполняет один запрос по ISBN. При 429 возвращает код ответа и задержку из Retry-After.
func (c *Client) GetEdition(ctx context.Context, isbn string) (*Edition, int, time.Duration, error) {
	if c == nil || c.baseURL == "" {
		return nil, 0, 0, fmt.Errorf("open library client not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, 0, err
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	bibkey := "ISBN:" + isbn
	q := url.Values{}
	q.Set("bibkeys", bibkey)
	q.Set("jscmd", "data")
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/books?"+q.Encode(), nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := defaultRetryAfter
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, resp.StatusCode, retryAfter, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result map[string]Edition
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("decode response: %w", err)
	}

	edition, ok := result[bibkey]
	if !ok || edition.Title == "" {
		return nil, resp.StatusCode, 0, ErrNotFound
	}

	return &edition, resp.StatusCode, 0, nil
}

// Lookup запрашивает издание по ISBN, выдерживая паузы Retry-After при ответах 429.
func (c *Client) Lookup(ctx context.Context, isbn string) (*Edition, error) {
	for attempt := 0; ; attempt++ {
		edition, code, retryAfter, err := c.GetEdition(ctx, isbn)
		if err != nil {
			return nil, err
		}
		if code != http.StatusTooManyRequests {
			return edition, nil
		}
		if attempt >= c.maxRetries {
			return nil, ErrRateLimited
		}

		timer := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
