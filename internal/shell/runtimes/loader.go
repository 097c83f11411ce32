// Package runtimes loads the runtime catalog a platform advertises and keeps
// it for the life of the process, one entry per API host.
package runtimes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	coreruntimes "github.com/artpar/fndeploy/internal/core/runtimes"
)

// APIPath is where the platform describes itself.
const APIPath = "/api/v1"

// Loader fetches the runtime catalog of an API host.
type Loader struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewLoader creates a loader. A nil httpClient gets a 30 second timeout.
func NewLoader(httpClient *http.Client, logger *slog.Logger) *Loader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{httpClient: httpClient, logger: logger.With("component", "runtimes")}
}

// Load fetches and validates the "runtimes" member of <apihost>/api/v1.
func (l *Loader) Load(ctx context.Context, apihost string) (coreruntimes.Config, error) {
	host := strings.TrimRight(apihost, "/")
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	target := host + APIPath
	l.logger.Debug("loading runtimes", "url", target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: GET %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("http request failed (%s) with status %d: %s", target, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var doc struct {
		Runtimes coreruntimes.Config `json:"runtimes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid runtime JSON received from platform API %s: %w", apihost, err)
	}
	if err := doc.Runtimes.Validate(); err != nil {
		return nil, fmt.Errorf("invalid runtime JSON received from platform API %s: %w", apihost, err)
	}
	return doc.Runtimes, nil
}

// =============================================================================
// Cache
// =============================================================================

// fetcher is satisfied by *Loader.
type fetcher interface {
	Load(ctx context.Context, apihost string) (coreruntimes.Config, error)
}

type cacheEntry struct {
	config   coreruntimes.Config
	loadedAt time.Time
}

// Cache holds one catalog per API host. Entries older than ttl are reloaded;
// a zero ttl keeps entries until Reset.
type Cache struct {
	loader fetcher
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCache creates a cache in front of loader. A nil now uses time.Now.
func NewCache(loader fetcher, ttl time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{loader: loader, ttl: ttl, now: now, entries: map[string]cacheEntry{}}
}

// Runtimes returns the catalog of apihost, loading it when absent or stale.
func (c *Cache) Runtimes(ctx context.Context, apihost string) (coreruntimes.Config, error) {
	if apihost == "" {
		return nil, fmt.Errorf("missing API host in credentials")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[apihost]; ok && (c.ttl == 0 || c.now().Sub(e.loadedAt) < c.ttl) {
		return e.config, nil
	}
	cfg, err := c.loader.Load(ctx, apihost)
	if err != nil {
		return nil, err
	}
	c.entries[apihost] = cacheEntry{config: cfg, loadedAt: c.now()}
	return cfg, nil
}

// Reset drops every entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]cacheEntry{}
}
