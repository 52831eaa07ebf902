// Package tileresource resolves tileset resource names into owned RGBA
// textures, through a two-tier (disk + bounded in-memory) cache
// fronting a rate-limited network fetch.
package tileresource

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"mapimport/model"
	"mapimport/render"
)

const memoryCacheMaxItems = 2000

// Service is safe for concurrent use by multiple rendering producers.
type Service struct {
	diskCacheDir string
	baseURL      string
	httpClient   *http.Client
	limiter      *RateLimiter

	mu       sync.Mutex
	mem      *ristretto.Cache[string, *decodedImage]
	firstErr error
}

type decodedImage struct {
	pix    []byte
	width  int
	height int
}

// Options configures a new Service.
type Options struct {
	DiskCacheDir string
	BaseURL      string // network origin prefix for a resource name
	HTTPTimeout  time.Duration
	FetchRPS     int
}

// New builds a tile resource service. An empty BaseURL disables
// network fetch entirely (every unresolved resource becomes null).
func New(opts Options) (*Service, error) {
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 12 * time.Second
	}
	s := &Service{
		diskCacheDir: opts.DiskCacheDir,
		baseURL:      opts.BaseURL,
		limiter:      NewRateLimiter(opts.FetchRPS),
		httpClient: &http.Client{
			Timeout: opts.HTTPTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 16,
				MaxConnsPerHost:     16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	if err := s.resetMemoryCache(); err != nil {
		return nil, err
	}
	if opts.DiskCacheDir != "" {
		if err := os.MkdirAll(opts.DiskCacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("tileresource: create disk cache dir: %w", err)
		}
	}
	return s, nil
}

// GetTileImage returns an owned clone of the named resource's texture,
// or nil if it could not be resolved. It never returns an error
// directly; network failures are recorded via FirstNetworkError.
func (s *Service) GetTileImage(ctx context.Context, resourceName string) *render.Texture {
	if img, ok := s.memGet(resourceName); ok {
		return img.clone()
	}

	img, err := s.loadFromDisk(resourceName)
	if err != nil {
		img, err = s.fetchFromNetwork(ctx, resourceName)
		if err != nil {
			s.recordNetworkError(resourceName, err)
			return nil
		}
	}

	s.memSet(resourceName, img)
	return img.clone()
}

// PrefetchProgress is reported once per resource in a Prefetch call.
type PrefetchProgress struct {
	ResourceName string
	Index        int
	Total        int
	Resolved     bool
}

// Prefetch resolves every resource in list ahead of rendering,
// reporting progress as it goes. It never aborts on a single failure.
func (s *Service) Prefetch(ctx context.Context, list []string, report func(PrefetchProgress)) {
	for i, name := range list {
		img := s.GetTileImage(ctx, name)
		if report != nil {
			report(PrefetchProgress{ResourceName: name, Index: i, Total: len(list), Resolved: img != nil})
		}
	}
}

// FirstNetworkError returns the first fetch failure observed across
// this service's lifetime, or nil.
func (s *Service) FirstNetworkError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// ClearMemoryCache discards the in-memory tier. Called between
// segments; the disk tier is untouched.
func (s *Service) ClearMemoryCache() {
	_ = s.resetMemoryCache()
}

func (s *Service) resetMemoryCache() error {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *decodedImage]{
		NumCounters: memoryCacheMaxItems * 10,
		MaxCost:     int64(memoryCacheMaxItems),
		BufferItems: 64,
	})
	if err != nil {
		return fmt.Errorf("tileresource: build memory cache: %w", err)
	}
	s.mu.Lock()
	s.mem = cache
	s.mu.Unlock()
	return nil
}

func (s *Service) memGet(name string) (*decodedImage, bool) {
	s.mu.Lock()
	cache := s.mem
	s.mu.Unlock()
	cache.Wait()
	return cache.Get(name)
}

func (s *Service) memSet(name string, img *decodedImage) {
	s.mu.Lock()
	cache := s.mem
	s.mu.Unlock()
	cache.Set(name, img, 1)
	cache.Wait()
}

func (s *Service) recordNetworkError(resourceName string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstErr == nil {
		s.firstErr = &model.ResourceFetchError{ResourceName: resourceName, Err: err}
	}
}

func (s *Service) diskCachePath(resourceName string) string {
	key := base64.RawURLEncoding.EncodeToString([]byte(resourceName))
	return filepath.Join(s.diskCacheDir, key+".png")
}

func (s *Service) loadFromDisk(resourceName string) (*decodedImage, error) {
	if s.diskCacheDir == "" {
		return nil, fmt.Errorf("disk cache disabled")
	}
	data, err := os.ReadFile(s.diskCachePath(resourceName))
	if err != nil {
		return nil, err
	}
	return decodePNG(data)
}

func (s *Service) fetchFromNetwork(ctx context.Context, resourceName string) (*decodedImage, error) {
	if s.baseURL == "" {
		return nil, fmt.Errorf("no network base url configured")
	}
	url := s.baseURL + "/" + resourceName + ".png"

	val, err := s.limiter.Do(ctx, s.baseURL, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: status %s", url, resp.Status)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}
	data, _ := val.([]byte)

	img, err := decodePNG(data)
	if err != nil {
		return nil, err
	}
	if s.diskCacheDir != "" {
		_ = os.WriteFile(s.diskCachePath(resourceName), data, 0o644)
	}
	return img, nil
}

func decodePNG(data []byte) (*decodedImage, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			rgba.Set(x, y, img.At(x, y))
		}
	}
	return &decodedImage{pix: rgba.Pix, width: b.Dx(), height: b.Dy()}, nil
}

func (d *decodedImage) clone() *render.Texture {
	pix := make([]byte, len(d.pix))
	copy(pix, d.pix)
	return &render.Texture{Pix: pix, Width: d.width, Height: d.height}
}
