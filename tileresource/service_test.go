package tileresource

import (
	"context"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func twoByTwoPNG(t *testing.T) []byte {
	t.Helper()
	img := newTestImage(2, 2)
	var buf testBuffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.data
}

func TestGetTileImageServesFromDiskWhenNetworkDisabled(t *testing.T) {
	dir := t.TempDir()
	data := twoByTwoPNG(t)
	if err := os.WriteFile(dir+"/"+base64Name("grass"), data, 0o644); err != nil {
		t.Fatalf("seed disk cache: %v", err)
	}

	svc, err := New(Options{DiskCacheDir: dir})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	tex := svc.GetTileImage(context.Background(), "grass")
	if tex == nil {
		t.Fatal("expected texture from disk cache")
	}
	if tex.Width != 2 || tex.Height != 2 {
		t.Fatalf("unexpected dims %dx%d", tex.Width, tex.Height)
	}
}

func TestGetTileImageUnresolvedReturnsNilAndRecordsError(t *testing.T) {
	svc, err := New(Options{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	tex := svc.GetTileImage(context.Background(), "nope")
	if tex != nil {
		t.Fatal("expected nil texture for unresolved resource")
	}
	if svc.FirstNetworkError() == nil {
		t.Fatal("expected first network error to be recorded")
	}
}

func TestGetTileImageFetchesFromNetworkAndCaches(t *testing.T) {
	data := twoByTwoPNG(t)
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write(data)
	}))
	defer server.Close()

	svc, err := New(Options{DiskCacheDir: t.TempDir(), BaseURL: server.URL, FetchRPS: 50})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	tex1 := svc.GetTileImage(context.Background(), "wood")
	tex2 := svc.GetTileImage(context.Background(), "wood")
	if tex1 == nil || tex2 == nil {
		t.Fatal("expected textures from network fetch")
	}
	if hits != 1 {
		t.Fatalf("expected exactly one network hit (second served from memory cache), got %d", hits)
	}
}

func TestClearMemoryCacheForcesDiskReload(t *testing.T) {
	dir := t.TempDir()
	data := twoByTwoPNG(t)
	os.WriteFile(dir+"/"+base64Name("stone"), data, 0o644)

	svc, err := New(Options{DiskCacheDir: dir})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if svc.GetTileImage(context.Background(), "stone") == nil {
		t.Fatal("expected initial resolve")
	}
	svc.ClearMemoryCache()
	if svc.GetTileImage(context.Background(), "stone") == nil {
		t.Fatal("expected resolve after memory cache clear")
	}
}

func TestPrefetchReportsEveryResource(t *testing.T) {
	svc, err := New(Options{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	var reports []PrefetchProgress
	svc.Prefetch(context.Background(), []string{"a", "b", "c"}, func(p PrefetchProgress) {
		reports = append(reports, p)
	})
	if len(reports) != 3 {
		t.Fatalf("expected 3 progress reports, got %d", len(reports))
	}
	for _, r := range reports {
		if r.Resolved {
			t.Fatalf("expected unresolved report for %s with no disk/network source", r.ResourceName)
		}
	}
}
