package export_test

import (
	"bytes"
	"context"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	objmem "pawtrace-qr/internal/adapters/objstore/memory"
	"pawtrace-qr/internal/adapters/storage/memory"
	"pawtrace-qr/internal/domain/export"
	"pawtrace-qr/internal/domain/pool"

	"github.com/go-chi/chi/v5"
)

func TestCodePNGDownload_CachesRasterInObjectStorage(t *testing.T) {
	repo := memory.NewPoolRepo()
	seedRepo(t, repo, []string{"ab3"}, pool.TagDog)

	store := objmem.NewStore("https://cdn.pawtrace.app")
	svc := export.NewService(repo, "https://pawtrace.app", nil)

	r := chi.NewRouter()
	export.RegisterRoutes(r, svc, store, nil)
	ts := httptest.NewServer(r)
	defer ts.Close()

	res, err := http.Get(ts.URL + "/codes/ab3/qr.png?size=256")
	if err != nil {
		t.Fatalf("get png: %v", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", res.StatusCode, string(body))
	}
	if ct := res.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if _, err := png.Decode(bytes.NewReader(body)); err != nil {
		t.Fatalf("response is not a png: %v", err)
	}

	// El raster queda cacheado en object storage y la entrada apunta a la
	// URL pública: las vistas repetidas no re-renderizan.
	getter, ok := store.(interface{ Get(string) ([]byte, bool) })
	if !ok {
		t.Fatal("memory store lost its Get helper")
	}
	cached, ok := getter.Get("qr/square-ab3.png")
	if !ok {
		t.Fatal("raster was not cached in object storage")
	}
	if !bytes.Equal(cached, body) {
		t.Fatal("cached raster differs from the served download")
	}

	e, err := repo.GetByShortID(context.Background(), "ab3")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if e.QRURL != "https://cdn.pawtrace.app/qr/square-ab3.png" {
		t.Fatalf("unexpected cached raster url %q", e.QRURL)
	}
}

func TestCodePNGDownload_UnknownShortID(t *testing.T) {
	svc := export.NewService(memory.NewPoolRepo(), "https://pawtrace.app", nil)

	r := chi.NewRouter()
	export.RegisterRoutes(r, svc, objmem.NewStore("https://cdn.pawtrace.app"), nil)
	ts := httptest.NewServer(r)
	defer ts.Close()

	res, err := http.Get(ts.URL + "/codes/nope/qr.png")
	if err != nil {
		t.Fatalf("get png: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown code, got %d", res.StatusCode)
	}
}
