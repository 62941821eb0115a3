package asr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("ggml"), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestResolveModelPrefersConfiguredPath(t *testing.T) {
	dir := t.TempDir()
	want := filepath.Join(dir, "custom.bin")
	touch(t, want)
	touch(t, filepath.Join(dir, "ggml-tiny.bin"))
	got, err := ResolveModel(want)
	if err != nil || got != want {
		t.Fatalf("ResolveModel = %q, %v", got, err)
	}
}

func TestResolveModelDiscoversInPreferenceOrder(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "ggml-small.bin"))
	touch(t, filepath.Join(dir, "ggml-base-q5_1.bin"))
	got, err := ResolveModel(filepath.Join(dir, "missing.bin"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if filepath.Base(got) != "ggml-base-q5_1.bin" {
		t.Fatalf("discovered %s, want ggml-base-q5_1.bin", got)
	}
}

func TestResolveModelNotFound(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := ResolveModel(filepath.Join(t.TempDir(), "nope.bin"))
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("err = %v, want ErrModelNotFound", err)
	}
}

func TestModelURL(t *testing.T) {
	if u, ok := ModelURL("ggml-base.en.bin"); !ok || u != registryBase+"ggml-base.en.bin" {
		t.Fatalf("ModelURL = %q %v", u, ok)
	}
	if _, ok := ModelURL("ggml-huge.bin"); ok {
		t.Fatalf("unknown model resolved")
	}
	if len(KnownModels()) != len(discoveryOrder) {
		t.Fatalf("KnownModels length mismatch")
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("model-bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "models", "m.bin")
	if err := Download(context.Background(), srv.Client(), srv.URL+"/m.bin", dest); err != nil {
		t.Fatalf("download: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "model-bytes" {
		t.Fatalf("downloaded %q, %v", data, err)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Fatalf("partial file left behind")
	}
	if err := Download(context.Background(), srv.Client(), srv.URL+"/missing", dest+"2"); err == nil {
		t.Fatalf("expected error on 404")
	}
}
