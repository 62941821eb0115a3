package asr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
)

const registryBase = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// Preference order used when the configured model is missing: smallest and
// fastest first.
var discoveryOrder = []string{
	"ggml-tiny.bin",
	"ggml-tiny-q8_0.bin",
	"ggml-tiny-q5_1.bin",
	"ggml-tiny.en.bin",
	"ggml-tiny.en-q8_0.bin",
	"ggml-tiny.en-q5_1.bin",
	"ggml-base.bin",
	"ggml-base-q8_0.bin",
	"ggml-base-q5_1.bin",
	"ggml-base.en.bin",
	"ggml-base.en-q8_0.bin",
	"ggml-base.en-q5_1.bin",
	"ggml-small.bin",
	"ggml-small-q8_0.bin",
	"ggml-small-q5_1.bin",
	"ggml-small.en.bin",
	"ggml-small.en-q8_0.bin",
	"ggml-small.en-q5_1.bin",
	"ggml-medium.bin",
	"ggml-medium-q8_0.bin",
	"ggml-medium-q5_0.bin",
	"ggml-medium.en.bin",
	"ggml-medium.en-q8_0.bin",
	"ggml-medium.en-q5_0.bin",
	"ggml-large-v3-turbo.bin",
	"ggml-large-v3-turbo-q8_0.bin",
	"ggml-large-v3-turbo-q5_0.bin",
	"ggml-large-v3.bin",
	"ggml-large-v3-q5_0.bin",
	"ggml-large-v2.bin",
	"ggml-large-v2-q8_0.bin",
	"ggml-large-v2-q5_0.bin",
	"ggml-large-v1.bin",
}

// KnownModels returns the downloadable model names, sorted.
func KnownModels() []string {
	names := append([]string(nil), discoveryOrder...)
	sort.Strings(names)
	return names
}

// ModelURL returns the download URL for a known model name.
func ModelURL(name string) (string, bool) {
	for _, n := range discoveryOrder {
		if n == name {
			return registryBase + name, true
		}
	}
	return "", false
}

// ModelDir is where downloaded models live.
func ModelDir(stateDir string) string {
	return filepath.Join(stateDir, "models")
}

// Discover returns the first model from the preference list present in any
// of dirs, searching dirs in order for each name.
func Discover(dirs ...string) (string, bool) {
	for _, name := range discoveryOrder {
		for _, d := range dirs {
			p := filepath.Join(d, name)
			if st, err := os.Stat(p); err == nil && !st.IsDir() {
				return p, true
			}
		}
	}
	return "", false
}

// ResolveModel returns path if it exists, otherwise the first discovered
// model next to it or in the working directory.
func ResolveModel(path string) (string, error) {
	if path != "" {
		if st, err := os.Stat(path); err == nil && !st.IsDir() {
			return path, nil
		}
	}
	dirs := []string{"."}
	if path != "" {
		dirs = append([]string{filepath.Dir(path)}, dirs...)
	}
	if found, ok := Discover(dirs...); ok {
		return found, nil
	}
	return "", fmt.Errorf("%w: %s (run `earshot models download <name>`)", ErrModelNotFound, path)
}

// Download fetches url into dest via a .part file.
func Download(ctx context.Context, client *http.Client, url, dest string) error {
	if client == nil {
		client = http.DefaultClient
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}
	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		return errors.Join(err, os.Remove(tmp))
	}
	return os.Rename(tmp, dest)
}
