package imageutil

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/m-mizutani/goerr/v2"

	"github.com/sherlock-kb/sherlock/internal/apperr"
)

var supportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Fetcher resolves an image source (http(s) URL or local file path) to raw
// bytes and a MIME type.
type Fetcher struct {
	client *resty.Client
}

// NewFetcher creates a Fetcher with the given request timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "sherlock-ingest/1.0")
	return &Fetcher{client: client}
}

// Fetch downloads or reads the image at source and validates its format.
func (f *Fetcher) Fetch(ctx context.Context, source string) ([]byte, string, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return f.fetchURL(ctx, source)
	}
	return f.fetchFile(source)
}

func (f *Fetcher) fetchURL(ctx context.Context, url string) ([]byte, string, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, "", goerr.Wrap(err, "failed to download image",
			goerr.T(apperr.TagTransient), goerr.V("url", url))
	}

	status := resp.StatusCode()
	switch {
	case status == http.StatusOK:
	case status == http.StatusTooManyRequests || status >= 500:
		return nil, "", goerr.New("image host returned retryable status",
			goerr.T(apperr.TagTransient), goerr.V("url", url), goerr.V("status", status))
	default:
		return nil, "", goerr.New("image host returned error status",
			goerr.T(apperr.TagValidation), goerr.V("url", url), goerr.V("status", status))
	}

	data := resp.Body()
	mime, err := Validate(data)
	if err != nil {
		return nil, "", err
	}
	return data, mime, nil
}

func (f *Fetcher) fetchFile(path string) ([]byte, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtensions[ext] {
		return nil, "", goerr.New("unsupported image extension",
			goerr.T(apperr.TagValidation), goerr.V("path", path), goerr.V("ext", ext))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", goerr.Wrap(err, "image file not found",
				goerr.T(apperr.TagNotFound), goerr.V("path", path))
		}
		return nil, "", goerr.Wrap(err, "failed to read image file", goerr.V("path", path))
	}

	mime, err := Validate(data)
	if err != nil {
		return nil, "", err
	}
	return data, mime, nil
}

// ListFolder returns the supported image files directly under dir, sorted by
// name.
func ListFolder(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, goerr.Wrap(err, "folder not found",
				goerr.T(apperr.TagNotFound), goerr.V("dir", dir))
		}
		return nil, goerr.Wrap(err, "failed to read folder", goerr.V("dir", dir))
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if supportedExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}
