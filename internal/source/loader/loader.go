package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-tplc/pkg/source"
)

// Loader implements source.Loader by delegating to file, fs.FS, or HTTP
// strategies.
type Loader struct {
	fs        fs.FS
	http      *http.Client
	allowHTTP bool
	timeout   time.Duration
}

var _ source.Loader = (*Loader)(nil)

// New constructs a Loader from pre-resolved options.
func New(options source.LoaderOptions) *Loader {
	timeout := options.RequestTimeout

	var httpClient *http.Client
	switch {
	case options.HTTPClient != nil:
		clone := *options.HTTPClient
		if timeout > 0 && clone.Timeout == 0 {
			clone.Timeout = timeout
		}
		httpClient = &clone
	case options.AllowHTTPFallback:
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Loader{
		fs:        options.FileSystem,
		http:      httpClient,
		allowHTTP: httpClient != nil,
		timeout:   timeout,
	}
}

// Load reads the template text behind src. A leading UTF-8 byte order mark
// is stripped and bodies that are not valid UTF-8 are rejected. Errors carry
// the location and keep their cause for errors.Is.
func (l *Loader) Load(ctx context.Context, src source.Source) (source.Document, error) {
	if src == nil {
		return source.Document{}, errors.New("source loader: source is nil")
	}

	data, err := l.fetch(ctx, src)
	if err != nil {
		return source.Document{}, fmt.Errorf("source loader: %s: %w", src.Location(), err)
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return source.Document{}, fmt.Errorf("source loader: %s: template is not valid UTF-8", src.Location())
	}
	return source.NewDocument(src, data)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func (l *Loader) fetch(ctx context.Context, src source.Source) ([]byte, error) {
	switch src.Kind() {
	case source.KindFile:
		return loadFile(ctx, src.Location())
	case source.KindFS:
		return loadFromFS(ctx, l.fs, src.Location())
	case source.KindURL:
		if !l.allowHTTP {
			return nil, errors.New("http support disabled")
		}
		return loadHTTP(ctx, l.http, src.Location(), l.timeout)
	default:
		return nil, fmt.Errorf("unsupported source kind %q", src.Kind())
	}
}
