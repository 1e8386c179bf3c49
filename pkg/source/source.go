// Package source identifies where template sources come from and defines the
// Loader contract used to fetch them. Implementations live under
// internal/source/loader.
package source

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Source identifies where a template originated so loaders can operate on
// files, fs.FS entries, or URLs without leaking implementation details.
type Source interface {
	Kind() Kind
	Location() string
}

// Kind enumerates the loader modalities.
type Kind string

const (
	KindFile Kind = "file"
	KindFS   Kind = "fs"
	KindURL  Kind = "url"
)

type fileSource struct {
	path string
}

func (s fileSource) Location() string { return s.path }
func (s fileSource) Kind() Kind       { return KindFile }

// FromFile returns a Source pointing to a file path.
func FromFile(p string) Source {
	return fileSource{path: filepath.Clean(p)}
}

type fsSource struct {
	name string
}

func (s fsSource) Location() string { return s.name }
func (s fsSource) Kind() Kind       { return KindFS }

// FromFS returns a Source identifying a resource inside an fs.FS.
func FromFS(name string) Source {
	return fsSource{name: path.Clean(name)}
}

type urlSource struct {
	raw string
}

func (s urlSource) Location() string { return s.raw }
func (s urlSource) Kind() Kind       { return KindURL }

// FromURL parses the supplied URL string and returns a Source. It panics if
// the URL is invalid to surface configuration mistakes early.
func FromURL(raw string) Source {
	if raw == "" {
		panic("source: empty URL source")
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		panic(fmt.Sprintf("source: invalid URL %q: %v", raw, err))
	}
	return urlSource{raw: raw}
}

// Resolver maps a root-relative template name to a Source.
type Resolver func(name string) (Source, error)

// CleanName normalises a template name: forward slashes, no leading slash,
// no parent traversal.
func CleanName(name string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if trimmed == "" {
		return "", errors.New("source: template name is required")
	}
	cleaned := path.Clean(strings.TrimLeft(trimmed, "/"))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("source: template name %q escapes the root", name)
	}
	return cleaned, nil
}

// DirResolver resolves names below a directory on disk.
func DirResolver(root string) Resolver {
	return func(name string) (Source, error) {
		cleaned, err := CleanName(name)
		if err != nil {
			return nil, err
		}
		return FromFile(filepath.Join(root, filepath.FromSlash(cleaned))), nil
	}
}

// FSResolver resolves names inside the loader's fs.FS.
func FSResolver() Resolver {
	return func(name string) (Source, error) {
		cleaned, err := CleanName(name)
		if err != nil {
			return nil, err
		}
		return FromFS(cleaned), nil
	}
}

// URLResolver resolves names against a base URL.
func URLResolver(base string) (Resolver, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("source: invalid base URL %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("source: base URL %q must be absolute", base)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return func(name string) (Source, error) {
		cleaned, err := CleanName(name)
		if err != nil {
			return nil, err
		}
		ref, err := url.Parse(cleaned)
		if err != nil {
			return nil, fmt.Errorf("source: invalid template name %q: %w", name, err)
		}
		return FromURL(u.ResolveReference(ref).String()), nil
	}, nil
}
