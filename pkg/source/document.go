package source

import (
	"errors"

	"github.com/cespare/xxhash/v2"
)

// Document wraps raw template text and its origin.
type Document struct {
	source Source
	raw    []byte
}

// NewDocument constructs a Document. Empty templates are valid.
func NewDocument(src Source, raw []byte) (Document, error) {
	if src == nil {
		return Document{}, errors.New("source: source is required")
	}
	clone := append([]byte(nil), raw...)
	return Document{source: src, raw: clone}, nil
}

// MustNewDocument panics if the document cannot be created. Useful for tests.
func MustNewDocument(src Source, raw []byte) Document {
	doc, err := NewDocument(src, raw)
	if err != nil {
		panic(err)
	}
	return doc
}

// Source returns the origin metadata for the document.
func (d Document) Source() Source {
	return d.source
}

// Raw returns a copy of the template bytes.
func (d Document) Raw() []byte {
	return append([]byte(nil), d.raw...)
}

// Text returns the template as a string.
func (d Document) Text() string {
	return string(d.raw)
}

// Location returns the string identifier for the origin.
func (d Document) Location() string {
	if d.source == nil {
		return ""
	}
	return d.source.Location()
}

// Fingerprint hashes the template bytes. Equal fingerprints mean a cached
// compilation is still current.
func (d Document) Fingerprint() uint64 {
	return xxhash.Sum64(d.raw)
}
