// Package scheme maps local files onto the synthetic http://absolute/ origin.
//
// Pages loaded from disk are served under one http origin so that relative
// resources and same-origin checks behave like they do for remote pages.
package scheme

import (
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Origin prefixes every rewritten local path.
const Origin = "http://absolute/"

var ErrNotLocal = errors.New("not a local file URL")

// EncodeLocalPath percent-encodes path and rewrites it under Origin. Both
// path separators are normalized to a forward slash.
func EncodeLocalPath(path string) string {
	encoded := url.PathEscape(path)
	encoded = strings.ReplaceAll(encoded, "%5C", "/")
	encoded = strings.ReplaceAll(encoded, "%2F", "/")
	return Origin + encoded
}

// IsLocal reports whether rawURL is under Origin.
func IsLocal(rawURL string) bool {
	return strings.HasPrefix(rawURL, Origin)
}

// DecodePath returns the file path a local URL refers to. Query strings and
// fragments are ignored.
func DecodePath(rawURL string) (string, error) {
	rest, ok := strings.CutPrefix(rawURL, Origin)
	if !ok {
		return "", ErrNotLocal
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	path, err := url.PathUnescape(rest)
	if err != nil {
		return "", fmt.Errorf("decode local path: %w", err)
	}
	return filepath.FromSlash(path), nil
}

// Resource is a local file read through the scheme.
type Resource struct {
	Path     string
	MIMEType string
	Data     []byte
}

// Read loads the file behind a local URL and detects its content type.
func Read(rawURL string) (*Resource, error) {
	path, err := DecodePath(rawURL)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &Resource{Path: path, MIMEType: DetectType(path, data), Data: data}, nil
}

// DetectType sniffs data. Plain-text results are refined by the file
// extension so stylesheets and scripts keep their type.
func DetectType(path string, data []byte) string {
	detected := mimetype.Detect(data)
	if !detected.Is("text/plain") {
		return detected.String()
	}
	if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
		return byExt
	}
	return detected.String()
}

// Resolve rewrites a relative reference found in a page loaded from base.
// References from local pages stay under Origin.
func Resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base: %w", err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse reference: %w", err)
	}
	return b.ResolveReference(r).String(), nil
}
