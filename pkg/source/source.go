// Package source turns local files, buffers, remote URLs and S3 objects into
// documents ready to enqueue.
package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Document is a file ready to be sent. Either Bytes or URL is set; a URL
// document is passed to the API by reference and never downloaded.
type Document struct {
	Filename string
	Bytes    []byte
	MimeType string
	URL      string
}

// IsRemote reports a URL document.
func (d *Document) IsRemote() bool {
	return d.URL != ""
}

// InputSource yields a document on demand.
type InputSource interface {
	// Open reads the document. It may block on I/O.
	Open(ctx context.Context) (*Document, error)

	// Describe names the source for logs and batch records.
	Describe() string
}

// SupportedMimeTypes lists the document types the API accepts.
var SupportedMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"image/tiff":      true,
	"image/heic":      true,
}

// DetectMimeType guesses a MIME type from the file extension, falling back
// to content sniffing.
func DetectMimeType(filename string, content []byte) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		switch ext {
		case ".heic":
			return "image/heic"
		case ".tif", ".tiff":
			return "image/tiff"
		case ".jpg", ".jpeg":
			return "image/jpeg"
		}
		if t := mime.TypeByExtension(ext); t != "" {
			if mediaType, _, err := mime.ParseMediaType(t); err == nil {
				return mediaType
			}
		}
	}
	if len(content) > 0 {
		if mediaType, _, err := mime.ParseMediaType(http.DetectContentType(content)); err == nil {
			return mediaType
		}
	}
	return "application/octet-stream"
}

func newDocument(op, desc, filename string, content []byte) (*Document, error) {
	if filename == "" {
		return nil, &SourceError{Op: op, Source: desc, Err: fmt.Errorf("%w: filename is required", ErrInvalidSource)}
	}
	if len(content) == 0 {
		return nil, &SourceError{Op: op, Source: desc, Err: fmt.Errorf("%w: document is empty", ErrInvalidSource)}
	}
	mt := DetectMimeType(filename, content)
	if !SupportedMimeTypes[mt] {
		return nil, &SourceError{Op: op, Source: desc, Err: fmt.Errorf("%w: %s", ErrUnsupportedType, mt)}
	}
	return &Document{Filename: filename, Bytes: content, MimeType: mt}, nil
}

// PathInputSource reads a local file.
type PathInputSource struct {
	Path string
}

// NewPathInputSource returns a source for a local file.
func NewPathInputSource(path string) *PathInputSource {
	return &PathInputSource{Path: path}
}

// Open implements InputSource.
func (s *PathInputSource) Open(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &SourceError{Op: "Open", Source: s.Path, Err: ErrNotFound}
		}
		if os.IsPermission(err) {
			return nil, &SourceError{Op: "Open", Source: s.Path, Err: ErrAccessDenied}
		}
		return nil, &SourceError{Op: "Open", Source: s.Path, Err: err}
	}
	return newDocument("Open", s.Path, filepath.Base(s.Path), content)
}

// Describe implements InputSource.
func (s *PathInputSource) Describe() string {
	return s.Path
}

// BytesInputSource wraps an in-memory buffer.
type BytesInputSource struct {
	Filename string
	Content  []byte
}

// NewBytesInputSource returns a source for an in-memory document.
func NewBytesInputSource(content []byte, filename string) *BytesInputSource {
	return &BytesInputSource{Filename: filename, Content: content}
}

// Open implements InputSource.
func (s *BytesInputSource) Open(context.Context) (*Document, error) {
	return newDocument("Open", s.Filename, s.Filename, s.Content)
}

// Describe implements InputSource.
func (s *BytesInputSource) Describe() string {
	return "bytes:" + s.Filename
}

// Base64InputSource decodes a base64 (standard alphabet) document.
type Base64InputSource struct {
	Filename string
	Data     string
}

// NewBase64InputSource returns a source for a base64-encoded document.
func NewBase64InputSource(data, filename string) *Base64InputSource {
	return &Base64InputSource{Filename: filename, Data: data}
}

// Open implements InputSource.
func (s *Base64InputSource) Open(context.Context) (*Document, error) {
	content, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s.Data))
	if err != nil {
		return nil, &SourceError{Op: "Open", Source: s.Describe(), Err: fmt.Errorf("%w: %v", ErrInvalidSource, err)}
	}
	return newDocument("Open", s.Describe(), s.Filename, content)
}

// Describe implements InputSource.
func (s *Base64InputSource) Describe() string {
	return "base64:" + s.Filename
}

// URLInputSource refers to a publicly reachable HTTPS document.
type URLInputSource struct {
	URL string
}

// NewURLInputSource returns a source for a remote document.
func NewURLInputSource(rawURL string) *URLInputSource {
	return &URLInputSource{URL: rawURL}
}

// Open implements InputSource. Only the URL is validated; nothing is fetched.
func (s *URLInputSource) Open(context.Context) (*Document, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return nil, &SourceError{Op: "Open", Source: s.URL, Err: fmt.Errorf("%w: %v", ErrInvalidSource, err)}
	}
	if u.Scheme != "https" || u.Host == "" {
		return nil, &SourceError{Op: "Open", Source: s.URL, Err: fmt.Errorf("%w: URL must be absolute https", ErrInvalidSource)}
	}
	return &Document{Filename: filepath.Base(u.Path), URL: u.String()}, nil
}

// Describe implements InputSource.
func (s *URLInputSource) Describe() string {
	return s.URL
}
