package transport

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strings"
)

// FilePart is a file attached to a multipart form.
type FilePart struct {
	FieldName   string
	Filename    string
	ContentType string
	Content     []byte
}

// Form is a multipart/form-data body under construction. Repeated keys are
// allowed (e.g., one "webhook_ids" entry per webhook).
type Form struct {
	fields map[string][]string
	files  []FilePart
}

// NewForm returns an empty form.
func NewForm() *Form {
	return &Form{fields: map[string][]string{}}
}

// Add appends a value under key.
func (f *Form) Add(key, value string) {
	f.fields[key] = append(f.fields[key], value)
}

// Values returns the values stored under key.
func (f *Form) Values(key string) []string {
	return f.fields[key]
}

// AttachFile adds a file part.
func (f *Form) AttachFile(p FilePart) {
	f.files = append(f.files, p)
}

// Encode renders the form. Text fields are written in key order, then files.
func (f *Form) Encode() (body []byte, contentType string, err error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(f.fields))
	for k := range f.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range f.fields[k] {
			if err := w.WriteField(k, v); err != nil {
				return nil, "", fmt.Errorf("write field %s: %w", k, err)
			}
		}
	}

	for _, p := range f.files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(p.FieldName), escapeQuotes(p.Filename)))
		ct := p.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create part %s: %w", p.FieldName, err)
		}
		if _, err := part.Write(p.Content); err != nil {
			return nil, "", fmt.Errorf("write part %s: %w", p.FieldName, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
