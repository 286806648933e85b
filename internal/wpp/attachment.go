package wpp

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

const dataURIPrefix = "data:"

// extraMimeTypes covers extensions the system table often misses.
var extraMimeTypes = map[string]string{
	"webp": "image/webp",
	"heic": "image/heic",
	"opus": "audio/ogg",
	"ogg":  "audio/ogg",
	"mp3":  "audio/mpeg",
	"mp4":  "video/mp4",
	"txt":  "text/plain",
	"csv":  "text/csv",
}

// Attachment is a file ready to be handed to the page.
type Attachment struct {
	Path     string
	Filename string
	MimeType string
	Data     string // data:<mime>;base64,<payload>
}

// EncodeFile reads the whole file at path into a data URI.
func EncodeFile(path string) (*Attachment, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}

	mimeType := MimeTypeByExtension(path)
	if mimeType == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMimeType, path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFileNotFound, path, err)
	}

	return &Attachment{
		Path:     path,
		Filename: filepath.Base(path),
		MimeType: mimeType,
		Data:     EncodeDataURI(mimeType, raw),
	}, nil
}

// EncodeDataURI builds data:<mime>;base64,<payload>.
func EncodeDataURI(mimeType string, raw []byte) string {
	return dataURIPrefix + mimeType + ";base64," + base64.StdEncoding.EncodeToString(raw)
}

// MimeTypeByExtension resolves the media type of path without parameters,
// or "" when the extension is unknown.
func MimeTypeByExtension(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return ""
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
		return t
	}
	return extraMimeTypes[strings.TrimPrefix(ext, ".")]
}

// MimeTypeOf extracts the declared type from a data URI header.
func MimeTypeOf(encoded string) string {
	header, _, found := strings.Cut(encoded, ";base64")
	if !found {
		return ""
	}
	_, mt, found := strings.Cut(header, ":")
	if !found {
		return ""
	}
	return strings.TrimSpace(mt)
}

// IsDataURI reports whether s is an already encoded payload rather than a path.
func IsDataURI(s string) bool {
	return strings.HasPrefix(s, dataURIPrefix)
}

// IsImage reports whether the top-level type of mimeType is image.
func IsImage(mimeType string) bool {
	top, _, _ := strings.Cut(mimeType, "/")
	return strings.EqualFold(top, "image")
}
