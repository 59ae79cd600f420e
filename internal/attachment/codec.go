// Package attachment decodes inbound file attachments delivered as base64
// data URIs into raw byte buffers with size and type bounds.
package attachment

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeErrorKind classifies why an attachment failed to decode.
type DecodeErrorKind string

const (
	// TooLarge means the decoded payload exceeds the configured ceiling.
	TooLarge DecodeErrorKind = "too_large"
	// MalformedEncoding means the base64 content could not be decoded.
	MalformedEncoding DecodeErrorKind = "malformed_encoding"
	// UnsupportedType means the URI scheme or media-type prefix is not supported.
	UnsupportedType DecodeErrorKind = "unsupported_type"
)

// DecodeError describes a per-attachment decode failure.
type DecodeError struct {
	Name string
	Kind DecodeErrorKind
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("attachment %q: %s: %v", e.Name, e.Kind, e.Err)
	}
	return fmt.Sprintf("attachment %q: %s", e.Name, e.Kind)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Attachment is an inbound file reference: a name and a data URI.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// File is a decoded attachment.
type File struct {
	Name  string
	Bytes []byte
}

// Codec decodes attachments with a configurable size ceiling.
// Decoding is pure: the codec never mutates its input.
type Codec struct {
	maxBytes int
}

// NewCodec creates a Codec. maxBytes <= 0 means no ceiling.
func NewCodec(maxBytes int) *Codec {
	return &Codec{maxBytes: maxBytes}
}

// Decode decodes a single attachment. Only base64 data URIs are supported;
// remote locators are rejected as UnsupportedType.
func (c *Codec) Decode(a Attachment) ([]byte, error) {
	if !strings.HasPrefix(a.URL, "data:") {
		return nil, &DecodeError{Name: a.Name, Kind: UnsupportedType, Err: fmt.Errorf("not a data URI")}
	}

	meta, content, ok := strings.Cut(a.URL, ",")
	if !ok {
		return nil, &DecodeError{Name: a.Name, Kind: MalformedEncoding, Err: fmt.Errorf("missing data separator")}
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, &DecodeError{Name: a.Name, Kind: UnsupportedType, Err: fmt.Errorf("only base64 data URIs are supported")}
	}

	// Strict decoding: any corrupted character is an error, never truncation.
	raw, err := base64.StdEncoding.Strict().DecodeString(content)
	if err != nil {
		return nil, &DecodeError{Name: a.Name, Kind: MalformedEncoding, Err: err}
	}

	if c.maxBytes > 0 && len(raw) > c.maxBytes {
		return nil, &DecodeError{
			Name: a.Name,
			Kind: TooLarge,
			Err:  fmt.Errorf("%d bytes exceeds ceiling of %d", len(raw), c.maxBytes),
		}
	}
	return raw, nil
}

// DecodeAll decodes every attachment in order. The first failure is returned;
// a request whose attachments cannot be decoded cannot be honored.
func (c *Codec) DecodeAll(atts []Attachment) ([]File, error) {
	var files []File
	for _, a := range atts {
		raw, err := c.Decode(a)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Name: a.Name, Bytes: raw})
	}
	return files, nil
}

// Encode builds a base64 data URI for the given bytes. Used by tests and
// tooling; Decode(Encode(b)) returns b exactly.
func Encode(mediaType string, b []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(b)
}
