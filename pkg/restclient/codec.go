package restclient

import (
	"encoding/json"
	"io"
	"mime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Codec encodes request payloads and decodes response payloads.
type Codec interface {
	// ContentType is the media type written to Content-Type
	ContentType() string

	// Encode writes v to w
	Encode(w io.Writer, v any) error

	// Decode reads r into v
	Decode(r io.Reader, v any) error
}

var (
	// JSONCodec handles application/json.
	JSONCodec Codec = jsonCodec{}

	// YAMLCodec handles application/yaml.
	YAMLCodec Codec = yamlCodec{}
)

type jsonCodec struct{}

func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Encode(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func (jsonCodec) Decode(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

type yamlCodec struct{}

func (yamlCodec) ContentType() string { return "application/yaml" }

func (yamlCodec) Encode(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func (yamlCodec) Decode(r io.Reader, v any) error {
	return yaml.NewDecoder(r).Decode(v)
}

// CodecFor picks a codec for a Content-Type header value. Unknown and
// missing media types fall back to JSON.
func CodecFor(contentType string) Codec {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return JSONCodec
	}
	switch {
	case mediaType == "application/yaml",
		mediaType == "application/x-yaml",
		mediaType == "text/yaml",
		strings.HasSuffix(mediaType, "+yaml"):
		return YAMLCodec
	default:
		return JSONCodec
	}
}
