package restclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"mercator-hq/courier/pkg/settings"
)

// Content encodings understood by the compression extension.
const (
	EncodingGzip    = "gzip"
	EncodingDeflate = "deflate"
	EncodingZstd    = "zstd"
)

// AcceptEncoding is sent on requests that do not set Accept-Encoding.
const AcceptEncoding = "gzip, deflate, zstd"

// Properties read by the compression extension.
const (
	// PropertyCompressionEnabled disables the extension when "false"
	PropertyCompressionEnabled = "compression.enabled"

	// PropertyCompressionRequest compresses request bodies with the named encoding
	PropertyCompressionRequest = "compression.request"
)

type compressionExtension struct{}

// CompressionExtension negotiates compressed responses and decodes them.
// It is registered on every client.
func CompressionExtension() settings.Extension {
	return compressionExtension{}
}

func (compressionExtension) Name() string { return "compression" }

func (compressionExtension) Configure(b *settings.TransportBuilder) error {
	if v, ok := b.Property(PropertyCompressionEnabled); ok && strings.EqualFold(v, "false") {
		return nil
	}

	requestEncoding := ""
	if v, ok := b.Property(PropertyCompressionRequest); ok && v != "" {
		requestEncoding = strings.ToLower(v)
		switch requestEncoding {
		case EncodingGzip, EncodingDeflate, EncodingZstd:
		default:
			return &settings.ConfigurationError{
				Field:   PropertyCompressionRequest,
				Message: fmt.Sprintf("unsupported encoding %q", v),
			}
		}
	}

	b.Use(func(next http.RoundTripper) http.RoundTripper {
		return settings.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return roundTripCompressed(next, req, requestEncoding)
		})
	})
	return nil
}

func roundTripCompressed(next http.RoundTripper, req *http.Request, requestEncoding string) (*http.Response, error) {
	negotiate := req.Header.Get("Accept-Encoding") == ""
	compressBody := requestEncoding != "" && req.Body != nil && req.Body != http.NoBody &&
		req.Header.Get("Content-Encoding") == ""

	out := req
	if negotiate || compressBody {
		out = req.Clone(req.Context())
	}
	if negotiate {
		out.Header.Set("Accept-Encoding", AcceptEncoding)
	}
	if compressBody {
		if err := encodeRequestBody(out, requestEncoding); err != nil {
			return nil, err
		}
	}

	resp, err := next.RoundTrip(out)
	if err != nil || !negotiate {
		return resp, err
	}

	if err := decodeResponseBody(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func encodeRequestBody(req *http.Request, encoding string) error {
	raw, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}

	var buf bytes.Buffer
	var w io.WriteCloser
	switch encoding {
	case EncodingGzip:
		w = gzip.NewWriter(&buf)
	case EncodingDeflate:
		w = zlib.NewWriter(&buf)
	case EncodingZstd:
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			return fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		w = zw
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("failed to compress request body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to compress request body: %w", err)
	}

	data := buf.Bytes()
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-Encoding", encoding)
	return nil
}

// decodeResponseBody replaces a compressed body with a decoding reader.
// Unknown encodings are passed through untouched.
func decodeResponseBody(resp *http.Response) error {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	if encoding == "" || resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotModified ||
		(resp.Request != nil && resp.Request.Method == http.MethodHead) {
		return nil
	}

	var (
		decoded io.ReadCloser
		err     error
	)
	switch encoding {
	case EncodingGzip, "x-gzip":
		decoded, err = gzip.NewReader(resp.Body)
	case EncodingDeflate:
		decoded, err = zlib.NewReader(resp.Body)
	case EncodingZstd:
		var d *zstd.Decoder
		d, err = zstd.NewReader(resp.Body)
		if err == nil {
			decoded = d.IOReadCloser()
		}
	default:
		return nil
	}
	if errors.Is(err, io.EOF) {
		// Empty body despite the header.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to decode %s response: %w", encoding, err)
	}

	resp.Body = &decodedBody{ReadCloser: decoded, raw: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// decodedBody closes both the decoder and the underlying body.
type decodedBody struct {
	io.ReadCloser
	raw io.ReadCloser
}

func (b *decodedBody) Close() error {
	err := b.ReadCloser.Close()
	if rawErr := b.raw.Close(); err == nil {
		err = rawErr
	}
	return err
}
