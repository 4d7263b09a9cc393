package restclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
)

// StructuredErrorStatus is the status code services use to return a
// ServiceError body.
const StructuredErrorStatus = 520

// maxErrorBody bounds how much of an error body is read.
const maxErrorBody = 1 << 20

// CheckResponse classifies resp without decoding a success body.
// The body is always consumed and closed.
func CheckResponse(resp *http.Response) error {
	return DecodeInto(resp, nil)
}

// GetResponse decodes a success body into a new T, or classifies the failure.
func GetResponse[T any](resp *http.Response) (T, error) {
	var out T
	err := DecodeInto(resp, &out)
	return out, err
}

// DecodeInto decodes a success body into v using the codec matching the
// response Content-Type. A nil v only checks the status. The body is always
// closed.
func DecodeInto(resp *http.Response, v any) error {
	if resp == nil {
		return errors.New("nil response")
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return classify(resp)
	}

	if v == nil {
		// Close errors are irrelevant once the status is known.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	contentType := resp.Header.Get("Content-Type")
	if err := CodecFor(contentType).Decode(resp.Body, v); err != nil {
		return &DecodeError{
			StatusCode:  resp.StatusCode,
			ContentType: contentType,
			Target:      typeName(v),
			Cause:       err,
		}
	}
	return nil
}

// Discard drains and closes a response body so the connection can be reused.
func Discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}

func classify(resp *http.Response) error {
	code := resp.StatusCode
	reason := reasonPhrase(resp)

	if code == StructuredErrorStatus {
		contentType := resp.Header.Get("Content-Type")
		svcErr := &ServiceError{}
		if err := CodecFor(contentType).Decode(io.LimitReader(resp.Body, maxErrorBody), svcErr); err != nil {
			return &DecodeError{
				StatusCode:  code,
				ContentType: contentType,
				Target:      typeName(svcErr),
				Cause:       err,
			}
		}
		svcErr.Status = code
		return svcErr
	}

	body := readBody(resp)
	prefix := fmt.Sprintf("HTTP %d %s", code, reason)

	if code >= 400 && code < 500 {
		msg := prefix
		switch {
		case body == "":
		case body == prefix:
			msg = body
		default:
			msg = prefix + ": " + body
		}
		return &ClientRequestError{StatusCode: code, Reason: reason, Body: body, Message: msg}
	}

	msg := "Failed to get response. " + prefix
	if body != "" {
		msg += ": " + body
	}
	return &ResponseError{StatusCode: code, Reason: reason, Body: body, Message: msg}
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// reasonPhrase prefers the phrase the server sent over the standard one.
func reasonPhrase(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	if reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, code)); reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

func readBody(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil && len(data) == 0 {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
