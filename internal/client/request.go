package client

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// RequestOptions describes one logical API call.
type RequestOptions struct {
	// Method defaults to GET.
	Method string

	// Headers are applied last and win over every default header.
	Headers map[string]string

	// Params become query parameters. Nil values are omitted; everything
	// else is formatted with fmt.Sprint.
	Params map[string]any

	// Body is JSON encoded. Nil sends no body.
	Body any

	// SkipAuthRefresh keeps a 401 from entering the refresh protocol. Set on
	// the calls that obtain tokens in the first place.
	SkipAuthRefresh bool
}

// Option tweaks the RequestOptions of the method helpers.
type Option func(*RequestOptions)

// WithParams merges query parameters.
func WithParams(params map[string]any) Option {
	return func(o *RequestOptions) {
		if o.Params == nil {
			o.Params = make(map[string]any, len(params))
		}
		for k, v := range params {
			o.Params[k] = v
		}
	}
}

// WithHeader sets a per-call header.
func WithHeader(key, value string) Option {
	return func(o *RequestOptions) {
		if o.Headers == nil {
			o.Headers = make(map[string]string)
		}
		o.Headers[key] = value
	}
}

// SkipAuthRefresh marks the call as an authentication call.
func SkipAuthRefresh() Option {
	return func(o *RequestOptions) {
		o.SkipAuthRefresh = true
	}
}

// Response is a fully read API response.
type Response struct {
	Status      int
	StatusText  string
	Headers     http.Header
	Body        []byte
	ContentType string
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// IsJSON reports whether the body was declared as JSON.
func (r *Response) IsJSON() bool {
	mediaType, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		return strings.Contains(r.ContentType, "application/json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Decode stores the payload in out. JSON bodies are unmarshalled; any other
// content type can only be read into a *string. An empty body leaves out
// untouched.
func (r *Response) Decode(out any) error {
	if out == nil || len(r.Body) == 0 {
		return nil
	}
	if s, ok := out.(*string); ok && !r.IsJSON() {
		*s = r.Text()
		return nil
	}
	if !r.IsJSON() {
		return fmt.Errorf("failed to parse response: unexpected content type %q", r.ContentType)
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
