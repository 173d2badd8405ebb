// Package sender implements channel.Sender for each provider API and a
// registry that routes by channel with per-credential throttling.
package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/orderbot/backend/internal/domain/channel"
)

// maxResponseSize caps how much of a provider response is read
const maxResponseSize = 1 << 20

// DefaultHTTPTimeout bounds a provider call when the caller sets no deadline
const DefaultHTTPTimeout = 15 * time.Second

// NewHTTPClient returns the client senders share
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

// request is one provider call
type request struct {
	method  string
	url     string
	headers map[string]string
	json    any
	form    url.Values
	user    string // basic auth
	pass    string
}

// do performs the call and returns the body of a 2xx response. Everything
// else comes back as a classified *channel.SendError.
func do(ctx context.Context, client *http.Client, ch channel.Channel, r request) ([]byte, error) {
	var body io.Reader
	contentType := ""
	switch {
	case r.json != nil:
		b, err := json.Marshal(r.json)
		if err != nil {
			return nil, &channel.SendError{Channel: ch, Message: "encode request", Err: err}
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	case r.form != nil:
		body = strings.NewReader(r.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, &channel.SendError{Channel: ch, Message: "build request", Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if r.user != "" {
		req.SetBasicAuth(r.user, r.pass)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &channel.SendError{
			Channel:   ch,
			Message:   redact(err.Error()),
			Retryable: true,
			Err:       errors.Unwrap(err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &channel.SendError{Channel: ch, StatusCode: resp.StatusCode, Message: "read response", Retryable: true, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}
	return nil, classify(ch, resp.StatusCode, respBody)
}

// classify maps an HTTP failure. 429 and 5xx are transient; any other
// status means the credential, recipient or payload is wrong.
func classify(ch channel.Channel, status int, body []byte) *channel.SendError {
	msg := providerMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &channel.SendError{
		Channel:    ch,
		StatusCode: status,
		Message:    msg,
		Retryable:  status == http.StatusTooManyRequests || status >= 500,
	}
}

// providerMessage pulls the human readable error out of the known provider
// envelopes.
func providerMessage(body []byte) string {
	var env struct {
		Description   string          `json:"description"`    // Telegram
		Message       string          `json:"message"`        // Twilio
		StatusMessage string          `json:"status_message"` // Viber
		Error         json.RawMessage `json:"error"`          // Graph
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return truncate(strings.TrimSpace(string(body)), 200)
	}
	if len(env.Error) > 0 {
		var graph struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(env.Error, &graph) == nil && graph.Message != "" {
			return graph.Message
		}
		var s string
		if json.Unmarshal(env.Error, &s) == nil && s != "" {
			return s
		}
	}
	for _, m := range []string{env.Description, env.Message, env.StatusMessage} {
		if m != "" {
			return m
		}
	}
	return ""
}

// redact removes URL query strings from transport errors; Graph and
// Telegram carry tokens in the URL.
func redact(msg string) string {
	if i := strings.Index(msg, "?"); i >= 0 {
		end := strings.IndexAny(msg[i:], "\": ")
		if end < 0 {
			return msg[:i]
		}
		msg = msg[:i] + msg[i+end:]
	}
	if i := strings.Index(msg, "/bot"); i >= 0 {
		end := strings.Index(msg[i+4:], "/")
		if end >= 0 {
			msg = msg[:i] + "/bot***" + msg[i+4+end:]
		}
	}
	return msg
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
