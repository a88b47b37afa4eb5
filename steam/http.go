package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 10 * time.Second
)

// Error describes a failed request.
type Error struct {
	URL      string
	Method   string
	Status   int
	Body     string
	TheError error
}

func (e *Error) Error() string {
	if e == nil || e.TheError == nil {
		return ""
	}
	return e.TheError.Error()
}

func (e *Error) Unwrap() error {
	return e.TheError
}

func NewError(url, method string, status int, body string, err error) *Error {
	return &Error{
		URL:      url,
		Method:   method,
		Status:   status,
		Body:     body,
		TheError: err,
	}
}

func UserAgent() string {
	gitSHA := Commit
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				gitSHA = setting.Value
			}
		}
	}
	return "steam-mirror/" + Version + " (" + gitSHA + ")"
}

// NewHTTPClient returns a client which fails a connection attempt after
// connect and a response that does not start arriving within read.
func NewHTTPClient(connect, read time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: connect}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = connect
	transport.ResponseHeaderTimeout = read
	return &http.Client{Transport: transport}
}

// bodyPreview truncates a response body for error messages and logs.
func bodyPreview(body []byte, maxChars int) string {
	s := string(body)
	if len(s) > maxChars {
		return s[:maxChars] + fmt.Sprintf("[truncated, total: %d chars]", len(s))
	}
	return s
}

// get fetches base+path with query and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, base, path string, query url.Values, out any) error {
	u := strings.TrimRight(base, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	// The API key must not end up in logs.
	logged := strings.ReplaceAll(u, url.QueryEscape(c.apiKey), "***")
	c.logger.Trace("sending request: GET %s", logged)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return NewError(logged, http.MethodGet, 0, "", errors.Wrap(err, "error creating request"))
	}
	req.Header.Set("User-Agent", UserAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return NewError(logged, http.MethodGet, 0, "", errors.Wrap(err, "error sending request"))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewError(logged, http.MethodGet, resp.StatusCode, "", errors.Wrap(err, "error reading response body"))
	}
	c.logger.Trace("response status: %s, body: %s", resp.Status, bodyPreview(body, 200))
	if resp.StatusCode > 299 {
		return NewError(logged, http.MethodGet, resp.StatusCode, bodyPreview(body, 200), errors.Newf("request failed with status (%s)", resp.Status))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return NewError(logged, http.MethodGet, resp.StatusCode, bodyPreview(body, 200), errors.Wrap(err, "error JSON decoding response"))
	}
	return nil
}
