// Package api is the client for the remote cart service.
//
// The contract is five JSON endpoints behind a Bearer token. Responses may
// arrive bare or wrapped in a {success, data} envelope; both are accepted.
// Failures are classified into two classes the cart store cares about:
// auth-rejections (invalidate the credential, then fall back locally) and
// transport failures (fall back locally). Neither is ever fatal.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ovenfresh/cartkit/internal/models"
)

// ErrAuthRejected marks a failure caused by the remote service rejecting the
// credential: a 401/403 status, an explicit {success:false} verdict on an
// endpoint whose body carries data, or a message complaining about the
// token.
var ErrAuthRejected = errors.New("cart service rejected credential")

// invalidTokenRe matches failure messages that indicate a bad credential.
var invalidTokenRe = regexp.MustCompile(`(?i)invalid token|token (expired|invalid|missing|required)`)

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 1 << 20

// Client talks to the remote cart service.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates a client for the cart service at baseURL. A nil
// httpClient gets a default with a conservative timeout; timeout semantics
// beyond that belong to the transport, and the store treats any transport
// error as a fallback trigger.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   httpClient,
	}
}

// IsAuthRejection reports whether an error from this package is an
// auth-class failure.
func IsAuthRejection(err error) bool {
	return errors.Is(err, ErrAuthRejected)
}

// FailureClass returns the metrics label for an error: "auth" or
// "transport".
func FailureClass(err error) string {
	if IsAuthRejection(err) {
		return "auth"
	}
	return "transport"
}

// AddRequest is the body of POST /cart.
type AddRequest struct {
	ItemID   string   `json:"itemId"`
	Quantity int      `json:"quantity"`
	Size     string   `json:"size,omitempty"`
	AddOnIDs []string `json:"addOnIds,omitempty"`
}

// envelope is the optional {success, data} wrapper.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// FetchCart retrieves the full remote cart snapshot.
func (c *Client) FetchCart(ctx context.Context, token string) ([]models.CartLine, error) {
	raw, err := c.do(ctx, http.MethodGet, "/cart", token, nil, true)
	if err != nil {
		return nil, fmt.Errorf("fetch cart: %w", err)
	}
	var lines []models.CartLine
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("fetch cart: failed to decode response: %w", err)
	}
	return lines, nil
}

// AddLine creates or merges a line in the remote cart and returns it.
func (c *Client) AddLine(ctx context.Context, token string, req AddRequest) (*models.CartLine, error) {
	raw, err := c.do(ctx, http.MethodPost, "/cart", token, req, true)
	if err != nil {
		return nil, fmt.Errorf("add line: %w", err)
	}
	line, err := decodeLine(raw)
	if err != nil {
		return nil, fmt.Errorf("add line: %w", err)
	}
	if line == nil {
		return nil, errors.New("add line: empty response")
	}
	return line, nil
}

// UpdateLine changes a line's quantity. The service may respond with the
// updated line or with an empty body; an empty body returns nil, nil.
func (c *Client) UpdateLine(ctx context.Context, token, lineID string, quantity int) (*models.CartLine, error) {
	body := map[string]int{"quantity": quantity}
	raw, err := c.do(ctx, http.MethodPut, "/cart/"+url.PathEscape(lineID), token, body, true)
	if err != nil {
		return nil, fmt.Errorf("update line: %w", err)
	}
	line, err := decodeLine(raw)
	if err != nil {
		return nil, fmt.Errorf("update line: %w", err)
	}
	return line, nil
}

// DeleteLine removes a line from the remote cart. The response body carries
// no data and is ignored; only the status line can classify a failure here.
func (c *Client) DeleteLine(ctx context.Context, token, lineID string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/cart/"+url.PathEscape(lineID), token, nil, false); err != nil {
		return fmt.Errorf("delete line: %w", err)
	}
	return nil
}

// ClearCart empties the remote cart. The response body carries no data and
// is ignored; only the status line can classify a failure here.
func (c *Client) ClearCart(ctx context.Context, token string) error {
	if _, err := c.do(ctx, http.MethodPost, "/cart/clear", token, struct{}{}, false); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// do performs one request and returns the response payload with any
// {success, data} envelope already unwrapped. inspectBody is false for
// endpoints whose body carries no data: a 2xx response then succeeds no
// matter what the body says, so a service answering a delete with
// `{"success":false,"message":"line not found"}` does not read as a
// credential problem.
func (c *Client) do(ctx context.Context, method, path, token string, body any, inspectBody bool) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	wrapped := json.Unmarshal(payload, &env) == nil

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("status %d %s: %w", resp.StatusCode, env.Message, ErrAuthRejected)
	}
	if inspectBody && wrapped && env.Success != nil && !*env.Success {
		return nil, fmt.Errorf("service refused: %s: %w", env.Message, ErrAuthRejected)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if invalidTokenRe.MatchString(env.Message) || invalidTokenRe.Match(payload) {
			return nil, fmt.Errorf("status %d %s: %w", resp.StatusCode, env.Message, ErrAuthRejected)
		}
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if wrapped && env.Success != nil && *env.Success && env.Data != nil {
		return env.Data, nil
	}
	return payload, nil
}

// decodeLine parses a cart line from a response payload, tolerating empty
// and null bodies.
func decodeLine(raw json.RawMessage) (*models.CartLine, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte(`""`)) {
		return nil, nil
	}
	var line models.CartLine
	if err := json.Unmarshal(trimmed, &line); err != nil {
		return nil, fmt.Errorf("failed to decode line: %w", err)
	}
	return &line, nil
}
