package dexai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the DexAI Chain REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// ToolDescriptor describes a registered tool as exposed by the server.
type ToolDescriptor struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Schema          json.RawMessage `json:"schema"`
	RequiresAccount bool            `json:"requires_account"`
}

// InvokeResult is the uniform outcome of a tool invocation.
type InvokeResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Order is a bridge order history entry.
type Order struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	SourceChain      string    `json:"source_chain"`
	DestinationChain string    `json:"destination_chain"`
	GiveToken        string    `json:"give_token"`
	TakeToken        string    `json:"take_token"`
	GiveAmount       string    `json:"give_amount"`
	TakeAmount       string    `json:"take_amount"`
	AmountUSD        float64   `json:"amount_usd"`
	Sender           string    `json:"sender"`
	Recipient        string    `json:"recipient"`
	TxHash           string    `json:"tx_hash"`
	CreatedAt        time.Time `json:"created_at"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("dexai api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the DexAI Chain API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// ListTools fetches the descriptors of every registered tool.
func (c *Client) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	var tools []ToolDescriptor
	if err := c.get(ctx, "/api/v1/tools", &tools); err != nil {
		return nil, err
	}
	return tools, nil
}

// InvokeTool executes a tool by name with the given JSON arguments.
func (c *Client) InvokeTool(ctx context.Context, name string, args any) (InvokeResult, error) {
	payload := struct {
		Name string `json:"name"`
		Args any    `json:"args,omitempty"`
	}{Name: name, Args: args}

	var result InvokeResult
	if err := c.post(ctx, "/api/v1/tools/invoke", payload, &result); err != nil {
		return InvokeResult{}, err
	}
	return result, nil
}

// ListOrders fetches recent bridge orders. A non-empty sessionID filters the
// history to a single bridging session.
func (c *Client) ListOrders(ctx context.Context, sessionID string, limit int) ([]Order, error) {
	endpoint := "/api/v1/orders"
	query := url.Values{}
	if sessionID != "" {
		query.Set("session_id", sessionID)
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var orders []Order
	if err := c.get(ctx, endpoint, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(bytes.TrimSpace(data)),
		}
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
