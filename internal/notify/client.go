package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/DukeRupert/safetyline/internal/domain"
)

const (
	OperatorPath = "/api/send-email"
	EmployeePath = "/api/send-employee-email"

	clientTimeout = 15 * time.Second
)

// Response is the gateway's JSON envelope.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Client posts notifications to a Gateway over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient returns a client for the gateway at baseURL authenticating
// with token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: clientTimeout},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) NotifyOperator(ctx context.Context, to string, report *domain.IncidentReport, image *domain.BodyMapImage) error {
	return c.post(ctx, OperatorPath, OperatorRequest{
		ToEmail:     to,
		ReportData:  report,
		CanvasImage: image.DataURL(),
	})
}

func (c *Client) NotifyEmployee(ctx context.Context, to, employeeName string, report *domain.IncidentReport, image *domain.BodyMapImage) error {
	return c.post(ctx, EmployeePath, EmployeeRequest{
		ToEmail:      to,
		EmployeeName: employeeName,
		ReportData:   report,
		CanvasImage:  image.DataURL(),
	})
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	var out Response
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if out.Error != "" {
			return fmt.Errorf("gateway %s: status %d: %s", path, resp.StatusCode, out.Error)
		}
		return fmt.Errorf("gateway %s: status %d", path, resp.StatusCode)
	}
	if !out.Success {
		return fmt.Errorf("gateway %s: %s", path, orNA(out.Error))
	}
	return nil
}
