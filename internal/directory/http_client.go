package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/identity-guardian/guardian/internal/faults"
)

// HTTPClient implements Directory against the identity-provider gateway's
// REST surface.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a directory client with the given base URL, bearer
// token, and per-call timeout.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// GetUser fetches a single user by subject id.
func (c *HTTPClient) GetUser(ctx context.Context, subjectID string) (*User, error) {
	var user User
	path := fmt.Sprintf("/api/v1/users/%s", url.PathEscape(subjectID))
	if err := c.do(ctx, http.MethodGet, path, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers fetches users matching the filter.
func (c *HTTPClient) ListUsers(ctx context.Context, filter map[string]string) ([]*User, error) {
	q := url.Values{}
	for k, v := range filter {
		q.Set(k, v)
	}
	path := "/api/v1/users"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Users []*User `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// ApplyAccessBlock clones the block policy template scoped to the subject.
func (c *HTTPClient) ApplyAccessBlock(ctx context.Context, subjectID, templateRef string) (string, error) {
	body := map[string]string{
		"subject_id":   subjectID,
		"template_ref": templateRef,
	}

	var resp struct {
		EnforcementRef string `json:"enforcement_ref"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/access-blocks", body, &resp); err != nil {
		return "", err
	}
	if resp.EnforcementRef == "" {
		return "", faults.External("apply_access_block", fmt.Errorf("provider returned no enforcement ref"))
	}
	return resp.EnforcementRef, nil
}

// RemoveAccessBlock deletes the scoped block policy.
func (c *HTTPClient) RemoveAccessBlock(ctx context.Context, enforcementRef string) error {
	path := fmt.Sprintf("/api/v1/access-blocks/%s", url.PathEscape(enforcementRef))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return faults.External(fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return faults.External(
			fmt.Sprintf("%s %s", method, path),
			fmt.Errorf("directory returned %d: %s", resp.StatusCode, string(data)),
		)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
