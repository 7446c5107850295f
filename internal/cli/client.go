package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/identity-guardian/guardian/internal/dispatch"
	"github.com/identity-guardian/guardian/internal/models"
)

// Client talks to the guardian HTTP API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates an API client for the given server.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// ListCases fetches a page of remediation cases.
func (c *Client) ListCases(page, limit int, subjectID, state string) (*models.ListCasesResponse, error) {
	q := url.Values{}
	q.Set("page", fmt.Sprintf("%d", page))
	q.Set("limit", fmt.Sprintf("%d", limit))
	if subjectID != "" {
		q.Set("subject_id", subjectID)
	}
	if state != "" {
		q.Set("state", state)
	}

	var resp models.ListCasesResponse
	if err := c.do(http.MethodGet, "/api/v1/cases?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetCase fetches one case with its audit trail.
func (c *Client) GetCase(id string) (*models.RemediationCase, error) {
	var rc models.RemediationCase
	if err := c.do(http.MethodGet, "/api/v1/cases/"+id, nil, &rc); err != nil {
		return nil, err
	}
	return &rc, nil
}

// RestoreCase asks the engine to lift the block for a case.
func (c *Client) RestoreCase(id string) (*models.RemediationCase, error) {
	var rc models.RemediationCase
	if err := c.do(http.MethodPost, "/api/v1/cases/"+id+"/restore", nil, &rc); err != nil {
		return nil, err
	}
	return &rc, nil
}

// LatestAssessment fetches the newest assessment for a subject.
func (c *Client) LatestAssessment(subjectID string) (*models.RiskAssessment, error) {
	var a models.RiskAssessment
	if err := c.do(http.MethodGet, "/api/v1/subjects/"+subjectID+"/assessment", nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListSignals fetches the unexpired signal log for a subject.
func (c *Client) ListSignals(subjectID string) ([]models.Signal, error) {
	var resp struct {
		Signals []models.Signal `json:"signals"`
	}
	if err := c.do(http.MethodGet, "/api/v1/subjects/"+subjectID+"/signals", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Signals, nil
}

// IngestSignal submits one raw monitoring event.
func (c *Client) IngestSignal(raw map[string]interface{}) (*models.Signal, error) {
	var sig models.Signal
	if err := c.do(http.MethodPost, "/api/v1/signals", raw, &sig); err != nil {
		return nil, err
	}
	return &sig, nil
}

// Dispatch submits an intent request. Non-ok intent outcomes still return a
// decoded result envelope, not a transport error.
func (c *Client) Dispatch(intent string, payload map[string]interface{}) (*dispatch.Result, error) {
	data, err := json.Marshal(dispatch.Request{Intent: intent, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/dispatch", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var res dispatch.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("server returned %d: %w", resp.StatusCode, err)
	}
	return &res, nil
}
