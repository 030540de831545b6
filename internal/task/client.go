// ABOUTME: HTTP client for the external task-management system
// ABOUTME: Implements Service for subtask creation during agent execution

package task

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPService calls the task-management system's REST API.
type HTTPService struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPService creates a Service talking to the task system at baseURL.
// The token authenticates the orchestrator as a service principal.
func NewHTTPService(baseURL, token string, client *http.Client) *HTTPService {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPService{baseURL: baseURL, token: token, client: client}
}

type createSubtaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	OwnerID     string `json:"owner_id"`
}

type createSubtaskResponse struct {
	ID string `json:"id"`
}

// CreateSubtask creates a child task under the parent and returns its id.
func (s *HTTPService) CreateSubtask(ctx context.Context, parent Task, title, description string) (string, error) {
	body, err := json.Marshal(createSubtaskRequest{
		Title:       title,
		Description: description,
		OwnerID:     parent.OwnerID,
	})
	if err != nil {
		return "", fmt.Errorf("encoding subtask request: %w", err)
	}

	url := fmt.Sprintf("%s/api/tasks/%s/subtasks", s.baseURL, parent.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building subtask request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("creating subtask: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("task system returned status %d", resp.StatusCode)
	}

	var created createSubtaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decoding subtask response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("task system returned empty subtask id")
	}
	return created.ID, nil
}
