package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"codesync/internal/protocol"
)

// RoomCreator creates rooms on the server
type RoomCreator interface {
	CreateRoom(ctx context.Context) (string, error)
}

// SuggestionService returns inline completion text for a document
type SuggestionService interface {
	Suggest(ctx context.Context, req protocol.SuggestionRequest) (string, error)
}

// StatusError is returned when the server answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

// APIClient talks to the room server's REST endpoints.
// It implements both RoomCreator and SuggestionService.
type APIClient struct {
	BaseURL string
	client  *http.Client
}

func NewAPIClient(baseURL string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &APIClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

// CreateRoom asks the server for a new room and returns its identifier
func (c *APIClient) CreateRoom(ctx context.Context) (string, error) {
	var resp protocol.CreateRoomResponse
	if err := c.post(ctx, "/rooms", nil, &resp); err != nil {
		return "", fmt.Errorf("failed to create room: %w", err)
	}
	if resp.RoomID == "" {
		return "", fmt.Errorf("failed to create room: empty room id")
	}
	return resp.RoomID, nil
}

// Suggest requests an inline suggestion for the given document and cursor
func (c *APIClient) Suggest(ctx context.Context, req protocol.SuggestionRequest) (string, error) {
	var resp protocol.SuggestionResponse
	if err := c.post(ctx, "/autocomplete", req, &resp); err != nil {
		return "", fmt.Errorf("failed to get suggestion: %w", err)
	}
	return resp.Suggestion, nil
}

func (c *APIClient) post(ctx context.Context, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
