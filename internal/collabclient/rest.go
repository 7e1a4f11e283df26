package collabclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"novelsync-be/internal/dto"
	"novelsync-be/internal/entity"
)

// Fallback is the write path used while the socket is down.
type Fallback interface {
	AddComment(ctx context.Context, req dto.CommentAddPayload) (*entity.Comment, error)
	UpdateCommentStatus(ctx context.Context, projectID, commentID, status string) (*entity.Comment, error)
	RecordActivity(ctx context.Context, projectID string, req dto.CreateActivityRequest) error
}

// RESTFallback talks to the relay's HTTP API.
type RESTFallback struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewRESTFallback takes the API root, e.g. http://localhost:3000/api.
func NewRESTFallback(baseURL, token string) *RESTFallback {
	return &RESTFallback{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (r *RESTFallback) projectURL(projectID, path string) string {
	return fmt.Sprintf("%s/collab/v1/projects/%s%s", r.baseURL, url.PathEscape(projectID), path)
}

func (r *RESTFallback) do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("unexpected response (status %d): %s", resp.StatusCode, string(raw))
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, env.Message)
	}

	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (r *RESTFallback) AddComment(ctx context.Context, req dto.CommentAddPayload) (*entity.Comment, error) {
	var comment entity.Comment
	if err := r.do(ctx, http.MethodPost, r.projectURL(req.ProjectID, "/comments"), req, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *RESTFallback) UpdateCommentStatus(ctx context.Context, projectID, commentID, status string) (*entity.Comment, error) {
	endpoint := r.projectURL(projectID, "/comments/"+url.PathEscape(commentID)+"/status")
	body := map[string]string{"status": status}

	var comment entity.Comment
	if err := r.do(ctx, http.MethodPatch, endpoint, body, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *RESTFallback) RecordActivity(ctx context.Context, projectID string, req dto.CreateActivityRequest) error {
	return r.do(ctx, http.MethodPost, r.projectURL(projectID, "/activities"), req, nil)
}
