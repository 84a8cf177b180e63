package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/httpretry"
)

// HTTPClient manages tasks on a remote scheduler service.
//
//	POST   /tasks       -> {"id": "..."}
//	GET    /tasks/{id}  -> Task
//	DELETE /tasks/{id}
type HTTPClient struct {
	client *httpretry.JSONClient
}

func NewHTTPClient(baseURL, apiKey string, doer httpretry.HTTPDoer) *HTTPClient {
	c := httpretry.NewJSONClient(baseURL, doer)
	if apiKey != "" {
		c.Header.Set("Authorization", "Bearer "+apiKey)
	}
	return &HTTPClient{client: c}
}

type createTaskResponse struct {
	ID string `json:"id"`
}

func (c *HTTPClient) CreateTask(ctx context.Context, task domain.Task) (string, error) {
	var out createTaskResponse
	if err := c.client.Do(ctx, http.MethodPost, "/tasks", task, &out); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("create task: scheduler returned no id")
	}
	return out.ID, nil
}

func (c *HTTPClient) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	var t domain.Task
	if err := c.client.Do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, notFound(err))
	}
	if t.ID == "" {
		t.ID = id
	}
	return &t, nil
}

func (c *HTTPClient) DeleteTask(ctx context.Context, id string) error {
	if err := c.client.Do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete task %s: %w", id, notFound(err))
	}
	return nil
}

// notFound maps a 404 to domain.ErrNotFound.
func notFound(err error) error {
	var se *httpretry.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return err
}
