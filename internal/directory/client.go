// Package directory reads recipient-list membership from the external
// recipient directory service.
package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/httpretry"
)

// maxPages stops a directory that keeps returning next_page.
const maxPages = 10000

// HTTPClient pages through GET /lists/{ref}/members.
type HTTPClient struct {
	client   *httpretry.JSONClient
	pageSize int
}

func NewHTTPClient(baseURL, apiKey string, pageSize int, doer httpretry.HTTPDoer) *HTTPClient {
	c := httpretry.NewJSONClient(baseURL, doer)
	if apiKey != "" {
		c.Header.Set("Authorization", "Bearer "+apiKey)
	}
	if pageSize <= 0 {
		pageSize = 500
	}
	return &HTTPClient{client: c, pageSize: pageSize}
}

type membersPage struct {
	RecipientIDs []string `json:"recipient_ids"`
	NextPage     int      `json:"next_page"`
}

// ResolveList returns every member id of the list, in directory order. A
// 404 is reported as domain.ErrNotFound.
func (c *HTTPClient) ResolveList(ctx context.Context, ref string) ([]string, error) {
	var ids []string
	page := 1
	for n := 0; n < maxPages; n++ {
		q := url.Values{}
		q.Set("page", fmt.Sprint(page))
		q.Set("per_page", fmt.Sprint(c.pageSize))
		path := "/lists/" + url.PathEscape(ref) + "/members?" + q.Encode()

		var out membersPage
		if err := c.client.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
			var se *httpretry.StatusError
			if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
				return nil, fmt.Errorf("list %s: %w", ref, domain.ErrNotFound)
			}
			return nil, fmt.Errorf("list %s page %d: %w", ref, page, err)
		}
		ids = append(ids, out.RecipientIDs...)
		if out.NextPage <= page {
			return ids, nil
		}
		page = out.NextPage
	}
	return nil, fmt.Errorf("list %s: more than %d pages", ref, maxPages)
}
