package api

import (
	"net/http"
	"strconv"
)

// paginationParams holds parsed pagination values from query params.
type paginationParams struct {
	Page   int
	Limit  int
	Offset int
}

// paginationMeta is returned alongside paginated lists.
type paginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

// parsePagination reads page and limit with defaults; limit is capped at
// maxLimit.
func parsePagination(r *http.Request, defaultLimit, maxLimit int) paginationParams {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return paginationParams{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

func (p paginationParams) meta(total int) paginationMeta {
	return paginationMeta{
		Page:    p.Page,
		Limit:   p.Limit,
		Total:   total,
		HasMore: p.Offset+p.Limit < total,
	}
}
