package common

import (
	"net/url"
	"strconv"
	"strings"
)

// PageParams is a 1-based page request read from the page and limit query
// parameters.
type PageParams struct {
	Page  int
	Limit int
}

// Bounds returns the slice bounds of the page within n items. Pages past the
// end yield start == end.
func (p PageParams) Bounds(n int) (start, end int) {
	start = (p.Page - 1) * p.Limit
	if start < 0 || start > n {
		start = n
	}
	end = min(start+p.Limit, n)
	return start, end
}

// Meta describes the page for a result set of total items.
func (p PageParams) Meta(total int) PageMeta {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return PageMeta{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: pages}
}

// PageMeta is rendered under "pagination" next to list data. Its field names
// match the query parameters, so the next page is page+1 with the same limit.
type PageMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// ParsePage reads page and limit from q. Absent values take 1 and
// defaultLimit; malformed or non-positive ones are INVALID_INPUT. Limit is
// capped at maxLimit.
func ParsePage(q url.Values, defaultLimit, maxLimit int) (PageParams, error) {
	page, err := QueryInt(q, "page", 1)
	if err != nil {
		return PageParams{}, err
	}
	if page < 1 {
		return PageParams{}, InvalidInput("page", "page must be a positive integer", nil)
	}
	limit, err := QueryInt(q, "limit", defaultLimit)
	if err != nil {
		return PageParams{}, err
	}
	if limit < 1 {
		return PageParams{}, InvalidInput("limit", "limit must be a positive integer", nil)
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return PageParams{Page: page, Limit: limit}, nil
}

// QueryInt reads an integer query parameter. A missing or blank value yields
// def; anything else that is not an integer is INVALID_INPUT.
func QueryInt(q url.Values, key string, def int) (int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, InvalidInput(key, key+" must be an integer", err)
	}
	return v, nil
}
