package gateway

import (
	"net/url"
	"strconv"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
	// maxPage keeps (page-1)*limit far from overflowing.
	maxPage = 1_000_000

	defaultHistoryLimit = 50
)

// PageMeta describes one page of a list response.
type PageMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

// pageParams reads page and limit. Missing or invalid values fall back to the
// defaults; limit is capped at maxLimit and page at maxPage.
func pageParams(q url.Values) (page, limit int) {
	page = min(positiveInt(q.Get("page"), defaultPage), maxPage)
	limit = min(positiveInt(q.Get("limit"), defaultLimit), maxLimit)
	return page, limit
}

func newPageMeta(page, limit int, total int64) PageMeta {
	var pages int64
	if total > 0 {
		pages = (total + int64(limit) - 1) / int64(limit)
	}
	return PageMeta{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

func positiveInt(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}
