package util

import (
	"errors"
	"strconv"
	"strings"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxPage         = 100000
)

// Paginate turns 1-based page/size query values into an offset and limit.
// Missing or malformed values fall back to the first page of DefaultPageSize;
// pages beyond MaxPage are clamped to it.
func Paginate(page, size string) (offset, limit int) {
	p, err := strconv.Atoi(page)
	switch {
	case errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(page, "-"):
		p = MaxPage
	case err != nil || p < 1:
		p = 1
	}
	if p > MaxPage {
		p = MaxPage
	}
	limit, err = strconv.Atoi(size)
	if err != nil || limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return (p - 1) * limit, limit
}
