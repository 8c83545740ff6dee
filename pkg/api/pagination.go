package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pos-platform/ledger-service/pkg/errors"
)

// Pagination limits for ledger history queries
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// PageRequest represents limit/offset pagination parameters
type PageRequest struct {
	Limit  int `form:"limit" json:"limit"`
	Offset int `form:"offset" json:"offset"`
}

// ParsePagination parses limit and offset query parameters, clamping them
// to sane bounds. Malformed values fall back to defaults.
func ParsePagination(c *gin.Context) PageRequest {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultLimit)))
	if err != nil || limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	return PageRequest{Limit: limit, Offset: offset}
}

// PageResponse wraps a page of results with its pagination parameters
type PageResponse[T any] struct {
	Data    []T  `json:"data"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Count   int  `json:"count"`
	HasMore bool `json:"hasMore"`
}

// NewPageResponse creates a paginated response. HasMore is inferred from a
// full page, so the last page can report a false positive when the total is
// an exact multiple of the limit.
func NewPageResponse[T any](data []T, page PageRequest) PageResponse[T] {
	return PageResponse[T]{
		Data:    data,
		Limit:   page.Limit,
		Offset:  page.Offset,
		Count:   len(data),
		HasMore: len(data) == page.Limit,
	}
}

// TimeRange represents an inclusive query window
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// ParseTimeRange parses optional start and end query parameters in RFC 3339
// format. Returns ok=false when neither parameter is present.
func ParseTimeRange(c *gin.Context) (TimeRange, bool, *errors.AppError) {
	startParam := c.Query("start")
	endParam := c.Query("end")

	if startParam == "" && endParam == "" {
		return TimeRange{}, false, nil
	}
	if startParam == "" || endParam == "" {
		return TimeRange{}, false, errors.ErrValidation("start and end must be provided together")
	}

	start, err := time.Parse(time.RFC3339, startParam)
	if err != nil {
		return TimeRange{}, false, errors.ErrValidation("start must be a valid RFC 3339 timestamp")
	}
	end, err := time.Parse(time.RFC3339, endParam)
	if err != nil {
		return TimeRange{}, false, errors.ErrValidation("end must be a valid RFC 3339 timestamp")
	}

	return TimeRange{Start: start, End: end}, true, nil
}

// SortOrder represents sort direction
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSort parses the order query parameter, defaulting to descending
func ParseSort(c *gin.Context) SortOrder {
	order := SortOrder(c.DefaultQuery("order", string(SortDesc)))
	if order != SortAsc && order != SortDesc {
		order = SortDesc
	}
	return order
}

// MongoSort returns the MongoDB sort value for the order
func (s SortOrder) MongoSort() int {
	if s == SortAsc {
		return 1
	}
	return -1
}
