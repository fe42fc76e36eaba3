package handlers

import (
	"errors"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var errInvalidPagination = errors.New("invalid pagination params")

func parsePaginationParams(pageStr, sizeStr string) (int64, int64, error) {
	page := int64(1)
	size := int64(defaultPageSize)

	if pageStr != "" {
		p, err := strconv.ParseInt(pageStr, 10, 64)
		if err != nil || p < 1 {
			return 0, 0, errInvalidPagination
		}
		page = p
	}

	if sizeStr != "" {
		s, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil || s < 1 || s > maxPageSize {
			return 0, 0, errInvalidPagination
		}
		size = s
	}

	return page, size, nil
}

// paginationFromQuery accepts "size" and the older "limit" spelling.
func paginationFromQuery(c *gin.Context) (int64, int64, error) {
	size := c.Query("size")
	if size == "" {
		size = c.Query("limit")
	}
	return parsePaginationParams(c.Query("page"), size)
}

func totalPages(total, size int64) int64 {
	if total <= 0 || size <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(total) / float64(size)))
}

func paginatedResponse(data interface{}, page, size, total int64) gin.H {
	return gin.H{
		"data": data,
		"pagination": gin.H{
			"page":        page,
			"size":        size,
			"total":       total,
			"total_pages": totalPages(total, size),
		},
	}
}
