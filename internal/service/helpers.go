package service

import (
	"time"

	"github.com/campushq/library-api/internal/models"
)

type nowFunc func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}

func paginate(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
