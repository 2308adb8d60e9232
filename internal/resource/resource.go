// Package resource defines the resource model shared by the API server and
// its client, and an in-memory repository.
package resource

import (
	"context"
	"errors"
	"math"
	"time"
)

// Query tags used as cache keys by clients.
const (
	// TagList is the tag of paginated list reads.
	TagList = "resources"

	// TagItem is the tag of single-resource reads.
	TagItem = "resource"
)

// Pagination defaults.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// ErrNotFound is returned when no resource has the requested ID.
var ErrNotFound = errors.New("resource not found")

// Resource is a named contact record.
type Resource struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateInput is the body of a create request.
type CreateInput struct {
	Name  string `json:"name" binding:"required,min=1"`
	Email string `json:"email" binding:"required,email"`
}

// ListParams selects a page of resources. Page is 1-based.
type ListParams struct {
	Page  int `json:"page" binding:"min=1"`
	Limit int `json:"limit" binding:"min=1"`
}

// Normalize applies the defaults and caps Limit at MaxLimit.
func (p ListParams) Normalize() ListParams {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Offset returns the index of the first resource of the page. It saturates
// at math.MaxInt instead of overflowing for very large pages.
func (p ListParams) Offset() int {
	if p.Page <= 1 || p.Limit < 1 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}
	return (p.Page - 1) * p.Limit
}

// Pagination describes the returned page.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// ListResponse is the body of a list response.
type ListResponse struct {
	Data       []Resource `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Repository stores resources.
type Repository interface {
	// List returns the resources of the requested page and the total count.
	List(ctx context.Context, params ListParams) ([]Resource, int, error)

	// Get returns the resource with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (Resource, error)

	// Create stores a new resource with a generated ID.
	Create(ctx context.Context, in CreateInput) (Resource, error)
}
