package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/vyrodovalexey/resourcesync/internal/middleware"
	"github.com/vyrodovalexey/resourcesync/internal/observability"
	"github.com/vyrodovalexey/resourcesync/internal/resource"
)

// Handler serves the resource routes.
type Handler struct {
	repo   resource.Repository
	logger observability.Logger
}

// NewHandler creates a handler backed by repo.
func NewHandler(repo resource.Repository, logger observability.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// RegisterRoutes registers the resource routes under /api/resources.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/api/resources")
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("", h.Create)
}

// List answers GET /api/resources?page=&limit=.
func (h *Handler) List(c *gin.Context) {
	params, verr := parseListParams(c)
	if verr != nil {
		h.validationFailed(c, verr)
		return
	}

	items, total, err := h.repo.List(c.Request.Context(), params)
	if err != nil {
		h.internalError(c, "failed to list resources", msgFetchFailed, err)
		return
	}

	c.JSON(http.StatusOK, resource.ListResponse{
		Data: items,
		Pagination: resource.Pagination{
			Page:  params.Page,
			Limit: params.Limit,
			Total: total,
		},
	})
}

// Get answers GET /api/resources/:id.
func (h *Handler) Get(c *gin.Context) {
	res, err := h.repo.Get(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, resource.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: msgNotFound})
	case err != nil:
		h.internalError(c, "failed to get resource", msgFetchOneFailed, err)
	default:
		c.JSON(http.StatusOK, res)
	}
}

// Create answers POST /api/resources.
func (h *Handler) Create(c *gin.Context) {
	var in resource.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.validationFailed(c, newValidationError(err))
		return
	}

	res, err := h.repo.Create(c.Request.Context(), in)
	if err != nil {
		h.internalError(c, "failed to create resource", msgCreateFailed, err)
		return
	}

	c.Header("Location", "/api/resources/"+res.ID)
	c.JSON(http.StatusCreated, res)
}

// parseListParams reads page and limit, applying defaults, rejecting
// non-numeric or non-positive values and capping limit.
func parseListParams(c *gin.Context) (resource.ListParams, *ValidationError) {
	var details []FieldError

	parse := func(name string, def int) int {
		raw, ok := c.GetQuery(name)
		if !ok || raw == "" {
			return def
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			details = append(details, FieldError{Field: name, Message: "Expected a number"})
			return def
		}
		return n
	}

	params := resource.ListParams{
		Page:  parse("page", resource.DefaultPage),
		Limit: parse("limit", resource.DefaultLimit),
	}
	if len(details) > 0 {
		return params, &ValidationError{Details: details}
	}

	if err := binding.Validator.ValidateStruct(params); err != nil {
		return params, newValidationError(err)
	}
	return params.Normalize(), nil
}

func (h *Handler) validationFailed(c *gin.Context, verr *ValidationError) {
	_ = c.Error(verr)
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   msgValidationFailed,
		Details: verr.Details,
	})
}

func (h *Handler) internalError(c *gin.Context, logMsg, publicMsg string, err error) {
	_ = c.Error(err)
	h.logger.Error(logMsg,
		observability.String("path", c.Request.URL.Path),
		observability.String("request_id", middleware.GetRequestID(c)),
		observability.Error(err),
	)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: publicMsg})
}
