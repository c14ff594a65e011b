package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes returned in the error envelope.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeRangeInvalid = "RANGE_INVALID"
	CodeNotFound     = "NOT_FOUND"
	CodeInternal     = "INTERNAL_ERROR"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Pagination describes one page of a list response.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type listResponse struct {
	Success    bool       `json:"success"`
	Data       any        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

func newPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

func respondSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, successResponse{Success: true, Data: data})
}

func respondList(c *gin.Context, data any, p Pagination) {
	c.JSON(http.StatusOK, listResponse{Success: true, Data: data, Pagination: p})
}

// respondError writes the error envelope. err is attached as details only in
// development.
func (s *Server) respondError(c *gin.Context, status int, code, message string, err error) {
	body := errorBody{Code: code, Message: message}
	if err != nil {
		_ = c.Error(err)
		if s.config.IsDevelopment() {
			body.Details = err.Error()
		}
	}
	c.AbortWithStatusJSON(status, errorResponse{Success: false, Error: body})
}
