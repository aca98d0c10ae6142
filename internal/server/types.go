// Package server provides the HTTP API for submitting and tracking media
// batches. It includes handlers, middleware, routes, and DTOs separated from
// domain types.
package server

import (
	"time"

	"github.com/maauso/mediabatch/internal/pipeline"
)

// CreateBatchRequest is the HTTP request body for creating a new batch.
type CreateBatchRequest struct {
	// Paths are absolute paths of the files to process, in processing order.
	Paths []string `json:"paths" validate:"required,min=1,max=10000,dive,required,abspath"`
	// Config selects the operations.
	Config pipeline.OperationConfig `json:"config"`
	// Publish indicates whether surviving outputs are published after the run.
	Publish bool `json:"publish"`
}

// CreateBatchResponse is the HTTP response after creating a batch.
type CreateBatchResponse struct {
	// ID is the unique identifier for the created batch.
	ID string `json:"id"`
	// Status is the initial batch status.
	Status string `json:"status"`
}

// PublicationResponse describes one published output.
type PublicationResponse struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// BatchResponse is the HTTP response for getting batch details.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	// Error contains the reason the batch failed.
	Error string `json:"error,omitempty"`
	Files int    `json:"files"`

	Processed          []string             `json:"processed"`
	DeletedAsDuplicate []string             `json:"deleted_as_duplicate"`
	Errors             []pipeline.FileError `json:"errors"`
	Skipped            []string             `json:"skipped"`
	Warnings           []pipeline.FileError `json:"warnings,omitempty"`

	Publications []PublicationResponse `json:"publications,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// BatchListResponse is the HTTP response for listing batches.
type BatchListResponse struct {
	Batches []BatchResponse `json:"batches"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
