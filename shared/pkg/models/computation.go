package models

import (
	"time"
)

// Source identifies how a computation reached the service
type Source string

const (
	SourceSingle Source = "single"
	SourceBatch  Source = "batch"
)

// Computation is a persisted gcd(n, m) evaluation
type Computation struct {
	ID        string    `json:"id" yaml:"id"`
	N         uint64    `json:"n" yaml:"n"`
	M         uint64    `json:"m" yaml:"m"`
	Result    uint64    `json:"result" yaml:"result"`
	Source    Source    `json:"source" yaml:"source"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Coprime reports whether the operands share no factor other than 1
func (c *Computation) Coprime() bool {
	return c.Result == 1
}

// ComputeRequest is the body of POST /gcd
type ComputeRequest struct {
	N uint64 `json:"n"`
	M uint64 `json:"m"`
}

// BatchRequest is the body of POST /gcd/batch
type BatchRequest struct {
	Pairs []ComputeRequest `json:"pairs"`
}

// BatchItem is the outcome for one pair of a batch, in request order
type BatchItem struct {
	N      uint64 `json:"n" yaml:"n"`
	M      uint64 `json:"m" yaml:"m"`
	Result uint64 `json:"result,omitempty" yaml:"result,omitempty"`
	ID     string `json:"id,omitempty" yaml:"id,omitempty"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

// BatchResponse is returned by POST /gcd/batch
type BatchResponse struct {
	Results []BatchItem `json:"results" yaml:"results"`
	Failed  int         `json:"failed" yaml:"failed"`
}

// ErrorResponse is the JSON body of every non-2xx API answer
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error codes carried in ErrorResponse.Code
const (
	CodeInvalidArgument = "invalid_argument"
	CodeNotFound        = "not_found"
	CodeBadRequest      = "bad_request"
	CodeTooLarge        = "too_large"
	CodeInternal        = "internal"
	CodeCancelled       = "cancelled"
)

// Stats summarises stored computations
type Stats struct {
	Total   int64 `json:"total" yaml:"total"`
	Coprime int64 `json:"coprime" yaml:"coprime"`
}
