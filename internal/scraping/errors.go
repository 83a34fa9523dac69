package scraping

import "errors"

// Sentinel errors shared by stores, the AI bridge and the dashboard service.
var (
	ErrProjectNotFound = errors.New("project not found")
	ErrDuplicateID     = errors.New("project id already exists")
	ErrInvalidStatus   = errors.New("invalid project status")
	ErrBusy            = errors.New("operation already in progress")
	ErrAIUnavailable   = errors.New("ai service unavailable")
	ErrEmptyResponse   = errors.New("empty model response")
	ErrInvalidInput    = errors.New("invalid input")
)
