package app

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotReady            = errors.New("no document index is available, upload pdf files first")
	ErrIngestionInProgress = errors.New("documents are already being processed")
	ErrTaskNotFound        = errors.New("task not found")
	ErrNoExtractableText   = errors.New("uploaded files contain no extractable text")
)
