package models

import "errors"

var (
	ErrNotFound          = errors.New("document not found")
	ErrFetchFailed       = errors.New("fetch failed")
	ErrLocalFileMissing  = errors.New("local file not found")
	ErrUnsupportedType   = errors.New("unsupported file type")
	ErrOCRFailed         = errors.New("OCR failed for image")
	ErrScanned           = errors.New("scanned document without text layer")
	ErrEncryptedPDF      = errors.New("PDF is password protected")
	ErrInsufficientInput = errors.New("insufficient text content found to summarize")
	ErrNotConfigured     = errors.New("summarization service not configured")
	ErrUpstream          = errors.New("summarization service error")
	ErrRunInFlight       = errors.New("summarization already in progress")
	ErrInvalidFile       = errors.New("invalid file")
)
