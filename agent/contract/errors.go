package contract

import "errors"

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")

	ErrClassification  = errors.New("classification failed")
	ErrUnmappedIntent  = errors.New("intent has no registered specialist")
	ErrNotConfigured   = errors.New("dependency is not configured")
	ErrToolUnknown     = errors.New("unknown tool identifier")
	ErrThreadOwnership = errors.New("thread belongs to another resource")
)
