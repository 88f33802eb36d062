package ragerr

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError aborts a job or service before any work starts.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return "configuration: " + e.Msg
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Msg)
}

func Config(field, msg string) error {
	return &ConfigurationError{Field: field, Msg: msg}
}

type Stage string

const (
	StageValidate  Stage = "validate"
	StageNormalize Stage = "normalize"
	StageEmbed     Stage = "embed"
	StageStore     Stage = "store"
)

// ItemProcessingError is recovered per item by the batch job and never aborts a run.
type ItemProcessingError struct {
	ContentType string
	ContentID   string
	Stage       Stage
	Cause       error
}

func (e *ItemProcessingError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("item %s:%s failed at %s", e.ContentType, e.ContentID, e.Stage)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ItemProcessingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

const (
	SearchInvalidQuery  = "invalid_query"
	SearchInvalidParams = "invalid_params"
	SearchQueryFailed   = "query_failed"
	SearchEmbedFailed   = "embed_failed"
)

// SearchError is distinct from an empty result, which is a legitimate miss.
type SearchError struct {
	Code  string
	Msg   string
	Cause error
}

func (e *SearchError) Error() string {
	if e == nil {
		return ""
	}
	parts := []string{"search " + e.Code}
	if e.Msg != "" {
		parts = append(parts, e.Msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *SearchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func Search(code, msg string, cause error) error {
	return &SearchError{Code: code, Msg: msg, Cause: cause}
}

const (
	GenerationFailed        = "failed"
	GenerationTimeout       = "timeout"
	GenerationUnavailable   = "unavailable"
	GenerationInvalidOutput = "invalid_output"
)

type GenerationError struct {
	Code  string
	Cause error
}

func (e *GenerationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause == nil {
		return "generation " + e.Code
	}
	return "generation " + e.Code + ": " + e.Cause.Error()
}

func (e *GenerationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func Generation(code string, cause error) error {
	return &GenerationError{Code: code, Cause: cause}
}

// PersistenceWarning records a failed template write-back. It is logged, never returned to users.
type PersistenceWarning struct {
	TemplateName string
	Cause        error
}

func (e *PersistenceWarning) Error() string {
	if e == nil {
		return ""
	}
	msg := "template persistence failed"
	if e.TemplateName != "" {
		msg += " for " + fmt.Sprintf("%q", e.TemplateName)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *PersistenceWarning) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func IsSearch(err error) bool {
	var se *SearchError
	return errors.As(err, &se)
}

func SearchCode(err error) string {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

func IsGeneration(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}

func GenerationCode(err error) string {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}
