package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/shorts-publisher/pkg/log"
)

type ErrorType int

const (
	ErrConfig ErrorType = iota
	ErrDiscovery
	ErrMetadata
	ErrDownload
	ErrThumbnail
	ErrUpload
	ErrStore
	ErrArchive
	ErrNotify
	ErrUnknown
)

// PipelineError carries the stage that failed plus optional key/value context.
type PipelineError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *PipelineError {
	return &PipelineError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *PipelineError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var ctxParts []string
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

func (e *PipelineError) WithContext(key string, value any) *PipelineError {
	e.Context[key] = value
	return e
}

// JobMessage is the short form recorded on a job and in run details:
// "<message>: <cause>" without the type tag or context.
func (e *PipelineError) JobMessage() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (t ErrorType) String() string {
	switch t {
	case ErrConfig:
		return "Config"
	case ErrDiscovery:
		return "Discovery"
	case ErrMetadata:
		return "Metadata"
	case ErrDownload:
		return "Download"
	case ErrThumbnail:
		return "Thumbnail"
	case ErrUpload:
		return "Upload"
	case ErrStore:
		return "Store"
	case ErrArchive:
		return "Archive"
	case ErrNotify:
		return "Notify"
	default:
		return "Unknown"
	}
}

// jobMessage renders any error for the job record.
func jobMessage(err error) string {
	var pErr *PipelineError
	if errors.As(err, &pErr) {
		return pErr.JobMessage()
	}
	if err == nil {
		return "Unknown error"
	}
	return err.Error()
}

// logError logs err with the operator advice for its stage.
func logError(err error) {
	var pErr *PipelineError
	if !errors.As(err, &pErr) {
		log.Error("Unknown Error: %v", err)
		return
	}
	log.Error("Error Detail: %v | advice: %s", err, GetAdvice(pErr))
}

// GetAdvice returns error handling advice
func GetAdvice(err *PipelineError) string {
	switch err.Type {
	case ErrConfig:
		return "Please check that the environment variables are set correctly"
	case ErrDiscovery:
		return "Please check that the content source is reachable and readable"
	case ErrMetadata:
		return "Please check the sidecar file format; JSON objects and key: value lines are supported"
	case ErrDownload:
		return "Please check storage credentials and that the source object still exists"
	case ErrThumbnail:
		return "Please check that ffmpeg is installed and the data directory is writable"
	case ErrUpload:
		return "Please check the YouTube credentials, quota and network connectivity"
	case ErrStore:
		return "Please check that the persistence backend is reachable and the data directory is writable"
	case ErrArchive:
		return "Please check write permissions on the archive location"
	case ErrNotify:
		return "Please check the notification targets and their credentials"
	default:
		return "Please review detailed error information and check relevant configuration"
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var pErr *PipelineError
	if errors.As(err, &pErr) {
		return pErr.Type == errorType
	}
	return false
}

func WrapError(err error, errorType ErrorType, message string) *PipelineError {
	return NewErrorWithCause(errorType, message, err)
}

// SafeExecute converts a panic in fn into an ErrUnknown error.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
