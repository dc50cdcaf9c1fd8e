package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
)

// Error kinds. APIError satisfies the kinder interface used by callers
// that branch on classification instead of status codes.
const (
	KindTransportUnreachable = "transport_unreachable"
	KindServerInternal       = "server_internal"
	KindNotFound             = "not_found"
	KindValidationRejected   = "validation_rejected"
	KindBusinessSagaFailed   = "business_saga_failed"
	KindSagaInProgress       = "saga_in_progress"
	KindClientRejected       = "client_rejected"
	KindRequestFailed        = "request_failed"
)

// Default user-facing messages
const (
	MsgUnreachable = "The server did not respond. Check your connection and try again."
	MsgInternal    = "The server encountered an internal error. Please try again later."
	MsgNotFound    = "The requested resource was not found."
	MsgInvalid     = "The submitted data is invalid."
	MsgUnknown     = "An unknown error occurred."
	MsgSagaFailed  = "The order could not be completed."
)

// APIError is the single error shape surfaced to callers of the order client.
type APIError struct {
	Message         string            `json:"message"`
	Status          int               `json:"status,omitempty"`
	Title           string            `json:"error,omitempty"`
	Details         map[string]string `json:"details,omitempty"`
	IsBusinessError bool              `json:"isBusinessError,omitempty"`
	Timestamp       string            `json:"timestamp,omitempty"`
	Path            string            `json:"path,omitempty"`

	kind  string
	cause error
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("status %d: %s", e.Status, e.Message)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// Kind classifies the error. An explicit kind wins, otherwise it is derived from the status.
func (e *APIError) Kind() string {
	if e.kind != "" {
		return e.kind
	}
	switch {
	case e.Status == 0:
		return KindClientRejected
	case e.Status == http.StatusAccepted:
		return KindSagaInProgress
	case e.Status == http.StatusNotFound:
		return KindNotFound
	case e.Status == http.StatusBadRequest && e.IsBusinessError:
		return KindBusinessSagaFailed
	case e.Status == http.StatusBadRequest:
		return KindValidationRejected
	case e.Status >= 500:
		return KindServerInternal
	default:
		return KindRequestFailed
	}
}

// HasDetails reports whether the error carries per-field messages.
func (e *APIError) HasDetails() bool {
	return len(e.Details) > 0
}

// DetailFields returns the detail keys in sorted order.
func (e *APIError) DetailFields() []string {
	fields := make([]string, 0, len(e.Details))
	for k := range e.Details {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// InProgress builds the informational error recorded while a saga is still running.
func InProgress(message string) *APIError {
	return &APIError{Message: message, Status: http.StatusAccepted, kind: KindSagaInProgress}
}

// SagaFailed builds the business error for a saga that ran and was rejected downstream.
func SagaFailed(reason string) *APIError {
	if reason == "" {
		reason = MsgSagaFailed
	}
	return &APIError{
		Message:         reason,
		Status:          http.StatusBadRequest,
		IsBusinessError: true,
		kind:            KindBusinessSagaFailed,
	}
}

// Rejected builds a local error for input refused before any request was sent.
func Rejected(message string) *APIError {
	return &APIError{Message: message, kind: KindClientRejected}
}

// ResponseError is produced by the transport for any response with status >= 400.
type ResponseError struct {
	Status     int
	StatusText string
	Body       []byte
	Path       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Path, e.Status)
}

// UnreachableError is produced by the transport when no response was received.
type UnreachableError struct {
	Path string
	Err  error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("%s: no response: %v", e.Path, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// ValidationError is a client-side validation failure raised before sending.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Normalize maps any failure into an *APIError. It never returns nil and
// returns an existing *APIError unchanged.
func Normalize(err error) *APIError {
	if err == nil {
		return &APIError{Message: MsgUnknown}
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return fromResponse(respErr)
	}

	var unreachable *UnreachableError
	if errors.As(err, &unreachable) {
		return &APIError{Message: MsgUnreachable, Path: unreachable.Path, kind: KindTransportUnreachable, cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || isNetworkError(err) {
		return &APIError{Message: MsgUnreachable, kind: KindTransportUnreachable, cause: err}
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return &APIError{
			Message: valErr.Message,
			Details: copyDetails(valErr.Fields),
			kind:    KindValidationRejected,
			cause:   err,
		}
	}

	return &APIError{Message: err.Error(), cause: err}
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

// errorBody covers both the backend error shape and the saga outcome shape.
type errorBody struct {
	Timestamp    json.RawMessage            `json:"timestamp"`
	Error        string                     `json:"error"`
	Message      string                     `json:"message"`
	Path         string                     `json:"path"`
	Details      map[string]json.RawMessage `json:"details"`
	Errors       json.RawMessage            `json:"errors"`
	ErrorMessage string                     `json:"errorMessage"`
}

func fromResponse(re *ResponseError) *APIError {
	out := &APIError{Status: re.Status, Path: re.Path, cause: re}

	var body errorBody
	parsed := len(re.Body) > 0 && json.Unmarshal(re.Body, &body) == nil

	if parsed {
		out.Title = body.Error
		out.Message = body.Message
		out.Timestamp = rawString(body.Timestamp)
		if body.Path != "" {
			out.Path = body.Path
		}
		out.Details = detailsFrom(body.Details)
		if len(out.Details) == 0 {
			details, msg := detailsFromErrors(body.Errors)
			out.Details = details
			if out.Message == "" {
				out.Message = msg
			}
		}
	}

	if out.Message == "" {
		out.Message = defaultMessage(re.Status, re.StatusText)
	}

	if parsed && IsSagaOutcomeBody(re.Body) {
		out.IsBusinessError = true
		if body.ErrorMessage != "" {
			out.Message = body.ErrorMessage
		}
		return out
	}

	if len(out.Details) > 0 && re.Status == http.StatusBadRequest {
		out.Message = fmt.Sprintf("Validation failed on %d field(s). Please review the highlighted fields.", len(out.Details))
	}
	return out
}

func defaultMessage(status int, statusText string) string {
	switch status {
	case http.StatusInternalServerError:
		return MsgInternal
	case http.StatusNotFound:
		return MsgNotFound
	case http.StatusBadRequest:
		return MsgInvalid
	}
	if statusText == "" {
		statusText = http.StatusText(status)
	}
	return fmt.Sprintf("Request failed with status %d: %s", status, statusText)
}

// IsSagaOutcomeBody reports whether a response body has the create-order
// outcome shape: success and sagaExecutionId keys present, details absent.
func IsSagaOutcomeBody(body []byte) bool {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err != nil {
		return false
	}
	_, hasSuccess := keys["success"]
	_, hasSaga := keys["sagaExecutionId"]
	_, hasDetails := keys["details"]
	return hasSuccess && hasSaga && !hasDetails
}

func detailsFrom(raw map[string]json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = rawString(v)
	}
	return out
}

// detailsFromErrors reads the alternative "errors" field, which is either a
// map of field to message list or a plain string.
func detailsFromErrors(raw json.RawMessage) (map[string]string, string) {
	if len(raw) == 0 {
		return nil, ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return nil, text
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, ""
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		var msgs []string
		if err := json.Unmarshal(v, &msgs); err == nil {
			if len(msgs) > 0 {
				out[k] = msgs[0]
			}
			continue
		}
		out[k] = rawString(v)
	}
	if len(out) == 0 {
		return nil, ""
	}
	return out, ""
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func copyDetails(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
