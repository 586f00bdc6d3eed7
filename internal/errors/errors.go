// Package errors provides error handling for tabserve.
//
// It re-exports github.com/cockroachdb/errors and defines the error kinds the
// request pipeline distinguishes. Wrap a kind sentinel to classify an error:
//
//	return errors.Wrapf(errors.ErrParse, "csv header: %v", err)
//
// Attach a client-safe message with WithHint; everything else stays in logs:
//
//	return errors.WithHint(err, "the uploaded file has no data rows")
package errors

import (
	"net/http"

	crdb "github.com/cockroachdb/errors"
)

var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
	WithDetailf  = crdb.WithDetailf
	Mark         = crdb.Mark
)

var (
	Is           = crdb.Is
	IsAny        = crdb.IsAny
	As           = crdb.As
	Unwrap       = crdb.Unwrap
	UnwrapAll    = crdb.UnwrapAll
	GetAllHints  = crdb.GetAllHints
	FlattenHints = crdb.FlattenHints
)

// Pipeline error kinds. Match with Is after wrapping.
var (
	// ErrParse: malformed or empty upload.
	ErrParse = New("parse error")

	// ErrModelUnavailable is absorbed by the registry and engine; it switches
	// prediction to degraded mode and never fails a request.
	ErrModelUnavailable = New("model unavailable")

	// ErrPrediction: the loaded model rejected the input.
	ErrPrediction = New("prediction error")

	ErrStorage  = New("storage error")
	ErrNotFound = New("not found")
	ErrTooLarge = New("payload too large")
	ErrTimeout  = New("operation timed out")
	ErrBusy     = New("server busy")
)

// Kind is the client-visible classification of an error.
type Kind string

const (
	KindParse            Kind = "ParseError"
	KindModelUnavailable Kind = "ModelUnavailable"
	KindPrediction       Kind = "PredictionError"
	KindStorage          Kind = "StorageError"
	KindNotFound         Kind = "NotFoundError"
	KindTooLarge         Kind = "PayloadTooLarge"
	KindTimeout          Kind = "Timeout"
	KindBusy             Kind = "Busy"
	KindInternal         Kind = "InternalError"
)

var kinds = []struct {
	sentinel error
	kind     Kind
	status   int
	message  string
}{
	{ErrParse, KindParse, http.StatusBadRequest, "the uploaded dataset could not be parsed"},
	{ErrTooLarge, KindTooLarge, http.StatusRequestEntityTooLarge, "the uploaded file is too large"},
	{ErrPrediction, KindPrediction, http.StatusUnprocessableEntity, "the dataset does not match the model's expected features"},
	{ErrNotFound, KindNotFound, http.StatusNotFound, "file not found"},
	{ErrTimeout, KindTimeout, http.StatusGatewayTimeout, "the request took too long to process"},
	{ErrBusy, KindBusy, http.StatusServiceUnavailable, "the server is busy, retry later"},
	{ErrStorage, KindStorage, http.StatusInternalServerError, "the result could not be stored or read"},
	{ErrModelUnavailable, KindModelUnavailable, http.StatusServiceUnavailable, "no model is loaded"},
}

// KindOf classifies err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindInternal
}

// HTTPStatus maps a kind to the response status code.
func HTTPStatus(kind Kind) int {
	for _, k := range kinds {
		if k.kind == kind {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// PublicMessage returns text that is safe to show a client: the error's hints
// if any were attached, otherwise a generic message for its kind.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if hints := FlattenHints(err); hints != "" {
		return hints
	}
	kind := KindOf(err)
	for _, k := range kinds {
		if k.kind == kind {
			return k.message
		}
	}
	return "internal server error"
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}
