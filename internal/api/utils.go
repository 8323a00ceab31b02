package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/schema"

	"github.com/digkill/finassist/internal/service"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(code int, err error) error {
	return &codedError{err: err, code: code}
}

func CodedErrorf(code int, format string, args ...any) error {
	return &codedError{err: fmt.Errorf(format, args...), code: code}
}

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

func ParseRequest[T any](r *http.Request) (T, error) {
	var data T
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&data); err != nil {
		slog.Debug("error parsing request body", "err", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request body")
	}
	return data, nil
}

func ParseRequestQueryParams[T any](r *http.Request) (T, error) {
	var data T
	if err := queryDecoder.Decode(&data, r.URL.Query()); err != nil {
		slog.Debug("error decoding query params", "err", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request query params")
	}
	return data, nil
}

// statusFor maps service errors to HTTP statuses. Unknown errors are internal.
func statusFor(err error) int {
	var cerr *codedError
	switch {
	case errors.As(err, &cerr):
		return cerr.code
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrChatNotFound), errors.Is(err, service.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidSignature),
		errors.Is(err, service.ErrInvalidPayment),
		errors.Is(err, service.ErrPlanNotPurchasable),
		errors.Is(err, service.ErrModelNotAllowed),
		errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrMessageTooLong),
		errors.Is(err, service.ErrInvalidChat),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrUnsupportedFormat),
		errors.Is(err, service.ErrExportDisabled):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes the {"error": ...} body. Internal errors are logged and
// their details withheld from the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		slog.Error("internal server error received in endpoint", "method", r.Method, "path", r.URL.Path, "err", err)
		msg = "internal server error"
	}
	WriteJSON(w, code, errorResponse{Error: msg})
}

func WriteJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("error serializing response body", "err", err)
	}
}

func RestHandler(handler func(r *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := handler(r)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if res == nil {
			res = struct{}{}
		}
		WriteJSON(w, http.StatusOK, res)
	}
}
