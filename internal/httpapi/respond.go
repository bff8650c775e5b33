package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"horizon.shop/internal/audit"
	"horizon.shop/internal/auth"
	"horizon.shop/internal/obs"
	"horizon.shop/internal/payment"
	"horizon.shop/internal/shop"
	"horizon.shop/internal/store"
)

const (
	kindUnauthorized = "unauthorized"
	kindForbidden    = "forbidden"
	kindNotFound     = "not_found"
	kindValidation   = "validation_error"
	kindUpstream     = "upstream_error"
	kindRateLimited  = "rate_limited"
	kindInternal     = "internal_error"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error     errorBody `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, kind, msg string) {
	writeJSON(w, code, errorResponse{
		Error:     errorBody{Kind: kind, Message: msg},
		RequestID: audit.RequestID(r.Context()),
	})
}

// writeServiceError maps a failure from the gate, the shop service, the store
// or the payment processor onto the public error shape. Details of upstream
// failures are logged, never returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, kindUnauthorized, "authorization header is required")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, kindForbidden, "forbidden")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, kindNotFound, "resource not found")
	case errors.Is(err, store.ErrInvalidID):
		writeError(w, r, http.StatusBadRequest, kindValidation, "malformed identifier")
	case errors.Is(err, shop.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, kindValidation, err.Error())
	case errors.Is(err, store.ErrConflict):
		writeError(w, r, http.StatusBadRequest, kindValidation, "a record with this key already exists")
	case errors.Is(err, payment.ErrUpstream), errors.Is(err, payment.ErrDisabled):
		logUpstream(r, err)
		writeError(w, r, http.StatusBadGateway, kindUpstream, "payment processor unavailable")
	case errors.Is(err, context.Canceled):
		// client went away; nobody reads the body
		w.WriteHeader(499)
	default:
		logUpstream(r, err)
		writeError(w, r, http.StatusInternalServerError, kindUpstream, "internal server error")
	}
}

func logUpstream(r *http.Request, err error) {
	obs.Logger().WithFields(logrus.Fields{
		"request_id": audit.RequestID(r.Context()),
		"path":       r.URL.Path,
	}).WithError(err).Error("upstream_failure")
}

// decodeJSON reads a single JSON object from the body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return errors.New("request body is required")
		default:
			return fmt.Errorf("invalid JSON: %v", err)
		}
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// decodeDocument reads the body as a partial document.
func decodeDocument(w http.ResponseWriter, r *http.Request) (store.Document, bool) {
	var doc store.Document
	if err := decodeJSON(w, r, &doc); err != nil {
		writeError(w, r, http.StatusBadRequest, kindValidation, err.Error())
		return nil, false
	}
	if doc == nil {
		writeError(w, r, http.StatusBadRequest, kindValidation, "request body must be a JSON object")
		return nil, false
	}
	return doc, true
}
