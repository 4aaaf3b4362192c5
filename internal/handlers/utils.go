package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jason-s-yu/imposter/internal/apperr"
	"github.com/sirupsen/logrus"
)

// maxBodyBytes caps request bodies; every payload here is a few fields.
const maxBodyBytes = 1 << 16

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict, apperr.KindExhausted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto a status code and a client-safe body. Internal
// failures are logged with their cause and reported generically.
func writeError(w http.ResponseWriter, r *http.Request, logger *logrus.Logger, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		logger.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).WithError(err).Error("request failed")
	}
	writeJSON(w, statusFor(err), errorBody{Error: apperr.PublicMessage(err), Code: kind.String()})
}

// decodeJSON reads a single JSON object from the body into dst and validates
// it. An empty body decodes as {}.
func (s *Server) decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("invalid JSON body")
	}
	return s.check(dst)
}
