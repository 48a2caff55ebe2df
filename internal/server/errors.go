package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/aixgo-dev/pixelctx/internal/chat"
	"github.com/aixgo-dev/pixelctx/internal/llm/provider"
	"github.com/aixgo-dev/pixelctx/pkg/export"
	"github.com/aixgo-dev/pixelctx/pkg/session"
	"github.com/aixgo-dev/pixelctx/pkg/tree"
)

// errorResponse is the body of every non-2xx API reply.
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// statusFor maps service errors to an HTTP status and a short label.
func statusFor(err error) (int, string) {
	var perr *provider.ProviderError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "request body too large"
	case errors.Is(err, provider.ErrMissingCredential):
		return http.StatusInternalServerError, "missing credential"
	case errors.Is(err, chat.ErrInvalidRequest),
		errors.Is(err, tree.ErrDuplicateNode),
		errors.Is(err, session.ErrInvalidSessionID):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, export.ErrFeatureUnavailable):
		return http.StatusNotImplemented, "feature unavailable"
	case errors.As(err, &perr):
		return http.StatusInternalServerError, "model call failed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, label := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[Server] %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorResponse{Error: label, Detail: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Server] encode response: %v", err)
	}
}

// decodeJSON reads the request body into v. Failures are ErrInvalidRequest;
// a body over the configured limit keeps its *http.MaxBytesError in the chain.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON: %w", chat.ErrInvalidRequest, err)
	}
	return nil
}
