package apperr

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Body is the JSON error envelope.
type Body struct {
	Success bool      `json:"success"`
	Error   ErrorInfo `json:"error"`
}

// ErrorInfo carries the message, plus diagnostics outside production.
type ErrorInfo struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// NewBody builds the envelope for err. verbose adds the kind and the full
// error chain.
func NewBody(err error, verbose bool) Body {
	b := Body{Error: ErrorInfo{Message: Message(err)}}
	if verbose {
		b.Error.Kind = KindOf(err).String()
		b.Error.Stack = fmt.Sprintf("%+v", err)
	}
	return b
}

// Write sends err as a JSON error response with its mapped status.
func Write(w http.ResponseWriter, err error, verbose bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(NewBody(err, verbose))
}
