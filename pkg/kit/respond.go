package kit

import (
	"encoding/json"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Envelope is the body shape of every API response.
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Detail    any    `json:"detail,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteData(w http.ResponseWriter, status int, data any, msg string) {
	WriteJSON(w, status, Envelope{Success: true, Data: data, Message: msg})
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string, detail any) {
	WriteJSON(w, status, Envelope{
		Success:   false,
		Error:     msg,
		Detail:    detail,
		RequestID: chimw.GetReqID(r.Context()),
	})
}

// WriteInternal reports an unexpected failure. The cause is attached only when
// debug is set.
func WriteInternal(w http.ResponseWriter, r *http.Request, err error, debug bool) {
	var detail any
	if debug && err != nil {
		detail = err.Error()
	}
	WriteError(w, r, http.StatusInternalServerError, "internal server error", detail)
}

func NotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusNotFound, "route not found", nil)
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
}
