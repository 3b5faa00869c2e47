package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Response is a successful handler result.
type Response struct {
	Status int
	Body   any
}

func ok(body any) *Response {
	return &Response{Status: http.StatusOK, Body: body}
}

func created(body any) *Response {
	return &Response{Status: http.StatusCreated, Body: body}
}

type dataEnvelope struct {
	Data any `json:"data"`
}

type listEnvelope struct {
	Data any      `json:"data"`
	Meta PageMeta `json:"meta"`
}

type deleteAck struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

type errorBody struct {
	Error              string   `json:"error"`
	AvailableEndpoints []string `json:"available_endpoints,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, e *Error) {
	writeJSON(w, e.Status, errorBody{Error: e.Message, AvailableEndpoints: e.Endpoints})
}
