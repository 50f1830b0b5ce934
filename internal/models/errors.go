package models

import (
	"encoding/json"
	"net/http"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func WriteError(w http.ResponseWriter, code int, message string) {
	WriteErrorDetail(w, code, message, "")
}

func WriteErrorDetail(w http.ResponseWriter, code int, message, detail string) {
	WriteJSON(w, code, ErrorResponse{
		Error:   message,
		Message: detail,
	})
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
