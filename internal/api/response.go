package api

import (
	"encoding/json"
	"net/http"
)

type MessageResponse struct {
	Message string `json:"message" example:"Barcode deleted successfully"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Message: message})
}
