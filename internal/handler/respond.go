package handler

import (
	"encoding/json"
	"net/http"
)

// Every user-facing action responds with either a success payload or
// {"error": msg}. Messages are fixed, user-safe strings; raw upstream errors
// only ever reach the logs.

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
