package api

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
)

// RequireUserID resolves the calling user's id and writes an error response
// when it is missing. The REST gateway in front of this service authenticates
// requests and forwards the identity in the X-User-ID header; query parameter
// fallback exists for clients that cannot set headers (WebSocket upgrades).
// Returns (userID, true) on success.
func RequireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	if userID == "" {
		log.Println("API: No user identity on request")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

// WriteJSON encodes v to the response with the given status. The payload is
// encoded to a buffer first to prevent partial writes.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		log.Printf("API: Failed to encode response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
