package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	httperrors "github.com/hualingluo/InteractiveMovie/internal/transport/http/errors"
)

// DefaultUserID is used when a request carries no userId.
const DefaultUserID = "defaultUser"

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func userIDOrDefault(raw string) string {
	userID := strings.TrimSpace(raw)
	if userID == "" {
		return DefaultUserID
	}
	return userID
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{Code: code, Message: message})
}

func writeInternal(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{Code: code, Message: message, Retryable: true})
}
