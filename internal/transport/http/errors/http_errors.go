package errors

import (
	"encoding/json"
	"net/http"

	"github.com/hualingluo/InteractiveMovie/internal/domain/failure"
)

type APIError struct {
	Success   bool   `json:"success"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func Write(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

var statusByCode = map[failure.Code]int{
	failure.CodeValidation:           http.StatusBadRequest,
	failure.CodeInsufficientFunds:    http.StatusPaymentRequired,
	failure.CodeInvalidTracking:      http.StatusNotFound,
	failure.CodePlaybackIncomplete:   http.StatusUnprocessableEntity,
	failure.CodePlaybackTooShort:     http.StatusUnprocessableEntity,
	failure.CodeProviderRejected:     http.StatusUnprocessableEntity,
	failure.CodeReceiptInvalid:       http.StatusUnprocessableEntity,
	failure.CodeProviderTimeout:      http.StatusGatewayTimeout,
	failure.CodeUnknownPackage:       http.StatusNotFound,
	failure.CodeDuplicateTransaction: http.StatusConflict,
	failure.CodeNotPaidContent:       http.StatusBadRequest,
	failure.CodeNotAdContent:         http.StatusBadRequest,
	failure.CodeRateLimited:          http.StatusTooManyRequests,
	failure.CodeNotFound:             http.StatusNotFound,
	failure.CodeStorage:              http.StatusInternalServerError,
}

// FromFailure maps a service error to its HTTP status and body. Untyped
// errors become a generic 500 without their text.
func FromFailure(err error) (int, APIError) {
	code := failure.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		return http.StatusInternalServerError, APIError{
			Code:      "INTERNAL_ERROR",
			Message:   "internal error",
			Retryable: true,
		}
	}
	return status, APIError{
		Code:      string(code),
		Message:   failure.Reason(err),
		Retryable: code == failure.CodeStorage || code == failure.CodeProviderTimeout || code == failure.CodeRateLimited,
	}
}

func WriteFailure(w http.ResponseWriter, err error) {
	status, body := FromFailure(err)
	Write(w, status, body)
}
