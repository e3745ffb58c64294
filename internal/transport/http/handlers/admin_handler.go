package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	adssvc "github.com/hualingluo/InteractiveMovie/internal/services/ads"
	ledgersvc "github.com/hualingluo/InteractiveMovie/internal/services/ledger"
	unlocksvc "github.com/hualingluo/InteractiveMovie/internal/services/unlock"
	"github.com/hualingluo/InteractiveMovie/internal/transport/http/dto"
	httperrors "github.com/hualingluo/InteractiveMovie/internal/transport/http/errors"
)

const defaultReconciliationLimit = 100

type AdminHandler struct {
	coordinator *unlocksvc.Coordinator
	ads         *adssvc.Service
	ledger      *ledgersvc.Service
}

func NewAdminHandler(coordinator *unlocksvc.Coordinator, ads *adssvc.Service, ledger *ledgersvc.Service) *AdminHandler {
	return &AdminHandler{coordinator: coordinator, ads: ads, ledger: ledger}
}

func (h *AdminHandler) AddCoins(w http.ResponseWriter, r *http.Request) {
	if h.coordinator == nil {
		writeInternal(w, "UNLOCK_SERVICE_UNAVAILABLE", "unlock service is unavailable")
		return
	}
	var req dto.AddCoinsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	userID := userIDOrDefault(req.UserID)
	balance, err := h.coordinator.AddCoins(r.Context(), userID, req.Amount)
	if err != nil {
		httperrors.WriteFailure(w, err)
		return
	}
	httperrors.Write(w, http.StatusOK, dto.BalanceResponse{Success: true, UserID: userID, NewBalance: balance})
}

func (h *AdminHandler) ResetUser(w http.ResponseWriter, r *http.Request) {
	if h.coordinator == nil {
		writeInternal(w, "UNLOCK_SERVICE_UNAVAILABLE", "unlock service is unavailable")
		return
	}
	var req dto.ResetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	userID := userIDOrDefault(req.UserID)
	info, err := h.coordinator.ResetUser(r.Context(), userID)
	if err != nil {
		httperrors.WriteFailure(w, err)
		return
	}
	httperrors.Write(w, http.StatusOK, dto.BalanceResponse{Success: true, UserID: userID, NewBalance: info.Coins})
}

func (h *AdminHandler) AdStats(w http.ResponseWriter, r *http.Request) {
	if h.ads == nil {
		writeInternal(w, "ADS_SERVICE_UNAVAILABLE", "ads service is unavailable")
		return
	}
	stats, err := h.ads.Stats(r.Context())
	if err != nil {
		httperrors.WriteFailure(w, err)
		return
	}
	httperrors.Write(w, http.StatusOK, dto.StatsResponse{Success: true, Stats: stats})
}

func (h *AdminHandler) PaymentStats(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeInternal(w, "LEDGER_UNAVAILABLE", "purchase ledger is unavailable")
		return
	}
	stats, err := h.ledger.Stats(r.Context())
	if err != nil {
		httperrors.WriteFailure(w, err)
		return
	}
	httperrors.Write(w, http.StatusOK, dto.StatsResponse{Success: true, Stats: stats})
}

func (h *AdminHandler) Reconciliations(w http.ResponseWriter, r *http.Request) {
	if h.coordinator == nil {
		writeInternal(w, "UNLOCK_SERVICE_UNAVAILABLE", "unlock service is unavailable")
		return
	}
	limit := defaultReconciliationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, "VALIDATION_ERROR", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := h.coordinator.PendingReconciliations(r.Context(), limit)
	if err != nil {
		httperrors.WriteFailure(w, err)
		return
	}
	items := make([]dto.PurchaseRecordResponse, 0, len(records))
	for _, record := range records {
		items = append(items, dto.PurchaseRecordResponse{
			TransactionID: record.TransactionID,
			UserID:        record.UserID,
			PackageID:     record.PackageID,
			Coins:         record.CoinsGranted,
			Platform:      string(record.Platform),
			Status:        string(record.Status),
			Timestamp:     record.Timestamp,
		})
	}
	httperrors.Write(w, http.StatusOK, dto.ReconciliationsResponse{Success: true, Items: items})
}

func (h *AdminHandler) RetryReconciliation(w http.ResponseWriter, r *http.Request) {
	if h.coordinator == nil {
		writeInternal(w, "UNLOCK_SERVICE_UNAVAILABLE", "unlock service is unavailable")
		return
	}
	transactionID := chi.URLParam(r, "transactionId")
	if transactionID == "" {
		writeBadRequest(w, "VALIDATION_ERROR", "transactionId is required")
		return
	}

	result, err := h.coordinator.RetryReconciliation(r.Context(), transactionID)
	if err != nil {
		httperrors.WriteFailure(w, err)
		return
	}
	httperrors.Write(w, http.StatusOK, dto.PurchaseResponse{
		Success:       true,
		TransactionID: result.TransactionID,
		PackageID:     result.PackageID,
		CoinsAdded:    result.Coins,
		NewBalance:    result.Balance,
	})
}
