package handlers

import (
	"errors"
	"net/http"

	"github.com/hualingluo/InteractiveMovie/internal/domain/failure"
	adssvc "github.com/hualingluo/InteractiveMovie/internal/services/ads"
	paymentsvc "github.com/hualingluo/InteractiveMovie/internal/services/payments"
	unlocksvc "github.com/hualingluo/InteractiveMovie/internal/services/unlock"
	"github.com/hualingluo/InteractiveMovie/internal/transport/http/dto"
	httperrors "github.com/hualingluo/InteractiveMovie/internal/transport/http/errors"
)

type MonetizationHandler struct {
	coordinator *unlocksvc.Coordinator
	payments    *paymentsvc.Service
}

func NewMonetizationHandler(coordinator *unlocksvc.Coordinator, payments *paymentsvc.Service) *MonetizationHandler {
	return &MonetizationHandler{coordinator: coordinator, payments: payments}
}

func (h *MonetizationHandler) UserInfo(w http.ResponseWriter, r *http.Request) {
	if h.coordinator == nil {
		writeInternal(w, "UNLOCK_SERVICE_UNAVAILABLE", "unlock service is unavailable")
		return
	}
	userID := userIDOrDefault(r.URL.Query().Get("userId"))

	info, err := h.coordinator.UserInfo(r.Context(), userID)
	if err != nil {
		httperrors.WriteFailure(w, err)
		return
	}

	unlocked := info.UnlockedContentIDs
	if unlocked == nil {
		unlocked = []string{}
	}
	httperrors.Write(w, http.StatusOK, dto.UserInfoResponse{
		Success:            true,
		UserID:             userID,
		Coins:              info.Coins,
		UnlockedContentIDs: unlocked,
	})
}

func (h *MonetizationHandler) CheckNode(w http.ResponseWriter, r *http.Request) {
	if h.coordinator == nil {
		writeInternal(w, "UNLOCK_SERVICE_UNAVAILABLE", "unlock service is unavailable")
		return
	}
	var req dto.NodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	access, err := h.coordinator.CheckAccess(r.Context(), userIDOrDefault(req.UserID), req.NodeID)
	if err != nil {
		httperrors.WriteFailure(w, err)
		return
	}

	resp := dto.CheckNodeResponse{Success: true, CanAccess: access.Allowed, Reason: access.Reason}
	if access.Monetization != nil {
		resp.Monetization = &dto.MonetizationResponse{
			Type:          string(access.Monetization.Type),
			Price:         access.Monetization.Price,
			AdDescription: access.Monetization.AdDescription,
		}
	}
	httperrors.Write(w, http.StatusOK, resp)
}

func (h *MonetizationHandler) UnlockWithCoins(w http.ResponseWriter, r *http.Request) {
	if h.coordinator == nil {
		writeInternal(w, "UNLOCK_SERVICE_UNAVAILABLE", "unlock service is unavailable")
		return
	}
	var req dto.NodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	result, err := h.coordinator.UnlockWithCoins(r.Context(), userIDOrDefault(req.UserID), req.NodeID)
	if err != nil {
		httperrors.WriteFailure(w, err)
		return
	}
	httperrors.Write(w, http.StatusOK, dto.UnlockResponse{
		Success:         true,
		NodeID:          result.ContentID,
		NewBalance:      result.Balance,
		Spent:           result.Spent,
		AlreadyUnlocked: result.AlreadyUnlocked,
	})
}

// RequestAd answers 200 with available=false when no ad can be served, as
// the player treats that as a normal outcome.
func (h *MonetizationHandler) RequestAd(w http.ResponseWriter, r *http.Request) {
	if h.coordinator == nil {
		writeInternal(w, "UNLOCK_SERVICE_UNAVAILABLE", "unlock service is unavailable")
		return
	}
	var req dto.AdRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	offer, err := h.coordinator.RequestAd(r.Context(), adssvc.RequestInput{
		ContentID: req.NodeID,
		UserID:    userIDOrDefault(req.UserID),
		Platform:  req.Platform,
		AdType:    req.AdType,
	})
	if err != nil {
		if errors.Is(err, failure.ErrNoAdAvailable) {
			httperrors.Write(w, http.StatusOK, dto.AdResponse{
				Success:   false,
				Available: false,
				Message:   failure.Reason(err),
			})
			return
		}
		httperrors.WriteFailure(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.AdResponse{
		Success:   true,
		Available: true,
		Ad: &dto.AdOfferResponse{
			TrackingID:      offer.TrackingID,
			AdID:            offer.AdID,
			AdUnitID:        offer.AdUnitID,
			AdType:          string(offer.AdType),
			Provider:        offer.Provider,
			DurationSeconds: int64(offer.Duration.Seconds()),
			RewardType:      offer.RewardType,
		},
	})
}

func (h *MonetizationHandler) VerifyAd(w http.ResponseWriter, r *http.Request) {
	if h.coordinator == nil {
		writeInternal(w, "UNLOCK_SERVICE_UNAVAILABLE", "unlock service is unavailable")
		return
	}
	var req dto.VerifyAdRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	result, err := h.coordinator.UnlockWithAd(r.Context(), unlocksvc.AdUnlockInput{
		UserID:     userIDOrDefault(req.UserID),
		ContentID:  req.NodeID,
		TrackingID: req.TrackingID,
		Completed:  req.AdCompleted,
	})
	if err != nil {
		httperrors.WriteFailure(w, err)
		return
	}
	httperrors.Write(w, http.StatusOK, dto.UnlockResponse{
		Success:         true,
		NodeID:          result.ContentID,
		NewBalance:      result.Balance,
		AlreadyUnlocked: result.AlreadyUnlocked,
	})
}

func (h *MonetizationHandler) CoinPackages(w http.ResponseWriter, _ *http.Request) {
	if h.payments == nil {
		writeInternal(w, "PAYMENTS_SERVICE_UNAVAILABLE", "payments service is unavailable")
		return
	}
	packages := h.payments.Packages()
	items := make([]dto.CoinPackageResponse, 0, len(packages))
	for _, pkg := range packages {
		items = append(items, dto.CoinPackageResponse{
			ID:        pkg.PackageID,
			Name:      pkg.Name,
			Coins:     pkg.Coins,
			Price:     pkg.Price.StringFixed(2),
			Currency:  pkg.Currency,
			ProductID: pkg.StoreProductID,
		})
	}
	httperrors.Write(w, http.StatusOK, dto.CoinPackagesResponse{Success: true, Packages: items})
}

func (h *MonetizationHandler) PurchaseCoins(w http.ResponseWriter, r *http.Request) {
	if h.coordinator == nil {
		writeInternal(w, "UNLOCK_SERVICE_UNAVAILABLE", "unlock service is unavailable")
		return
	}
	var req dto.PurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	result, err := h.coordinator.CreditFromPurchase(r.Context(), unlocksvc.PurchaseInput{
		UserID:    userIDOrDefault(req.UserID),
		Platform:  req.Platform,
		Receipt:   req.Receipt,
		PackageID: req.PackageID,
	})
	if err != nil {
		httperrors.WriteFailure(w, err)
		return
	}
	httperrors.Write(w, http.StatusOK, dto.PurchaseResponse{
		Success:       true,
		TransactionID: result.TransactionID,
		PackageID:     result.PackageID,
		PackageName:   result.PackageName,
		CoinsAdded:    result.Coins,
		NewBalance:    result.Balance,
	})
}
