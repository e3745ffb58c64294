package dto

import "time"

type UserInfoResponse struct {
	Success            bool     `json:"success"`
	UserID             string   `json:"userId"`
	Coins              int64    `json:"coins"`
	UnlockedContentIDs []string `json:"unlockedContentIds"`
}

type NodeRequest struct {
	NodeID string `json:"nodeId"`
	UserID string `json:"userId,omitempty"`
}

type MonetizationResponse struct {
	Type          string `json:"type"`
	Price         int64  `json:"price,omitempty"`
	AdDescription string `json:"adDescription,omitempty"`
}

type CheckNodeResponse struct {
	Success      bool                  `json:"success"`
	CanAccess    bool                  `json:"canAccess"`
	Reason       string                `json:"reason"`
	Monetization *MonetizationResponse `json:"monetization,omitempty"`
}

type UnlockResponse struct {
	Success         bool   `json:"success"`
	NodeID          string `json:"nodeId"`
	NewBalance      int64  `json:"newBalance"`
	Spent           int64  `json:"spent"`
	AlreadyUnlocked bool   `json:"alreadyUnlocked"`
}

type AdRequest struct {
	NodeID   string `json:"nodeId"`
	UserID   string `json:"userId,omitempty"`
	Platform string `json:"platform,omitempty"`
	AdType   string `json:"adType,omitempty"`
}

type AdOfferResponse struct {
	TrackingID      string `json:"trackingId"`
	AdID            string `json:"adId"`
	AdUnitID        string `json:"adUnitId"`
	AdType          string `json:"adType"`
	Provider        string `json:"provider"`
	DurationSeconds int64  `json:"duration"`
	RewardType      string `json:"rewardType"`
}

type AdResponse struct {
	Success   bool             `json:"success"`
	Available bool             `json:"available"`
	Message   string           `json:"message,omitempty"`
	Ad        *AdOfferResponse `json:"ad,omitempty"`
}

type VerifyAdRequest struct {
	NodeID      string `json:"nodeId"`
	UserID      string `json:"userId,omitempty"`
	TrackingID  string `json:"trackingId"`
	AdCompleted bool   `json:"adCompleted"`
}

type CoinPackageResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Coins     int64  `json:"coins"`
	Price     string `json:"price"`
	Currency  string `json:"currency"`
	ProductID string `json:"productId,omitempty"`
}

type CoinPackagesResponse struct {
	Success  bool                  `json:"success"`
	Packages []CoinPackageResponse `json:"packages"`
}

type PurchaseRequest struct {
	PackageID string `json:"packageId"`
	Platform  string `json:"platform,omitempty"`
	Receipt   string `json:"receipt"`
	UserID    string `json:"userId,omitempty"`
}

type PurchaseResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId"`
	PackageID     string `json:"packageId"`
	PackageName   string `json:"packageName,omitempty"`
	CoinsAdded    int64  `json:"coinsAdded"`
	NewBalance    int64  `json:"newBalance"`
}

type AddCoinsRequest struct {
	Amount int64  `json:"amount"`
	UserID string `json:"userId,omitempty"`
}

type BalanceResponse struct {
	Success    bool   `json:"success"`
	UserID     string `json:"userId"`
	NewBalance int64  `json:"newBalance"`
}

type ResetRequest struct {
	UserID string `json:"userId,omitempty"`
}

type PurchaseRecordResponse struct {
	TransactionID string    `json:"transactionId"`
	UserID        string    `json:"userId"`
	PackageID     string    `json:"packageId"`
	Coins         int64     `json:"coins"`
	Platform      string    `json:"platform"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

type ReconciliationsResponse struct {
	Success bool                     `json:"success"`
	Items   []PurchaseRecordResponse `json:"items"`
}

type StatsResponse struct {
	Success bool `json:"success"`
	Stats   any  `json:"stats"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}
