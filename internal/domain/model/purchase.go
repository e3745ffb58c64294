package model

import (
	"time"

	"github.com/hualingluo/InteractiveMovie/internal/domain/enums"
)

type PurchaseRecord struct {
	ID            string               `json:"id"`
	TransactionID string               `json:"transaction_id"`
	UserID        string               `json:"user_id"`
	PackageID     string               `json:"package_id"`
	CoinsGranted  int64                `json:"coins_granted"`
	Platform      enums.Platform       `json:"platform"`
	Status        enums.PurchaseStatus `json:"status"`
	Timestamp     time.Time            `json:"timestamp"`
}

type PaymentStats struct {
	TotalPurchases int64            `json:"total_purchases"`
	TotalCoins     int64            `json:"total_coins"`
	ByPackage      map[string]int64 `json:"by_package"`
}
