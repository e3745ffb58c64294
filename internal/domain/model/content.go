package model

import (
	"github.com/shopspring/decimal"

	"github.com/hualingluo/InteractiveMovie/internal/domain/enums"
)

type ContentMonetization struct {
	Type          enums.MonetizationType `json:"type"`
	Price         int64                  `json:"price,omitempty"`
	AdDescription string                 `json:"ad_description,omitempty"`
}

type CoinPackage struct {
	PackageID      string          `json:"id" yaml:"id"`
	Name           string          `json:"name" yaml:"name"`
	Coins          int64           `json:"coins" yaml:"coins"`
	Price          decimal.Decimal `json:"price" yaml:"price"`
	Currency       string          `json:"currency" yaml:"currency"`
	StoreProductID string          `json:"product_id" yaml:"product_id"`
}
