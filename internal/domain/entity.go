package domain

import (
	"time"
)

// CustomMarketRecord persists a user-added market.
type CustomMarketRecord struct {
	Address    string    `gorm:"primaryKey" json:"address"`
	ProgramID  string    `json:"program_id"`
	Name       string    `json:"name"`
	BaseLabel  string    `json:"base_label"`
	QuoteLabel string    `json:"quote_label"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CustomMarketInfo converts the record back to its in-memory form.
func (r CustomMarketRecord) CustomMarketInfo() CustomMarketInfo {
	return CustomMarketInfo{
		Name:       r.Name,
		Address:    r.Address,
		ProgramID:  r.ProgramID,
		BaseLabel:  r.BaseLabel,
		QuoteLabel: r.QuoteLabel,
	}
}

// TokenAssetRecord stores metadata for an asset, including its cached icon.
type TokenAssetRecord struct {
	Symbol       string    `gorm:"primaryKey" json:"symbol"`
	Name         string    `json:"name"`
	IconPath     string    `json:"icon_path"`
	LastSyncedAt time.Time `json:"last_synced_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AppConfig is a persisted user preference (key-value).
type AppConfig struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Preference keys used by the core.
const (
	PrefSelectedMarket        = "selected_market"
	PrefFeeDiscountKey        = "fee_discount_key"
	PrefTokenAccountOverrides = "token_account_overrides"
)
