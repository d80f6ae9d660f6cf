package models

import (
	"time"
)

// Account представляет запись пользователя: подписку и реферальные данные
type Account struct {
	UserID        int64     `json:"user_id" db:"user_id"`               // Telegram ID, первичный ключ
	DisplayName   string    `json:"display_name" db:"display_name"`     // username на момент первого контакта
	ReferredBy    *int64    `json:"referred_by" db:"referred_by"`       // кто пригласил, задается только при создании
	ReferralCount int       `json:"referral_count" db:"referral_count"` // количество приглашенных
	IsPro         bool      `json:"is_pro" db:"is_pro"`
	Expiry        string    `json:"expiry" db:"expiry"` // дата в формате ExpiryLayout либо sentinel
	JoinedChannel bool      `json:"joined_channel" db:"joined_channel"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Значения expiry
const (
	ExpiryLayout    = "2006-01-02"
	ExpiryNone      = "None"      // никогда не было подписки
	ExpiryCancelled = "Cancelled" // подписка отменена администратором
)

// AccountStatus представляет то, что пользователь видит в "My Account"
type AccountStatus struct {
	UserID        int64  `json:"user_id"`
	ProActive     bool   `json:"pro_active"`
	Expiry        string `json:"expiry"`
	ReferralCount int    `json:"referral_count"`
}

// ExpiryOrNone возвращает expiry для отображения
func (a *Account) ExpiryOrNone() string {
	if a.Expiry == "" {
		return ExpiryNone
	}
	return a.Expiry
}

// HasReferrer проверяет, был ли пользователь приглашен
func (a *Account) HasReferrer() bool {
	return a.ReferredBy != nil
}
