// models/wallet.go
package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	TxKindEscrowHold    = "escrow-hold"
	TxKindEscrowRelease = "escrow-release"
	TxKindDeposit       = "deposit"
)

// Wallet holds a user's spendable and escrowed funds, in minor units.
// Escrow is money committed to outstanding challenges; it only moves
// through the wallet service's Hold/Release, never directly.
type Wallet struct {
	ID               string    `json:"id" gorm:"primaryKey;type:uuid"`
	UserID           string    `json:"user_id" gorm:"uniqueIndex;not null"`
	AvailableBalance int64     `json:"available_balance" gorm:"not null;default:0;check:available_balance >= 0"`
	EscrowBalance    int64     `json:"escrow_balance" gorm:"not null;default:0;check:escrow_balance >= 0"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// WalletTransaction is the append-only audit trail. Every balance change
// writes exactly one record carrying the available balance before and
// after, so escrow movement is always reconstructible.
type WalletTransaction struct {
	ID            string    `json:"id" gorm:"primaryKey;type:uuid"`
	UserID        string    `json:"user_id" gorm:"index;not null"`
	Amount        int64     `json:"amount" gorm:"not null"` // signed, minor units
	Kind          string    `json:"kind" gorm:"index;not null"`
	Description   string    `json:"description"`
	BalanceBefore int64     `json:"balance_before" gorm:"not null"`
	BalanceAfter  int64     `json:"balance_after" gorm:"not null"`
	ChallengeID   *string   `json:"challenge_id,omitempty" gorm:"index"` // metadata link
	Reference     string    `json:"reference,omitempty"`                 // external id (deposits)
	CreatedAt     time.Time `json:"created_at" gorm:"index"`
}
