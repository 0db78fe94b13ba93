// services/wallet_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"strconv"

	"game-challenge-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WalletService owns the escrow ledger. Every balance movement happens
// inside a row-locked transaction and appends exactly one audit record
// carrying the available balance before and after.
type WalletService struct {
	DB *gorm.DB
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{DB: db}
}

// Hold moves amount from the user's available balance into escrow against
// challengeID. Fails with InsufficientFundsError (reporting both balances)
// or NotFoundError when the wallet is missing.
func (s *WalletService) Hold(userID string, amount int64, challengeID string) error {
	if amount <= 0 {
		return &ValidationError{Msg: "hold amount must be positive"}
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var w models.Wallet
		if err := lockForUpdate(tx).
			Where("user_id = ?", userID).First(&w).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "wallet"}
			}
			return err
		}

		if w.AvailableBalance < amount {
			return &InsufficientFundsError{
				Required:  amount,
				Available: w.AvailableBalance,
				Escrow:    w.EscrowBalance,
			}
		}

		before := w.AvailableBalance

		// Keyed on the pre-read balance so a lost update can never slip
		// past the row lock.
		res := tx.Model(&models.Wallet{}).
			Where("user_id = ? AND available_balance = ?", userID, before).
			Updates(map[string]interface{}{
				"available_balance": gorm.Expr("available_balance - ?", amount),
				"escrow_balance":    gorm.Expr("escrow_balance + ?", amount),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("wallet %s changed concurrently during hold", userID)
		}

		record := models.WalletTransaction{
			ID:            uuid.NewString(),
			UserID:        userID,
			Amount:        -amount,
			Kind:          models.TxKindEscrowHold,
			Description:   "bet held in escrow for challenge",
			BalanceBefore: before,
			BalanceAfter:  before - amount,
			ChallengeID:   &challengeID,
		}
		return tx.Create(&record).Error
	})
}

// Release mirrors Hold exactly: the same amount moves from escrow back to
// available, with its own audit record. Used as the compensating action on
// reject/cancel/expiry and on hold-then-write failures.
func (s *WalletService) Release(userID string, amount int64, challengeID string) error {
	if amount <= 0 {
		return &ValidationError{Msg: "release amount must be positive"}
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var w models.Wallet
		if err := lockForUpdate(tx).
			Where("user_id = ?", userID).First(&w).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "wallet"}
			}
			return err
		}

		if w.EscrowBalance < amount {
			return fmt.Errorf("escrow underflow for user %s: have %d, releasing %d", userID, w.EscrowBalance, amount)
		}

		before := w.AvailableBalance

		res := tx.Model(&models.Wallet{}).
			Where("user_id = ? AND escrow_balance >= ?", userID, amount).
			Updates(map[string]interface{}{
				"available_balance": gorm.Expr("available_balance + ?", amount),
				"escrow_balance":    gorm.Expr("escrow_balance - ?", amount),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("wallet %s changed concurrently during release", userID)
		}

		record := models.WalletTransaction{
			ID:            uuid.NewString(),
			UserID:        userID,
			Amount:        amount,
			Kind:          models.TxKindEscrowRelease,
			Description:   "escrow returned for challenge",
			BalanceBefore: before,
			BalanceAfter:  before + amount,
			ChallengeID:   &challengeID,
		}
		return tx.Create(&record).Error
	})
}

// Credit adds funds to the available balance (deposit mirror path). The
// wallet row is created on first credit.
func (s *WalletService) Credit(userID string, amount int64, kind, description, reference string) error {
	if amount <= 0 {
		return &ValidationError{Msg: "credit amount must be positive"}
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var w models.Wallet
		err := lockForUpdate(tx).
			Where("user_id = ?", userID).First(&w).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			w = models.Wallet{ID: uuid.NewString(), UserID: userID}
			if err := tx.Create(&w).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		before := w.AvailableBalance

		res := tx.Model(&models.Wallet{}).
			Where("user_id = ?", userID).
			Update("available_balance", gorm.Expr("available_balance + ?", amount))
		if res.Error != nil {
			return res.Error
		}

		record := models.WalletTransaction{
			ID:            uuid.NewString(),
			UserID:        userID,
			Amount:        amount,
			Kind:          kind,
			Description:   description,
			BalanceBefore: before,
			BalanceAfter:  before + amount,
			Reference:     reference,
		}
		return tx.Create(&record).Error
	})
}

// GetWallet returns the wallet row for a user.
func (s *WalletService) GetWallet(userID string) (*models.Wallet, error) {
	var w models.Wallet
	if err := s.DB.Where("user_id = ?", userID).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "wallet"}
		}
		return nil, err
	}
	return &w, nil
}

// --- HTTP handlers ---

// GetBalance returns the authenticated user's balances.
func (s *WalletService) GetBalance(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	w, err := s.GetWallet(userID)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			// No wallet yet just means no funds yet.
			return c.JSON(fiber.Map{"user_id": userID, "available_balance": 0, "escrow_balance": 0})
		}
		log.Printf("DB Error fetching wallet for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch wallet"})
	}

	return c.JSON(fiber.Map{
		"user_id":           w.UserID,
		"available_balance": w.AvailableBalance,
		"escrow_balance":    w.EscrowBalance,
	})
}

// GetTransactions lists the authenticated user's ledger, newest first.
func (s *WalletService) GetTransactions(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid limit parameter"})
		}
		limit = l
	}

	query := s.DB.Where("user_id = ?", userID)
	if kind := c.Query("kind"); kind != "" {
		query = query.Where("kind = ?", kind)
	}

	var records []models.WalletTransaction
	if err := query.Order("created_at DESC").Limit(limit).Find(&records).Error; err != nil {
		log.Printf("DB Error fetching transactions for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch transactions"})
	}

	return c.JSON(records)
}
