package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"ludice-backend/internal/model"
	"ludice-backend/internal/payment"
	"ludice-backend/internal/repository"
)

// AccountService handles registration, balances and external value
// movement through the payment gateway.
type AccountService struct {
	pool        *pgxpool.Pool
	accountRepo *repository.AccountRepository
	txRepo      *repository.TransactionRepository
	gateway     payment.Gateway
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(
	pool *pgxpool.Pool,
	accountRepo *repository.AccountRepository,
	txRepo *repository.TransactionRepository,
	gateway payment.Gateway,
) *AccountService {
	return &AccountService{
		pool:        pool,
		accountRepo: accountRepo,
		txRepo:      txRepo,
		gateway:     gateway,
	}
}

// Register creates a fresh account with a zero balance.
func (s *AccountService) Register(ctx context.Context, userID int64, username string) (*model.Account, error) {
	account, err := s.accountRepo.Create(ctx, userID, username)
	if err != nil {
		if errors.Is(err, repository.ErrAccountExists) {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("failed to register account: %w", err)
	}

	log.Info().Int64("user_id", userID).Str("username", username).Msg("Account registered")
	return account, nil
}

// EnsureRegistered returns the account, registering it first if needed.
// Returns whether the account was newly created.
func (s *AccountService) EnsureRegistered(ctx context.Context, userID int64, username string) (*model.Account, bool, error) {
	account, err := s.accountRepo.GetByID(ctx, userID)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, false, err
	}

	account, err = s.accountRepo.Create(ctx, userID, username)
	if err != nil {
		if errors.Is(err, repository.ErrAccountExists) {
			// Lost a registration race; the account exists now.
			account, err = s.accountRepo.GetByID(ctx, userID)
			return account, false, err
		}
		return nil, false, fmt.Errorf("failed to register account: %w", err)
	}
	return account, true, nil
}

// GetAccount retrieves an account by user ID.
// Returns ErrNotRegistered when the account does not exist.
func (s *AccountService) GetAccount(ctx context.Context, userID int64) (*model.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrNotRegistered
		}
		return nil, err
	}
	return account, nil
}

// GetBalance retrieves a user's current balance.
func (s *AccountService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	account, err := s.GetAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// Deposit bills the user through the payment gateway and credits the
// coins. The credit and its ledger record roll back if the gateway
// rejects the bill.
func (s *AccountService) Deposit(ctx context.Context, userID int64, amount int64) (*model.Account, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var account *model.Account
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		account, err = s.accountRepo.CreditTx(ctx, tx, userID, amount)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return ErrNotRegistered
			}
			return err
		}
		if err := s.txRepo.Create(ctx, tx, userID, amount, model.TxTypeDeposit, nil, "deposit via "+s.gateway.Name()); err != nil {
			return err
		}
		if _, err := s.gateway.Pay(ctx, userID, amount, "Deposit"); err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("Deposit gateway call failed")
			return fmt.Errorf("%w: %v", ErrPaymentGateway, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("user_id", userID).Int64("amount", amount).Msg("Deposit completed")
	return account, nil
}

// Withdraw debits the coins and pays the user out through the gateway.
// The debit rolls back if the gateway call fails, so the balance only
// moves when the external transfer went through.
func (s *AccountService) Withdraw(ctx context.Context, userID int64, amount int64) (*model.Account, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var account *model.Account
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		account, err = s.accountRepo.DebitTx(ctx, tx, userID, amount)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return ErrNotRegistered
			}
			return err
		}
		if err := s.txRepo.Create(ctx, tx, userID, -amount, model.TxTypeWithdraw, nil, "withdrawal via "+s.gateway.Name()); err != nil {
			return err
		}
		if _, err := s.gateway.Pay(ctx, userID, amount, "Withdrawal"); err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("Withdrawal gateway call failed")
			return fmt.Errorf("%w: %v", ErrPaymentGateway, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("user_id", userID).Int64("amount", amount).Msg("Withdrawal completed")
	return account, nil
}

// AdminAdjust adds or removes balance by admin action and records the
// change in the ledger.
func (s *AccountService) AdminAdjust(ctx context.Context, userID int64, amount int64) (*model.Account, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	var account *model.Account
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		if amount > 0 {
			account, err = s.accountRepo.CreditTx(ctx, tx, userID, amount)
		} else {
			account, err = s.accountRepo.DebitTx(ctx, tx, userID, -amount)
		}
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return ErrNotRegistered
			}
			return err
		}

		txType := model.TxTypeAdminAdd
		if amount < 0 {
			txType = model.TxTypeAdminSub
		}
		return s.txRepo.Create(ctx, tx, userID, amount, txType, nil, "admin adjustment")
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("user_id", userID).Int64("amount", amount).Msg("Admin balance adjustment")
	return account, nil
}

// History returns the user's most recent ledger entries.
func (s *AccountService) History(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.txRepo.GetByUserID(ctx, userID, limit)
}
