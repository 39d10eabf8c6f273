package service

import (
	"context"
	"fmt"
	"strings"

	"care-ledger/internal/core/domain"
	"care-ledger/internal/core/ports"
	"care-ledger/pkg/apperror"
	"care-ledger/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	walletTransactionsLimit = 50
	recentPaymentsLimit     = 20
)

// WalletServiceImpl implements ports.WalletService.
type WalletServiceImpl struct {
	wallets         ports.WalletRepository
	payments        ports.PaymentRepository
	ledger          ports.LedgerRepository
	directory       ports.DirectoryRepository
	processor       ports.PaymentProcessor
	uow             ports.UnitOfWork
	defaultCurrency string
	log             zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(
	wallets ports.WalletRepository,
	payments ports.PaymentRepository,
	ledger ports.LedgerRepository,
	directory ports.DirectoryRepository,
	processor ports.PaymentProcessor,
	uow ports.UnitOfWork,
	defaultCurrency string,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		wallets:         wallets,
		payments:        payments,
		ledger:          ledger,
		directory:       directory,
		processor:       processor,
		uow:             uow,
		defaultCurrency: defaultCurrency,
		log:             log,
	}
}

// CreateDepositIntent opens a processor payment intent for the caller's
// family. The wallet is credited later, when the processor reports the
// intent as succeeded.
func (s *WalletServiceImpl) CreateDepositIntent(ctx context.Context, principal domain.Principal, req ports.DepositIntentRequest) (*ports.DepositIntent, error) {
	familyID, err := familyOf(principal)
	if err != nil {
		return nil, err
	}
	if money.ValidatePositive(req.Amount) != nil {
		return nil, apperror.ErrInvalidAmount()
	}
	minor, err := money.ToMinorUnits(req.Amount)
	if err != nil {
		return nil, apperror.ErrInvalidAmount()
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}

	wallet, err := s.ensureWallet(ctx, familyID)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, wallet)
	if err != nil {
		return nil, err
	}

	intent, err := s.processor.CreatePaymentIntent(ctx, ports.PaymentIntentRequest{
		AmountMinor: minor,
		Currency:    currency,
		CustomerID:  customerID,
		Description: req.Description,
		Metadata: map[string]string{
			domain.MetaFamilyID: familyID.String(),
			domain.MetaUserID:   principal.UserID.String(),
			domain.MetaWalletID: wallet.ID.String(),
		},
	})
	if err != nil {
		return nil, apperror.ErrProcessorFailure(err)
	}

	s.log.Info().
		Str("payment_intent_id", intent.ID).
		Str("wallet_id", wallet.ID.String()).
		Str("amount", req.Amount.StringFixed(2)).
		Str("currency", currency).
		Msg("deposit intent created")

	return &ports.DepositIntent{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
	}, nil
}

// GetWallet returns the caller's family wallet with its recent ledger
// entries, creating the wallet on first access.
func (s *WalletServiceImpl) GetWallet(ctx context.Context, principal domain.Principal) (*ports.WalletView, error) {
	familyID, err := familyOf(principal)
	if err != nil {
		return nil, err
	}

	wallet, err := s.ensureWallet(ctx, familyID)
	if err != nil {
		return nil, err
	}

	txns, err := s.ledger.ListByWallet(ctx, wallet.ID, walletTransactionsLimit)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	payments, err := s.payments.ListByUser(ctx, principal.UserID, recentPaymentsLimit)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if txns == nil {
		txns = []domain.LedgerTransaction{}
	}
	if payments == nil {
		payments = []domain.Payment{}
	}

	return &ports.WalletView{
		WalletID:       wallet.ID,
		Balance:        wallet.Balance,
		Transactions:   txns,
		RecentPayments: payments,
	}, nil
}

// AuditBalance recomputes the wallet balance from its completed ledger
// entries and compares it with the stored value.
func (s *WalletServiceImpl) AuditBalance(ctx context.Context, walletID uuid.UUID) (*domain.BalanceAudit, error) {
	wallet, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("Wallet")
	}

	sum, err := s.ledger.SumCompletedByWallet(ctx, walletID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	audit := &domain.BalanceAudit{
		WalletID:   walletID,
		Balance:    wallet.Balance,
		LedgerSum:  sum,
		Consistent: wallet.Balance.Equal(sum),
	}
	if !audit.Consistent {
		s.log.Error().
			Str("wallet_id", walletID.String()).
			Str("balance", wallet.Balance.StringFixed(2)).
			Str("ledger_sum", sum.StringFixed(2)).
			Msg("wallet balance does not match ledger")
	}
	return audit, nil
}

// ensureWallet returns the family wallet, creating it if the family exists
// and has none yet.
func (s *WalletServiceImpl) ensureWallet(ctx context.Context, familyID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.wallets.GetByFamilyID(ctx, familyID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if wallet != nil {
		return wallet, nil
	}

	family, err := s.directory.GetFamily(ctx, familyID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if family == nil {
		return nil, apperror.ErrNotFound("Family")
	}

	err = s.uow.WithinTx(ctx, func(tx pgx.Tx) error {
		if err := s.wallets.CreateIfAbsent(ctx, tx, familyID); err != nil {
			return err
		}
		wallet, err = s.wallets.GetByFamilyIDForUpdate(ctx, tx, familyID)
		return err
	})
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("%w: family %s", domain.ErrWalletNotFound, familyID))
	}

	s.log.Info().
		Str("wallet_id", wallet.ID.String()).
		Str("family_id", familyID.String()).
		Msg("wallet created")
	return wallet, nil
}

// ensureCustomer returns the wallet's processor customer, creating one on
// first deposit. When two requests race, the first stored reference wins.
func (s *WalletServiceImpl) ensureCustomer(ctx context.Context, wallet *domain.Wallet) (string, error) {
	if wallet.HasCustomer() {
		return *wallet.StripeCustomerID, nil
	}

	customerID, err := s.processor.CreateCustomer(ctx, wallet.FamilyID, wallet.ID)
	if err != nil {
		return "", apperror.ErrProcessorFailure(err)
	}

	var current *domain.Wallet
	err = s.uow.WithinTx(ctx, func(tx pgx.Tx) error {
		written, err := s.wallets.SetCustomerReference(ctx, tx, wallet.ID, customerID)
		if err != nil || written {
			return err
		}
		current, err = s.wallets.GetByIDForUpdate(ctx, tx, wallet.ID)
		return err
	})
	if err != nil {
		return "", apperror.ErrDatabaseError(fmt.Errorf("store customer reference: %w", err))
	}
	if current != nil && current.HasCustomer() {
		s.log.Warn().
			Str("wallet_id", wallet.ID.String()).
			Str("orphaned_customer_id", customerID).
			Msg("customer reference already set by a concurrent request")
		return *current.StripeCustomerID, nil
	}
	return customerID, nil
}

func familyOf(principal domain.Principal) (uuid.UUID, error) {
	if principal.UserID == uuid.Nil {
		return uuid.Nil, apperror.ErrUnauthorized()
	}
	if !principal.HasRole(domain.RoleFamily) {
		return uuid.Nil, apperror.ErrForbidden()
	}
	if principal.FamilyID == nil {
		return uuid.Nil, apperror.ErrNotFound("Family")
	}
	return *principal.FamilyID, nil
}
