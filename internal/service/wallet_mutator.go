package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"care-ledger/internal/core/domain"
	"care-ledger/internal/core/ports"
	"care-ledger/pkg/apperror"
	"care-ledger/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// WalletMutatorImpl implements ports.WalletMutator. It is the only writer of
// wallet balances.
type WalletMutatorImpl struct {
	wallets   ports.WalletRepository
	payments  ports.PaymentRepository
	ledger    ports.LedgerRepository
	directory ports.DirectoryRepository
	uow       ports.UnitOfWork
	events    ports.EventPublisher
	log       zerolog.Logger
}

// NewWalletMutator creates a new WalletMutatorImpl.
func NewWalletMutator(
	wallets ports.WalletRepository,
	payments ports.PaymentRepository,
	ledger ports.LedgerRepository,
	directory ports.DirectoryRepository,
	uow ports.UnitOfWork,
	events ports.EventPublisher,
	log zerolog.Logger,
) *WalletMutatorImpl {
	return &WalletMutatorImpl{
		wallets:   wallets,
		payments:  payments,
		ledger:    ledger,
		directory: directory,
		uow:       uow,
		events:    events,
		log:       log,
	}
}

// ApplyDeposit credits the family wallet. The wallet row lock, the payment
// record, the balance increment and the ledger entry commit together or
// not at all. A reference that is already recorded yields
// domain.ErrDuplicateExternalReference.
func (m *WalletMutatorImpl) ApplyDeposit(ctx context.Context, cmd ports.DepositCommand) (*domain.Payment, error) {
	if err := money.ValidatePositive(cmd.Amount); err != nil {
		return nil, apperror.ErrInvalidAmount()
	}
	if cmd.ExternalReference == "" {
		return nil, apperror.Validation("external reference is required")
	}

	var (
		payment *domain.Payment
		wallet  *domain.Wallet
	)
	err := m.uow.WithinTx(ctx, func(tx pgx.Tx) error {
		// Re-check inside the atomic scope.
		exists, err := m.payments.ExistsByExternalReferenceTx(ctx, tx, cmd.ExternalReference)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrDuplicateExternalReference
		}

		wallet, err = m.resolveWallet(ctx, tx, cmd)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		ref := cmd.ExternalReference
		payment = &domain.Payment{
			ID:              uuid.New(),
			UserID:          cmd.UserID,
			Amount:          cmd.Amount,
			Kind:            domain.PaymentKindDeposit,
			Status:          domain.PaymentStatusCompleted,
			StripePaymentID: &ref,
			Description:     cmd.Description,
			Metadata: map[string]string{
				domain.MetaFamilyID: cmd.FamilyID.String(),
				domain.MetaWalletID: wallet.ID.String(),
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := m.payments.Create(ctx, tx, payment); err != nil {
			return err
		}

		if err := m.wallets.IncrementBalance(ctx, tx, wallet.ID, cmd.Amount); err != nil {
			return err
		}

		return m.ledger.Create(ctx, tx, &domain.LedgerTransaction{
			ID:        uuid.New(),
			WalletID:  wallet.ID,
			PaymentID: &payment.ID,
			Kind:      domain.LedgerKindDeposit,
			Status:    domain.LedgerStatusCompleted,
			Amount:    cmd.Amount,
			CreatedAt: now,
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateExternalReference) {
			return nil, domain.ErrDuplicateExternalReference
		}
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperror.ErrDatabaseError(fmt.Errorf("apply deposit: %w", err))
	}

	m.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("wallet_id", wallet.ID.String()).
		Str("ref", cmd.ExternalReference).
		Str("amount", cmd.Amount.StringFixed(2)).
		Msg("deposit applied")

	_ = m.events.Publish(ctx, domain.LedgerEvent{
		Type:       domain.LedgerEventDepositApplied,
		Key:        wallet.ID.String(),
		OccurredAt: payment.CreatedAt,
		Attributes: map[string]string{
			"paymentId":       payment.ID.String(),
			"walletId":        wallet.ID.String(),
			"familyId":        cmd.FamilyID.String(),
			"amount":          cmd.Amount.StringFixed(2),
			"stripePaymentId": cmd.ExternalReference,
		},
	})

	return payment, nil
}

// resolveWallet locks the wallet to credit. A walletId hint is honored only
// when it belongs to the deposit's family.
func (m *WalletMutatorImpl) resolveWallet(ctx context.Context, tx pgx.Tx, cmd ports.DepositCommand) (*domain.Wallet, error) {
	if cmd.WalletID != nil {
		w, err := m.wallets.GetByIDForUpdate(ctx, tx, *cmd.WalletID)
		if err != nil {
			return nil, err
		}
		if w != nil && w.FamilyID == cmd.FamilyID {
			return w, nil
		}
		m.log.Warn().
			Str("wallet_id", cmd.WalletID.String()).
			Str("family_id", cmd.FamilyID.String()).
			Bool("wallet_exists", w != nil).
			Msg("walletId hint does not belong to family, resolving by family")
	}

	w, err := m.wallets.GetByFamilyIDForUpdate(ctx, tx, cmd.FamilyID)
	if err != nil {
		return nil, err
	}
	if w != nil {
		return w, nil
	}

	family, err := m.directory.GetFamily(ctx, cmd.FamilyID)
	if err != nil {
		return nil, err
	}
	if family == nil {
		return nil, apperror.ErrNotFound("Family")
	}

	if err := m.wallets.CreateIfAbsent(ctx, tx, cmd.FamilyID); err != nil {
		return nil, err
	}
	w, err = m.wallets.GetByFamilyIDForUpdate(ctx, tx, cmd.FamilyID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("%w: family %s", domain.ErrWalletNotFound, cmd.FamilyID)
	}
	return w, nil
}
