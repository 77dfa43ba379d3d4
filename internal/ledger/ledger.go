package ledger

import (
	"context"
	"fmt"
	"time"

	"auction-escrow/internal/biddingerrors"
	model "auction-escrow/internal/models"
	"auction-escrow/internal/repository"
	"auction-escrow/utils"

	"github.com/shopspring/decimal"
)

// PriceOracle values the platform token in USD
type PriceOracle interface {
	TokenUSDPrice(ctx context.Context) (decimal.Decimal, error)
}

// StaticPriceOracle always reports the same configured price
type StaticPriceOracle struct {
	Price decimal.Decimal
}

func (o StaticPriceOracle) TokenUSDPrice(context.Context) (decimal.Decimal, error) {
	return o.Price, nil
}

// Payout directs part of a committed reservation to a payee. An empty UserID burns the amount.
type Payout struct {
	UserID string
	Amount decimal.Decimal
	Kind   model.EntryKind
}

// Ledger is the only component allowed to change available or reserved balances.
// The tx-scoped methods run inside a unit of work owned by the caller so they
// compose atomically with listing and bid writes.
type Ledger struct {
	store  repository.Store
	oracle PriceOracle
	now    func() time.Time
}

// New creates a Ledger over store, valuing balances with oracle
func New(store repository.Store, oracle PriceOracle) *Ledger {
	return &Ledger{
		store:  store,
		oracle: oracle,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ValidAmount reports whether d is a positive amount with at most two decimal places
func ValidAmount(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(d.Round(2))
}

// LockUsers locks the balance rows of userIDs in ascending id order. Callers that
// touch more than one balance lock them all up front.
func (l *Ledger) LockUsers(ctx context.Context, tx repository.Tx, userIDs ...string) error {
	if err := tx.LockBalances(ctx, userIDs...); err != nil {
		return fmt.Errorf("ledger: lock balances: %w", err)
	}
	return nil
}

// Reserve moves amount from available to reserved and records a held reservation
func (l *Ledger) Reserve(ctx context.Context, tx repository.Tx, userID string, amount decimal.Decimal,
	purpose model.ReservationPurpose, referenceID string) (model.Reservation, error) {
	if !amount.IsPositive() {
		return model.Reservation{}, fmt.Errorf("ledger: reserve %s: %w", amount, biddingerrors.ErrInvalidAmount)
	}

	bal, err := tx.GetBalanceForUpdate(ctx, userID)
	if err != nil {
		return model.Reservation{}, err
	}
	if bal.Available.LessThan(amount) {
		return model.Reservation{}, fmt.Errorf("ledger: reserve %s for %s (available %s): %w",
			amount, userID, bal.Available, biddingerrors.ErrInsufficientBalance)
	}

	bal.Available = bal.Available.Sub(amount)
	bal.Reserved = bal.Reserved.Add(amount)
	if err := tx.UpdateBalance(ctx, bal); err != nil {
		return model.Reservation{}, err
	}

	now := l.now()
	res := model.Reservation{
		ReservationID: utils.GenerateID(),
		UserID:        userID,
		Amount:        amount,
		Purpose:       purpose,
		State:         model.ReservationStateHeld,
		ReferenceID:   referenceID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.InsertReservation(ctx, res); err != nil {
		return model.Reservation{}, err
	}
	if err := l.journal(ctx, tx, userID, model.EntryKindReserve, amount.Neg(), amount, res.ReservationID); err != nil {
		return model.Reservation{}, err
	}
	return res, nil
}

// Release returns a held reservation to the owner's available balance
func (l *Ledger) Release(ctx context.Context, tx repository.Tx, reservationID string) error {
	res, err := l.heldReservation(ctx, tx, reservationID)
	if err != nil {
		return err
	}

	bal, err := tx.GetBalanceForUpdate(ctx, res.UserID)
	if err != nil {
		return err
	}
	if bal.Reserved.LessThan(res.Amount) {
		return fmt.Errorf("ledger: release %s: reserved %s below hold %s: %w",
			reservationID, bal.Reserved, res.Amount, biddingerrors.ErrInvariantViolation)
	}

	bal.Reserved = bal.Reserved.Sub(res.Amount)
	bal.Available = bal.Available.Add(res.Amount)
	if err := tx.UpdateBalance(ctx, bal); err != nil {
		return err
	}
	if err := tx.UpdateReservationState(ctx, reservationID, model.ReservationStateReleased); err != nil {
		return err
	}
	return l.journal(ctx, tx, res.UserID, model.EntryKindRelease, res.Amount, res.Amount.Neg(), reservationID)
}

// Commit consumes a held reservation and pays it out. The payouts must add up to
// the reserved amount exactly.
func (l *Ledger) Commit(ctx context.Context, tx repository.Tx, reservationID string, payouts ...Payout) error {
	res, err := l.heldReservation(ctx, tx, reservationID)
	if err != nil {
		return err
	}

	total := decimal.Zero
	for _, p := range payouts {
		if p.Amount.IsNegative() {
			return fmt.Errorf("ledger: commit %s: negative payout: %w", reservationID, biddingerrors.ErrInvariantViolation)
		}
		total = total.Add(p.Amount)
	}
	if len(payouts) == 0 || !total.Equal(res.Amount) {
		return fmt.Errorf("ledger: commit %s: payouts %s do not match hold %s: %w",
			reservationID, total, res.Amount, biddingerrors.ErrInvariantViolation)
	}

	payer, err := tx.GetBalanceForUpdate(ctx, res.UserID)
	if err != nil {
		return err
	}
	if payer.Reserved.LessThan(res.Amount) {
		return fmt.Errorf("ledger: commit %s: reserved %s below hold %s: %w",
			reservationID, payer.Reserved, res.Amount, biddingerrors.ErrInvariantViolation)
	}
	payer.Reserved = payer.Reserved.Sub(res.Amount)
	if err := tx.UpdateBalance(ctx, payer); err != nil {
		return err
	}
	if err := tx.UpdateReservationState(ctx, reservationID, model.ReservationStateCommitted); err != nil {
		return err
	}

	for _, p := range payouts {
		if p.Amount.IsZero() {
			continue
		}
		if p.UserID == "" {
			if err := l.journal(ctx, tx, res.UserID, model.EntryKindFeeBurn, decimal.Zero, p.Amount.Neg(), reservationID); err != nil {
				return err
			}
			continue
		}
		if err := l.journal(ctx, tx, res.UserID, model.EntryKindCommitDebit, decimal.Zero, p.Amount.Neg(), reservationID); err != nil {
			return err
		}
		kind := p.Kind
		if kind == "" {
			kind = model.EntryKindCommitCredit
		}
		if err := l.credit(ctx, tx, p.UserID, p.Amount, kind, reservationID); err != nil {
			return err
		}
	}
	return nil
}

// DebitImmediate takes amount straight out of available without a reservation
func (l *Ledger) DebitImmediate(ctx context.Context, tx repository.Tx, userID string, amount decimal.Decimal, kind model.EntryKind) error {
	if amount.IsNegative() {
		return fmt.Errorf("ledger: debit %s: %w", amount, biddingerrors.ErrInvalidAmount)
	}
	if amount.IsZero() {
		return nil
	}

	bal, err := tx.GetBalanceForUpdate(ctx, userID)
	if err != nil {
		return err
	}
	if bal.Available.LessThan(amount) {
		return fmt.Errorf("ledger: debit %s from %s (available %s): %w",
			amount, userID, bal.Available, biddingerrors.ErrInsufficientBalance)
	}
	bal.Available = bal.Available.Sub(amount)
	if err := tx.UpdateBalance(ctx, bal); err != nil {
		return err
	}
	return l.journal(ctx, tx, userID, kind, amount.Neg(), decimal.Zero, "")
}

// Credit adds amount to a user's available balance
func (l *Ledger) Credit(ctx context.Context, tx repository.Tx, userID string, amount decimal.Decimal, kind model.EntryKind) error {
	if amount.IsNegative() {
		return fmt.Errorf("ledger: credit %s: %w", amount, biddingerrors.ErrInvalidAmount)
	}
	if amount.IsZero() {
		return nil
	}
	return l.credit(ctx, tx, userID, amount, kind, "")
}

// Deposit funds a user's available balance in its own unit of work
func (l *Ledger) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (model.Balance, error) {
	if userID == "" || !ValidAmount(amount) {
		return model.Balance{}, fmt.Errorf("ledger: deposit %s: %w", amount, biddingerrors.ErrInvalidAmount)
	}

	var bal model.Balance
	err := l.store.WithTx(ctx, func(tx repository.Tx) error {
		if err := l.Credit(ctx, tx, userID, amount, model.EntryKindDeposit); err != nil {
			return err
		}
		var err error
		bal, err = tx.GetBalanceForUpdate(ctx, userID)
		return err
	})
	if err != nil {
		return model.Balance{}, err
	}
	return l.withUSDValue(ctx, bal), nil
}

// Balance returns a user's balance valued in USD
func (l *Ledger) Balance(ctx context.Context, userID string) (model.Balance, error) {
	bal, err := l.store.GetBalance(ctx, userID)
	if err != nil {
		return model.Balance{}, err
	}
	return l.withUSDValue(ctx, bal), nil
}

// History returns a user's most recent journal entries
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]model.LedgerEntry, error) {
	return l.store.ListLedgerEntries(ctx, userID, limit)
}

func (l *Ledger) withUSDValue(ctx context.Context, bal model.Balance) model.Balance {
	bal.USDValue = decimal.Zero
	if l.oracle == nil {
		return bal
	}
	price, err := l.oracle.TokenUSDPrice(ctx)
	if err != nil {
		utils.Warn("price oracle unavailable", map[string]any{"user_id": bal.UserID, "error": err.Error()})
		return bal
	}
	bal.USDValue = bal.Total().Mul(price).Round(2)
	return bal
}

func (l *Ledger) heldReservation(ctx context.Context, tx repository.Tx, reservationID string) (model.Reservation, error) {
	res, err := tx.GetReservationForUpdate(ctx, reservationID)
	if err != nil {
		return model.Reservation{}, err
	}
	if res.State != model.ReservationStateHeld {
		return model.Reservation{}, fmt.Errorf("ledger: reservation %s is %s: %w",
			reservationID, res.State, biddingerrors.ErrReservationNotHeld)
	}
	return res, nil
}

func (l *Ledger) credit(ctx context.Context, tx repository.Tx, userID string, amount decimal.Decimal,
	kind model.EntryKind, reservationID string) error {
	bal, err := tx.GetBalanceForUpdate(ctx, userID)
	if err != nil {
		return err
	}
	bal.Available = bal.Available.Add(amount)
	if err := tx.UpdateBalance(ctx, bal); err != nil {
		return err
	}
	return l.journal(ctx, tx, userID, kind, amount, decimal.Zero, reservationID)
}

// journal appends the entry that accompanies every balance mutation
func (l *Ledger) journal(ctx context.Context, tx repository.Tx, userID string, kind model.EntryKind,
	availableDelta, reservedDelta decimal.Decimal, reservationID string) error {
	return tx.InsertLedgerEntry(ctx, model.LedgerEntry{
		EntryID:        utils.GenerateID(),
		UserID:         userID,
		Kind:           kind,
		AvailableDelta: availableDelta,
		ReservedDelta:  reservedDelta,
		ReservationID:  reservationID,
		CreatedAt:      l.now(),
	})
}
