package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"auction-escrow/internal/biddingerrors"
	"auction-escrow/internal/database"
	model "auction-escrow/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// queryable is satisfied by both the pool and a pgx transaction
type queryable interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// PostgresRepo is the Store backed by PostgreSQL. Row locks taken inside WithTx
// make it safe for several server instances sharing one database.
type PostgresRepo struct {
	db *database.DB
	q  queryable
}

// NewPostgresRepo creates a repository over an open connection pool
func NewPostgresRepo(db *database.DB) *PostgresRepo {
	return &PostgresRepo{db: db, q: db.Pool}
}

// WithTx runs fn in one database transaction, retried on deadlock or serialization failure
func (r *PostgresRepo) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		return fn(&pgTx{q: tx})
	})
}

const listingColumns = `listing_id, item_id, seller_id, min_price::text, auction_end_date,
	current_highest_bid_id, status, listing_fee::text, created_at, updated_at, closed_at`

const bidColumns = `bid_id, listing_id, bidder_id, amount::text, fee::text, reservation_id, status, created_at`

const reservationColumns = `reservation_id, user_id, amount::text, purpose, state, reference_id, created_at, updated_at`

func (r *PostgresRepo) GetListing(ctx context.Context, listingID string) (model.Listing, error) {
	return getListing(ctx, r.q, listingID, "")
}

func (r *PostgresRepo) ListListings(ctx context.Context, filter ListingFilter) ([]model.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR seller_id = $2)
		ORDER BY created_at DESC, listing_id`
	args := []any{string(filter.Status), filter.SellerID}
	if filter.Limit > 0 {
		query += ` LIMIT $3`
		args = append(args, filter.Limit)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var out []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListBidsByListing(ctx context.Context, listingID string) ([]model.Bid, error) {
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM listings WHERE listing_id = $1)`, listingID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check listing %s: %w", listingID, err)
	}
	if !exists {
		return nil, fmt.Errorf("get bids for listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	return listBidsByListing(ctx, r.q, listingID)
}

func (r *PostgresRepo) ListBidsByBidder(ctx context.Context, bidderID string) ([]model.Bid, error) {
	rows, err := r.q.Query(ctx, `SELECT `+bidColumns+` FROM bids WHERE bidder_id = $1 ORDER BY seq DESC`, bidderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids for bidder %s: %w", bidderID, err)
	}
	return collectBids(rows)
}

func (r *PostgresRepo) GetBalance(ctx context.Context, userID string) (model.Balance, error) {
	b, err := scanBalance(r.q.QueryRow(ctx,
		`SELECT user_id, available::text, reserved::text, created_at, updated_at FROM balances WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Balance{UserID: userID, Available: decimal.Zero, Reserved: decimal.Zero}, nil
	}
	if err != nil {
		return model.Balance{}, fmt.Errorf("failed to get balance for %s: %w", userID, err)
	}
	return b, nil
}

func (r *PostgresRepo) GetItem(ctx context.Context, itemID string) (model.Item, error) {
	return getItem(ctx, r.q, itemID, "")
}

func (r *PostgresRepo) GetReservation(ctx context.Context, reservationID string) (model.Reservation, error) {
	return getReservation(ctx, r.q, reservationID, "")
}

func (r *PostgresRepo) ListLedgerEntries(ctx context.Context, userID string, limit int) ([]model.LedgerEntry, error) {
	query := `SELECT entry_id, user_id, kind, available_delta::text, reserved_delta::text,
		COALESCE(reservation_id, ''), created_at
		FROM ledger_entries WHERE user_id = $1 ORDER BY seq DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []model.LedgerEntry
	for rows.Next() {
		var (
			e                      model.LedgerEntry
			kind, avail, reserved string
		)
		if err := rows.Scan(&e.EntryID, &e.UserID, &kind, &avail, &reserved, &e.ReservationID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Kind = model.EntryKind(kind)
		if e.AvailableDelta, err = decimal.NewFromString(avail); err != nil {
			return nil, fmt.Errorf("failed to parse available delta: %w", err)
		}
		if e.ReservedDelta, err = decimal.NewFromString(reserved); err != nil {
			return nil, fmt.Errorf("failed to parse reserved delta: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListDueListingIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT listing_id FROM listings
		WHERE status = 'active' AND auction_end_date IS NOT NULL AND auction_end_date <= $1
		ORDER BY auction_end_date
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due listings: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan listing id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// pgTx implements Tx over a pgx transaction
type pgTx struct {
	q queryable
}

func (t *pgTx) GetItemForUpdate(ctx context.Context, itemID string) (model.Item, error) {
	return getItem(ctx, t.q, itemID, " FOR UPDATE")
}

func (t *pgTx) UpsertItem(ctx context.Context, item model.Item) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO items (item_id, owner_id, kind, title, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (item_id) DO UPDATE SET owner_id = EXCLUDED.owner_id, kind = EXCLUDED.kind, title = EXCLUDED.title`,
		item.ItemID, item.OwnerID, string(item.Kind), item.Title, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert item %s: %w", item.ItemID, err)
	}
	return nil
}

func (t *pgTx) UpdateItemOwner(ctx context.Context, itemID, ownerID string) error {
	tag, err := t.q.Exec(ctx, `UPDATE items SET owner_id = $1 WHERE item_id = $2`, ownerID, itemID)
	if err != nil {
		return fmt.Errorf("failed to transfer item %s: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transfer item %s: %w", itemID, biddingerrors.ErrItemNotFound)
	}
	return nil
}

func (t *pgTx) GetListingForUpdate(ctx context.Context, listingID string) (model.Listing, error) {
	return getListing(ctx, t.q, listingID, " FOR UPDATE")
}

func (t *pgTx) HasActiveListingForItem(ctx context.Context, itemID string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM listings WHERE item_id = $1 AND status = 'active')`, itemID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check active listing for item %s: %w", itemID, err)
	}
	return exists, nil
}

func (t *pgTx) InsertListing(ctx context.Context, l model.Listing) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO listings (listing_id, item_id, seller_id, min_price, auction_end_date,
			current_highest_bid_id, status, listing_fee, created_at, updated_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		l.ListingID, l.ItemID, l.SellerID, l.MinPrice.String(), l.AuctionEndDate,
		l.CurrentHighestBidID, string(l.Status), l.ListingFee.String(), l.CreatedAt, l.UpdatedAt, l.ClosedAt)
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("insert listing for item %s: %w", l.ItemID, biddingerrors.ErrItemAlreadyListed)
	}
	if err != nil {
		return fmt.Errorf("failed to insert listing %s: %w", l.ListingID, err)
	}
	return nil
}

func (t *pgTx) UpdateListing(ctx context.Context, l model.Listing) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE listings
		SET current_highest_bid_id = $1, status = $2, updated_at = $3, closed_at = $4
		WHERE listing_id = $5`,
		l.CurrentHighestBidID, string(l.Status), l.UpdatedAt, l.ClosedAt, l.ListingID)
	if err != nil {
		return fmt.Errorf("failed to update listing %s: %w", l.ListingID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update listing %s: %w", l.ListingID, biddingerrors.ErrListingNotFound)
	}
	return nil
}

func (t *pgTx) InsertBid(ctx context.Context, b model.Bid) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO bids (bid_id, listing_id, bidder_id, amount, fee, reservation_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.BidID, b.ListingID, b.BidderID, b.Amount.String(), b.Fee.String(), b.ReservationID, string(b.Status), b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert bid %s: %w", b.BidID, err)
	}
	return nil
}

func (t *pgTx) GetBid(ctx context.Context, bidID string) (model.Bid, error) {
	b, err := scanBid(t.q.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE bid_id = $1`, bidID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("get bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	if err != nil {
		return model.Bid{}, fmt.Errorf("failed to get bid %s: %w", bidID, err)
	}
	return b, nil
}

func (t *pgTx) UpdateBidStatus(ctx context.Context, bidID string, status model.BidStatus) error {
	tag, err := t.q.Exec(ctx, `UPDATE bids SET status = $1 WHERE bid_id = $2`, string(status), bidID)
	if err != nil {
		return fmt.Errorf("failed to update bid %s: %w", bidID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	return nil
}

func (t *pgTx) ListBidsByListing(ctx context.Context, listingID string) ([]model.Bid, error) {
	return listBidsByListing(ctx, t.q, listingID)
}

func (t *pgTx) LockBalances(ctx context.Context, userIDs ...string) error {
	ids := sortedUnique(userIDs)
	if len(ids) == 0 {
		return nil
	}
	if _, err := t.q.Exec(ctx,
		`INSERT INTO balances (user_id) SELECT unnest($1::text[]) ON CONFLICT (user_id) DO NOTHING`, ids); err != nil {
		return fmt.Errorf("failed to create balances: %w", err)
	}

	rows, err := t.q.Query(ctx,
		`SELECT user_id FROM balances WHERE user_id = ANY($1) ORDER BY user_id FOR UPDATE`, ids)
	if err != nil {
		return fmt.Errorf("failed to lock balances: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
	}
	return rows.Err()
}

func (t *pgTx) GetBalanceForUpdate(ctx context.Context, userID string) (model.Balance, error) {
	if userID == "" {
		return model.Balance{}, fmt.Errorf("get balance: empty user id: %w", biddingerrors.ErrInvariantViolation)
	}
	if _, err := t.q.Exec(ctx,
		`INSERT INTO balances (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return model.Balance{}, fmt.Errorf("failed to create balance for %s: %w", userID, err)
	}

	b, err := scanBalance(t.q.QueryRow(ctx, `
		SELECT user_id, available::text, reserved::text, created_at, updated_at
		FROM balances WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return model.Balance{}, fmt.Errorf("failed to lock balance for %s: %w", userID, err)
	}
	return b, nil
}

func (t *pgTx) UpdateBalance(ctx context.Context, b model.Balance) error {
	if b.Available.IsNegative() || b.Reserved.IsNegative() {
		return fmt.Errorf("update balance %s: negative amount: %w", b.UserID, biddingerrors.ErrInvariantViolation)
	}
	tag, err := t.q.Exec(ctx,
		`UPDATE balances SET available = $1, reserved = $2, updated_at = NOW() WHERE user_id = $3`,
		b.Available.String(), b.Reserved.String(), b.UserID)
	if err != nil {
		return fmt.Errorf("failed to update balance for %s: %w", b.UserID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update balance %s: row not locked: %w", b.UserID, biddingerrors.ErrInvariantViolation)
	}
	return nil
}

func (t *pgTx) InsertReservation(ctx context.Context, res model.Reservation) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO reservations (reservation_id, user_id, amount, purpose, state, reference_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		res.ReservationID, res.UserID, res.Amount.String(), string(res.Purpose), string(res.State),
		res.ReferenceID, res.CreatedAt, res.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reservation %s: %w", res.ReservationID, err)
	}
	return nil
}

func (t *pgTx) GetReservationForUpdate(ctx context.Context, reservationID string) (model.Reservation, error) {
	return getReservation(ctx, t.q, reservationID, " FOR UPDATE")
}

func (t *pgTx) UpdateReservationState(ctx context.Context, reservationID string, state model.ReservationState) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE reservations SET state = $1, updated_at = NOW() WHERE reservation_id = $2`, string(state), reservationID)
	if err != nil {
		return fmt.Errorf("failed to update reservation %s: %w", reservationID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update reservation %s: %w", reservationID, biddingerrors.ErrReservationNotFound)
	}
	return nil
}

func (t *pgTx) InsertLedgerEntry(ctx context.Context, e model.LedgerEntry) error {
	var reservationID *string
	if e.ReservationID != "" {
		reservationID = &e.ReservationID
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO ledger_entries (entry_id, user_id, kind, available_delta, reserved_delta, reservation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.EntryID, e.UserID, string(e.Kind), e.AvailableDelta.String(), e.ReservedDelta.String(), reservationID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func getListing(ctx context.Context, q queryable, listingID, lock string) (model.Listing, error) {
	l, err := scanListing(q.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE listing_id = $1`+lock, listingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Listing{}, fmt.Errorf("get listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	if err != nil {
		return model.Listing{}, fmt.Errorf("failed to get listing %s: %w", listingID, err)
	}
	return l, nil
}

func getItem(ctx context.Context, q queryable, itemID, lock string) (model.Item, error) {
	var (
		item model.Item
		kind string
	)
	err := q.QueryRow(ctx,
		`SELECT item_id, owner_id, kind, title, created_at FROM items WHERE item_id = $1`+lock, itemID).
		Scan(&item.ItemID, &item.OwnerID, &kind, &item.Title, &item.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Item{}, fmt.Errorf("get item %s: %w", itemID, biddingerrors.ErrItemNotFound)
	}
	if err != nil {
		return model.Item{}, fmt.Errorf("failed to get item %s: %w", itemID, err)
	}
	item.Kind = model.ItemKind(kind)
	return item, nil
}

func getReservation(ctx context.Context, q queryable, reservationID, lock string) (model.Reservation, error) {
	var (
		res                   model.Reservation
		amount, purpose, state string
	)
	err := q.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE reservation_id = $1`+lock, reservationID).
		Scan(&res.ReservationID, &res.UserID, &amount, &purpose, &state, &res.ReferenceID, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Reservation{}, fmt.Errorf("get reservation %s: %w", reservationID, biddingerrors.ErrReservationNotFound)
	}
	if err != nil {
		return model.Reservation{}, fmt.Errorf("failed to get reservation %s: %w", reservationID, err)
	}
	if res.Amount, err = decimal.NewFromString(amount); err != nil {
		return model.Reservation{}, fmt.Errorf("failed to parse reservation amount: %w", err)
	}
	res.Purpose = model.ReservationPurpose(purpose)
	res.State = model.ReservationState(state)
	return res, nil
}

func listBidsByListing(ctx context.Context, q queryable, listingID string) ([]model.Bid, error) {
	rows, err := q.Query(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE listing_id = $1 ORDER BY amount DESC, seq`, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids for listing %s: %w", listingID, err)
	}
	return collectBids(rows)
}

func collectBids(rows pgx.Rows) ([]model.Bid, error) {
	defer rows.Close()

	out := make([]model.Bid, 0)
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanListing(row scanner) (model.Listing, error) {
	var (
		l                   model.Listing
		minPrice, fee, stat string
	)
	if err := row.Scan(&l.ListingID, &l.ItemID, &l.SellerID, &minPrice, &l.AuctionEndDate,
		&l.CurrentHighestBidID, &stat, &fee, &l.CreatedAt, &l.UpdatedAt, &l.ClosedAt); err != nil {
		return model.Listing{}, err
	}

	var err error
	if l.MinPrice, err = decimal.NewFromString(minPrice); err != nil {
		return model.Listing{}, fmt.Errorf("failed to parse min price: %w", err)
	}
	if l.ListingFee, err = decimal.NewFromString(fee); err != nil {
		return model.Listing{}, fmt.Errorf("failed to parse listing fee: %w", err)
	}
	l.Status = model.ListingStatus(stat)
	return l, nil
}

func scanBid(row scanner) (model.Bid, error) {
	var (
		b                   model.Bid
		amount, fee, status string
	)
	if err := row.Scan(&b.BidID, &b.ListingID, &b.BidderID, &amount, &fee, &b.ReservationID, &status, &b.CreatedAt); err != nil {
		return model.Bid{}, err
	}

	var err error
	if b.Amount, err = decimal.NewFromString(amount); err != nil {
		return model.Bid{}, fmt.Errorf("failed to parse bid amount: %w", err)
	}
	if b.Fee, err = decimal.NewFromString(fee); err != nil {
		return model.Bid{}, fmt.Errorf("failed to parse bid fee: %w", err)
	}
	b.Status = model.BidStatus(status)
	return b, nil
}

func scanBalance(row scanner) (model.Balance, error) {
	var (
		b                   model.Balance
		available, reserved string
	)
	if err := row.Scan(&b.UserID, &available, &reserved, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return model.Balance{}, err
	}

	var err error
	if b.Available, err = decimal.NewFromString(available); err != nil {
		return model.Balance{}, fmt.Errorf("failed to parse available balance: %w", err)
	}
	if b.Reserved, err = decimal.NewFromString(reserved); err != nil {
		return model.Balance{}, fmt.Errorf("failed to parse reserved balance: %w", err)
	}
	return b, nil
}

func sortedUnique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
