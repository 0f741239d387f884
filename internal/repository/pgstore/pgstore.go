// Package pgstore is the PostgreSQL implementation of repository.AuctionDB
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"auction-house/internal/biddingerrors"
	model "auction-house/internal/models"
	"auction-house/internal/repository"
)

const uniqueViolation = "23505"

var _ repository.AuctionDB = (*Store)(nil)

// Store keeps auctions, bids and users in PostgreSQL
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for url and verifies it with a ping
func Connect(ctx context.Context, url string) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("pgstore: failed to parse connection URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("pgstore: failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: failed to ping database: %w", err)
	}

	return New(pool), nil
}

// New wraps an existing pool
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the pool
func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

const auctionColumns = `id, title, description, starting_price, current_price, start_time, end_time,
	seller_id, highest_bidder_id, images, status, created_at, updated_at`

// CreateAuction inserts a new auction
func (s *Store) CreateAuction(ctx context.Context, a model.Auction) error {
	images, err := encodeImages(a.Images)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO auctions (`+auctionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11, $12, $13)`,
		a.ID, a.Title, a.Description, a.StartingPrice, a.CurrentPrice, a.StartTime, a.EndTime,
		a.SellerID, a.HighestBidderID, images, string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create auction %s: duplicate id: %w", a.ID, biddingerrors.ErrValidation)
	}
	if err != nil {
		return biddingerrors.Persistence("create auction", err)
	}
	return nil
}

// GetAuction returns an auction by id
func (s *Store) GetAuction(ctx context.Context, id string) (model.Auction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id)
	a, err := scanAuction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", id, biddingerrors.ErrNotFound)
	}
	if err != nil {
		return model.Auction{}, biddingerrors.Persistence("get auction", err)
	}
	return a, nil
}

// ListAuctions returns auctions matching filter ordered by start time
func (s *Store) ListAuctions(ctx context.Context, filter model.AuctionFilter) ([]model.Auction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+auctionColumns+` FROM auctions
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR seller_id = $2)
		  AND ($3 = '' OR strpos(lower(title), lower($3)) > 0 OR strpos(lower(description), lower($3)) > 0)
		ORDER BY start_time, id`,
		string(filter.Status), filter.SellerID, filter.Keyword,
	)
	if err != nil {
		return nil, biddingerrors.Persistence("list auctions", err)
	}
	return collectAuctions(rows, "list auctions")
}

// UpdateAuctionDetails writes the seller-editable fields of an auction that
// has not ended. The start time only moves while the auction is upcoming and
// unbid.
func (s *Store) UpdateAuctionDetails(ctx context.Context, a model.Auction) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE auctions
		SET title = $2, description = $3, start_time = $4, end_time = $5, updated_at = $6
		WHERE id = $1 AND status <> 'ended'
		  AND (start_time = $4 OR (status = 'upcoming' AND highest_bidder_id IS NULL))`,
		a.ID, a.Title, a.Description, a.StartTime, a.EndTime, a.UpdatedAt,
	)
	if err != nil {
		return false, biddingerrors.Persistence("update auction", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, requireAuction(ctx, s.pool, "update auction", a.ID)
}

// AppendImages concatenates images onto the stored array while it stays
// within limit
func (s *Store) AppendImages(ctx context.Context, id string, images []model.Image, limit int, at time.Time) (model.Auction, bool, error) {
	encoded, err := encodeImages(images)
	if err != nil {
		return model.Auction{}, false, err
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE auctions
		SET images = images || $2::jsonb, updated_at = $3
		WHERE id = $1 AND jsonb_array_length(images) + $4 <= $5
		RETURNING `+auctionColumns,
		id, encoded, at, len(images), limit,
	)
	a, err := scanAuction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Auction{}, false, requireAuction(ctx, s.pool, "append images", id)
	}
	if err != nil {
		return model.Auction{}, false, biddingerrors.Persistence("append images", err)
	}
	return a, true, nil
}

// DeleteAuction removes an auction. Its bids stay in the ledger.
func (s *Store) DeleteAuction(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM auctions WHERE id = $1`, id)
	if err != nil {
		return biddingerrors.Persistence("delete auction", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete auction %s: %w", id, biddingerrors.ErrNotFound)
	}
	return nil
}

// CommitBid raises the price and appends the bid in one transaction. The
// conditional UPDATE takes the row lock, so a concurrent commit re-checks
// the price after the first one lands, and the bid's timestamp is clamped to
// the latest one already in the ledger.
func (s *Store) CommitBid(ctx context.Context, bid model.Bid) (model.Bid, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Bid{}, false, biddingerrors.Persistence("commit bid", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE auctions
		SET current_price = $2, highest_bidder_id = $3, updated_at = $4
		WHERE id = $1 AND status <> 'ended' AND current_price < $2`,
		bid.AuctionID, bid.Amount, bid.BidderID, bid.CreatedAt,
	)
	if err != nil {
		return model.Bid{}, false, biddingerrors.Persistence("commit bid", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Bid{}, false, requireAuction(ctx, tx, "commit bid", bid.AuctionID)
	}

	if err := tx.QueryRow(ctx, `
		INSERT INTO bids (id, auction_id, bidder_id, amount, created_at)
		VALUES ($1, $2, $3, $4, GREATEST($5::timestamptz, (SELECT max(created_at) FROM bids WHERE auction_id = $2)))
		RETURNING created_at`,
		bid.BidID, bid.AuctionID, bid.BidderID, bid.Amount, bid.CreatedAt,
	).Scan(&bid.CreatedAt); err != nil {
		return model.Bid{}, false, biddingerrors.Persistence("commit bid", err)
	}
	bid.CreatedAt = bid.CreatedAt.UTC()

	if err := tx.Commit(ctx); err != nil {
		return model.Bid{}, false, biddingerrors.Persistence("commit bid", err)
	}
	return bid, true, nil
}

// TransitionStatus changes status only when the stored status equals from
func (s *Store) TransitionStatus(ctx context.Context, id string, from, to model.Status, at time.Time) (model.Auction, bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE auctions SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING `+auctionColumns,
		id, string(from), string(to), at,
	)
	a, err := scanAuction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Auction{}, false, requireAuction(ctx, s.pool, "transition status", id)
	}
	if err != nil {
		return model.Auction{}, false, biddingerrors.Persistence("transition status", err)
	}
	return a, true, nil
}

// ListStaleAuctions returns auctions whose stored status is behind now
func (s *Store) ListStaleAuctions(ctx context.Context, now time.Time) ([]model.Auction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+auctionColumns+` FROM auctions
		WHERE (status <> 'ended' AND end_time < $1)
		   OR (status = 'upcoming' AND start_time <= $1)
		ORDER BY start_time, id`,
		now,
	)
	if err != nil {
		return nil, biddingerrors.Persistence("list stale auctions", err)
	}
	return collectAuctions(rows, "list stale auctions")
}

// ListBidsByAuction returns bids newest first
func (s *Store) ListBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, auction_id, bidder_id, amount, created_at
		FROM bids WHERE auction_id = $1
		ORDER BY seq DESC`,
		auctionID,
	)
	if err != nil {
		return nil, biddingerrors.Persistence("list bids", err)
	}
	defer rows.Close()

	bids := []model.Bid{}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, biddingerrors.Persistence("list bids", err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, biddingerrors.Persistence("list bids", err)
	}
	return bids, nil
}

// GetHighestBid returns the latest committed bid, which is also the highest
func (s *Store) GetHighestBid(ctx context.Context, auctionID string) (model.Bid, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, auction_id, bidder_id, amount, created_at
		FROM bids WHERE auction_id = $1
		ORDER BY seq DESC LIMIT 1`,
		auctionID,
	)
	b, err := scanBid(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("get highest bid for auction %s: %w", auctionID, biddingerrors.ErrNotFound)
	}
	if err != nil {
		return model.Bid{}, biddingerrors.Persistence("get highest bid", err)
	}
	return b, nil
}

// ListAuctionsByBidder returns auctions the user has bid on
func (s *Store) ListAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+auctionColumns+` FROM auctions
		WHERE id IN (SELECT auction_id FROM bids WHERE bidder_id = $1)
		ORDER BY start_time, id`,
		bidderID,
	)
	if err != nil {
		return nil, biddingerrors.Persistence("list auctions by bidder", err)
	}
	return collectAuctions(rows, "list auctions by bidder")
}

// CreateUser inserts a user, rejecting duplicate emails
func (s *Store) CreateUser(ctx context.Context, u model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, lower($3), $4, $5, $6, $7)`,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create user: %w", biddingerrors.ErrEmailTaken)
	}
	if err != nil {
		return biddingerrors.Persistence("create user", err)
	}
	return nil
}

// GetUserByID returns a user by id
func (s *Store) GetUserByID(ctx context.Context, id string) (model.User, error) {
	return s.getUser(ctx, `WHERE id = $1`, id)
}

// GetUserByEmail returns a user by case-insensitive email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return s.getUser(ctx, `WHERE email = lower($1)`, email)
}

func (s *Store) getUser(ctx context.Context, where string, arg string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, email, password_hash, role, created_at, updated_at
		FROM users `+where, arg)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, fmt.Errorf("get user: %w", biddingerrors.ErrNotFound)
	}
	if err != nil {
		return model.User{}, biddingerrors.Persistence("get user", err)
	}
	return u, nil
}

// UpdateUser overwrites name, email, password hash and role
func (s *Store) UpdateUser(ctx context.Context, u model.User) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET name = $2, email = lower($3), password_hash = $4, role = $5, updated_at = $6
		WHERE id = $1`,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("update user %s: %w", u.ID, biddingerrors.ErrEmailTaken)
	}
	if err != nil {
		return biddingerrors.Persistence("update user", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update user %s: %w", u.ID, biddingerrors.ErrNotFound)
	}
	return nil
}

// ListUsers returns every user ordered by creation time
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, email, password_hash, role, created_at, updated_at
		FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, biddingerrors.Persistence("list users", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, biddingerrors.Persistence("list users", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, biddingerrors.Persistence("list users", err)
	}
	return users, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// requireAuction explains a conditional write that matched no row: ErrNotFound
// when the auction is gone, nil when the condition did not hold.
func requireAuction(ctx context.Context, q querier, op, id string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM auctions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return biddingerrors.Persistence(op, err)
	}
	if !exists {
		return fmt.Errorf("%s %s: %w", op, id, biddingerrors.ErrNotFound)
	}
	return nil
}

func scanAuction(row pgx.Row) (model.Auction, error) {
	var (
		a      model.Auction
		status string
		images []byte
	)
	err := row.Scan(&a.ID, &a.Title, &a.Description, &a.StartingPrice, &a.CurrentPrice, &a.StartTime, &a.EndTime,
		&a.SellerID, &a.HighestBidderID, &images, &status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Auction{}, err
	}
	a.Status = model.Status(status)
	if a.Images, err = decodeImages(images); err != nil {
		return model.Auction{}, err
	}
	return a, nil
}

func collectAuctions(rows pgx.Rows, op string) ([]model.Auction, error) {
	defer rows.Close()

	auctions := []model.Auction{}
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, biddingerrors.Persistence(op, err)
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, biddingerrors.Persistence(op, err)
	}
	return auctions, nil
}

func scanBid(row pgx.Row) (model.Bid, error) {
	var b model.Bid
	err := row.Scan(&b.BidID, &b.AuctionID, &b.BidderID, &b.Amount, &b.CreatedAt)
	return b, err
}

func scanUser(row pgx.Row) (model.User, error) {
	var (
		u    model.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	return u, nil
}

func encodeImages(images []model.Image) (string, error) {
	if images == nil {
		images = []model.Image{}
	}
	raw, err := json.Marshal(images)
	if err != nil {
		return "", fmt.Errorf("encode images: %w", err)
	}
	return string(raw), nil
}

func decodeImages(raw []byte) ([]model.Image, error) {
	images := []model.Image{}
	if len(raw) == 0 {
		return images, nil
	}
	if err := json.Unmarshal(raw, &images); err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	return images, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
