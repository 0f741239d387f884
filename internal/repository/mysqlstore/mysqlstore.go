// Package mysqlstore is the MySQL implementation of repository.AuctionDB
package mysqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"auction-house/internal/biddingerrors"
	model "auction-house/internal/models"
	"auction-house/internal/repository"
)

const duplicateEntry = 1062

var _ repository.AuctionDB = (*Store)(nil)

// Store keeps auctions, bids and users in MySQL
type Store struct {
	db *sql.DB
}

// Open connects using dsn. Row counts report matched rather than changed
// rows so conditional updates can tell "no match" from "no change".
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore: invalid DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysqlstore: failed to ping database: %w", err)
	}
	return New(db), nil
}

// New wraps an existing handle
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the connection pool
func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

const auctionColumns = `id, title, description, starting_price, current_price, start_time, end_time,
	seller_id, highest_bidder_id, images, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateAuction inserts a new auction
func (s *Store) CreateAuction(ctx context.Context, a model.Auction) error {
	images, err := encodeImages(a.Images)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO auctions (`+auctionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.Description, a.StartingPrice, a.CurrentPrice, a.StartTime.UTC(), a.EndTime.UTC(),
		a.SellerID, a.HighestBidderID, images, string(a.Status), a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	)
	if isDuplicateEntryError(err) {
		return fmt.Errorf("create auction %s: duplicate id: %w", a.ID, biddingerrors.ErrValidation)
	}
	if err != nil {
		return biddingerrors.Persistence("create auction", err)
	}
	return nil
}

// GetAuction returns an auction by id
func (s *Store) GetAuction(ctx context.Context, id string) (model.Auction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = ?`, id)
	a, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", id, biddingerrors.ErrNotFound)
	}
	if err != nil {
		return model.Auction{}, biddingerrors.Persistence("get auction", err)
	}
	return a, nil
}

// ListAuctions returns auctions matching filter ordered by start time
func (s *Store) ListAuctions(ctx context.Context, filter model.AuctionFilter) ([]model.Auction, error) {
	status, seller, keyword := string(filter.Status), filter.SellerID, filter.Keyword
	return s.queryAuctions(ctx, "list auctions", `
		SELECT `+auctionColumns+` FROM auctions
		WHERE (? = '' OR status = ?)
		  AND (? = '' OR seller_id = ?)
		  AND (? = '' OR LOCATE(LOWER(?), LOWER(title)) > 0 OR LOCATE(LOWER(?), LOWER(description)) > 0)
		ORDER BY start_time, id`,
		status, status, seller, seller, keyword, keyword, keyword,
	)
}

// UpdateAuctionDetails writes the seller-editable fields of an auction that
// has not ended. The start time only moves while the auction is upcoming and
// unbid.
func (s *Store) UpdateAuctionDetails(ctx context.Context, a model.Auction) (bool, error) {
	start := a.StartTime.UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE auctions
		SET title = ?, description = ?, start_time = ?, end_time = ?, updated_at = ?
		WHERE id = ? AND status <> 'ended'
		  AND (start_time = ? OR (status = 'upcoming' AND highest_bidder_id IS NULL))`,
		a.Title, a.Description, start, a.EndTime.UTC(), a.UpdatedAt.UTC(), a.ID, start,
	)
	if err != nil {
		return false, biddingerrors.Persistence("update auction", err)
	}
	return matched(ctx, s.db, res, "update auction", a.ID)
}

// AppendImages concatenates images onto the stored array while it stays
// within limit, then reads the auction back inside the same transaction
func (s *Store) AppendImages(ctx context.Context, id string, images []model.Image, limit int, at time.Time) (model.Auction, bool, error) {
	encoded, err := encodeImages(images)
	if err != nil {
		return model.Auction{}, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Auction{}, false, biddingerrors.Persistence("append images", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE auctions
		SET images = JSON_MERGE_PRESERVE(images, CAST(? AS JSON)), updated_at = ?
		WHERE id = ? AND JSON_LENGTH(images) + ? <= ?`,
		encoded, at.UTC(), id, len(images), limit,
	)
	if err != nil {
		return model.Auction{}, false, biddingerrors.Persistence("append images", err)
	}
	if ok, err := matched(ctx, tx, res, "append images", id); !ok {
		return model.Auction{}, false, err
	}

	return readBack(ctx, tx, "append images", id)
}

// DeleteAuction removes an auction. Its bids stay in the ledger.
func (s *Store) DeleteAuction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM auctions WHERE id = ?`, id)
	if err != nil {
		return biddingerrors.Persistence("delete auction", err)
	}
	return requireRow(res, fmt.Sprintf("delete auction %s", id))
}

// CommitBid raises the price and appends the bid in one transaction. The
// conditional UPDATE is a locking read, so concurrent commits serialize on
// the auction row; each re-checks the latest price and clamps its timestamp
// to the newest bid already in the ledger.
func (s *Store) CommitBid(ctx context.Context, bid model.Bid) (model.Bid, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Bid{}, false, biddingerrors.Persistence("commit bid", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE auctions
		SET current_price = ?, highest_bidder_id = ?, updated_at = ?
		WHERE id = ? AND status <> 'ended' AND current_price < ?`,
		bid.Amount, bid.BidderID, bid.CreatedAt.UTC(), bid.AuctionID, bid.Amount,
	)
	if err != nil {
		return model.Bid{}, false, biddingerrors.Persistence("commit bid", err)
	}
	if ok, err := matched(ctx, tx, res, "commit bid", bid.AuctionID); !ok {
		return model.Bid{}, false, err
	}

	var latest sql.NullTime
	if err := tx.QueryRowContext(ctx, `SELECT MAX(created_at) FROM bids WHERE auction_id = ?`, bid.AuctionID).Scan(&latest); err != nil {
		return model.Bid{}, false, biddingerrors.Persistence("commit bid", err)
	}
	bid.CreatedAt = bid.CreatedAt.UTC()
	if latest.Valid && bid.CreatedAt.Before(latest.Time) {
		bid.CreatedAt = latest.Time.UTC()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO bids (id, auction_id, bidder_id, amount, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		bid.BidID, bid.AuctionID, bid.BidderID, bid.Amount, bid.CreatedAt,
	); err != nil {
		return model.Bid{}, false, biddingerrors.Persistence("commit bid", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Bid{}, false, biddingerrors.Persistence("commit bid", err)
	}
	return bid, true, nil
}

// TransitionStatus changes status only when the stored status equals from,
// reading the auction back inside the same transaction
func (s *Store) TransitionStatus(ctx context.Context, id string, from, to model.Status, at time.Time) (model.Auction, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Auction{}, false, biddingerrors.Persistence("transition status", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE auctions SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), at.UTC(), id, string(from),
	)
	if err != nil {
		return model.Auction{}, false, biddingerrors.Persistence("transition status", err)
	}
	if ok, err := matched(ctx, tx, res, "transition status", id); !ok {
		return model.Auction{}, false, err
	}

	return readBack(ctx, tx, "transition status", id)
}

// ListStaleAuctions returns auctions whose stored status is behind now
func (s *Store) ListStaleAuctions(ctx context.Context, now time.Time) ([]model.Auction, error) {
	now = now.UTC()
	return s.queryAuctions(ctx, "list stale auctions", `
		SELECT `+auctionColumns+` FROM auctions
		WHERE (status <> 'ended' AND end_time < ?)
		   OR (status = 'upcoming' AND start_time <= ?)
		ORDER BY start_time, id`,
		now, now,
	)
}

// ListBidsByAuction returns bids newest first
func (s *Store) ListBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, auction_id, bidder_id, amount, created_at
		FROM bids WHERE auction_id = ?
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
	row := s.db.QueryRowContext(ctx, `
		SELECT id, auction_id, bidder_id, amount, created_at
		FROM bids WHERE auction_id = ?
		ORDER BY seq DESC LIMIT 1`,
		auctionID,
	)
	b, err := scanBid(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("get highest bid for auction %s: %w", auctionID, biddingerrors.ErrNotFound)
	}
	if err != nil {
		return model.Bid{}, biddingerrors.Persistence("get highest bid", err)
	}
	return b, nil
}

// ListAuctionsByBidder returns auctions the user has bid on
func (s *Store) ListAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error) {
	return s.queryAuctions(ctx, "list auctions by bidder", `
		SELECT `+auctionColumns+` FROM auctions
		WHERE id IN (SELECT auction_id FROM bids WHERE bidder_id = ?)
		ORDER BY start_time, id`,
		bidderID,
	)
}

// CreateUser inserts a user, rejecting duplicate emails
func (s *Store) CreateUser(ctx context.Context, u model.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at)
		VALUES (?, ?, LOWER(?), ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	)
	if isDuplicateEntryError(err) {
		return fmt.Errorf("create user: %w", biddingerrors.ErrEmailTaken)
	}
	if err != nil {
		return biddingerrors.Persistence("create user", err)
	}
	return nil
}

// GetUserByID returns a user by id
func (s *Store) GetUserByID(ctx context.Context, id string) (model.User, error) {
	return s.getUser(ctx, `WHERE id = ?`, id)
}

// GetUserByEmail returns a user by case-insensitive email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return s.getUser(ctx, `WHERE email = LOWER(?)`, email)
}

func (s *Store) getUser(ctx context.Context, where, arg string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at, updated_at
		FROM users `+where, arg)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("get user: %w", biddingerrors.ErrNotFound)
	}
	if err != nil {
		return model.User{}, biddingerrors.Persistence("get user", err)
	}
	return u, nil
}

// UpdateUser overwrites name, email, password hash and role
func (s *Store) UpdateUser(ctx context.Context, u model.User) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name = ?, email = LOWER(?), password_hash = ?, role = ?, updated_at = ?
		WHERE id = ?`,
		u.Name, u.Email, u.PasswordHash, string(u.Role), u.UpdatedAt.UTC(), u.ID,
	)
	if isDuplicateEntryError(err) {
		return fmt.Errorf("update user %s: %w", u.ID, biddingerrors.ErrEmailTaken)
	}
	if err != nil {
		return biddingerrors.Persistence("update user", err)
	}
	return requireRow(res, fmt.Sprintf("update user %s", u.ID))
}

// ListUsers returns every user ordered by creation time
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `
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

func (s *Store) queryAuctions(ctx context.Context, op, query string, args ...any) ([]model.Auction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, biddingerrors.Persistence(op, err)
	}
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

func scanAuction(row rowScanner) (model.Auction, error) {
	var (
		a      model.Auction
		bidder sql.NullString
		status string
		images []byte
	)
	err := row.Scan(&a.ID, &a.Title, &a.Description, &a.StartingPrice, &a.CurrentPrice, &a.StartTime, &a.EndTime,
		&a.SellerID, &bidder, &images, &status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Auction{}, err
	}
	if bidder.Valid {
		a.HighestBidderID = &bidder.String
	}
	a.Status = model.Status(status)
	if a.Images, err = decodeImages(images); err != nil {
		return model.Auction{}, err
	}
	return a, nil
}

func scanBid(row rowScanner) (model.Bid, error) {
	var b model.Bid
	err := row.Scan(&b.BidID, &b.AuctionID, &b.BidderID, &b.Amount, &b.CreatedAt)
	return b, err
}

func scanUser(row rowScanner) (model.User, error) {
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

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// matched reports whether a conditional write hit its row. When it did not,
// the error is ErrNotFound if the auction is gone and nil if the condition
// failed.
func matched(ctx context.Context, q querier, res sql.Result, op, id string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, biddingerrors.Persistence(op, err)
	}
	if n > 0 {
		return true, nil
	}

	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM auctions WHERE id = ?)`, id).Scan(&exists); err != nil {
		return false, biddingerrors.Persistence(op, err)
	}
	if !exists {
		return false, fmt.Errorf("%s %s: %w", op, id, biddingerrors.ErrNotFound)
	}
	return false, nil
}

// readBack loads the auction a transaction just wrote and commits
func readBack(ctx context.Context, tx *sql.Tx, op, id string) (model.Auction, bool, error) {
	a, err := scanAuction(tx.QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = ?`, id))
	if err != nil {
		return model.Auction{}, false, biddingerrors.Persistence(op, err)
	}
	if err := tx.Commit(); err != nil {
		return model.Auction{}, false, biddingerrors.Persistence(op, err)
	}
	return a, true, nil
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return biddingerrors.Persistence(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, biddingerrors.ErrNotFound)
	}
	return nil
}

func encodeImages(images []model.Image) ([]byte, error) {
	if images == nil {
		images = []model.Image{}
	}
	raw, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("encode images: %w", err)
	}
	return raw, nil
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

// isDuplicateEntryError reports a MySQL duplicate key error (code 1062)
func isDuplicateEntryError(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == duplicateEntry
}
