// Package mongostore is the MongoDB implementation of repository.AuctionDB.
// CommitBid runs in a multi-document transaction, so the server must be a
// replica set or sharded cluster.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"auction-house/internal/biddingerrors"
	model "auction-house/internal/models"
	"auction-house/internal/repository"
)

const (
	auctionsCollection = "auctions"
	bidsCollection     = "bids"
	usersCollection    = "users"
)

var _ repository.AuctionDB = (*Store)(nil)

// Store keeps auctions, bids and users in MongoDB
type Store struct {
	client   *mongo.Client
	auctions *mongo.Collection
	bids     *mongo.Collection
	users    *mongo.Collection
}

// Connect opens a client for uri and verifies the primary is reachable
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: failed to connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongostore: failed to ping primary: %w", err)
	}
	return New(client, database), nil
}

// New wraps an existing client
func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:   client,
		auctions: db.Collection(auctionsCollection),
		bids:     db.Collection(bidsCollection),
		users:    db.Collection(usersCollection),
	}
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// CreateAuction inserts a new auction
func (s *Store) CreateAuction(ctx context.Context, a model.Auction) error {
	doc, err := toAuctionDoc(a)
	if err != nil {
		return err
	}
	_, err = s.auctions.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("create auction %s: duplicate id: %w", a.ID, biddingerrors.ErrValidation)
	}
	if err != nil {
		return biddingerrors.Persistence("create auction", err)
	}
	return nil
}

// GetAuction returns an auction by id
func (s *Store) GetAuction(ctx context.Context, id string) (model.Auction, error) {
	var doc auctionDoc
	err := s.auctions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", id, biddingerrors.ErrNotFound)
	}
	if err != nil {
		return model.Auction{}, biddingerrors.Persistence("get auction", err)
	}
	return doc.toModel()
}

// ListAuctions returns auctions matching filter ordered by start time
func (s *Store) ListAuctions(ctx context.Context, filter model.AuctionFilter) ([]model.Auction, error) {
	return s.findAuctions(ctx, "list auctions", listFilter(filter))
}

// UpdateAuctionDetails writes the seller-editable fields of an auction that
// has not ended. The start time only moves while the auction is upcoming and
// unbid.
func (s *Store) UpdateAuctionDetails(ctx context.Context, a model.Auction) (bool, error) {
	res, err := s.auctions.UpdateOne(ctx, detailsFilter(a), bson.M{"$set": bson.M{
		"title":       a.Title,
		"description": a.Description,
		"startTime":   a.StartTime,
		"endTime":     a.EndTime,
		"updatedAt":   a.UpdatedAt,
	}})
	if err != nil {
		return false, biddingerrors.Persistence("update auction", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	return false, s.requireAuction(ctx, "update auction", a.ID)
}

// AppendImages pushes images while the stored array stays within limit
func (s *Store) AppendImages(ctx context.Context, id string, images []model.Image, limit int, at time.Time) (model.Auction, bool, error) {
	room := limit - len(images)
	if room < 0 {
		return model.Auction{}, false, s.requireAuction(ctx, "append images", id)
	}
	docs := make([]imageDoc, 0, len(images))
	for _, img := range images {
		docs = append(docs, imageDoc(img))
	}

	var updated auctionDoc
	err := s.auctions.FindOneAndUpdate(ctx,
		bson.M{"_id": id, fmt.Sprintf("images.%d", room): bson.M{"$exists": false}},
		bson.M{
			"$push": bson.M{"images": bson.M{"$each": docs}},
			"$set":  bson.M{"updatedAt": at},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Auction{}, false, s.requireAuction(ctx, "append images", id)
	}
	if err != nil {
		return model.Auction{}, false, biddingerrors.Persistence("append images", err)
	}
	a, err := updated.toModel()
	if err != nil {
		return model.Auction{}, false, err
	}
	return a, true, nil
}

// DeleteAuction removes an auction. Its bids stay in the ledger.
func (s *Store) DeleteAuction(ctx context.Context, id string) error {
	res, err := s.auctions.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return biddingerrors.Persistence("delete auction", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete auction %s: %w", id, biddingerrors.ErrNotFound)
	}
	return nil
}

// CommitBid raises the price and appends the bid in one transaction. The
// status and price guards are part of the update filter; on a write conflict
// the driver retries the whole callback, which re-evaluates them. lastBidAt
// only moves forward, and the bid is stamped with it.
func (s *Store) CommitBid(ctx context.Context, bid model.Bid) (model.Bid, bool, error) {
	amount, err := toDecimal128(bid.Amount)
	if err != nil {
		return model.Bid{}, false, err
	}

	session, err := s.client.StartSession()
	if err != nil {
		return model.Bid{}, false, biddingerrors.Persistence("commit bid", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		var updated auctionDoc
		err := s.auctions.FindOneAndUpdate(sc,
			bson.M{
				"_id":          bid.AuctionID,
				"status":       bson.M{"$ne": string(model.StatusEnded)},
				"currentPrice": bson.M{"$lt": amount},
			},
			bson.M{
				"$set": bson.M{
					"currentPrice":    amount,
					"highestBidderId": bid.BidderID,
					"updatedAt":       bid.CreatedAt,
				},
				"$max": bson.M{"lastBidAt": bid.CreatedAt},
				"$inc": bson.M{"bidSeq": 1},
			},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&updated)
		if errors.Is(err, mongo.ErrNoDocuments) {
			n, err := s.auctions.CountDocuments(sc, bson.M{"_id": bid.AuctionID})
			if err != nil {
				return nil, err
			}
			if n == 0 {
				return nil, fmt.Errorf("commit bid on auction %s: %w", bid.AuctionID, biddingerrors.ErrNotFound)
			}
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		committed := bid
		if updated.LastBidAt != nil {
			committed.CreatedAt = updated.LastBidAt.UTC()
		}
		if _, err := s.bids.InsertOne(sc, bidDoc{
			ID:        committed.BidID,
			AuctionID: committed.AuctionID,
			BidderID:  committed.BidderID,
			Amount:    amount,
			Seq:       updated.BidSeq,
			CreatedAt: committed.CreatedAt,
		}); err != nil {
			return nil, err
		}
		return committed, nil
	})
	if errors.Is(err, biddingerrors.ErrNotFound) {
		return model.Bid{}, false, err
	}
	if err != nil {
		return model.Bid{}, false, biddingerrors.Persistence("commit bid", err)
	}
	committed, ok := result.(model.Bid)
	return committed, ok, nil
}

// TransitionStatus changes status only when the stored status equals from
func (s *Store) TransitionStatus(ctx context.Context, id string, from, to model.Status, at time.Time) (model.Auction, bool, error) {
	var updated auctionDoc
	err := s.auctions.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": string(from)},
		bson.M{"$set": bson.M{"status": string(to), "updatedAt": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Auction{}, false, s.requireAuction(ctx, "transition status", id)
	}
	if err != nil {
		return model.Auction{}, false, biddingerrors.Persistence("transition status", err)
	}
	a, err := updated.toModel()
	if err != nil {
		return model.Auction{}, false, err
	}
	return a, true, nil
}

// ListStaleAuctions returns auctions whose stored status is behind now
func (s *Store) ListStaleAuctions(ctx context.Context, now time.Time) ([]model.Auction, error) {
	return s.findAuctions(ctx, "list stale auctions", staleFilter(now))
}

// ListBidsByAuction returns bids newest first
func (s *Store) ListBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	cur, err := s.bids.Find(ctx, bson.M{"auctionId": auctionID}, options.Find().SetSort(bson.D{{Key: "seq", Value: -1}}))
	if err != nil {
		return nil, biddingerrors.Persistence("list bids", err)
	}
	var docs []bidDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, biddingerrors.Persistence("list bids", err)
	}

	bids := make([]model.Bid, 0, len(docs))
	for _, doc := range docs {
		b, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, nil
}

// GetHighestBid returns the latest committed bid, which is also the highest
func (s *Store) GetHighestBid(ctx context.Context, auctionID string) (model.Bid, error) {
	var doc bidDoc
	err := s.bids.FindOne(ctx, bson.M{"auctionId": auctionID},
		options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Bid{}, fmt.Errorf("get highest bid for auction %s: %w", auctionID, biddingerrors.ErrNotFound)
	}
	if err != nil {
		return model.Bid{}, biddingerrors.Persistence("get highest bid", err)
	}
	return doc.toModel()
}

// ListAuctionsByBidder returns auctions the user has bid on
func (s *Store) ListAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error) {
	ids, err := s.bids.Distinct(ctx, "auctionId", bson.M{"bidderId": bidderID})
	if err != nil {
		return nil, biddingerrors.Persistence("list auctions by bidder", err)
	}
	if len(ids) == 0 {
		return []model.Auction{}, nil
	}
	return s.findAuctions(ctx, "list auctions by bidder", bson.M{"_id": bson.M{"$in": ids}})
}

// CreateUser inserts a user, rejecting duplicate emails
func (s *Store) CreateUser(ctx context.Context, u model.User) error {
	_, err := s.users.InsertOne(ctx, toUserDoc(u))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("create user: %w", biddingerrors.ErrEmailTaken)
	}
	if err != nil {
		return biddingerrors.Persistence("create user", err)
	}
	return nil
}

// GetUserByID returns a user by id
func (s *Store) GetUserByID(ctx context.Context, id string) (model.User, error) {
	return s.getUser(ctx, bson.M{"_id": id})
}

// GetUserByEmail returns a user by case-insensitive email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return s.getUser(ctx, bson.M{"email": strings.ToLower(email)})
}

func (s *Store) getUser(ctx context.Context, filter bson.M) (model.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.User{}, fmt.Errorf("get user: %w", biddingerrors.ErrNotFound)
	}
	if err != nil {
		return model.User{}, biddingerrors.Persistence("get user", err)
	}
	return doc.toModel(), nil
}

// UpdateUser overwrites name, email, password hash and role
func (s *Store) UpdateUser(ctx context.Context, u model.User) error {
	doc := toUserDoc(u)
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": u.ID}, bson.M{"$set": bson.M{
		"name":         doc.Name,
		"email":        doc.Email,
		"passwordHash": doc.PasswordHash,
		"role":         doc.Role,
		"updatedAt":    doc.UpdatedAt,
	}})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("update user %s: %w", u.ID, biddingerrors.ErrEmailTaken)
	}
	if err != nil {
		return biddingerrors.Persistence("update user", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update user %s: %w", u.ID, biddingerrors.ErrNotFound)
	}
	return nil
}

// ListUsers returns every user ordered by creation time
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	cur, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, biddingerrors.Persistence("list users", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, biddingerrors.Persistence("list users", err)
	}

	users := make([]model.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.toModel())
	}
	return users, nil
}

// requireAuction explains a conditional write that matched nothing:
// ErrNotFound when the auction is gone, nil when the condition did not hold.
func (s *Store) requireAuction(ctx context.Context, op, id string) error {
	n, err := s.auctions.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return biddingerrors.Persistence(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, biddingerrors.ErrNotFound)
	}
	return nil
}

func (s *Store) findAuctions(ctx context.Context, op string, filter bson.M) ([]model.Auction, error) {
	cur, err := s.auctions.Find(ctx, filter, options.Find().SetSort(byStartTime))
	if err != nil {
		return nil, biddingerrors.Persistence(op, err)
	}
	var docs []auctionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, biddingerrors.Persistence(op, err)
	}

	auctions := make([]model.Auction, 0, len(docs))
	for _, doc := range docs {
		a, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	return auctions, nil
}

var byStartTime = bson.D{{Key: "startTime", Value: 1}, {Key: "_id", Value: 1}}

func listFilter(f model.AuctionFilter) bson.M {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}
	if f.SellerID != "" {
		filter["sellerId"] = f.SellerID
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(kw), "$options": "i"}
		filter["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
		}
	}
	return filter
}

func detailsFilter(a model.Auction) bson.M {
	return bson.M{
		"_id":    a.ID,
		"status": bson.M{"$ne": string(model.StatusEnded)},
		"$or": bson.A{
			bson.M{"startTime": a.StartTime},
			bson.M{"status": string(model.StatusUpcoming), "highestBidderId": nil},
		},
	}
}

func staleFilter(now time.Time) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"status": bson.M{"$ne": string(model.StatusEnded)}, "endTime": bson.M{"$lt": now}},
		bson.M{"status": string(model.StatusUpcoming), "startTime": bson.M{"$lte": now}},
	}}
}
