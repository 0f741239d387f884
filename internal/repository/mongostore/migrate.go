package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Migrate creates the indexes the queries rely on. CreateMany is a no-op for
// indexes that already exist with the same definition.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{s.users, []mongo.IndexModel{
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{s.auctions, []mongo.IndexModel{
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "endTime", Value: 1}}},
			{Keys: bson.D{{Key: "startTime", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "sellerId", Value: 1}}},
		}},
		{s.bids, []mongo.IndexModel{
			{Keys: bson.D{{Key: "auctionId", Value: 1}, {Key: "seq", Value: -1}}},
			{Keys: bson.D{{Key: "bidderId", Value: 1}}},
		}},
	}

	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateMany(ctx, idx.models); err != nil {
			return fmt.Errorf("mongostore: failed to create indexes on %s: %w", idx.coll.Name(), err)
		}
	}
	return nil
}
