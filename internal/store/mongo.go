package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoAuctionStore struct {
	coll *mongo.Collection
}

func NewMongoAuctionStore(client *mongo.Client, dbName string, collName string) *MongoAuctionStore {
	return &MongoAuctionStore{
		coll: client.Database(dbName).Collection(collName),
	}
}

func (s *MongoAuctionStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "auction_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "end_time", Value: -1}}},
	})
	return err
}

func (s *MongoAuctionStore) Save(ctx context.Context, rec AuctionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	opts := options.Replace().SetUpsert(true)
	_, err := s.coll.ReplaceOne(ctx, bson.M{"auction_id": rec.AuctionID}, rec, opts)
	return err
}

func (s *MongoAuctionStore) Get(ctx context.Context, auctionID string) (*AuctionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res := s.coll.FindOne(ctx, bson.M{"auction_id": auctionID})
	if res.Err() == mongo.ErrNoDocuments {
		return nil, nil
	}
	if res.Err() != nil {
		return nil, res.Err()
	}
	var rec AuctionRecord
	if err := res.Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *MongoAuctionStore) Recent(ctx context.Context, limit int) ([]AuctionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "end_time", Value: -1}}).SetLimit(int64(limit))
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []AuctionRecord{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
