package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"go_jobs_backend/services/datafetcher"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB names
const (
	MongoDBName           = "market_jobs"
	MongoCandleCollection = "candle_batches"
)

// MongoCandleBatch is the latest collected batch for one symbol and
// timeframe, keyed "SYMBOL:TIMEFRAME"
type MongoCandleBatch struct {
	ID        string        `bson:"_id"`
	Symbol    string        `bson:"symbol"`
	Timeframe string        `bson:"timeframe"`
	UpdatedAt time.Time     `bson:"updated_at"`
	Count     int           `bson:"count"`
	Candles   []MongoCandle `bson:"candles"`
}

// MongoCandle is one bar in a mirrored batch
type MongoCandle struct {
	Ts     time.Time `bson:"ts"`
	Open   string    `bson:"open"`
	High   string    `bson:"high"`
	Low    string    `bson:"low"`
	Close  string    `bson:"close"`
	Volume int64     `bson:"volume"`
}

// MongoMirror keeps a convenience copy of the latest candle batches in
// MongoDB Atlas for downstream read-heavy consumers
type MongoMirror struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewMongoMirror connects to MongoDB. Returns nil without error when no
// URI is configured; the mirror is optional.
func NewMongoMirror(mongoURI string) (*MongoMirror, error) {
	if mongoURI == "" {
		log.Println("MONGODB_URI not set, candle mirror disabled")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(mongoURI).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetMaxPoolSize(10).
		SetConnectTimeout(30 * time.Second).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Println("MongoDB candle mirror connected")
	return &MongoMirror{
		client:   client,
		database: client.Database(MongoDBName),
	}, nil
}

// Close disconnects the mirror
func (m *MongoMirror) Close() {
	if m == nil || m.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.client.Disconnect(ctx)
}

// UpsertLatestBatch replaces the stored batch for one symbol and
// timeframe with the newly collected candles
func (m *MongoMirror) UpsertLatestBatch(symbol, timeframe string, records []datafetcher.CandleRecord) error {
	candles := make([]MongoCandle, 0, len(records))
	for _, rec := range records {
		candles = append(candles, MongoCandle{
			Ts:     rec.Ts,
			Open:   rec.Open.String(),
			High:   rec.High.String(),
			Low:    rec.Low.String(),
			Close:  rec.Close.String(),
			Volume: rec.Volume,
		})
	}

	doc := MongoCandleBatch{
		ID:        symbol + ":" + timeframe,
		Symbol:    symbol,
		Timeframe: timeframe,
		UpdatedAt: time.Now(),
		Count:     len(candles),
		Candles:   candles,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	coll := m.database.Collection(MongoCandleCollection)
	_, err := coll.ReplaceOne(ctx,
		bson.M{"_id": doc.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert candle batch %s: %w", doc.ID, err)
	}
	return nil
}
