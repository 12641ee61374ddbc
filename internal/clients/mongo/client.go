package mongo

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"wash-sync/internal/config"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var (
	client  *mongo.Client
	db      *mongo.Database
	initErr error
	mu      sync.Mutex

	drv driver = mongoDriver{}
)

// Init initializes the MongoDB connection (first call wins, thread-safe).
func Init(ctx context.Context, cfg config.Config, log *slog.Logger) (*mongo.Client, *mongo.Database, error) {
	mu.Lock()
	defer mu.Unlock()

	if client != nil && db != nil {
		return client, db, initErr
	}

	opts := options.Client().
		ApplyURI(cfg.MongoURI).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetConnectTimeout(10 * time.Second).
		SetAppName("wash-sync")

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cli, err := drv.Connect(ctx, opts)
	if err != nil {
		log.Error("failed to connect to mongo", "err", err)
		return nil, nil, err
	}

	pingErr := drv.Ping(ctx, cli)
	if pingErr != nil {
		log.Error("failed to ping mongo", "err", pingErr)
	}

	database := cli.Database(cfg.MongoDBName)

	client = cli
	db = database
	initErr = pingErr

	if pingErr == nil {
		detectReplicaSet(ctx, database, log)
		log.Info("successfully connected to mongo", "db", cfg.MongoDBName, "replica_set", IsReplicaSet())
	}

	return client, db, pingErr
}

// detectReplicaSet caches whether the deployment can serve change streams.
// A stand-alone mongod cannot, and the feed adapter refuses to subscribe.
func detectReplicaSet(ctx context.Context, database *mongo.Database, log *slog.Logger) {
	var hello struct {
		SetName string `bson:"setName"`
	}
	err := database.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello)
	if err != nil {
		log.Warn("hello command failed, assuming stand-alone deployment", "err", err)
		isReplicaSet.Store(false)
		return
	}
	isReplicaSet.Store(hello.SetName != "")
}

// Client returns the singleton MongoDB client instance.
func Client() *mongo.Client {
	mu.Lock()
	defer mu.Unlock()
	return client
}

// DB returns the singleton MongoDB database instance.
func DB() *mongo.Database {
	mu.Lock()
	defer mu.Unlock()
	return db
}

// Shutdown gracefully shuts down the MongoDB connection.
// Safe to call more than once.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	defer mu.Unlock()

	if client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := drv.Disconnect(ctx, client)

	client = nil
	db = nil
	initErr = nil

	return err
}
