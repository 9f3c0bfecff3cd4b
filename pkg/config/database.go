package config

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/anonto42/nano-midea/social/pkg/logger"
)

// DB holds the database connections
type DB struct {
	Postgres *gorm.DB
	Mongo    *mongo.Client
	Redis    *redis.Client

	log logger.Logger
}

// InitDB opens the PostgreSQL and MongoDB connections and, when the cache backend is
// "redis", the Redis client. A Redis that does not answer PING is not fatal: the cache
// layer is fail-open, so the client is kept and every cache call degrades to a bypass.
func InitDB(ctx context.Context, cfg *Config, log logger.Logger) (*DB, error) {
	postgresDB, err := OpenPostgres(cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	log.Info(ctx, "Successfully connected to PostgreSQL")

	mongoClient, err := initMongo(ctx, cfg.Mongo.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	log.Info(ctx, "Successfully connected to MongoDB")

	db := &DB{Postgres: postgresDB, Mongo: mongoClient, log: log}

	if cfg.Cache.Backend == "redis" {
		db.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := db.Redis.Ping(pingCtx).Err(); err != nil {
			log.Warn(ctx, "Redis is not reachable, cache will run in bypass until it recovers",
				"address", cfg.Redis.Address, "error", err.Error())
		} else {
			log.Info(ctx, "Successfully connected to Redis", "address", cfg.Redis.Address)
		}
	}

	return db, nil
}

// OpenPostgres initializes the PostgreSQL database connection using GORM
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err = sqlDB.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

// initMongo initializes the MongoDB connection
func initMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	clientOptions := options.Client().ApplyURI(uri)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	// Ping the primary to verify connection
	if err = client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return client, nil
}

// CloseDB closes the database connections
func (db *DB) CloseDB() {
	ctx := context.Background()
	if db.Postgres != nil {
		sqlDB, err := db.Postgres.DB()
		if err != nil {
			db.log.Error(ctx, "Error getting SQL DB from GORM", "error", err.Error())
		} else if err := sqlDB.Close(); err != nil {
			db.log.Error(ctx, "Error closing PostgreSQL connection", "error", err.Error())
		} else {
			db.log.Info(ctx, "PostgreSQL connection closed")
		}
	}

	if db.Mongo != nil {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.Mongo.Disconnect(ctx); err != nil {
			db.log.Error(ctx, "Error closing MongoDB connection", "error", err.Error())
		} else {
			db.log.Info(ctx, "MongoDB connection closed")
		}
	}

	if db.Redis != nil {
		if err := db.Redis.Close(); err != nil {
			db.log.Error(ctx, "Error closing Redis connection", "error", err.Error())
		} else {
			db.log.Info(ctx, "Redis connection closed")
		}
	}
}
