// Package wire assembles storage, locking and the reconciliation service
// from a backend selection. The server binary and deliveryctl share it.
package wire

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/branch-delivery/internal/adapter/lock"
	"github.com/rl1809/branch-delivery/internal/adapter/storage"
	"github.com/rl1809/branch-delivery/internal/port"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendMySQL  = "mysql"
	BackendRedis  = "redis"
)

type Options struct {
	Store      string
	MySQLDSN   string
	SQLitePath string
	RedisAddr  string

	// RedisLocks selects the redsync locker; otherwise locks are in-process.
	RedisLocks bool
	LockExpiry time.Duration
	// Redis forces a client even when neither store nor locks need it.
	Redis bool
}

// Resources owns every connection opened for a backend.
type Resources struct {
	Store  port.Store
	Locker port.ItemLocker
	Redis  *redis.Client
	DB     *sql.DB
}

func Open(ctx context.Context, opts Options, logger *zap.Logger) (*Resources, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	res := &Resources{}

	if opts.Store == BackendRedis || opts.RedisLocks || opts.Redis {
		rdb := redis.NewClient(&redis.Options{Addr: opts.RedisAddr, PoolSize: 100})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.Info("connected to redis", zap.String("addr", opts.RedisAddr))
		res.Redis = rdb
	}

	switch opts.Store {
	case BackendMemory:
		res.Store = storage.NewMemoryAdapter()
	case BackendRedis:
		res.Store = storage.NewRedisAdapter(res.Redis)
	case BackendMySQL, BackendSQLite:
		db, err := openSQL(ctx, opts)
		if err != nil {
			res.Close()
			return nil, err
		}
		res.DB = db
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.Migrate(ctx); err != nil {
			res.Close()
			return nil, err
		}
		logger.Info("connected to sql store", zap.String("driver", opts.Store))
		res.Store = adapter
	default:
		res.Close()
		return nil, fmt.Errorf("unknown store backend %q", opts.Store)
	}

	if opts.RedisLocks {
		res.Locker = lock.NewRedsyncLocker(res.Redis, opts.LockExpiry, logger)
	} else {
		res.Locker = lock.NewLocalLocker()
	}
	return res, nil
}

func openSQL(ctx context.Context, opts Options) (*sql.DB, error) {
	driver, dsn := "mysql", opts.MySQLDSN
	if opts.Store == BackendSQLite {
		driver = "sqlite3"
		dsn = "file:" + opts.SQLitePath + "?_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

func (r *Resources) Close() error {
	var errs []error
	if r.DB != nil {
		errs = append(errs, r.DB.Close())
	}
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	return errors.Join(errs...)
}
