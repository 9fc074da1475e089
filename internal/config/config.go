package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreMySQL  = "mysql"

	LockLocal = "local"
	LockRedis = "redis"

	EventsLog   = "log"
	EventsRedis = "redis"
)

// Config holds everything the server binary needs.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	StoreBackend string
	MySQLDSN     string
	RedisAddr    string

	LockBackend string
	LockExpiry  time.Duration

	EventBackend   string
	EventChannel   string
	EventQueueSize int
	EventWorkers   int

	CatalogFile string

	LogLevel  string
	LogFormat string
}

// Load reads the process environment, falling back to the given .env files
// (or ./.env when it exists) and then to defaults. Process env always wins.
func Load(envFiles ...string) (Config, error) {
	fileEnv, err := readEnvFiles(envFiles)
	if err != nil {
		return Config{}, err
	}
	get := func(key, def string) string {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v
		}
		if v := fileEnv[key]; v != "" {
			return v
		}
		return def
	}

	queueSize, err := atoi("EVENT_QUEUE_SIZE", get("EVENT_QUEUE_SIZE", "1024"))
	if err != nil {
		return Config{}, err
	}
	workers, err := atoi("EVENT_WORKERS", get("EVENT_WORKERS", "4"))
	if err != nil {
		return Config{}, err
	}
	expiry, err := time.ParseDuration(get("LOCK_EXPIRY", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("LOCK_EXPIRY must be a duration: %w", err)
	}

	cfg := Config{
		HTTPAddr: get("HTTP_ADDR", ":8080"),
		GRPCAddr: get("GRPC_ADDR", ":50051"),

		StoreBackend: strings.ToLower(get("STORE_BACKEND", StoreMemory)),
		MySQLDSN:     get("MYSQL_DSN", "root:root@tcp(localhost:3306)/branchdelivery?parseTime=true"),
		RedisAddr:    get("REDIS_ADDR", "localhost:6379"),

		LockBackend: strings.ToLower(get("LOCK_BACKEND", LockLocal)),
		LockExpiry:  expiry,

		EventBackend:   strings.ToLower(get("EVENT_BACKEND", EventsLog)),
		EventChannel:   get("EVENT_CHANNEL", "delivery-events"),
		EventQueueSize: queueSize,
		EventWorkers:   workers,

		CatalogFile: get("CATALOG_FILE", ""),

		LogLevel:  strings.ToLower(get("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(get("LOG_FORMAT", "json")),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory, StoreRedis, StoreMySQL:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of memory, redis, mysql: got %q", c.StoreBackend)
	}
	switch c.LockBackend {
	case LockLocal, LockRedis:
	default:
		return fmt.Errorf("LOCK_BACKEND must be local or redis: got %q", c.LockBackend)
	}
	switch c.EventBackend {
	case EventsLog, EventsRedis:
	default:
		return fmt.Errorf("EVENT_BACKEND must be log or redis: got %q", c.EventBackend)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console: got %q", c.LogFormat)
	}
	if c.EventQueueSize < 1 {
		return fmt.Errorf("EVENT_QUEUE_SIZE must be positive")
	}
	if c.EventWorkers < 1 {
		return fmt.Errorf("EVENT_WORKERS must be positive")
	}
	if c.LockExpiry <= 0 {
		return fmt.Errorf("LOCK_EXPIRY must be positive")
	}
	return nil
}

// NeedsRedis reports whether any backend talks to Redis.
func (c Config) NeedsRedis() bool {
	return c.StoreBackend == StoreRedis || c.LockBackend == LockRedis || c.EventBackend == EventsRedis
}

func readEnvFiles(files []string) (map[string]string, error) {
	optional := len(files) == 0
	if optional {
		files = []string{".env"}
	}

	env, err := godotenv.Read(files...)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read env files: %w", err)
	}
	return env, nil
}

func atoi(key, v string) (int, error) {
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}
