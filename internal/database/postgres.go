package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/viper"
)

var db *sql.DB

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// GetConfig returns database configuration with defaults
func GetConfig() *DBConfig {
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.name", "planlift")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", time.Minute*5)

	return &DBConfig{
		Host:            viper.GetString("database.host"),
		Port:            viper.GetString("database.port"),
		User:            viper.GetString("database.user"),
		Password:        viper.GetString("database.password"),
		Name:            viper.GetString("database.name"),
		SSLMode:         viper.GetString("database.ssl_mode"),
		MaxOpenConns:    viper.GetInt("database.max_open_conns"),
		MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
	}
}

var schema = `
CREATE TABLE IF NOT EXISTS balances(
	user_id		TEXT PRIMARY KEY,
	amount		BIGINT NOT NULL DEFAULT 0 CHECK (amount >= 0)
);

CREATE TABLE IF NOT EXISTS company_balances(
	company_id	TEXT PRIMARY KEY,
	amount		BIGINT NOT NULL DEFAULT 0 CHECK (amount >= 0)
);

CREATE TABLE IF NOT EXISTS companies(
	company_id	TEXT PRIMARY KEY,
	name		TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS company_members(
	company_id	TEXT NOT NULL REFERENCES companies(company_id),
	user_id		TEXT NOT NULL,
	role		TEXT NOT NULL CHECK (role IN ('admin', 'member')),
	PRIMARY KEY (company_id, user_id)
);

CREATE TABLE IF NOT EXISTS orders(
	order_id	TEXT PRIMARY KEY,
	user_id		TEXT NOT NULL,
	total_price	BIGINT NOT NULL CHECK (total_price >= 0),
	status		TEXT NOT NULL CHECK (status IN
					('pending', 'paid', 'uploaded', 'processing', 'complete', 'expired', 'cancelled')),
	created_at	TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions(
	transaction_id	TEXT PRIMARY KEY,
	user_id			TEXT NOT NULL,
	company_id		TEXT NULL,
	kind			TEXT NOT NULL CHECK (kind IN ('topup', 'debit', 'refund_request')),
	amount			BIGINT NOT NULL,
	order_id		TEXT NULL,
	payment_ref		TEXT NULL,
	status			TEXT NOT NULL CHECK (status IN ('pending', 'completed', 'failed')),
	note			TEXT NOT NULL DEFAULT '',
	approved_by		TEXT NULL,
	created_at		TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_order ON transactions(order_id);
CREATE INDEX IF NOT EXISTS idx_transactions_status_kind ON transactions(status, kind);
CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_one_pending_refund_per_order
	ON transactions(order_id) WHERE kind = 'refund_request' AND status = 'pending';
`

// InitDB initializes the database connection
func InitDB() (*sql.DB, error) {
	config := GetConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Name, config.SSLMode,
	)

	var err error
	db, err = sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test connection
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err = Migrate(db); err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}

	log.Println("Database connection established")
	return db, nil
}

// Migrate applies the ledger schema. Idempotent.
func Migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// GetDB returns the database connection
func GetDB() *sql.DB {
	return db
}

// CloseDB closes the database connection
func CloseDB() error {
	if db != nil {
		return db.Close()
	}
	return nil
}

// InitDatabase initializes database with error handling
func InitDatabase() *sql.DB {
	db, err := InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	return db
}
