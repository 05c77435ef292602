package store

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type txContextKey string

const txKey txContextKey = "trx"

type Config struct {
	Driver string `env:"DRIVER"`
	// DSN is the database file path for sqlite, or a libpq connection
	// string for postgres.
	DSN string `env:"DSN"`
}

// DB wraps one ledger store. Each node owns two of these: its local
// store and the peer replica it reconciles against.
type DB struct {
	conn *gorm.DB
}

func Open(config Config, withDebug bool) (*DB, error) {
	var dial gorm.Dialector
	switch config.Driver {
	case DriverPostgres:
		dial = postgres.Open(config.DSN)
	case DriverSQLite, "":
		dial = sqlite.Open(config.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", config.Driver)
	}

	db, err := gorm.Open(dial, &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, err
	}

	if withDebug {
		db = db.Debug()
	}
	return &DB{conn: db}, nil
}

// NewFromConn wraps an already opened gorm connection. Used by tests.
func NewFromConn(conn *gorm.DB) *DB {
	return &DB{conn: conn}
}

// WithinTransaction runs fn inside a store transaction. A nested call
// joins the transaction already bound to ctx instead of opening a new one.
func (d *DB) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return fn(ctx)
	}
	return d.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ctx = context.WithValue(ctx, txKey, tx)
		return fn(ctx)
	})
}

// Conn returns the transaction bound to ctx if one is open, otherwise a
// plain connection handle.
func (d *DB) Conn(ctx context.Context) *gorm.DB {
	tx, ok := ctx.Value(txKey).(*gorm.DB)
	if ok {
		return tx
	}
	return d.conn.WithContext(ctx)
}
