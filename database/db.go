package database

import (
	"database/sql"
	"log"
	"sync"

	"github.com/edubridge/ledger/cache"

	"github.com/edubridge/ledger/config"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con, Cache: nil}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, errors.Wrap(err, "opening database connection")
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, errors.Wrap(err, "pinging database")
	}
	err = createWalletTable(db)
	if err != nil {
		return nil, errors.Wrap(err, "creating wallets table")
	}
	err = createEntryTable(db)
	if err != nil {
		return nil, errors.Wrap(err, "creating entries table")
	}
	return db, nil
}

// createWalletTable creates a PostgreSQL table for the Wallet struct
func createWalletTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS wallets (
			id SERIAL PRIMARY KEY,
			wallet_id TEXT NOT NULL UNIQUE,
			account_no TEXT NOT NULL UNIQUE,
			customer_id TEXT NOT NULL,
			customer_name TEXT,
			email TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			balance NUMERIC(20,4) NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	if err != nil {
		log.Printf("Error creating wallets table: %v", err)
	}
	return err
}

// createEntryTable creates a PostgreSQL table for the Entry struct
func createEntryTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			id SERIAL PRIMARY KEY,
			entry_id TEXT NOT NULL UNIQUE,
			trans_no TEXT NOT NULL,
			reference TEXT NOT NULL,
			account_no TEXT NOT NULL REFERENCES wallets(account_no),
			debit NUMERIC(20,4) NOT NULL DEFAULT 0,
			credit NUMERIC(20,4) NOT NULL DEFAULT 0,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			narration TEXT,
			escrow JSONB,
			meta_data JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating entries table: %v", err)
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_entries_account_no ON entries(account_no)`)
	if err != nil {
		return err
	}
	// Unique per (reference, type): a transfer's debit and credit legs share a
	// reference but never a type, while a replayed posting collides and aborts
	// its transaction. This backstops the pre-flight reference check, which
	// runs outside the posting transaction.
	_, err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_reference_type ON entries(reference, type)`)
	return err
}
