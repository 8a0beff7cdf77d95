package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"github.com/edubridge/ledger/internal/apierror"
	"github.com/edubridge/ledger/model"
)

// CreateWallet inserts the wallet row together with its zero-amount
// wallet-creation audit entry in one transaction. Either both rows land or
// neither does.
func (d Datasource) CreateWallet(ctx context.Context, wallet *model.Wallet, audit *model.Entry) (*model.Wallet, error) {
	ctx, span := otel.Tracer("Ledger store").Start(ctx, "Saving wallet to db")
	defer span.End()

	metaDataJSON, err := json.Marshal(wallet.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO wallets(wallet_id,account_no,customer_id,customer_name,email,status,balance,created_at,meta_data) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		wallet.WalletID, wallet.AccountNo, wallet.CustomerID, wallet.CustomerName, wallet.Email, wallet.Status, wallet.Balance, wallet.CreatedAt, metaDataJSON,
	)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create wallet", err)
	}

	if audit != nil {
		if err := insertEntryTx(ctx, tx, audit); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit wallet creation", err)
	}

	return wallet, nil
}

func (d Datasource) GetWallet(ctx context.Context, accountNo string) (*model.Wallet, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT wallet_id, account_no, customer_id, customer_name, email, status, balance, created_at, meta_data
		FROM wallets
		WHERE account_no = $1
	`, accountNo)

	return scanWallet(row, fmt.Sprintf("Wallet with account number '%s' not found", accountNo))
}

func (d Datasource) GetWalletByCustomerID(ctx context.Context, customerID string) (*model.Wallet, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT wallet_id, account_no, customer_id, customer_name, email, status, balance, created_at, meta_data
		FROM wallets
		WHERE customer_id = $1
	`, customerID)

	return scanWallet(row, fmt.Sprintf("Wallet for customer '%s' not found", customerID))
}

func (d Datasource) GetWalletByEmail(ctx context.Context, email string) (*model.Wallet, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT wallet_id, account_no, customer_id, customer_name, email, status, balance, created_at, meta_data
		FROM wallets
		WHERE email = $1
	`, email)

	return scanWallet(row, fmt.Sprintf("Wallet for email '%s' not found", email))
}

// ActiveWalletExists reports whether an active wallet already exists for the
// customer or the email. Used to reject duplicate wallet creation.
func (d Datasource) ActiveWalletExists(ctx context.Context, customerID, email string) (bool, error) {
	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM wallets WHERE status = 'active' AND (customer_id = $1 OR email = $2))
	`, customerID, email).Scan(&exists)

	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check for existing wallet", err)
	}

	return exists, nil
}

func (d Datasource) UpdateWalletStatus(ctx context.Context, accountNo, status string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE wallets
		SET status = $2
		WHERE account_no = $1
	`, accountNo, status)

	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update wallet status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Wallet with account number '%s' not found", accountNo), nil)
	}

	return nil
}

// UpdateCachedBalance rewrites the derived balance column. Callers on mutating
// paths never use this directly; they recompute inside their own transaction.
// This is the self-healing path for reads that detect drift.
func (d Datasource) UpdateCachedBalance(ctx context.Context, accountNo string, balance decimal.Decimal) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE wallets
		SET balance = $2
		WHERE account_no = $1
	`, accountNo, balance)

	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update cached balance", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWallet(row rowScanner, notFoundMsg string) (*model.Wallet, error) {
	wallet := &model.Wallet{}
	var metaDataJSON []byte
	err := row.Scan(&wallet.WalletID, &wallet.AccountNo, &wallet.CustomerID, &wallet.CustomerName, &wallet.Email, &wallet.Status, &wallet.Balance, &wallet.CreatedAt, &metaDataJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, notFoundMsg, err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve wallet", err)
	}

	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &wallet.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}

	return wallet, nil
}
