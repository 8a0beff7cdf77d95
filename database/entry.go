package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"github.com/edubridge/ledger/internal/apierror"
	"github.com/edubridge/ledger/model"
)

// DebitGuard asks PostEntries to verify, inside the posting transaction, that
// the account's authoritative balance covers the amount about to be debited.
type DebitGuard struct {
	AccountNo string
	Amount    decimal.Decimal
}

const entryColumns = `entry_id, trans_no, reference, account_no, debit, credit, type, status, narration, escrow, meta_data, created_at`

// PostEntries writes a set of ledger entries as one atomic unit. It locks the
// affected wallet rows, applies the optional debit guard against the
// authoritative fold, inserts every entry, and recomputes the cached balance
// of each touched account before committing. On any failure nothing is
// visible.
func (d Datasource) PostEntries(ctx context.Context, guard *DebitGuard, entries ...*model.Entry) error {
	ctx, span := otel.Tracer("Ledger store").Start(ctx, "Posting ledger entries")
	defer span.End()

	if len(entries) == 0 {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "No entries to post", nil)
	}
	for _, entry := range entries {
		if err := entry.Validate(); err != nil {
			return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
		}
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	accounts := affectedAccounts(entries)
	if err := lockWallets(ctx, tx, accounts); err != nil {
		return err
	}

	if guard != nil {
		if err := checkGuardTx(ctx, tx, guard); err != nil {
			return err
		}
	}

	for _, entry := range entries {
		if err := insertEntryTx(ctx, tx, entry); err != nil {
			return err
		}
	}

	for _, accountNo := range accounts {
		if err := refreshBalanceTx(ctx, tx, accountNo); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit entries", err)
	}

	return nil
}

func (d Datasource) GetEntry(ctx context.Context, entryID string) (*model.Entry, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE entry_id = $1
	`, entryID)

	entry, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Entry with ID '%s' not found", entryID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve entry", err)
	}
	return entry, nil
}

// GetEntriesByRef returns every leg sharing a transaction reference, oldest
// first, so a transfer's debit and credit legs come back together.
func (d Datasource) GetEntriesByRef(ctx context.Context, reference string) ([]*model.Entry, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE reference = $1
		ORDER BY created_at ASC, id ASC
	`, reference)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve entries", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// GetHoldByRef loads the booking-payment hold carrying the given reference.
func (d Datasource) GetHoldByRef(ctx context.Context, reference string) (*model.Entry, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE reference = $1 AND type = $2
	`, reference, model.TypeBookingPayment)

	entry, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrEscrowNotFound, fmt.Sprintf("No escrow hold found for reference '%s'", reference), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve escrow hold", err)
	}
	return entry, nil
}

func (d Datasource) EntryExistsByRef(ctx context.Context, reference string) (bool, error) {
	ctx, span := otel.Tracer("Ledger store").Start(ctx, "Getting entry from db by reference")
	defer span.End()

	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM entries WHERE reference = $1)
	`, reference).Scan(&exists)

	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check if entry exists", err)
	}

	return exists, nil
}

// ListEntries returns an account's entry history, transaction-date descending,
// narrowed by the optional filter fields.
func (d Datasource) ListEntries(ctx context.Context, accountNo string, filter model.EntryFilter, limit, offset int) ([]*model.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM entries
		WHERE account_no = $1`
	args := []interface{}{accountNo}

	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve entries", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// SumEntries folds the account's completed entries into its authoritative
// balance.
func (d Datasource) SumEntries(ctx context.Context, accountNo string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(credit - debit), 0)
		FROM entries
		WHERE account_no = $1 AND status = $2
	`, accountNo, model.StatusCompleted).Scan(&balance)

	if err != nil {
		return decimal.Zero, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to compute balance", err)
	}

	return balance, nil
}

// ResolveEscrow flips the hold's escrow state from escrowed to resolved and
// writes the deferred credit leg in one transaction. The stage predicate on
// the UPDATE is the idempotency backstop: a concurrent or repeated resolution
// finds zero rows and fails with EscrowAlreadyResolved instead of crediting
// twice.
func (d Datasource) ResolveEscrow(ctx context.Context, holdEntryID string, resolved *model.EscrowState, credit *model.Entry) error {
	ctx, span := otel.Tracer("Ledger store").Start(ctx, "Resolving escrow hold")
	defer span.End()

	if err := credit.Validate(); err != nil {
		return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}

	escrowJSON, err := json.Marshal(resolved)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal escrow state", err)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := lockWallets(ctx, tx, []string{credit.AccountNo}); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE entries
		SET escrow = $2
		WHERE entry_id = $1 AND escrow->>'stage' = 'escrowed'
	`, holdEntryID, escrowJSON)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update escrow state", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrEscrowAlreadyResolved, "Escrow hold has already been resolved", nil)
	}

	if err := insertEntryTx(ctx, tx, credit); err != nil {
		return err
	}

	if err := refreshBalanceTx(ctx, tx, credit.AccountNo); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit escrow resolution", err)
	}

	return nil
}

// ProcessWithdrawal moves a pending withdrawal request to a terminal status.
// For approvals the companion completed WITHDRAWAL debit is written in the
// same transaction, after re-validating the balance under the wallet row lock.
// The pending-status predicate on the UPDATE makes concurrent approvals race
// to a single winner; the loser sees AlreadyProcessed.
func (d Datasource) ProcessWithdrawal(ctx context.Context, requestID, status string, metaData map[string]interface{}, debit *model.Entry) error {
	ctx, span := otel.Tracer("Ledger store").Start(ctx, "Processing withdrawal request")
	defer span.End()

	metaDataJSON, err := json.Marshal(metaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if debit != nil {
		if err := debit.Validate(); err != nil {
			return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
		}
		if err := lockWallets(ctx, tx, []string{debit.AccountNo}); err != nil {
			return err
		}
		if err := checkGuardTx(ctx, tx, &DebitGuard{AccountNo: debit.AccountNo, Amount: debit.Debit}); err != nil {
			return err
		}
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE entries
		SET status = $2, meta_data = $3
		WHERE entry_id = $1 AND status = $4
	`, requestID, status, metaDataJSON, model.StatusPending)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update withdrawal request", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrAlreadyProcessed, "Withdrawal request has already been processed", nil)
	}

	if debit != nil {
		if err := insertEntryTx(ctx, tx, debit); err != nil {
			return err
		}
		if err := refreshBalanceTx(ctx, tx, debit.AccountNo); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit withdrawal", err)
	}

	return nil
}

func (d Datasource) GetPendingWithdrawals(ctx context.Context) ([]*model.Entry, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE type = $1 AND status = $2
		ORDER BY created_at ASC
	`, model.TypeWithdrawalRequest, model.StatusPending)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve pending withdrawals", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// affectedAccounts returns the distinct account numbers touched by a set of
// entries, sorted so concurrent postings lock wallet rows in the same order.
func affectedAccounts(entries []*model.Entry) []string {
	seen := make(map[string]struct{}, len(entries))
	accounts := make([]string, 0, len(entries))
	for _, entry := range entries {
		if _, ok := seen[entry.AccountNo]; ok {
			continue
		}
		seen[entry.AccountNo] = struct{}{}
		accounts = append(accounts, entry.AccountNo)
	}
	sort.Strings(accounts)
	return accounts
}

// lockWallets takes row locks on the wallet rows so balance checks and writes
// serialize against concurrent postings to the same accounts.
func lockWallets(ctx context.Context, tx *sql.Tx, accounts []string) error {
	for _, accountNo := range accounts {
		var id int64
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM wallets WHERE account_no = $1 FOR UPDATE
		`, accountNo).Scan(&id)
		if err != nil {
			if err == sql.ErrNoRows {
				return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Wallet with account number '%s' not found", accountNo), err)
			}
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock wallet row", err)
		}
	}
	return nil
}

// checkGuardTx recomputes the guarded account's balance from its completed
// entries inside the transaction. The wallet row is already locked, so the
// value cannot move before the entries are inserted.
func checkGuardTx(ctx context.Context, tx *sql.Tx, guard *DebitGuard) error {
	var available decimal.Decimal
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(credit - debit), 0)
		FROM entries
		WHERE account_no = $1 AND status = $2
	`, guard.AccountNo, model.StatusCompleted).Scan(&available)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to compute balance", err)
	}

	if available.LessThan(guard.Amount) {
		return apierror.NewInsufficientFundsError(guard.Amount, available)
	}

	return nil
}

func insertEntryTx(ctx context.Context, tx *sql.Tx, entry *model.Entry) error {
	metaDataJSON, err := json.Marshal(entry.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	var escrowJSON interface{}
	if entry.Escrow != nil {
		raw, err := json.Marshal(entry.Escrow)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal escrow state", err)
		}
		escrowJSON = raw
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO entries(entry_id,trans_no,reference,account_no,debit,credit,type,status,narration,escrow,meta_data,created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		entry.EntryID, entry.TransNo, entry.Reference, entry.AccountNo, entry.Debit, entry.Credit, entry.Type, entry.Status, entry.Narration, escrowJSON, metaDataJSON, entry.CreatedAt,
	)
	if err != nil {
		// The unique (reference, type) index aborts the transaction of the
		// slower of two concurrent postings replaying one reference. The
		// pre-flight existence checks only answer fast; this is the guarantee.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			if strings.Contains(pqErr.Constraint, "reference") {
				return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Entry with reference '%s' has already been processed", entry.Reference), err)
			}
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Entry with ID '%s' already exists", entry.EntryID), err)
		}
		if strings.Contains(err.Error(), "duplicate key") {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Entry with reference '%s' has already been processed", entry.Reference), err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record entry", err)
	}

	return nil
}

// refreshBalanceTx rewrites the cached wallet balance from the authoritative
// fold, inside the same transaction as the entry writes.
func refreshBalanceTx(ctx context.Context, tx *sql.Tx, accountNo string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET balance = (
			SELECT COALESCE(SUM(credit - debit), 0)
			FROM entries
			WHERE account_no = $1 AND status = $2
		)
		WHERE account_no = $1
	`, accountNo, model.StatusCompleted)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to refresh cached balance", err)
	}
	return nil
}

func scanEntry(row rowScanner) (*model.Entry, error) {
	entry := &model.Entry{}
	var escrowJSON, metaDataJSON []byte
	err := row.Scan(&entry.EntryID, &entry.TransNo, &entry.Reference, &entry.AccountNo, &entry.Debit, &entry.Credit, &entry.Type, &entry.Status, &entry.Narration, &escrowJSON, &metaDataJSON, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	if len(escrowJSON) > 0 {
		entry.Escrow = &model.EscrowState{}
		if err := json.Unmarshal(escrowJSON, entry.Escrow); err != nil {
			return nil, err
		}
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &entry.MetaData); err != nil {
			return nil, err
		}
	}

	return entry, nil
}

func collectEntries(rows *sql.Rows) ([]*model.Entry, error) {
	var entries []*model.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate entries", err)
	}
	return entries, nil
}
