// Package sqlite implements the persistence collaborator on a local sqlite
// database. All schema management happens on Open; the atomic regions the
// core requires (invoice compare-and-set, rate-window update, salt first
// use) run inside transactions guarded by a single writer lock.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/lvicentin/grana/internal/domain"
	"github.com/lvicentin/grana/internal/fieldcrypt"
	"github.com/lvicentin/grana/internal/store"
)

const timeFormat = time.RFC3339Nano

// DB is the sqlite-backed store.
type DB struct {
	db *sql.DB

	// writeMu serializes the read-modify-write regions. sqlite already
	// serializes writers, but the CAS semantics span a read and a write.
	writeMu sync.Mutex

	codec *fieldcrypt.Codec
	log   zerolog.Logger
}

var _ store.Store = (*DB)(nil)

// Option configures the store.
type Option func(*DB)

// WithCodec enables field-level encryption of sensitive entry fields
// (description, debtor, tags) at rest.
func WithCodec(c *fieldcrypt.Codec) Option {
	return func(db *DB) { db.codec = c }
}

// WithLogger sets the logger used for non-fatal read-side events, such as a
// decrypt failure falling back to the raw value.
func WithLogger(log zerolog.Logger) Option {
	return func(db *DB) { db.log = log }
}

// Migrations returns the schema statements, one per string.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			description      TEXT NOT NULL,
			amount           REAL NOT NULL,
			category         TEXT NOT NULL DEFAULT '',
			type             TEXT NOT NULL,
			purchase_date    TEXT NOT NULL,
			payment_date     TEXT NOT NULL,
			issuer           TEXT NOT NULL DEFAULT '',
			is_recurring     INTEGER NOT NULL DEFAULT 0,
			is_ai_generated  INTEGER NOT NULL DEFAULT 0,
			linked_invoice   TEXT NOT NULL DEFAULT '',
			debtor           TEXT NOT NULL DEFAULT '',
			tags             TEXT NOT NULL DEFAULT '',
			created_at       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_user ON ledger_entries(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_payment ON ledger_entries(user_id, payment_date)`,

		`CREATE TABLE IF NOT EXISTS invoice_records (
			fingerprint       TEXT PRIMARY KEY,
			id                TEXT NOT NULL,
			user_id           TEXT NOT NULL,
			due_date          TEXT NOT NULL,
			total_amount      REAL NOT NULL,
			transaction_count INTEGER NOT NULL,
			imported_at       TEXT NOT NULL,
			transaction_ids   TEXT NOT NULL,
			issuer            TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS consents (
			user_id   TEXT PRIMARY KEY,
			accepted  INTEGER NOT NULL,
			decided_at TEXT NOT NULL,
			version   TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS rate_windows (
			user_id    TEXT PRIMARY KEY,
			timestamps TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)`,
	}
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string, opts ...Option) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// A single connection keeps transaction semantics simple and is plenty
	// for a request/response pipeline.
	sqlDB.SetMaxOpenConns(1)

	for _, stmt := range Migrations() {
		if _, err := sqlDB.Exec(stmt); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("sqlite: migrate: %w", err)
		}
	}

	db := &DB{db: sqlDB, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// SetCodec attaches a codec after open. The key derivation salt lives
// inside the store, so the composition root opens first, reads the salt,
// derives the key, then attaches.
func (d *DB) SetCodec(c *fieldcrypt.Codec) { d.codec = c }

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) GetInvoiceByFingerprint(ctx context.Context, fingerprint string) (*domain.InvoiceRecord, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, due_date, total_amount, transaction_count, imported_at, transaction_ids, issuer
		FROM invoice_records WHERE fingerprint = ?
	`, fingerprint)
	return scanInvoice(row, fingerprint)
}

func scanInvoice(row *sql.Row, fingerprint string) (*domain.InvoiceRecord, error) {
	var rec domain.InvoiceRecord
	var importedAt, txIDs string
	err := row.Scan(&rec.ID, &rec.DueDate, &rec.TotalAmount, &rec.TransactionCount, &importedAt, &txIDs, &rec.Issuer)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan invoice: %w", err)
	}
	rec.Fingerprint = fingerprint
	if rec.ImportedAt, err = time.Parse(timeFormat, importedAt); err != nil {
		return nil, fmt.Errorf("sqlite: invoice imported_at: %w", err)
	}
	if err := json.Unmarshal([]byte(txIDs), &rec.TransactionIDs); err != nil {
		return nil, fmt.Errorf("sqlite: invoice transaction_ids: %w", err)
	}
	return &rec, nil
}

func (d *DB) CommitImport(ctx context.Context, userID string, entries []domain.LedgerEntry, invoice *domain.InvoiceRecord) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin commit: %w", err)
	}
	defer tx.Rollback()

	if invoice != nil {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM invoice_records WHERE fingerprint = ?`, invoice.Fingerprint,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("sqlite: fingerprint lookup: %w", err)
		}
		if exists > 0 {
			return store.ErrFingerprintExists
		}

		txIDs, err := json.Marshal(invoice.TransactionIDs)
		if err != nil {
			return fmt.Errorf("sqlite: encode transaction ids: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO invoice_records
				(fingerprint, id, user_id, due_date, total_amount, transaction_count, imported_at, transaction_ids, issuer)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, invoice.Fingerprint, invoice.ID, userID, invoice.DueDate, invoice.TotalAmount,
			invoice.TransactionCount, invoice.ImportedAt.UTC().Format(timeFormat), string(txIDs), invoice.Issuer)
		if err != nil {
			return fmt.Errorf("sqlite: insert invoice: %w", err)
		}
	}

	for _, e := range entries {
		desc, debtor, tags, err := d.sealSensitive(e)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_entries
				(id, user_id, description, amount, category, type, purchase_date, payment_date,
				 issuer, is_recurring, is_ai_generated, linked_invoice, debtor, tags, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, userID, desc, e.Amount, e.Category, string(e.Type),
			e.Date.UTC().Format(timeFormat), e.PaymentDate.UTC().Format(timeFormat),
			e.Issuer, boolInt(e.IsRecurring), boolInt(e.IsAIGenerated),
			e.LinkedInvoiceID, debtor, tags, e.CreatedAt.UTC().Format(timeFormat))
		if err != nil {
			return fmt.Errorf("sqlite: insert entry %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit import: %w", err)
	}
	return nil
}

// sealSensitive encrypts the sensitive fields of an entry when a codec is
// configured. Tags are carried as a JSON array inside one sealed field.
func (d *DB) sealSensitive(e domain.LedgerEntry) (desc, debtor, tags string, err error) {
	rawTags := ""
	if len(e.Tags) > 0 {
		b, err := json.Marshal(e.Tags)
		if err != nil {
			return "", "", "", fmt.Errorf("sqlite: encode tags: %w", err)
		}
		rawTags = string(b)
	}

	if d.codec == nil {
		return e.Description, e.Debtor, rawTags, nil
	}

	if desc, err = d.codec.Encrypt(e.Description); err != nil {
		return "", "", "", fmt.Errorf("sqlite: encrypt description of %s: %w", e.ID, err)
	}
	debtor = ""
	if e.Debtor != "" {
		if debtor, err = d.codec.Encrypt(e.Debtor); err != nil {
			return "", "", "", fmt.Errorf("sqlite: encrypt debtor of %s: %w", e.ID, err)
		}
	}
	tags = ""
	if rawTags != "" {
		if tags, err = d.codec.Encrypt(rawTags); err != nil {
			return "", "", "", fmt.Errorf("sqlite: encrypt tags of %s: %w", e.ID, err)
		}
	}
	return desc, debtor, tags, nil
}

// openSensitive is the read-side counterpart of sealSensitive. Decrypt
// failures are non-fatal: the raw value is surfaced.
func (d *DB) openSensitive(stored string) string {
	if d.codec == nil {
		return stored
	}
	return d.codec.DecryptOrRaw(stored, func(err error) {
		d.log.Warn().Err(err).Msg("Field decrypt failed, surfacing raw value")
	})
}

func (d *DB) RecurringDescriptions(ctx context.Context, userID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT description FROM ledger_entries
		WHERE user_id = ? AND is_recurring = 1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recurring descriptions: %w", err)
	}
	defer rows.Close()

	// Dedup happens here, not in SQL: with encryption enabled identical
	// descriptions have distinct ciphertexts.
	seen := map[string]bool{}
	var out []string
	for rows.Next() {
		var stored string
		if err := rows.Scan(&stored); err != nil {
			return nil, fmt.Errorf("sqlite: scan description: %w", err)
		}
		desc := d.openSensitive(stored)
		if !seen[desc] {
			seen[desc] = true
			out = append(out, desc)
		}
	}
	return out, rows.Err()
}

func (d *DB) MonthlyExpenseTotals(ctx context.Context, userID string, months int) ([]float64, error) {
	now := time.Now().UTC()
	cutoff := now.AddDate(0, -months, 0).Format(timeFormat)
	// Expanded installment series carry payment dates months into the
	// future; anything past the current month must stay out of the trailing
	// window.
	bound := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC).Format(timeFormat)
	rows, err := d.db.QueryContext(ctx, `
		SELECT substr(payment_date, 1, 7) AS month, SUM(amount)
		FROM ledger_entries
		WHERE user_id = ? AND type = ? AND payment_date >= ? AND payment_date < ?
		GROUP BY month
		ORDER BY month ASC
	`, userID, string(domain.EntryExpense), cutoff, bound)
	if err != nil {
		return nil, fmt.Errorf("sqlite: monthly totals: %w", err)
	}
	defer rows.Close()

	var totals []float64
	for rows.Next() {
		var month string
		var total float64
		if err := rows.Scan(&month, &total); err != nil {
			return nil, fmt.Errorf("sqlite: scan monthly total: %w", err)
		}
		totals = append(totals, total)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// The partial month at the cutoff boundary can add one extra bucket.
	if len(totals) > months {
		totals = totals[len(totals)-months:]
	}
	return totals, nil
}

func (d *DB) RecurringExpenseTotal(ctx context.Context, userID string) (float64, error) {
	var total sql.NullFloat64
	err := d.db.QueryRowContext(ctx, `
		SELECT SUM(amount) FROM ledger_entries
		WHERE user_id = ? AND type = ? AND is_recurring = 1
	`, userID, string(domain.EntryExpense)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sqlite: recurring total: %w", err)
	}
	return total.Float64, nil
}

func (d *DB) CountEntries(ctx context.Context, userID string) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM ledger_entries WHERE user_id = ?`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count entries: %w", err)
	}
	return n, nil
}

func (d *DB) GetConsent(ctx context.Context, userID string) (*domain.ConsentRecord, error) {
	var rec domain.ConsentRecord
	var accepted int
	var decidedAt string
	err := d.db.QueryRowContext(ctx,
		`SELECT accepted, decided_at, version FROM consents WHERE user_id = ?`, userID,
	).Scan(&accepted, &decidedAt, &rec.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get consent: %w", err)
	}
	rec.Accepted = accepted == 1
	if rec.Timestamp, err = time.Parse(timeFormat, decidedAt); err != nil {
		return nil, fmt.Errorf("sqlite: consent decided_at: %w", err)
	}
	return &rec, nil
}

func (d *DB) PutConsent(ctx context.Context, userID string, rec domain.ConsentRecord) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO consents (user_id, accepted, decided_at, version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			accepted   = excluded.accepted,
			decided_at = excluded.decided_at,
			version    = excluded.version
	`, userID, boolInt(rec.Accepted), rec.Timestamp.UTC().Format(timeFormat), rec.Version)
	if err != nil {
		return fmt.Errorf("sqlite: put consent: %w", err)
	}
	return nil
}

func (d *DB) UpdateRateWindow(ctx context.Context, userID string, fn func(domain.RateWindow) domain.RateWindow) (domain.RateWindow, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	var window domain.RateWindow
	var stored string
	err := d.db.QueryRowContext(ctx,
		`SELECT timestamps FROM rate_windows WHERE user_id = ?`, userID,
	).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return domain.RateWindow{}, fmt.Errorf("sqlite: read rate window: %w", err)
	default:
		if err := json.Unmarshal([]byte(stored), &window.Timestamps); err != nil {
			return domain.RateWindow{}, fmt.Errorf("sqlite: decode rate window: %w", err)
		}
	}

	updated := fn(window)
	encoded, err := json.Marshal(updated.Timestamps)
	if err != nil {
		return domain.RateWindow{}, fmt.Errorf("sqlite: encode rate window: %w", err)
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO rate_windows (user_id, timestamps) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET timestamps = excluded.timestamps
	`, userID, string(encoded))
	if err != nil {
		return domain.RateWindow{}, fmt.Errorf("sqlite: write rate window: %w", err)
	}
	return updated, nil
}

const saltKey = "encryption_salt"

func (d *DB) EncryptionSalt(ctx context.Context) ([]byte, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	var salt []byte
	err := d.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, saltKey,
	).Scan(&salt)
	if err == nil {
		return salt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: read salt: %w", err)
	}

	salt, err = fieldcrypt.NewSalt()
	if err != nil {
		return nil, err
	}
	// INSERT OR IGNORE plus re-read keeps a concurrent creator from being
	// overwritten even if another process shares the file.
	if _, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`, saltKey, salt,
	); err != nil {
		return nil, fmt.Errorf("sqlite: persist salt: %w", err)
	}
	if err := d.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, saltKey,
	).Scan(&salt); err != nil {
		return nil, fmt.Errorf("sqlite: re-read salt: %w", err)
	}
	return salt, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
