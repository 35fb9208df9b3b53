// Package storage provides SQLite-backed persistence for entries, settings, and alerts.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/cashcast/internal/models"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrEntryLimit is returned when adding an entry would exceed the configured cap.
	ErrEntryLimit = errors.New("entry limit reached")
	// ErrDuplicate is returned when adding an entry whose ID is already stored.
	ErrDuplicate = errors.New("already exists")
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db         *sql.DB
	maxEntries int
	now        func() time.Time
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/cashcast/data.db.
func New(maxEntries int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "cashcast", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxEntries: maxEntries, now: time.Now}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			id          TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			name        TEXT NOT NULL,
			category    TEXT NOT NULL DEFAULT '',
			amount      TEXT NOT NULL,
			probability TEXT,
			recurrence  TEXT NOT NULL,
			start_date  TEXT NOT NULL,
			end_date    TEXT,
			notes       TEXT NOT NULL DEFAULT '',
			created_at  INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_kind ON entries(kind)`,
		`CREATE TABLE IF NOT EXISTS settings (
			id                     INTEGER PRIMARY KEY CHECK (id = 1),
			currency               TEXT NOT NULL,
			date_format            TEXT NOT NULL,
			theme                  TEXT NOT NULL,
			low_balance_threshold  TEXT NOT NULL,
			default_forecast_weeks INTEGER NOT NULL,
			current_balance        TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id               TEXT PRIMARY KEY,
			detected_at      INTEGER NOT NULL,
			forecast_start   TEXT NOT NULL,
			lowest_balance   TEXT NOT NULL,
			threshold        TEXT NOT NULL,
			first_low_period INTEGER NOT NULL,
			first_low_date   TEXT NOT NULL,
			low_period_count INTEGER NOT NULL,
			notified         INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_detected_at ON alerts(detected_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AddEntry validates and inserts an entry, stamping CreatedAt and UpdatedAt.
func (s *Storage) AddEntry(entry *models.FinancialEntry) error {
	if err := entry.ValidateForStore(); err != nil {
		return fmt.Errorf("invalid entry: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	err = tx.QueryRow(`SELECT 1 FROM entries WHERE id = ?`, entry.ID).Scan(&exists)
	if err == nil {
		return fmt.Errorf("entry %s: %w", entry.ID, ErrDuplicate)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check entry id: %w", err)
	}

	if s.maxEntries > 0 {
		var count int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&count); err != nil {
			return fmt.Errorf("failed to count entries: %w", err)
		}
		if count >= s.maxEntries {
			return fmt.Errorf("%w: %d", ErrEntryLimit, s.maxEntries)
		}
	}

	now := s.now()
	entry.CreatedAt, entry.UpdatedAt = now, now
	_, err = tx.Exec(`
		INSERT INTO entries
			(id, kind, name, category, amount, probability, recurrence,
			 start_date, end_date, notes, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		entry.ID, string(entry.Kind), entry.Name, entry.Category, entry.Amount.String(),
		nullDecimal(entry.Probability), string(entry.Recurrence),
		formatDate(entry.StartDate), nullDate(entry.EndDate), entry.Notes,
		entry.CreatedAt.UnixNano(), entry.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return tx.Commit()
}

// GetEntry returns the entry with the given ID.
func (s *Storage) GetEntry(id string) (*models.FinancialEntry, error) {
	row := s.db.QueryRow(`SELECT `+entryCols+` FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return e, nil
}

// ListEntries returns every entry ordered by start date then ID.
func (s *Storage) ListEntries() ([]models.FinancialEntry, error) {
	return s.queryEntries(`SELECT ` + entryCols + ` FROM entries ORDER BY start_date, id`)
}

// ListEntriesByKind returns the entries of one kind ordered by start date then ID.
func (s *Storage) ListEntriesByKind(kind models.Kind) ([]models.FinancialEntry, error) {
	return s.queryEntries(`SELECT `+entryCols+` FROM entries WHERE kind = ? ORDER BY start_date, id`, string(kind))
}

func (s *Storage) queryEntries(query string, args ...any) ([]models.FinancialEntry, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := []models.FinancialEntry{}
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// UpdateEntry replaces a stored entry. CreatedAt is preserved.
func (s *Storage) UpdateEntry(entry *models.FinancialEntry) error {
	if err := entry.ValidateForStore(); err != nil {
		return fmt.Errorf("invalid entry: %w", err)
	}
	entry.UpdatedAt = s.now()
	res, err := s.db.Exec(`
		UPDATE entries SET
			kind=?, name=?, category=?, amount=?, probability=?, recurrence=?,
			start_date=?, end_date=?, notes=?, updated_at=?
		WHERE id=?`,
		string(entry.Kind), entry.Name, entry.Category, entry.Amount.String(),
		nullDecimal(entry.Probability), string(entry.Recurrence),
		formatDate(entry.StartDate), nullDate(entry.EndDate), entry.Notes,
		entry.UpdatedAt.UnixNano(),
		entry.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("entry %s: %w", entry.ID, ErrNotFound)
	}
	var createdNano int64
	if err := s.db.QueryRow(`SELECT created_at FROM entries WHERE id = ?`, entry.ID).Scan(&createdNano); err == nil {
		entry.CreatedAt = time.Unix(0, createdNano)
	}
	return nil
}

// DeleteEntry removes an entry.
func (s *Storage) DeleteEntry(id string) error {
	res, err := s.db.Exec(`DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	return nil
}

// EnsureSettings inserts defaults when no settings row exists yet.
func (s *Storage) EnsureSettings(defaults models.Settings) error {
	if err := defaults.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO settings
			(id, currency, date_format, theme, low_balance_threshold, default_forecast_weeks, current_balance)
		VALUES (1,?,?,?,?,?,?)`,
		defaults.Currency, defaults.DateFormat, defaults.Theme,
		defaults.LowBalanceThreshold.String(), defaults.DefaultForecastWeeks, defaults.CurrentBalance.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}
	return nil
}

// GetSettings returns the stored settings row.
func (s *Storage) GetSettings() (*models.Settings, error) {
	var st models.Settings
	var threshold, balance string
	err := s.db.QueryRow(`
		SELECT currency, date_format, theme, low_balance_threshold, default_forecast_weeks, current_balance
		FROM settings WHERE id = 1`).
		Scan(&st.Currency, &st.DateFormat, &st.Theme, &threshold, &st.DefaultForecastWeeks, &balance)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("settings: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if st.LowBalanceThreshold, err = decimal.NewFromString(threshold); err != nil {
		return nil, fmt.Errorf("failed to parse low balance threshold: %w", err)
	}
	if st.CurrentBalance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("failed to parse current balance: %w", err)
	}
	return &st, nil
}

// SaveSettings replaces the settings row.
func (s *Storage) SaveSettings(st *models.Settings) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO settings
			(id, currency, date_format, theme, low_balance_threshold, default_forecast_weeks, current_balance)
		VALUES (1,?,?,?,?,?,?)`,
		st.Currency, st.DateFormat, st.Theme,
		st.LowBalanceThreshold.String(), st.DefaultForecastWeeks, st.CurrentBalance.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

func (s *Storage) AddAlert(alert *models.Alert) error {
	_, err := s.db.Exec(`
		INSERT INTO alerts
			(id, detected_at, forecast_start, lowest_balance, threshold,
			 first_low_period, first_low_date, low_period_count, notified)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		alert.ID, alert.DetectedAt.UnixNano(), formatDate(alert.ForecastStart),
		alert.LowestBalance.String(), alert.Threshold.String(),
		alert.FirstLowPeriod, formatDate(alert.FirstLowDate), alert.LowPeriodCount,
		boolToInt(alert.Notified),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// MarkAlertNotified flags an alert as delivered.
func (s *Storage) MarkAlertNotified(id string) error {
	res, err := s.db.Exec(`UPDATE alerts SET notified = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark alert notified: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return nil
}

// RecentAlerts returns up to k alerts, newest first.
func (s *Storage) RecentAlerts(k int) ([]models.Alert, error) {
	rows, err := s.db.Query(`SELECT `+alertCols+` FROM alerts ORDER BY detected_at DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// LatestNotifiedAlert returns the most recent alert that was delivered.
func (s *Storage) LatestNotifiedAlert() (*models.Alert, error) {
	row := s.db.QueryRow(`SELECT ` + alertCols + ` FROM alerts WHERE notified = 1 ORDER BY detected_at DESC LIMIT 1`)
	a, err := scanAlert(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest alert: %w", err)
	}
	return a, nil
}

const entryCols = `id, kind, name, category, amount, probability, recurrence,
	start_date, end_date, notes, created_at, updated_at`

func scanEntry(scan func(...any) error) (*models.FinancialEntry, error) {
	var e models.FinancialEntry
	var kind, recurrence, amount, startDate string
	var probability, endDate sql.NullString
	var createdNano, updatedNano int64
	err := scan(
		&e.ID, &kind, &e.Name, &e.Category, &amount, &probability, &recurrence,
		&startDate, &endDate, &e.Notes, &createdNano, &updatedNano,
	)
	if err != nil {
		return nil, err
	}
	e.Kind = models.Kind(kind)
	e.Recurrence = models.Recurrence(recurrence)
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("entry %s amount: %w", e.ID, err)
	}
	if probability.Valid {
		p, err := decimal.NewFromString(probability.String)
		if err != nil {
			return nil, fmt.Errorf("entry %s probability: %w", e.ID, err)
		}
		e.Probability = decimal.NewNullDecimal(p)
	}
	if e.StartDate, err = time.Parse(models.DateLayout, startDate); err != nil {
		return nil, fmt.Errorf("entry %s start date: %w", e.ID, err)
	}
	if endDate.Valid {
		end, err := time.Parse(models.DateLayout, endDate.String)
		if err != nil {
			return nil, fmt.Errorf("entry %s end date: %w", e.ID, err)
		}
		e.EndDate = &end
	}
	e.CreatedAt = time.Unix(0, createdNano)
	e.UpdatedAt = time.Unix(0, updatedNano)
	return &e, nil
}

const alertCols = `id, detected_at, forecast_start, lowest_balance, threshold,
	first_low_period, first_low_date, low_period_count, notified`

func scanAlert(scan func(...any) error) (*models.Alert, error) {
	var a models.Alert
	var detectedNano int64
	var forecastStart, lowest, threshold, firstLowDate string
	var notified int
	err := scan(
		&a.ID, &detectedNano, &forecastStart, &lowest, &threshold,
		&a.FirstLowPeriod, &firstLowDate, &a.LowPeriodCount, &notified,
	)
	if err != nil {
		return nil, err
	}
	a.DetectedAt = time.Unix(0, detectedNano)
	a.Notified = notified != 0
	if a.ForecastStart, err = time.Parse(models.DateLayout, forecastStart); err != nil {
		return nil, fmt.Errorf("alert %s forecast start: %w", a.ID, err)
	}
	if a.FirstLowDate, err = time.Parse(models.DateLayout, firstLowDate); err != nil {
		return nil, fmt.Errorf("alert %s first low date: %w", a.ID, err)
	}
	if a.LowestBalance, err = decimal.NewFromString(lowest); err != nil {
		return nil, fmt.Errorf("alert %s lowest balance: %w", a.ID, err)
	}
	if a.Threshold, err = decimal.NewFromString(threshold); err != nil {
		return nil, fmt.Errorf("alert %s threshold: %w", a.ID, err)
	}
	return &a, nil
}

func formatDate(t time.Time) string {
	return models.DateOf(t).Format(models.DateLayout)
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatDate(*t), Valid: true}
}

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
