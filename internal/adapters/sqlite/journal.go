package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"jinktrader/internal/domain"
	"jinktrader/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Journal implements the ports.TradeJournal interface using SQLite. It is an
// append-only record of finished trades, not live position state.
type Journal struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite journal.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewJournal opens (or creates) the journal database and verifies the schema.
func NewJournal(cfg Config) (*Journal, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite journal")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/jink_trades.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally, the Go driver benefits from a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	j := &Journal{db: db, logger: cfg.Logger}
	if err := j.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite journal ready", map[string]interface{}{"path": dbPath})
	return j, nil
}

func (j *Journal) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trade_journal (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		basic_token TEXT NOT NULL,
		token TEXT NOT NULL,
		exchange TEXT NOT NULL,
		amount REAL NOT NULL,
		buy_qty REAL NOT NULL,
		buy_price REAL NOT NULL,
		sell_price REAL DEFAULT NULL,
		profit_pct REAL NOT NULL,
		state TEXT NOT NULL,
		close_reason TEXT NULL,
		opened_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trade_journal_token_opened_at ON trade_journal (token, opened_at);
	`
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		j.logger.Info(context.Background(), "Closing SQLite journal")
		return j.db.Close()
	}
	return nil
}

// RecordClosed appends a finished trade and returns its assigned ID. Both
// closed and errored trades are recorded; an errored trade keeps its state so
// the ledger shows what went wrong.
func (j *Journal) RecordClosed(ctx context.Context, t *domain.Trade, reason domain.CloseReason) (int64, error) {
	const query = `
	INSERT INTO trade_journal (basic_token, token, exchange, amount, buy_qty, buy_price,
	                           sell_price, profit_pct, state, close_reason, opened_at, closed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var sellPrice sql.NullFloat64
	if t.Price.Current > 0 && t.State == domain.StateClosed {
		sellPrice = sql.NullFloat64{Float64: t.Price.Current, Valid: true}
	}

	result, err := j.db.ExecContext(ctx, query,
		t.BasicToken, t.Token, string(t.Exchange), t.Amount, t.BuyQty, t.Price.Buy,
		sellPrice, t.Current.Profit, string(t.State), string(reason), t.OpenedAt, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to insert journal entry for %s: %w", t.Pair(), err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for journal entry %s: %w", t.Pair(), err)
	}
	j.logger.Debug(ctx, "Trade recorded", map[string]interface{}{
		"journalID": id, "pair": t.Pair(), "reason": string(reason), "profit": t.Current.Profit,
	})
	return id, nil
}

// FindRecent retrieves the most recent journal entries, up to a limit.
func (j *Journal) FindRecent(ctx context.Context, limit int) ([]*domain.JournalEntry, error) {
	const query = `
	SELECT id, basic_token, token, exchange, amount, buy_qty, buy_price,
	       COALESCE(sell_price, 0), profit_pct, state, close_reason, opened_at, closed_at
	FROM trade_journal
	ORDER BY closed_at DESC LIMIT ?`

	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent journal entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.JournalEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal rows: %w", err)
	}
	return entries, nil
}

// TotalProfitPct sums the percentage outcomes of all closed trades.
func (j *Journal) TotalProfitPct(ctx context.Context) (float64, error) {
	const query = `SELECT COALESCE(SUM(profit_pct), 0) FROM trade_journal WHERE state = ?`
	var total float64
	if err := j.db.QueryRowContext(ctx, query, string(domain.StateClosed)).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to calculate total profit: %w", err)
	}
	return total, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (*domain.JournalEntry, error) {
	e := &domain.JournalEntry{}
	var exchange, state string
	var reason sql.NullString
	err := s.Scan(
		&e.ID, &e.BasicToken, &e.Token, &exchange, &e.Amount, &e.BuyQty, &e.BuyPrice,
		&e.SellPrice, &e.ProfitPct, &state, &reason, &e.OpenedAt, &e.ClosedAt)
	if err != nil {
		return nil, err
	}
	e.Exchange = domain.Exchange(exchange)
	e.State = domain.TradeState(state)
	if reason.Valid {
		e.Reason = domain.CloseReason(reason.String)
	} else {
		e.Reason = domain.CloseReasonUnknown
	}
	return e, nil
}
