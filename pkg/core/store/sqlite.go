package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the same tables as the zeno schema in a local file, for
// development and tests. Embeddings are stored as JSON arrays and ranked in process.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ TradeStore = (*SQLiteStore)(nil)
	_ RunWriter  = (*SQLiteStore)(nil)
)

func NewSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) lookupID(ctx context.Context, kind, name, query string, arg any) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound(kind, name)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup %s %q: %w", kind, name, err)
	}
	return id, nil
}

func (s *SQLiteStore) LookupCountryID(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	return s.lookupID(ctx, "country", name,
		`SELECT id FROM countries WHERE LOWER(name) = LOWER(?) LIMIT 1`, name)
}

func (s *SQLiteStore) LookupProductID(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	id, err := s.lookupID(ctx, "product", name,
		`SELECT id FROM products WHERE LOWER(name) = LOWER(?) LIMIT 1`, name)
	if !errors.Is(err, ErrNotFound) {
		return id, err
	}
	return s.lookupID(ctx, "product", name,
		`SELECT id FROM products WHERE LOWER(name) LIKE ? LIMIT 1`, "%"+strings.ToLower(name)+"%")
}

func (s *SQLiteStore) LookupIndicatorID(ctx context.Context, metric string) (int64, error) {
	metric = strings.TrimSpace(metric)
	return s.lookupID(ctx, "indicator", metric,
		`SELECT id FROM indicators WHERE LOWER(name) LIKE ? LIMIT 1`, "%"+strings.ToLower(metric)+"%")
}

func (s *SQLiteStore) GetTradeSeries(ctx context.Context, q SeriesQuery) (TradeSeries, error) {
	query := `SELECT date, quantity, price, currency, source, metadata, quantity_unit_name, quantity_unit_symbol
		FROM trade_data WHERE country_id = ? AND product_id = ? AND indicator_id = ?`
	args := []any{q.CountryID, q.ProductID, q.IndicatorID}
	if q.StartYear > 0 {
		query += ` AND CAST(strftime('%Y', date) AS INTEGER) >= ?`
		args = append(args, q.StartYear)
	}
	if q.EndYear > 0 {
		query += ` AND CAST(strftime('%Y', date) AS INTEGER) <= ?`
		args = append(args, q.EndYear)
	}
	query += ` ORDER BY date ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return TradeSeries{}, fmt.Errorf("query trade data: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return TradeSeries{}, err
	}
	series := TradeSeries{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return TradeSeries{}, fmt.Errorf("scan trade data: %w", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		series.Rows = append(series.Rows, row)
	}
	return series, rows.Err()
}

func (s *SQLiteStore) GetMacroStats(ctx context.Context, countryID, indicatorID int64, startYear int) ([]MacroStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT year, value FROM macro_stats
		WHERE country_id = ? AND indicator_id = ? AND year >= ?
		ORDER BY year ASC`, countryID, indicatorID, startYear)
	if err != nil {
		return nil, fmt.Errorf("query macro stats: %w", err)
	}
	defer rows.Close()

	var out []MacroStat
	for rows.Next() {
		var m MacroStat
		if err := rows.Scan(&m.Year, &m.Value); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SearchEmbeddings loads every stored vector and ranks it by cosine distance.
func (s *SQLiteStore) SearchEmbeddings(ctx context.Context, vector []float32, topK int) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT embedding_id, content, COALESCE(source, ''), embedding_vector FROM rag_embeddings`)
	if err != nil {
		return nil, fmt.Errorf("search embeddings: %w", err)
	}
	defer rows.Close()

	var ix VectorIndex
	for rows.Next() {
		var (
			d   Document
			raw string
			vec []float32
		)
		if err := rows.Scan(&d.ID, &d.Content, &d.Source, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			return nil, fmt.Errorf("decode embedding %s: %w", d.ID, err)
		}
		ix.Add(d, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ix.Search(vector, topK), nil
}

func (s *SQLiteStore) InsertRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, conversation_id, user_input, final_output, status, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ConversationID, run.UserInput, run.FinalOutput, run.Status,
		run.StartedAt.UTC().Format(time.RFC3339), run.CompletedAt.UTC().Format(time.RFC3339))
	return err
}

func (s *SQLiteStore) InsertStep(ctx context.Context, step Step) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO steps (run_id, step_order, type, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		step.RunID, step.Order, step.Type, step.Content, time.Now().UTC().Format(time.RFC3339))
	return err
}

// TradeRecord is a row to load into trade_data.
type TradeRecord struct {
	CountryID   int64
	ProductID   int64
	IndicatorID int64
	Date        time.Time
	Quantity    float64
	Price       float64
	Currency    string
	Source      string
	UnitName    string
	UnitSymbol  string
}

func (s *SQLiteStore) insertNamed(ctx context.Context, table, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO `+table+` (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("insert %s %q: %w", table, name, err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) AddCountry(ctx context.Context, name string) (int64, error) {
	return s.insertNamed(ctx, "countries", name)
}

func (s *SQLiteStore) AddProduct(ctx context.Context, name string) (int64, error) {
	return s.insertNamed(ctx, "products", name)
}

func (s *SQLiteStore) AddIndicator(ctx context.Context, name string) (int64, error) {
	return s.insertNamed(ctx, "indicators", name)
}

// AddTradeRecords loads records in one transaction.
func (s *SQLiteStore) AddTradeRecords(ctx context.Context, records []TradeRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trade_data (country_id, product_id, indicator_id, date, quantity, price, currency, source, quantity_unit_name, quantity_unit_symbol)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		_, err = stmt.ExecContext(ctx, r.CountryID, r.ProductID, r.IndicatorID, r.Date.Format("2006-01-02"),
			r.Quantity, r.Price, r.Currency, r.Source, nullable(r.UnitName), nullable(r.UnitSymbol))
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) AddMacroStat(ctx context.Context, countryID, indicatorID int64, stat MacroStat) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO macro_stats (country_id, indicator_id, year, value) VALUES (?, ?, ?, ?)`,
		countryID, indicatorID, stat.Year, stat.Value)
	return err
}

func (s *SQLiteStore) AddEmbedding(ctx context.Context, doc Document, vector []float32) error {
	raw, err := json.Marshal(vector)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO rag_embeddings (embedding_id, content, source, embedding_vector) VALUES (?, ?, ?, ?)`,
		doc.ID, doc.Content, doc.Source, string(raw))
	return err
}

// CountSteps returns how many steps were recorded for runID.
func (s *SQLiteStore) CountSteps(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM steps WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *SQLiteStore) migrate() error {
	statements := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS countries (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE);`,
		`CREATE TABLE IF NOT EXISTS products (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE);`,
		`CREATE TABLE IF NOT EXISTS indicators (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE);`,
		`CREATE TABLE IF NOT EXISTS trade_data (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			country_id INTEGER NOT NULL REFERENCES countries(id),
			product_id INTEGER NOT NULL REFERENCES products(id),
			indicator_id INTEGER NOT NULL REFERENCES indicators(id),
			date TEXT NOT NULL,
			quantity REAL,
			price REAL,
			currency TEXT,
			source TEXT,
			metadata TEXT,
			quantity_unit_name TEXT,
			quantity_unit_symbol TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_series ON trade_data (country_id, product_id, indicator_id, date);`,
		`CREATE TABLE IF NOT EXISTS macro_stats (
			country_id INTEGER NOT NULL REFERENCES countries(id),
			indicator_id INTEGER NOT NULL REFERENCES indicators(id),
			year INTEGER NOT NULL,
			value REAL NOT NULL,
			PRIMARY KEY (country_id, indicator_id, year)
		);`,
		`CREATE TABLE IF NOT EXISTS rag_embeddings (
			embedding_id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			source TEXT,
			embedding_vector TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			conversation_id TEXT,
			user_input TEXT,
			final_output TEXT,
			status TEXT,
			started_at TEXT,
			completed_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(run_id),
			step_order INTEGER NOT NULL,
			type TEXT NOT NULL,
			content TEXT,
			created_at TEXT
		);`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}
