package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads the zeno schema through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var (
	_ TradeStore = (*PostgresStore)(nil)
	_ RunWriter  = (*PostgresStore)(nil)
)

// NewPostgres opens a pool for dbURL.
func NewPostgres(ctx context.Context, dbURL string, maxConns int32) (*PostgresStore, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("postgres: database url not set")
	}
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) lookupID(ctx context.Context, kind, name, query string, arg any) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, query, arg).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, notFound(kind, name)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup %s %q: %w", kind, name, err)
	}
	return id, nil
}

func (s *PostgresStore) LookupCountryID(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	return s.lookupID(ctx, "country", name,
		`SELECT id FROM zeno.countries WHERE LOWER(name) = LOWER($1) LIMIT 1`, name)
}

// LookupProductID tries an exact case-insensitive match before a substring match.
func (s *PostgresStore) LookupProductID(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	id, err := s.lookupID(ctx, "product", name,
		`SELECT id FROM zeno.products WHERE LOWER(name) = LOWER($1) LIMIT 1`, name)
	if !errors.Is(err, ErrNotFound) {
		return id, err
	}
	return s.lookupID(ctx, "product", name,
		`SELECT id FROM zeno.products WHERE LOWER(name) LIKE $1 LIMIT 1`, "%"+strings.ToLower(name)+"%")
}

func (s *PostgresStore) LookupIndicatorID(ctx context.Context, metric string) (int64, error) {
	metric = strings.TrimSpace(metric)
	return s.lookupID(ctx, "indicator", metric,
		`SELECT id FROM zeno.indicators WHERE LOWER(name) LIKE $1 LIMIT 1`, "%"+strings.ToLower(metric)+"%")
}

func (s *PostgresStore) GetTradeSeries(ctx context.Context, q SeriesQuery) (TradeSeries, error) {
	sql := `SELECT * FROM zeno.trade_data WHERE country_id = $1 AND product_id = $2 AND indicator_id = $3`
	args := []any{q.CountryID, q.ProductID, q.IndicatorID}
	if q.StartYear > 0 {
		args = append(args, q.StartYear)
		sql += fmt.Sprintf(" AND EXTRACT(YEAR FROM date) >= $%d", len(args))
	}
	if q.EndYear > 0 {
		args = append(args, q.EndYear)
		sql += fmt.Sprintf(" AND EXTRACT(YEAR FROM date) <= $%d", len(args))
	}
	sql += " ORDER BY date ASC"

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return TradeSeries{}, fmt.Errorf("query trade data: %w", err)
	}

	var series TradeSeries
	for _, fd := range rows.FieldDescriptions() {
		series.Columns = append(series.Columns, fd.Name)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return TradeSeries{}, fmt.Errorf("scan trade data: %w", err)
	}
	for _, m := range maps {
		row := make(Row, len(m))
		for k, v := range m {
			row[k] = normalizeValue(v)
		}
		series.Rows = append(series.Rows, row)
	}
	return series, nil
}

func (s *PostgresStore) GetMacroStats(ctx context.Context, countryID, indicatorID int64, startYear int) ([]MacroStat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT year, value::float8
		FROM zeno.macro_stats
		WHERE country_id = $1 AND indicator_id = $2 AND year >= $3
		ORDER BY year ASC`, countryID, indicatorID, startYear)
	if err != nil {
		return nil, fmt.Errorf("query macro stats: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (MacroStat, error) {
		var m MacroStat
		err := row.Scan(&m.Year, &m.Value)
		return m, err
	})
}

// SearchEmbeddings ranks knowledge chunks by pgvector L2 distance.
func (s *PostgresStore) SearchEmbeddings(ctx context.Context, vector []float32, topK int) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT embedding_id::text, content, COALESCE(source, ''), embedding_vector <-> $1::vector AS distance
		FROM zeno.rag_embeddings
		ORDER BY distance
		LIMIT $2`, EncodeVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("search embeddings: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Document, error) {
		var d Document
		err := row.Scan(&d.ID, &d.Content, &d.Source, &d.Score)
		return d, err
	})
}

func (s *PostgresStore) InsertRun(ctx context.Context, run Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO zeno.runs (run_id, conversation_id, user_input, final_output, status, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.ConversationID, run.UserInput, run.FinalOutput, run.Status, run.StartedAt, run.CompletedAt)
	return err
}

func (s *PostgresStore) InsertStep(ctx context.Context, step Step) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO zeno.steps (run_id, step_order, type, content, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		step.RunID, step.Order, step.Type, step.Content)
	return err
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case float32:
		return float64(x)
	default:
		return v
	}
}
