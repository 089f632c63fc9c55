package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/WessleyAI/festa/engine/domain"
	"github.com/WessleyAI/festa/pkg/fn"
)

// DefaultTable is the table events are read from when none is configured.
const DefaultTable = "events"

const dateLayout = "2006-01-02"

// PoolOpts sizes the Postgres connection pool.
type PoolOpts struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

// OpenPostgres connects to dsn with the lib/pq driver and pings it.
func OpenPostgres(ctx context.Context, dsn string, pool PoolOpts) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: connect postgres: %w", err)
	}
	if pool.MaxOpen > 0 {
		db.SetMaxOpenConns(pool.MaxOpen)
	}
	if pool.MaxIdle > 0 {
		db.SetMaxIdleConns(pool.MaxIdle)
	}
	if pool.MaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.MaxLifetime)
	}
	return db, nil
}

// Postgres reads events from a table whose embedding column holds pgvector
// values. Every other column is kept as a raw attribute.
type Postgres struct {
	db      *sqlx.DB
	table   string
	dialect goqu.DialectWrapper
	logger  *slog.Logger
}

// NewPostgres creates a Postgres catalog over db.
func NewPostgres(db *sqlx.DB, table string, logger *slog.Logger) *Postgres {
	if table == "" {
		table = DefaultTable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, table: table, dialect: goqu.Dialect("postgres"), logger: logger}
}

// ListEmbedded implements Store. Each call holds one pooled connection and
// returns it on every path.
func (p *Postgres) ListEmbedded(ctx context.Context) ([]domain.Event, error) {
	query, args, err := p.dialect.From(p.table).
		Where(goqu.C("embedding").IsNotNull()).
		Order(goqu.C("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("catalog: build list query: %w", err)
	}
	events, err := p.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	return fn.Filter(events, domain.Event.HasEmbedding), nil
}

// ListMissing returns events that have no embedding yet, ordered by ID.
func (p *Postgres) ListMissing(ctx context.Context) ([]domain.Event, error) {
	query, args, err := p.dialect.From(p.table).
		Where(goqu.C("embedding").IsNull()).
		Order(goqu.C("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("catalog: build missing query: %w", err)
	}
	return p.query(ctx, query, args)
}

func (p *Postgres) query(ctx context.Context, query string, args []any) ([]domain.Event, error) {
	conn, err := p.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: acquire connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: query %s: %w", p.table, err)
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("catalog: scan %s: %w", p.table, err)
		}
		ev, err := p.toEvent(row)
		if err != nil {
			p.logger.Warn("catalog: skipping row", "err", err)
			continue
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate %s: %w", p.table, err)
	}
	return events, nil
}

func (p *Postgres) toEvent(row map[string]any) (domain.Event, error) {
	id, err := toInt64(row["id"])
	if err != nil {
		return domain.Event{}, fmt.Errorf("id: %w", err)
	}
	ev := domain.Event{ID: id, Attrs: make(map[string]string, len(row))}
	for col, v := range row {
		switch col {
		case "id":
		case "embedding":
			vec, err := ParseVector(toString(v))
			if err != nil {
				// Unparsable vectors count as absent.
				p.logger.Warn("catalog: bad embedding", "id", id, "err", err)
				continue
			}
			ev.Embedding = vec
		default:
			if s := toString(v); s != "" {
				ev.Attrs[col] = s
			}
		}
	}
	return ev, nil
}

// SaveEmbeddings implements Writer by updating the embedding column of each
// event in one transaction. IDs with no matching row are reported through a
// *MissingError after the rest of the batch is committed.
func (p *Postgres) SaveEmbeddings(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

	var missing []int64
	for _, ev := range events {
		query, args, err := p.dialect.Update(p.table).Prepared(true).
			Set(goqu.Record{"embedding": FormatVector(ev.Embedding)}).
			Where(goqu.C("id").Eq(ev.ID)).
			ToSQL()
		if err != nil {
			return fmt.Errorf("catalog: build update: %w", err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("catalog: update embedding %d: %w", ev.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("catalog: update embedding %d: rows affected: %w", ev.ID, err)
		}
		if n == 0 {
			p.logger.Warn("catalog: no row for event", "table", p.table, "id", ev.ID)
			missing = append(missing, ev.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit: %w", err)
	}
	if len(missing) > 0 {
		return &MissingError{IDs: missing}
	}
	return nil
}

func toInt64(v any) (int64, error) {
	switch tv := v.(type) {
	case int64:
		return tv, nil
	case int32:
		return int64(tv), nil
	case int:
		return int64(tv), nil
	case []byte:
		return strconv.ParseInt(string(tv), 10, 64)
	case string:
		return strconv.ParseInt(tv, 10, 64)
	case nil:
		return 0, fmt.Errorf("missing")
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func toString(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case []byte:
		return string(tv)
	case time.Time:
		return tv.Format(dateLayout)
	case int64:
		return strconv.FormatInt(tv, 10)
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(tv)
	default:
		return fmt.Sprint(tv)
	}
}
