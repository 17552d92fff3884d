// Package sqljournal persists the ledger's records in SQLite or PostgreSQL.
package sqljournal

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/celerix-dev/celerix-market/internal/engine"
	"github.com/celerix-dev/celerix-market/pkg/schema"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const timeLayout = time.RFC3339Nano

// Journal is an engine.Journal backed by a SQL database.
type Journal struct {
	db  *sql.DB
	sb  squirrel.StatementBuilderType
	log zerolog.Logger
}

var _ engine.Journal = (*Journal)(nil)

// Open connects to the database, applies pending migrations and returns
// a ready journal.
func Open(ctx context.Context, driver, dsn string, log zerolog.Logger) (*Journal, error) {
	var (
		sqlDriver   string
		dialect     goose.Dialect
		placeholder squirrel.PlaceholderFormat
	)
	switch driver {
	case DriverSQLite:
		sqlDriver, dialect, placeholder = "sqlite", goose.DialectSQLite3, squirrel.Question
	case DriverPostgres:
		sqlDriver, dialect, placeholder = "pgx", goose.DialectPostgres, squirrel.Dollar
	default:
		return nil, fmt.Errorf("sqljournal: unsupported driver %q", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqljournal: open: %w", err)
	}
	if driver == DriverSQLite {
		// one writer at a time; avoids SQLITE_BUSY between pooled connections
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqljournal: ping: %w", err)
	}

	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		db.Close()
		return nil, err
	}
	provider, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqljournal: goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqljournal: migrate: %w", err)
	}

	log = log.With().Str("component", "sql_journal").Str("driver", driver).Logger()
	for _, r := range results {
		log.Info().Str("migration", r.Source.Path).Dur("took", r.Duration).Msg("migration applied")
	}

	return &Journal{
		db:  db,
		sb:  squirrel.StatementBuilder.PlaceholderFormat(placeholder),
		log: log,
	}, nil
}

func (j *Journal) AppendWork(ctx context.Context, w schema.Work) error {
	tags, err := json.Marshal(w.Tags)
	if err != nil {
		return err
	}
	var music sql.NullString
	if w.Music != nil {
		b, err := json.Marshal(w.Music)
		if err != nil {
			return err
		}
		music = sql.NullString{String: string(b), Valid: true}
	}
	var parent sql.NullInt64
	if w.ParentID != nil {
		parent = sql.NullInt64{Int64: *w.ParentID, Valid: true}
	}

	_, err = j.sb.Insert("works").
		Columns("id", "title", "description", "content", "style", "creator_agent_id",
			"created_at", "price", "parent_id", "license", "tags", "music").
		Values(w.ID, w.Title, w.Description, w.Content, string(w.Style), w.CreatorAgentID,
			w.CreatedAt.UTC().Format(timeLayout), int64(w.Price), parent, string(w.License), string(tags), music).
		RunWith(j.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("sqljournal: insert work %d: %w", w.ID, err)
	}
	return nil
}

// AppendPurchase writes the purchase and its revenue entries in one transaction.
func (j *Journal) AppendPurchase(ctx context.Context, p schema.Purchase, entries []schema.RevenueEntry) (err error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqljournal: begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = j.sb.Insert("purchases").
		Columns("id", "work_id", "buyer_agent_id", "price", "purpose", "created_at").
		Values(p.ID, p.WorkID, p.BuyerAgentID, int64(p.Price), p.Purpose, p.Timestamp.UTC().Format(timeLayout)).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("sqljournal: insert purchase %d: %w", p.ID, err)
	}

	if len(entries) > 0 {
		ins := j.sb.Insert("revenue_entries").
			Columns("id", "purchase_id", "recipient_agent_id", "work_id", "amount", "kind", "created_at")
		for _, e := range entries {
			ins = ins.Values(e.ID, e.PurchaseID, e.RecipientAgentID, e.WorkID, int64(e.Amount), string(e.Kind), e.Timestamp.UTC().Format(timeLayout))
		}
		if _, err = ins.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("sqljournal: insert revenue for purchase %d: %w", p.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqljournal: commit purchase %d: %w", p.ID, err)
	}
	return nil
}

func (j *Journal) Load(ctx context.Context) (engine.Snapshot, error) {
	var snap engine.Snapshot
	var err error

	if snap.Works, err = j.loadWorks(ctx); err != nil {
		return snap, err
	}
	if snap.Purchases, err = j.loadPurchases(ctx); err != nil {
		return snap, err
	}
	if snap.Entries, err = j.loadEntries(ctx); err != nil {
		return snap, err
	}
	return snap, nil
}

func (j *Journal) loadWorks(ctx context.Context) ([]schema.Work, error) {
	rows, err := j.sb.Select("id", "title", "description", "content", "style", "creator_agent_id",
		"created_at", "price", "parent_id", "license", "tags", "music").
		From("works").
		OrderBy("id").
		RunWith(j.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqljournal: select works: %w", err)
	}
	defer rows.Close()

	var out []schema.Work
	for rows.Next() {
		var (
			w                       schema.Work
			style, license, created string
			tags                    string
			price                   int64
			parent                  sql.NullInt64
			music                   sql.NullString
		)
		if err := rows.Scan(&w.ID, &w.Title, &w.Description, &w.Content, &style, &w.CreatorAgentID,
			&created, &price, &parent, &license, &tags, &music); err != nil {
			return nil, err
		}
		w.Style = schema.Style(style)
		w.License = schema.License(license)
		w.Price = schema.Amount(price)
		if w.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("sqljournal: work %d created_at: %w", w.ID, err)
		}
		if parent.Valid {
			pid := parent.Int64
			w.ParentID = &pid
		}
		if err := json.Unmarshal([]byte(tags), &w.Tags); err != nil {
			return nil, fmt.Errorf("sqljournal: work %d tags: %w", w.ID, err)
		}
		if music.Valid {
			w.Music = &schema.MusicMetadata{}
			if err := json.Unmarshal([]byte(music.String), w.Music); err != nil {
				return nil, fmt.Errorf("sqljournal: work %d music: %w", w.ID, err)
			}
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (j *Journal) loadPurchases(ctx context.Context) ([]schema.Purchase, error) {
	rows, err := j.sb.Select("id", "work_id", "buyer_agent_id", "price", "purpose", "created_at").
		From("purchases").
		OrderBy("id").
		RunWith(j.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqljournal: select purchases: %w", err)
	}
	defer rows.Close()

	var out []schema.Purchase
	for rows.Next() {
		var (
			p       schema.Purchase
			price   int64
			created string
		)
		if err := rows.Scan(&p.ID, &p.WorkID, &p.BuyerAgentID, &price, &p.Purpose, &created); err != nil {
			return nil, err
		}
		p.Price = schema.Amount(price)
		if p.Timestamp, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("sqljournal: purchase %d timestamp: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (j *Journal) loadEntries(ctx context.Context) ([]schema.RevenueEntry, error) {
	rows, err := j.sb.Select("id", "purchase_id", "recipient_agent_id", "work_id", "amount", "kind", "created_at").
		From("revenue_entries").
		OrderBy("id").
		RunWith(j.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqljournal: select revenue entries: %w", err)
	}
	defer rows.Close()

	var out []schema.RevenueEntry
	for rows.Next() {
		var (
			e             schema.RevenueEntry
			amount        int64
			kind, created string
		)
		if err := rows.Scan(&e.ID, &e.PurchaseID, &e.RecipientAgentID, &e.WorkID, &amount, &kind, &created); err != nil {
			return nil, err
		}
		e.Amount = schema.Amount(amount)
		e.Kind = schema.RevenueKind(kind)
		if e.Timestamp, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("sqljournal: revenue entry %d timestamp: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}
