package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/bryanweaver/mewscast/internal/domain"
	"github.com/bryanweaver/mewscast/internal/ports"
)

// Fixed width so that text comparison in SQL orders like time.
const sqlTimeLayout = "2006-01-02T15:04:05.000000000Z"

const postsTable = "posts"

var postColumns = []string{
	"id", "topic", "title", "source", "url",
	"content_excerpt", "post_text", "posted_at", "platform_ids",
}

// Dialect captures what differs between the supported SQL engines.
type Dialect struct {
	Name        string
	Driver      string
	Placeholder sq.PlaceholderFormat
	Schema      []string
}

// SQLite stores history in a local database file via modernc.org/sqlite.
var SQLite = Dialect{
	Name:        "sqlite",
	Driver:      "sqlite",
	Placeholder: sq.Question,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS posts (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			topic TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			content_excerpt TEXT NOT NULL DEFAULT '',
			post_text TEXT NOT NULL DEFAULT '',
			posted_at TEXT NOT NULL,
			platform_ids TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS posts_posted_at_idx ON posts(posted_at)`,
	},
}

// Postgres stores history in a shared database through the pgx driver.
var Postgres = Dialect{
	Name:        "postgres",
	Driver:      "pgx",
	Placeholder: sq.Dollar,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS posts (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			topic TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			content_excerpt TEXT NOT NULL DEFAULT '',
			post_text TEXT NOT NULL DEFAULT '',
			posted_at TEXT NOT NULL,
			platform_ids TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS posts_posted_at_idx ON posts(posted_at)`,
	},
}

// SQLStore persists history rows in insertion order.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	builder sq.StatementBuilderType
	logger  *slog.Logger
}

var _ ports.HistoryStore = (*SQLStore)(nil)

// OpenSQLite opens (and creates if needed) a SQLite history database.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLStore, error) {
	dsn := path
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := sql.Open(SQLite.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}
	return NewSQLStore(ctx, db, SQLite, logger)
}

// OpenPostgres connects to Postgres using a pgx connection string.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*SQLStore, error) {
	db, err := sql.Open(Postgres.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewSQLStore(ctx, db, Postgres, logger)
}

// NewSQLStore wraps an open database and ensures the schema exists.
// The store owns db from here on; Close closes it.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect, logger *slog.Logger) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}
	for _, stmt := range dialect.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate %s: %w", dialect.Name, err)
		}
	}
	return &SQLStore{
		db:      db,
		dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(dialect.Placeholder),
		logger:  logger,
	}, nil
}

func (s *SQLStore) Load(ctx context.Context) ([]domain.PostRecord, error) {
	query, args, err := s.builder.Select(postColumns...).From(postsTable).OrderBy("seq").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []domain.PostRecord
	for rows.Next() {
		var (
			rec      domain.PostRecord
			postedAt string
			ids      string
		)
		if err := rows.Scan(&rec.ID, &rec.Topic, &rec.Title, &rec.Source, &rec.URL,
			&rec.ContentExcerpt, &rec.PostText, &postedAt, &ids); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		if rec.PostedAt, err = time.Parse(sqlTimeLayout, postedAt); err != nil {
			return nil, fmt.Errorf("post %s: parse posted_at %q: %w", rec.ID, postedAt, err)
		}
		rec.PlatformIDs = map[string]string{}
		if ids != "" {
			if err := json.Unmarshal([]byte(ids), &rec.PlatformIDs); err != nil {
				return nil, fmt.Errorf("post %s: decode platform ids: %w", rec.ID, err)
			}
		}
		posts = append(posts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return posts, nil
}

func (s *SQLStore) Append(ctx context.Context, record domain.PostRecord) error {
	ids := record.PlatformIDs
	if ids == nil {
		ids = map[string]string{}
	}
	rawIDs, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode platform ids: %w", err)
	}

	query, args, err := s.builder.Insert(postsTable).
		Columns(postColumns...).
		Values(record.ID, record.Topic, record.Title, record.Source, record.URL,
			record.ContentExcerpt, record.PostText, formatSQLTime(record.PostedAt), string(rawIDs)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert post %s: %w", record.ID, err)
	}
	return nil
}

func (s *SQLStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query, args, err := s.builder.Delete(postsTable).
		Where(sq.Lt{"posted_at": formatSQLTime(cutoff)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete posts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 && s.logger != nil {
		s.logger.Debug("posts deleted", "backend", s.dialect.Name, "count", n)
	}
	return int(n), nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func formatSQLTime(t time.Time) string {
	return t.UTC().Format(sqlTimeLayout)
}
