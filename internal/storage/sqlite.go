package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	logx "autonotice/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const timeLayout = time.RFC3339Nano

type sqliteStore struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	log logx.Logger
}

// Open initializes the sqlite-backed store, creating the database file and
// schema on first use.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Question),
		log: log,
	}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ActiveFollowerIDs(ctx context.Context) ([]string, error) {
	q, args, err := s.sb.
		Select("user_id").
		From("followers").
		Where(sq.NotEq{"category": CategoryDisabled}).
		OrderBy("user_id").
		ToSql()
	if err != nil {
		return nil, err
	}
	return s.queryIDs(ctx, q, args)
}

func (s *sqliteStore) FollowerIDsByCategory(ctx context.Context, category string) ([]string, error) {
	q, args, err := s.sb.
		Select("user_id").
		From("followers").
		Where(sq.Eq{"category": category}).
		OrderBy("user_id").
		ToSql()
	if err != nil {
		return nil, err
	}
	return s.queryIDs(ctx, q, args)
}

func (s *sqliteStore) queryIDs(ctx context.Context, q string, args []any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqliteStore) Follower(ctx context.Context, id string) (Follower, bool, error) {
	q, args, err := s.sb.
		Select("user_id", "category", "source", "latest_post_link", "latest_post_at", "last_checked_at").
		From("followers").
		Where(sq.Eq{"user_id": id}).
		ToSql()
	if err != nil {
		return Follower{}, false, err
	}

	var (
		f                     Follower
		link, postAt, checkAt sql.NullString
	)
	err = s.db.QueryRowContext(ctx, q, args...).
		Scan(&f.ID, &f.Category, &f.Source, &link, &postAt, &checkAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Follower{}, false, nil
	}
	if err != nil {
		return Follower{}, false, err
	}

	f.LastDeliveredLink = link.String
	if f.LastDeliveredAt, err = parseNullTime(postAt); err != nil {
		return Follower{}, false, fmt.Errorf("follower %s: %w", id, err)
	}
	if f.LastProcessedAt, err = parseNullTime(checkAt); err != nil {
		return Follower{}, false, fmt.Errorf("follower %s: %w", id, err)
	}
	return f, true, nil
}

func (s *sqliteStore) AddFollower(ctx context.Context, id, category, source string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("storage: follower id is empty")
	}
	if strings.TrimSpace(category) == "" {
		category = CategoryDefault
	}
	if strings.TrimSpace(source) == "" {
		source = SourceDefault
	}
	q, args, err := s.sb.
		Insert("followers").
		Columns("user_id", "category", "source").
		Values(id, category, source).
		Suffix("ON CONFLICT(user_id) DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrExists
	}
	return nil
}

func (s *sqliteStore) RemoveFollower(ctx context.Context, id string) error {
	q, args, err := s.sb.Delete("followers").Where(sq.Eq{"user_id": id}).ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) SetCategory(ctx context.Context, id, category string) error {
	if strings.TrimSpace(category) == "" {
		return errors.New("storage: category is empty")
	}
	q, args, err := s.sb.
		Update("followers").
		Set("category", category).
		Where(sq.Eq{"user_id": id}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Categories(ctx context.Context) ([]string, error) {
	q, args, err := s.sb.
		Select("DISTINCT category").
		From("followers").
		OrderBy("category").
		ToSql()
	if err != nil {
		return nil, err
	}
	return s.queryIDs(ctx, q, args)
}

func (s *sqliteStore) RecordDelivery(ctx context.Context, followerID string, rec DeliveryRecord) error {
	if rec.DeliveredAt.IsZero() {
		rec.DeliveredAt = time.Now()
	}

	var snapshot any
	if len(rec.MediaSnapshot) > 0 {
		b, err := json.Marshal(rec.MediaSnapshot)
		if err != nil {
			return err
		}
		snapshot = string(b)
	}

	insert, insertArgs, err := s.sb.
		Insert("send_history").
		Columns("author", "content", "link", "media_snapshot", "chat_id", "posted_at", "sent_at").
		Values(
			rec.Author,
			truncateRunes(rec.Body, 200),
			rec.Link,
			snapshot,
			strconv.FormatInt(rec.ChatID, 10),
			rec.PublishedAt.Format(timeLayout),
			rec.DeliveredAt.Format(timeLayout),
		).
		ToSql()
	if err != nil {
		return err
	}

	update, updateArgs, err := s.sb.
		Update("followers").
		Set("latest_post_at", rec.PublishedAt.Format(timeLayout)).
		Set("latest_post_link", rec.Link).
		Set("last_checked_at", rec.DeliveredAt.Format(timeLayout)).
		Where(sq.Eq{"user_id": followerID}).
		ToSql()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, insert, insertArgs...); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, update, updateArgs...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *sqliteStore) TouchProcessed(ctx context.Context, followerID string, at time.Time) error {
	q, args, err := s.sb.
		Update("followers").
		Set("last_checked_at", at.Format(timeLayout)).
		Where(sq.Eq{"user_id": followerID}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func parseNullTime(v sql.NullString) (time.Time, error) {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad stored time %q: %w", v.String, err)
	}
	return t, nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
