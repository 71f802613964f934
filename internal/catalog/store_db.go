package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"

	"KBPortal/internal/storage"
)

const (
	table           = "knowledge_base_publish"
	titleConstraint = "knowledge_base_publish_title_key"
)

var columns = []string{
	"id", "title", "description", "icon_url", "embed_code",
	"external_kb_ref", "external_flow_ref", "created_by",
	"is_active", "view_count", "created_at", "updated_at",
}

var returning = "RETURNING " + strings.Join(columns, ", ")

// PostgresStore relies on the unique index on title (see migrations) for
// the uniqueness invariant.
type PostgresStore struct {
	db storage.DB
}

func NewPostgresStore(db storage.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return storage.WithTimeout(ctx, storage.PingTimeout, s.db.Ping)
}

func (s *PostgresStore) List(ctx context.Context, q Query) ([]Entry, int, error) {
	where := sq.And{}
	if q.ActiveOnly {
		where = append(where, sq.Eq{"is_active": true})
	}
	if q.Search != "" {
		pat := "%" + escapeLike(q.Search) + "%"
		where = append(where, sq.Or{sq.ILike{"title": pat}, sq.ILike{"description": pat}})
	}

	countSQL, countArgs, err := storage.Builder.Select("count(*)").From(table).Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}

	pageQ := storage.Builder.Select(columns...).From(table).Where(where).
		OrderBy("created_at DESC", "id ASC").
		Offset(uint64(q.Offset))
	if q.Limit > 0 {
		pageQ = pageQ.Limit(uint64(q.Limit))
	}
	pageSQL, pageArgs, err := pageQ.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list: %w", err)
	}

	var (
		total   int
		entries []Entry
	)
	err = storage.WithTimeout(ctx, storage.QueryTimeout, func(ctx context.Context) error {
		if err := s.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
			return fmt.Errorf("count entries: %w", err)
		}
		if err := pgxscan.Select(ctx, s.db, &entries, pageSQL, pageArgs...); err != nil {
			return fmt.Errorf("list entries: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, total, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Entry, error) {
	query, args, err := storage.Builder.Select(columns...).From(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return Entry{}, fmt.Errorf("build get: %w", err)
	}
	return s.getOne(ctx, "get entry", query, args)
}

func (s *PostgresStore) TitleTaken(ctx context.Context, title, excludeID string) (bool, error) {
	where := sq.And{sq.Eq{"title": title}}
	if excludeID != "" {
		where = append(where, sq.NotEq{"id": excludeID})
	}
	query, args, err := storage.Builder.Select("1").From(table).Where(where).
		Prefix("SELECT EXISTS (").Suffix(")").ToSql()
	if err != nil {
		return false, fmt.Errorf("build title check: %w", err)
	}

	var taken bool
	err = storage.WithTimeout(ctx, storage.QueryTimeout, func(ctx context.Context) error {
		return s.db.QueryRow(ctx, query, args...).Scan(&taken)
	})
	if err != nil {
		return false, fmt.Errorf("check title: %w", err)
	}
	return taken, nil
}

func (s *PostgresStore) Create(ctx context.Context, e Entry) (Entry, error) {
	e.ID = uuid.NewString()

	query, args, err := storage.Builder.Insert(table).Columns(columns...).Values(
		e.ID, e.Title, e.Description, e.IconURL, e.EmbedCode,
		e.ExternalKbRef, e.ExternalFlowRef, e.CreatedBy,
		e.IsActive, e.ViewCount, e.CreatedAt, e.UpdatedAt,
	).Suffix(returning).ToSql()
	if err != nil {
		return Entry{}, fmt.Errorf("build insert: %w", err)
	}
	return s.getOne(ctx, "insert entry", query, args)
}

func (s *PostgresStore) Replace(ctx context.Context, e Entry) (Entry, error) {
	query, args, err := storage.Builder.Update(table).SetMap(map[string]any{
		"title":             e.Title,
		"description":       e.Description,
		"icon_url":          e.IconURL,
		"embed_code":        e.EmbedCode,
		"external_kb_ref":   e.ExternalKbRef,
		"external_flow_ref": e.ExternalFlowRef,
		"is_active":         e.IsActive,
		"updated_at":        e.UpdatedAt,
	}).Where(sq.Eq{"id": e.ID}).Suffix(returning).ToSql()
	if err != nil {
		return Entry{}, fmt.Errorf("build update: %w", err)
	}
	return s.getOne(ctx, "update entry", query, args)
}

func (s *PostgresStore) Apply(ctx context.Context, id string, p Patch, at time.Time) (Entry, error) {
	set := map[string]any{"updated_at": at}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.IconURL != nil {
		if *p.IconURL == "" {
			set["icon_url"] = nil
		} else {
			set["icon_url"] = *p.IconURL
		}
	}
	if p.EmbedCode != nil {
		set["embed_code"] = *p.EmbedCode
	}
	if p.ExternalKbRef != nil {
		set["external_kb_ref"] = *p.ExternalKbRef
	}
	if p.ExternalFlowRef != nil {
		set["external_flow_ref"] = *p.ExternalFlowRef
	}
	if p.IsActive != nil {
		set["is_active"] = *p.IsActive
	}
	switch {
	case p.ViewCount != nil:
		set["view_count"] = *p.ViewCount
	case p.IncrementViews:
		set["view_count"] = sq.Expr("view_count + 1")
	}

	query, args, err := storage.Builder.Update(table).SetMap(set).
		Where(sq.Eq{"id": id}).Suffix(returning).ToSql()
	if err != nil {
		return Entry{}, fmt.Errorf("build patch: %w", err)
	}
	return s.getOne(ctx, "patch entry", query, args)
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	query, args, err := storage.Builder.Delete(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	n, err := s.exec(ctx, query, args)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) BulkSetActive(ctx context.Context, ids []string, active bool, at time.Time) (int64, error) {
	query, args, err := storage.Builder.Update(table).
		Set("is_active", active).
		Set("updated_at", at).
		Where(anyID(ids)).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build bulk update: %w", err)
	}

	n, err := s.exec(ctx, query, args)
	if err != nil {
		return 0, fmt.Errorf("bulk update entries: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) BulkDelete(ctx context.Context, ids []string) (int64, error) {
	query, args, err := storage.Builder.Delete(table).Where(anyID(ids)).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build bulk delete: %w", err)
	}

	n, err := s.exec(ctx, query, args)
	if err != nil {
		return 0, fmt.Errorf("bulk delete entries: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) getOne(ctx context.Context, op, query string, args []any) (Entry, error) {
	var e Entry
	err := storage.WithTimeout(ctx, storage.QueryTimeout, func(ctx context.Context) error {
		return pgxscan.Get(ctx, s.db, &e, query, args...)
	})
	switch {
	case err == nil:
		return e, nil
	case pgxscan.NotFound(err):
		return Entry{}, ErrNotFound
	case storage.IsUniqueViolation(err) && storage.ConstraintName(err) == titleConstraint:
		return Entry{}, ErrConflict
	}
	return Entry{}, fmt.Errorf("%s: %w", op, err)
}

func (s *PostgresStore) exec(ctx context.Context, query string, args []any) (int64, error) {
	var n int64
	err := storage.WithTimeout(ctx, storage.QueryTimeout, func(ctx context.Context) error {
		tag, err := s.db.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}

// anyID binds the whole id list as one array parameter, so batch size is
// not bounded by the protocol's parameter limit.
func anyID(ids []string) sq.Sqlizer {
	return sq.Expr("id = ANY(?)", ids)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

