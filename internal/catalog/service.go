package catalog

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"KBPortal/internal/auth"
)

// Service holds no per-request state; all durable state lives in the store.
type Service struct {
	store   Store
	log     *zap.Logger
	metrics *Metrics
	now     func() time.Time
}

func NewService(store Store, log *zap.Logger, metrics *Metrics) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:   store,
		log:     log,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// List returns one page of entries. Inactive entries are visible only to
// admins who ask for them.
func (s *Service) List(ctx context.Context, f Filter, caller auth.Principal) (Page, error) {
	f.normalize()
	if !caller.Admin {
		f.IncludeInactive = false
	}

	entries, total, err := s.store.List(ctx, Query{
		Search:     strings.TrimSpace(f.Search),
		ActiveOnly: !f.IncludeInactive,
		Offset:     f.offset(),
		Limit:      f.Limit,
	})
	if err != nil {
		return Page{}, err
	}

	return Page{
		Entries: entries,
		Pagination: Pagination{
			Page:       f.Page,
			Limit:      f.Limit,
			Total:      total,
			TotalPages: (total + f.Limit - 1) / f.Limit,
		},
	}, nil
}

func (s *Service) Get(ctx context.Context, id string) (Entry, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, in Input, caller auth.Principal) (Entry, error) {
	if caller.IsGuest() || caller.ID == "" {
		return Entry{}, auth.ErrUnauthenticated
	}

	in, err := normalizeInput(in)
	if err != nil {
		return Entry{}, err
	}

	if err := s.ensureTitleFree(ctx, in.Title, ""); err != nil {
		return Entry{}, err
	}

	now := s.now()
	e, err := s.store.Create(ctx, Entry{
		Title:           in.Title,
		Description:     in.Description,
		IconURL:         in.IconURL,
		EmbedCode:       in.EmbedCode,
		ExternalKbRef:   in.ExternalKbRef,
		ExternalFlowRef: in.ExternalFlowRef,
		CreatedBy:       caller.ID,
		IsActive:        in.IsActive == nil || *in.IsActive,
		ViewCount:       0,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	s.metrics.mutation("create", err)
	if err != nil {
		return Entry{}, err
	}

	s.log.Info("knowledge base created",
		zap.String("id", e.ID),
		zap.String("title", e.Title),
		zap.String("created_by", e.CreatedBy),
	)
	return e, nil
}

// Update replaces every mutable field. An omitted isActive keeps the
// current value.
func (s *Service) Update(ctx context.Context, id string, in Input) (Entry, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return Entry{}, err
	}

	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}

	if in.Title != cur.Title {
		if err := s.ensureTitleFree(ctx, in.Title, id); err != nil {
			return Entry{}, err
		}
	}

	next := cur
	next.Title = in.Title
	next.Description = in.Description
	next.IconURL = in.IconURL
	next.EmbedCode = in.EmbedCode
	next.ExternalKbRef = in.ExternalKbRef
	next.ExternalFlowRef = in.ExternalFlowRef
	if in.IsActive != nil {
		next.IsActive = *in.IsActive
	}
	next.UpdatedAt = s.now()

	e, err := s.store.Replace(ctx, next)
	s.metrics.mutation("update", err)
	if err != nil {
		return Entry{}, err
	}

	s.log.Info("knowledge base updated", zap.String("id", id))
	return e, nil
}

// Patch applies the supplied fields only. Overwriting the view counter is
// an admin reset; incrementing it is open to any authenticated caller.
func (s *Service) Patch(ctx context.Context, id string, p Patch, caller auth.Principal) (Entry, error) {
	if p.ViewCount != nil && !caller.Admin {
		return Entry{}, auth.ErrForbidden
	}

	p, err := normalizePatch(p)
	if err != nil {
		return Entry{}, err
	}

	if p.Title != nil {
		if _, err := s.store.Get(ctx, id); err != nil {
			return Entry{}, err
		}
		if err := s.ensureTitleFree(ctx, *p.Title, id); err != nil {
			return Entry{}, err
		}
	}

	e, err := s.store.Apply(ctx, id, p, s.now())
	s.metrics.mutation("patch", err)
	if err != nil {
		return Entry{}, err
	}

	s.log.Info("knowledge base patched", zap.String("id", id), zap.Bool("touch_only", p.empty()))
	return e, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.Delete(ctx, id)
	s.metrics.mutation("delete", err)
	if err != nil {
		return err
	}

	s.log.Info("knowledge base deleted", zap.String("id", id))
	return nil
}

// Batch applies action to every existing id in one store statement and
// reports how many rows it touched. Unknown ids are skipped.
func (s *Service) Batch(ctx context.Context, action BatchAction, ids []string) (int64, error) {
	if !action.valid() {
		return 0, invalid("action", "must be one of activate, deactivate, delete")
	}

	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, invalid("ids", "must contain at least one id")
	}

	var (
		n   int64
		err error
	)
	switch action {
	case BatchActivate:
		n, err = s.store.BulkSetActive(ctx, ids, true, s.now())
	case BatchDeactivate:
		n, err = s.store.BulkSetActive(ctx, ids, false, s.now())
	case BatchDelete:
		n, err = s.store.BulkDelete(ctx, ids)
	}
	s.metrics.mutation("batch_"+string(action), err)
	if err != nil {
		return 0, err
	}
	s.metrics.batch(action, n)

	s.log.Info("knowledge base batch",
		zap.String("action", string(action)),
		zap.Int("requested", len(ids)),
		zap.Int64("affected", n),
	)
	return n, nil
}

// RecordView counts one visit to an active entry.
func (s *Service) RecordView(ctx context.Context, id string) (Entry, error) {
	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if !cur.IsActive {
		return Entry{}, ErrNotFound
	}
	return s.store.Apply(ctx, id, Patch{IncrementViews: true}, s.now())
}

func (s *Service) ensureTitleFree(ctx context.Context, title, excludeID string) error {
	taken, err := s.store.TitleTaken(ctx, title, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return ErrConflict
	}
	return nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
