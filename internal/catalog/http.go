package catalog

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"KBPortal/internal/auth"
	"KBPortal/pkg/kit"
)

type Server struct {
	Service *Service
	Guard   *auth.Guard
	Log     *zap.Logger
	// WritePolicy guards create, update, patch and delete.
	WritePolicy auth.Policy
	BatchPolicy auth.Policy
	Debug       bool
}

func (s *Server) Routes(r chi.Router) {
	r.Route("/knowledge-bases", func(rr chi.Router) {
		rr.Group(func(pub chi.Router) {
			pub.Use(s.Guard.Require(auth.PolicyOptional))
			pub.Get("/", s.list)
			pub.Get("/{id}", s.get)
			pub.Post("/{id}/view", s.view)
		})

		rr.Group(func(wr chi.Router) {
			wr.Use(s.Guard.Require(s.WritePolicy))
			wr.Post("/create", s.create)
			wr.Put("/{id}", s.update)
			wr.Patch("/{id}", s.patch)
			wr.Delete("/{id}", s.delete)
		})

		rr.With(s.Guard.Require(s.BatchPolicy)).Post("/batch", s.batch)
	})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := Filter{
		Search:          q.Get("search"),
		Page:            atoiOr(q.Get("page"), 1),
		Limit:           atoiOr(q.Get("limit"), DefaultLimit),
		IncludeInactive: parseBool(q.Get("includeInactive")),
	}

	page, err := s.Service.List(r.Context(), f, auth.PrincipalFrom(r.Context()))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if page.Entries == nil {
		page.Entries = []Entry{}
	}
	kit.WriteData(w, http.StatusOK, page, "")
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	e, err := s.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	kit.WriteData(w, http.StatusOK, e, "")
}

func (s *Server) view(w http.ResponseWriter, r *http.Request) {
	e, err := s.Service.RecordView(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	kit.WriteData(w, http.StatusOK, map[string]any{"id": e.ID, "viewCount": e.ViewCount}, "")
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if !s.decode(w, r, &in) {
		return
	}

	e, err := s.Service.Create(r.Context(), in, auth.PrincipalFrom(r.Context()))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	kit.WriteData(w, http.StatusOK, e, "knowledge base created")
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	var in Input
	if !s.decode(w, r, &in) {
		return
	}

	e, err := s.Service.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	kit.WriteData(w, http.StatusOK, e, "knowledge base updated")
}

func (s *Server) patch(w http.ResponseWriter, r *http.Request) {
	var p Patch
	if !s.decode(w, r, &p) {
		return
	}

	e, err := s.Service.Patch(r.Context(), chi.URLParam(r, "id"), p, auth.PrincipalFrom(r.Context()))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	kit.WriteData(w, http.StatusOK, e, "knowledge base updated")
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Service.Delete(r.Context(), id); err != nil {
		s.writeErr(w, r, err)
		return
	}
	kit.WriteData(w, http.StatusOK, map[string]string{"id": id}, "knowledge base deleted")
}

type batchReq struct {
	Action BatchAction `json:"action"`
	IDs    []string    `json:"ids"`
}

type batchResp struct {
	Action        BatchAction `json:"action"`
	AffectedCount int64       `json:"affectedCount"`
}

func (s *Server) batch(w http.ResponseWriter, r *http.Request) {
	var req batchReq
	if !s.decode(w, r, &req) {
		return
	}

	n, err := s.Service.Batch(r.Context(), req.Action, req.IDs)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	kit.WriteData(w, http.StatusOK, batchResp{Action: req.Action, AffectedCount: n},
		strconv.FormatInt(n, 10)+" knowledge bases affected")
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := kit.DecodeJSON(w, r, v)
	if err == nil {
		return true
	}

	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		kit.WriteError(w, r, http.StatusRequestEntityTooLarge, "request body too large", nil)
		return false
	}
	var detail any
	if s.Debug {
		detail = err.Error()
	}
	kit.WriteError(w, r, http.StatusBadRequest, "invalid JSON body", detail)
	return false
}

func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		kit.WriteError(w, r, http.StatusBadRequest, "validation failed", verr.Fields)
		return
	case errors.Is(err, ErrConflict):
		// Same status as validation; the field list tells them apart.
		kit.WriteError(w, r, http.StatusBadRequest, ErrConflict.Error(),
			[]FieldError{{Field: "title", Message: "already exists"}})
		return
	case errors.Is(err, ErrNotFound):
		kit.WriteError(w, r, http.StatusNotFound, ErrNotFound.Error(), nil)
		return
	}

	if status, msg, ok := auth.HTTPStatus(err); ok {
		kit.WriteError(w, r, status, msg, nil)
		return
	}

	s.Log.Error("catalog request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	kit.WriteInternal(w, r, err, s.Debug)
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
