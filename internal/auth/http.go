package auth

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"KBPortal/pkg/kit"
)

type Server struct {
	Log     *zap.Logger
	Service *Service
	Guard   *Guard
	// LoginLimit wraps /auth/login; nil disables rate limiting.
	LoginLimit func(http.Handler) http.Handler
	Debug      bool
}

func (s *Server) Routes(r chi.Router) {
	r.Route("/auth", func(rr chi.Router) {
		login := http.Handler(http.HandlerFunc(s.handleLogin))
		if s.LoginLimit != nil {
			login = s.LoginLimit(login)
		}
		rr.Method(http.MethodPost, "/login", login)
		rr.With(s.Guard.Require(PolicyMandatory)).Get("/verify-token", s.handleVerifyToken)
	})
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", s.detail(err))
		return
	}

	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		kit.WriteError(w, r, http.StatusBadRequest, "username and password are required", nil)
		return
	}

	res, err := s.Service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.Log.Info("login", zap.String("user_id", res.User.ID), zap.Bool("admin", res.User.Admin))
	kit.WriteData(w, http.StatusOK, res, "login successful")
}

func (s *Server) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	c, ok := ClaimsFrom(r.Context())
	if !ok {
		kit.WriteError(w, r, http.StatusUnauthorized, ErrUnauthenticated.Error(), nil)
		return
	}

	if _, err := s.Service.CheckFresh(r.Context(), c); err != nil {
		s.writeError(w, r, err)
		return
	}

	kit.WriteData(w, http.StatusOK, map[string]any{"user": c}, "")
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if status, msg, ok := HTTPStatus(err); ok {
		kit.WriteError(w, r, status, msg, nil)
		return
	}
	s.Log.Error("auth request failed", zap.Error(err))
	kit.WriteInternal(w, r, err, s.Debug)
}

func (s *Server) detail(err error) any {
	if !s.Debug {
		return nil
	}
	return err.Error()
}
