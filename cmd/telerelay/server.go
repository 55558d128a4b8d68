package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"telerelay/internal/constants"
	"telerelay/internal/errors"
	"telerelay/internal/middleware"
	"telerelay/internal/models"
	"telerelay/internal/service"
	"telerelay/internal/tracing"
	"telerelay/internal/validation"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// ruleBinder is the slice of the session manager the control API needs.
type ruleBinder interface {
	BindRule(ctx context.Context, rule *models.ForwardingRule) error
	UnbindRule(userID, ruleID int64)
	Logout(ctx context.Context, userID int64) error
}

type Server struct {
	router   *mux.Router
	logger   *logrus.Logger
	store    service.Store
	sessions ruleBinder
	cfg      *models.Config
	server   *http.Server
}

func NewServer(cfg *models.Config, store service.Store, sessions ruleBinder, logger *logrus.Logger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		store:    store,
		sessions: sessions,
		cfg:      cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.ControlObservabilityMiddleware(s.logger, "rules"))
	api.HandleFunc("/users/{userID}/rules", s.handleCreateRule()).Methods(http.MethodPost)
	api.HandleFunc("/users/{userID}/rules", s.handleListRules()).Methods(http.MethodGet)
	api.HandleFunc("/users/{userID}/logout", s.handleLogout()).Methods(http.MethodPost)
	api.HandleFunc("/rules/{ruleID}", s.handleDeleteRule()).Methods(http.MethodDelete)
	api.HandleFunc("/rules/{ruleID}/start", s.handleStartRule()).Methods(http.MethodPost)
	api.HandleFunc("/rules/{ruleID}/stop", s.handleStopRule()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleCreateRule() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := pathID(r, "userID")
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := validation.ValidateHTTPRequestSize(r, constants.MaxRequestBodyBytes); err != nil {
			s.writeError(w, r, err)
			return
		}

		var rule models.ForwardingRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "malformed rule payload"))
			return
		}
		rule.UserID = userID

		if err := validation.ValidateRule(&rule); err != nil {
			s.writeError(w, r, err)
			return
		}

		ruleID, err := s.store.SaveRule(r.Context(), &rule)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		rule.ID = ruleID

		if rule.Active {
			if err := s.sessions.BindRule(r.Context(), &rule); err != nil {
				// Keep the rule but leave it inactive so the operator
				// can retry the bind once the source is reachable
				if deactivateErr := s.store.SetRuleActive(r.Context(), ruleID, false); deactivateErr != nil {
					s.logger.WithError(deactivateErr).WithField("ruleId", ruleID).Error("Failed to deactivate rule after bind failure")
				}
				rule.Active = false
				s.writeError(w, r, err)
				return
			}
		}

		s.writeJSON(w, http.StatusCreated, rule)
	}
}

func (s *Server) handleListRules() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := pathID(r, "userID")
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		rules, err := s.store.GetRulesForUser(r.Context(), userID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if rules == nil {
			rules = []models.ForwardingRule{}
		}

		s.writeJSON(w, http.StatusOK, rules)
	}
}

func (s *Server) handleStartRule() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rule, err := s.loadRule(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := s.store.SetRuleActive(r.Context(), rule.ID, true); err != nil {
			s.writeError(w, r, err)
			return
		}
		rule.Active = true

		if err := s.sessions.BindRule(r.Context(), rule); err != nil {
			if deactivateErr := s.store.SetRuleActive(r.Context(), rule.ID, false); deactivateErr != nil {
				s.logger.WithError(deactivateErr).WithField("ruleId", rule.ID).Error("Failed to deactivate rule after bind failure")
			}
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, rule)
	}
}

func (s *Server) handleStopRule() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rule, err := s.loadRule(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		// Stopping an already inactive rule is a no-op, not an error
		s.sessions.UnbindRule(rule.UserID, rule.ID)
		if err := s.store.SetRuleActive(r.Context(), rule.ID, false); err != nil {
			s.writeError(w, r, err)
			return
		}
		rule.Active = false

		s.writeJSON(w, http.StatusOK, rule)
	}
}

func (s *Server) handleDeleteRule() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rule, err := s.loadRule(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.sessions.UnbindRule(rule.UserID, rule.ID)

		if r.URL.Query().Get("purge") == "true" {
			err = s.store.PurgeRule(r.Context(), rule.ID)
		} else {
			err = s.store.DeleteRule(r.Context(), rule.ID)
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := pathID(r, "userID")
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := s.sessions.Logout(r.Context(), userID); err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
	}
}

// loadRule resolves the {ruleID} path variable to a stored rule.
func (s *Server) loadRule(r *http.Request) (*models.ForwardingRule, error) {
	ruleID, err := pathID(r, "ruleID")
	if err != nil {
		return nil, err
	}

	rule, err := s.store.GetRule(r.Context(), ruleID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, errors.New(errors.ErrCodeNotFound, fmt.Sprintf("rule %d not found", ruleID))
	}

	return rule, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("invalid %s: %q", name, raw))
	}
	return id, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestInfo := tracing.GetRequestInfo(r.Context())
	status := errors.HTTPStatusCode(err)

	if status >= 500 {
		s.logger.WithError(err).WithField("request_id", requestInfo.RequestID).Error("Request failed")
	} else {
		s.logger.WithError(err).WithField("request_id", requestInfo.RequestID).Warn("Request rejected")
	}

	s.writeJSON(w, status, errors.ToHTTPResponse(err, requestInfo.RequestID))
}
