package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/accord/internal/reconciler"
)

// Reconciler is the engine surface the HTTP layer drives. Implemented by
// *reconciler.Engine; tests substitute fakes.
type Reconciler interface {
	Session(ctx context.Context, sessionID uuid.UUID) (*reconciler.Session, error)
	SubmitEmpathy(ctx context.Context, sessionID, userID uuid.UUID, content string) (*reconciler.EmpathyAttempt, error)
	AddWitnessStatement(ctx context.Context, sessionID, userID uuid.UUID, content string) error
	RunDirection(ctx context.Context, sessionID, guesserID, subjectID uuid.UUID) (*reconciler.DirectionOutcome, error)
	CheckAndRevealBothIfReady(ctx context.Context, sessionID uuid.UUID) error
	Validate(ctx context.Context, sessionID, userID uuid.UUID) error
	ShareSuggestionFor(ctx context.Context, sessionID, userID uuid.UUID) (*reconciler.ShareOffer, error)
	RespondToShareSuggestion(ctx context.Context, sessionID, userID uuid.UUID, action reconciler.ShareAction, refinedContent string) (*reconciler.ShareResponse, error)
	SessionStatus(ctx context.Context, sessionID uuid.UUID) (*reconciler.SessionEmpathyStatus, error)
}

// SessionCreator persists new sessions. Implemented by *store.Store.
type SessionCreator interface {
	CreateSession(ctx context.Context, sess *reconciler.Session) error
}

// TaskRunner takes analysis work off the request path.
type TaskRunner interface {
	Submit(name string, fn func(ctx context.Context) error) bool
}

type Server struct {
	router   *chi.Mux
	port     int
	engine   Reconciler
	sessions SessionCreator
	tasks    TaskRunner
	logger   *slog.Logger
}

func NewServer(port int, apiToken string, engine Reconciler, sessions SessionCreator, tasks TaskRunner, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		engine:   engine,
		sessions: sessions,
		tasks:    tasks,
		logger:   logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/accord/status", s.status)

	router.Route("/api/v1/sessions", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/", s.createSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/empathy/status", s.empathyStatus)

			r.Route("/users/{userID}", func(r chi.Router) {
				r.Post("/empathy", s.submitEmpathy)
				r.Post("/empathy/validate", s.validateEmpathy)
				r.Post("/witness", s.addWitness)
				r.Get("/share-suggestion", s.getShareSuggestion)
				r.Post("/share-suggestion/respond", s.respondShareSuggestion)
			})
		})
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "accord",
		"status":  "serving",
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}
