package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/bulk"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/monitoring"
	"github.com/sells-group/prospect-cli/internal/store"
)

var servePort int

// sessionDrainTimeout bounds how long shutdown waits for paused session
// loops to write their final checkpoint.
const sessionDrainTimeout = 2 * time.Minute

// sessionRegistry tracks the pause token of each running session so the
// pause endpoint can reach a loop started by an earlier request, and counts
// the running loops so shutdown can wait for their pause checkpoints.
type sessionRegistry struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	tokens map[string]*bulk.PauseToken
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{tokens: make(map[string]*bulk.PauseToken)}
}

func (r *sessionRegistry) add(id string) *bulk.PauseToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	token := bulk.NewPauseToken()
	r.tokens[id] = token
	r.wg.Add(1)
	return token
}

func (r *sessionRegistry) get(id string) (*bulk.PauseToken, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[id]
	return token, ok
}

func (r *sessionRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[id]; !ok {
		return
	}
	delete(r.tokens, id)
	r.wg.Done()
}

// pauseAll requests a pause on every running session.
func (r *sessionRegistry) pauseAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, token := range r.tokens {
		token.Pause()
	}
	return len(r.tokens)
}

// wait blocks until every running loop has finished (and checkpointed) or
// the timeout expires. Returns false on timeout.
func (r *sessionRegistry) wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		registry := newSessionRegistry()
		router := newRouter(ctx, env, registry)

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

		// Graceful shutdown: pause every running session so each one
		// checkpoints before the process exits.
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			if n := registry.pauseAll(); n > 0 {
				zap.L().Info("pausing running sessions", zap.Int("sessions", n))
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		// The loops run detached from request contexts; the store must stay
		// open until their pause checkpoints land.
		if !registry.wait(sessionDrainTimeout) {
			zap.L().Warn("sessions still running at shutdown deadline; last checkpoint may be stale")
		}
		return nil
	},
}

func newRouter(baseCtx context.Context, env *researchEnv, registry *sessionRegistry) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		collector := monitoring.NewCollector(env.Store)
		snap, err := collector.Collect(r.Context(),
			cfg.Monitoring.LookbackWindowHours,
			time.Duration(cfg.Monitoring.StalledPausedHours)*time.Hour,
		)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	router.Route("/sessions", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			sessions, err := env.Store.ListSessions(req.Context(), store.SessionFilter{
				Status: model.SessionStatus(req.URL.Query().Get("status")),
			})
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, sessions)
		})

		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Name     string          `json:"name"`
				Subjects []model.Subject `json:"subjects"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
				return
			}
			sess := bulk.NewSession(body.Name, model.SelectionConfig{Source: "api"}, body.Subjects)
			if err := env.Store.CreateSession(req.Context(), sess); err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusCreated, sess)
		})

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, req *http.Request) {
				sess, err := env.Store.GetSession(req.Context(), chi.URLParam(req, "id"))
				if err != nil {
					writeError(w, http.StatusNotFound, err)
					return
				}
				writeJSON(w, http.StatusOK, sess)
			})

			r.Post("/start", func(w http.ResponseWriter, req *http.Request) {
				launchSession(baseCtx, env, registry, w, req, false)
			})

			r.Post("/resume", func(w http.ResponseWriter, req *http.Request) {
				launchSession(baseCtx, env, registry, w, req, true)
			})

			r.Post("/pause", func(w http.ResponseWriter, req *http.Request) {
				id := chi.URLParam(req, "id")
				token, ok := registry.get(id)
				if !ok {
					writeError(w, http.StatusConflict, eris.New("session is not running"))
					return
				}
				token.Pause()
				writeJSON(w, http.StatusAccepted, map[string]string{"status": "pausing"})
			})

			r.Post("/cancel", func(w http.ResponseWriter, req *http.Request) {
				id := chi.URLParam(req, "id")
				if token, ok := registry.get(id); ok {
					// A running loop pauses first, then the cancel lands
					// on the checkpointed session.
					token.Pause()
					writeError(w, http.StatusConflict, eris.New("session is running; pause requested, retry cancel once paused"))
					return
				}
				sess, err := env.Store.GetSession(req.Context(), id)
				if err != nil {
					writeError(w, http.StatusNotFound, err)
					return
				}
				orch := bulk.New(env.Researcher, env.Store, bulk.Options{})
				if err := orch.Cancel(req.Context(), sess); err != nil {
					writeError(w, http.StatusConflict, err)
					return
				}
				writeJSON(w, http.StatusOK, sess)
			})
		})
	})

	return router
}

// launchSession starts or resumes a session's research loop in the
// background and returns immediately.
func launchSession(baseCtx context.Context, env *researchEnv, registry *sessionRegistry, w http.ResponseWriter, req *http.Request, resume bool) {
	id := chi.URLParam(req, "id")
	if _, running := registry.get(id); running {
		writeError(w, http.StatusConflict, eris.New("session is already running"))
		return
	}

	sess, err := env.Store.GetSession(req.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if resume && sess.Status != model.SessionStatusPaused {
		writeError(w, http.StatusConflict, eris.Errorf("session is %s, not paused", sess.Status))
		return
	}
	if !resume && sess.Status != model.SessionStatusReady {
		writeError(w, http.StatusConflict, eris.Errorf("session is %s, not ready", sess.Status))
		return
	}

	token := registry.add(id)
	orch := bulk.New(env.Researcher, env.Store, bulk.Options{
		CheckpointEvery: cfg.Bulk.CheckpointEvery,
		DefaultItemTime: time.Duration(cfg.Bulk.DefaultItemSecs * float64(time.Second)),
		Writer:          env.Writer,
	})

	// Detached from the request context; the loop outlives the request
	// and stops via the pause token.
	runCtx := context.WithoutCancel(baseCtx)
	go func() {
		defer registry.remove(id)
		var err error
		if resume {
			err = orch.Resume(runCtx, sess, token)
		} else {
			err = orch.Start(runCtx, sess, token)
		}
		if err != nil {
			zap.L().Error("session run failed",
				zap.String("session_id", id),
				zap.Error(err),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":     "accepted",
		"session_id": id,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
