package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"pdfcache/internal/cache"
	"pdfcache/internal/domain"
	"pdfcache/internal/ports"
	"pdfcache/internal/task"
	"pdfcache/internal/usecase"
)

type Server struct {
	router *chi.Mux
}

type Deps struct {
	Engine    *cache.Engine
	Tasks     *task.Manager
	Submitter usecase.Submitter
}

func NewServer(d Deps) *Server {
	r := chi.NewRouter()

	r.Post("/submit", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Kind     string            `json:"kind"`
			Params   map[string]string `json:"params"`
			Files    [][]byte          `json:"files"`
			Priority string            `json:"priority"`
			Owner    string            `json:"owner"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		files := make([]io.Reader, 0, len(req.Files))
		for _, f := range req.Files {
			files = append(files, bytes.NewReader(f))
		}
		resp, err := d.Submitter.Submit(r.Context(), usecase.Request{
			Kind:     req.Kind,
			Params:   req.Params,
			Files:    files,
			Priority: domain.Priority(req.Priority),
			Owner:    req.Owner,
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Route("/cache", func(r chi.Router) {
		r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, d.Engine.Stats(r.Context()))
		})
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, d.Engine.Health())
		})
		r.Post("/circuit/reset", func(w http.ResponseWriter, r *http.Request) {
			d.Engine.ResetCircuit()
			w.WriteHeader(http.StatusNoContent)
		})
		r.Post("/invalidate", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Pattern string `json:"pattern"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			n, err := d.Engine.InvalidateByPattern(r.Context(), req.Pattern)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"removed": n})
		})
		r.Post("/warm", func(w http.ResponseWriter, r *http.Request) {
			var entries []cache.WarmEntry
			if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			report := d.Engine.Warm(r.Context(), entries)
			failed := make(map[string]string, len(report.Failed))
			for k, err := range report.Failed {
				failed[k] = err.Error()
			}
			writeJSON(w, http.StatusOK, map[string]any{"warmed": report.Warmed, "failed": failed})
		})
		r.Get("/{key}", func(w http.ResponseWriter, r *http.Request) {
			entry, outcome, err := d.Engine.Get(r.Context(), chi.URLParam(r, "key"))
			if err != nil {
				writeErr(w, err)
				return
			}
			if outcome != cache.OutcomeHit {
				writeJSON(w, http.StatusNotFound, map[string]any{"outcome": outcome})
				return
			}
			writeJSON(w, http.StatusOK, entry)
		})
		r.Put("/{key}", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Payload    []byte            `json:"payload"`
				TTLSeconds int64             `json:"ttl_seconds"`
				Metadata   map[string]string `json:"metadata"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			ttl := time.Duration(req.TTLSeconds) * time.Second
			if err := d.Engine.Set(r.Context(), chi.URLParam(r, "key"), req.Payload, ttl, req.Metadata); err != nil {
				writeErr(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
		r.Delete("/{key}", func(w http.ResponseWriter, r *http.Request) {
			if err := d.Engine.Invalidate(r.Context(), chi.URLParam(r, "key")); err != nil {
				writeErr(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Kind     string            `json:"kind"`
				Payload  map[string]string `json:"payload"`
				Priority string            `json:"priority"`
				Owner    string            `json:"owner"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			t, err := d.Tasks.Create(r.Context(), req.Kind, req.Payload, domain.Priority(req.Priority), req.Owner)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, t)
		})
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			status := domain.TaskStatus(r.URL.Query().Get("status"))
			tasks, err := d.Tasks.ByStatus(r.Context(), status)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, tasks)
		})
		r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, d.Tasks.Stats(r.Context()))
		})
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, d.Tasks.Health())
		})
		r.Post("/circuit/reset", func(w http.ResponseWriter, r *http.Request) {
			d.Tasks.ResetCircuit()
			w.WriteHeader(http.StatusNoContent)
		})
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			t, ok := d.Tasks.Get(r.Context(), chi.URLParam(r, "id"))
			if !ok {
				http.Error(w, "task not found", http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, t)
		})
		r.Post("/{id}/progress", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Progress float64 `json:"progress"`
				Status   *string `json:"status"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			var status *domain.TaskStatus
			if req.Status != nil {
				s := domain.TaskStatus(*req.Status)
				status = &s
			}
			ok, err := d.Tasks.UpdateProgress(r.Context(), chi.URLParam(r, "id"), req.Progress, status)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"updated": ok})
		})
		r.Post("/{id}/complete", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Result map[string]string `json:"result"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			ok, err := d.Tasks.Complete(r.Context(), chi.URLParam(r, "id"), req.Result)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"completed": ok})
		})
		r.Post("/{id}/fail", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Error string `json:"error"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			ok, err := d.Tasks.Fail(r.Context(), chi.URLParam(r, "id"), req.Error)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"failed": ok})
		})
		r.Post("/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Requester string `json:"requester"`
				Admin     bool   `json:"admin"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := d.Tasks.Cancel(r.Context(), chi.URLParam(r, "id"), req.Requester, req.Admin); err != nil {
				writeErr(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	return &Server{router: r}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ports.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Run method of the Server struct runs the HTTP server on the specified port. It initializes
// a new HTTP server instance with the specified port and the server's router.
func (s *Server) Run(port int) {
	addr := fmt.Sprintf(":%d", port)

	h := chainMiddleware(
		s.router,
		recoverHandler,
		loggerHandler(func(w http.ResponseWriter, r *http.Request) bool { return r.URL.Path == "/" }),
		realIPHandler,
		requestIDHandler,
		corsHandler,
	)

	httpServer := http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Fatal().Err(err).Msg("Server forced to shutdown")
		}

		close(done)
	}()

	log.Info().Msgf("server serving on port %d", port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Failed to listen and serve")
	}

	<-done
	log.Info().Msg("Server stopped")
}
