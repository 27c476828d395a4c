// Package ui serves the report directory over HTTP.
package ui

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"colliderlab/domain/core"
	"colliderlab/internal"
)

// App represents the report browser
type App struct {
	router    *chi.Mux
	dir       string
	templates *template.Template
	logger    *internal.Logger
}

// Config holds UI application configuration
type Config struct {
	Port string
	// Dir is the report output directory, one subdirectory per run
	Dir  string
}

// RunListing describes one run directory
type RunListing struct {
	ID       string    `json:"id"`
	Files    []string  `json:"files"`
	Modified time.Time `json:"modified"`
}

// NewApp creates a new report browser
func NewApp(config Config, logger *internal.Logger) (*App, error) {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	app := &App{
		router:    chi.NewRouter(),
		dir:       config.Dir,
		templates: templates,
		logger:    logger,
	}
	app.setupMiddleware()
	app.setupRoutes()
	return app, nil
}

// setupMiddleware configures HTTP middleware
func (a *App) setupMiddleware() {
	a.router.Use(middleware.RequestID)
	a.router.Use(a.requestLogger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))
}

// setupRoutes configures the application routes
func (a *App) setupRoutes() {
	a.router.Get("/", a.handleIndex)
	a.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	a.router.Get("/api/runs", a.handleListRuns)
	a.router.Get("/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/runs/"+chi.URLParam(r, "id")+"/", http.StatusMovedPermanently)
	})
	a.router.Get("/runs/{id}/*", a.handleRunFile)
}

// Handler exposes the router
func (a *App) Handler() http.Handler {
	return a.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (a *App) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("[ui] serving %s on :%s", a.dir, port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Runs lists run directories, newest first
func (a *App) Runs() ([]RunListing, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var runs []RunListing
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files, err := os.ReadDir(filepath.Join(a.dir, e.Name()))
		if err != nil {
			continue
		}
		run := RunListing{ID: e.Name(), Modified: info.ModTime()}
		for _, f := range files {
			if !f.IsDir() {
				run.Files = append(run.Files, f.Name())
			}
		}
		runs = append(runs, run)
	}
	// run ids are time-ordered
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID > runs[j].ID })
	return runs, nil
}

func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	runs, err := a.Runs()
	if err != nil {
		a.logger.Error("[ui] list runs: %v", err)
		http.Error(w, "cannot list reports", http.StatusInternalServerError)
		return
	}
	a.renderTemplate(w, "index.html", map[string]interface{}{
		"Dir":  a.dir,
		"Runs": runs,
	})
}

func (a *App) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := a.Runs()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []RunListing{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(runs); err != nil {
		a.logger.Warn("[ui] encode runs: %v", err)
	}
}

// runDir resolves a run id to its directory, rejecting path tricks
func (a *App) runDir(id string) (string, bool) {
	runID, err := core.ParseRunID(id)
	if err != nil {
		return "", false
	}
	dir := filepath.Join(a.dir, runID.String())
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return dir, true
}

// handleRunIndex opens the HTML report when there is one
func (a *App) handleRunIndex(w http.ResponseWriter, r *http.Request, id, dir string) {
	if _, err := os.Stat(filepath.Join(dir, "report.html")); err == nil {
		http.Redirect(w, r, "/runs/"+id+"/report.html", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (a *App) handleRunFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dir, ok := a.runDir(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if chi.URLParam(r, "*") == "" {
		a.handleRunIndex(w, r, id, dir)
		return
	}
	prefix := "/runs/" + id
	http.StripPrefix(prefix, http.FileServer(http.Dir(dir))).ServeHTTP(w, r)
}
