package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/CTAG07/Liquidize/pkg/document"
	"github.com/CTAG07/Liquidize/pkg/preview"
	"github.com/CTAG07/Liquidize/pkg/templating"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	cm          *ConfigManager
	db          *sql.DB
	logger      *slog.Logger
	tm          *templating.TemplateManager
	store       *document.Store
	pm          *preview.Manager
	authAPI     *AuthAPI
	documentAPI *DocumentAPI
	variableAPI *VariableAPI
	previewAPI  *PreviewAPI
	statsAPI    *StatsAPI
	serverAPI   *ServerAPI
	router      chi.Router
	cancel      context.CancelFunc
}

func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, actionChan chan string) (*Server, error) {
	config := cm.Get()

	tm, err := templating.NewTemplateManager(logger, config.Templates)
	if err != nil {
		return nil, fmt.Errorf("failed to create template manager: %w", err)
	}
	cm.SetTemplateManager(tm)

	store, err := document.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create document store: %w", err)
	}
	store.SetLogger(logger)

	pm := preview.NewManager(store, tm, config.Preview.previewConfig(), logger)
	cm.SetPreviewManager(pm)

	// api initialization
	statsAPI := NewStatsAPI(db, cm, pm.Len, logger)
	server := &Server{
		cm:          cm,
		db:          db,
		logger:      logger,
		tm:          tm,
		store:       store,
		pm:          pm,
		authAPI:     NewAuthAPI(db, logger),
		documentAPI: NewDocumentAPI(store, tm, statsAPI, cm, logger),
		variableAPI: NewVariableAPI(store, logger),
		previewAPI:  NewPreviewAPI(pm, statsAPI, logger),
		statsAPI:    statsAPI,
		serverAPI:   NewServerAPI(cm, actionChan, logger),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	// The health check is unauthed so something like docker can use it.
	r.Get("/api/health", server.serverAPI.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(server.authAPI.Authenticate)
		server.authAPI.RegisterRoutes(r)
		server.documentAPI.RegisterRoutes(r)
		server.variableAPI.RegisterRoutes(r)
		server.previewAPI.RegisterRoutes(r)
		server.statsAPI.RegisterRoutes(r)
		server.serverAPI.RegisterRoutes(r)
	})
	server.router = r

	return server, nil
}

// Start runs the background preview pruning until Close.
func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	interval := time.Duration(s.cm.Get().Preview.PruneIntervalSec) * time.Second
	if interval <= 0 {
		return
	}
	go s.pm.Run(ctx, interval)
}

// Close stops background work and releases the store. The database is owned
// by the caller.
func (s *Server) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.store.Close()
}

// ServeHTTP makes the Server usable as the API handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs one line per request through the structured logger.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("Served API request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
