// Package http serves the fleet ledger JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"fleetbook/internal/cache"
	"fleetbook/internal/middleware/trace"
	"fleetbook/internal/services"
)

type Server struct {
	http.Server
	ledgers     *services.LedgerService
	rateLimiter *rateLimiter
	metrics     *securityMetrics

	// LRU cache for assembled ledger views
	viewCache *cache.Store[*services.LedgerView]

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, ledgers *services.LedgerService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		ledgers:     ledgers,
		rateLimiter: newRateLimiter(),
		metrics:     &securityMetrics{},
		viewCache:   cache.New[*services.LedgerView](100, 5*time.Minute), // Max 100 entries, 5min TTL
	}

	s.viewCache.StartSweeper(10 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /api/cars", s.withSecurity(s.handleListCars))
	mux.HandleFunc("GET /api/cars/{car}/ledgers/{year}", s.withSecurity(s.handleGetLedger))
	mux.HandleFunc("PUT /api/cars/{car}/ledgers/{year}/cells", s.withSecurity(s.handleUpdateCell))
	mux.HandleFunc("PUT /api/cars/{car}/ledgers/{year}/split-mode", s.withSecurity(s.handleSetSplitMode))
	mux.HandleFunc("PUT /api/cars/{car}/ledgers/{year}/ski-racks-owner", s.withSecurity(s.handleSetSkiRacksOwner))
	mux.HandleFunc("POST /api/cars/{car}/ledgers/{year}/subcategories", s.withSecurity(s.handleCreateSubcategory))
	mux.HandleFunc("PUT /api/cars/{car}/ledgers/{year}/subcategories/{id}", s.withSecurity(s.handleRenameSubcategory))
	mux.HandleFunc("DELETE /api/cars/{car}/ledgers/{year}/subcategories/{id}", s.withSecurity(s.handleDeleteSubcategory))
	mux.HandleFunc("PUT /api/cars/{car}/ledgers/{year}/subcategories/{id}/values", s.withSecurity(s.handleSetSubcategoryValue))
	mux.HandleFunc("GET /api/cars/{car}/ledgers/{year}/export", s.withSecurity(s.handleExport))
	mux.HandleFunc("POST /api/cars/{car}/ledgers/{year}/import", s.withSecurity(s.handleImport))

	// Request ID generation and start/completion logging wrap every route.
	s.Server = http.Server{
		Addr:    addr,
		Handler: trace.Requests(extractClientIP)(mux),
	}

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	// Ensure shutdown logic runs only once
	s.shutdownOnce.Do(func() {
		s.viewCache.StopSweeper()

		// Stop rate limiter cleanup goroutine
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}

		// Shutdown HTTP server
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withSecurity adds security headers and rate limiting to a handler.
func (s *Server) withSecurity(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := extractClientIP(r)

		if detectSuspiciousRequest(r, s.metrics) {
			slog.WarnContext(r.Context(), "Suspicious request detected",
				"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
		}

		// Rate limit mutations only; reads are cheap and cached.
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP, s.metrics) {
			slog.WarnContext(r.Context(), "Rate limit exceeded",
				"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next(w, r)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func viewCacheKey(carID string, year int) string {
	return carID + "/" + strconv.Itoa(year)
}

// invalidateView drops the cached view for a ledger and for the following
// year, whose January carry-over depends on it.
func (s *Server) invalidateView(carID string, year int) {
	s.viewCache.Drop(viewCacheKey(carID, year))
	s.viewCache.Drop(viewCacheKey(carID, year+1))
}

// invalidateAllViews flushes the whole view cache. Fleet-wide subcategory
// changes surface in every car's ledger, so no per-key drop can cover them.
func (s *Server) invalidateAllViews() {
	s.viewCache.Flush()
}

func (s *Server) getView(ctx context.Context, carID string, year int) (*services.LedgerView, error) {
	key := viewCacheKey(carID, year)

	if view, found := s.viewCache.Get(key); found {
		slog.DebugContext(ctx, "View cache hit", "car_id", carID, "year", year)
		return view, nil
	}

	view, err := s.ledgers.GetLedger(ctx, carID, year)
	if err != nil {
		return nil, err
	}

	s.viewCache.Put(key, view)
	slog.DebugContext(ctx, "View cached", "car_id", carID, "year", year, "version", view.Version)
	return view, nil
}
