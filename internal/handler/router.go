package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quantlab/papersim/internal/bus"
	"github.com/quantlab/papersim/internal/service"
)

// NewRouter creates a chi router with all routes registered, request logging,
// and Content-Type validation middleware.
func NewRouter(
	accountSvc *service.AccountService,
	orderSvc *service.OrderService,
	algoSvc *service.AlgoService,
	marketSvc *service.MarketService,
	eventBus *bus.Bus,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	// Create handlers.
	accountH := NewAccountHandler(accountSvc, orderSvc)
	orderH := NewOrderHandler(orderSvc)
	algoH := NewAlgoHandler(algoSvc)
	marketH := NewMarketHandler(marketSvc)
	eventH := NewEventHandler(eventBus)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Account routes.
	r.Post("/accounts", accountH.Create)
	r.Get("/accounts/{account_id}", accountH.Get)
	r.Get("/accounts/{account_id}/portfolio", accountH.GetPortfolio)
	r.Get("/accounts/{account_id}/orders", accountH.ListOrders)
	r.Get("/accounts/{account_id}/algos", algoH.List)

	// Order routes.
	r.Post("/orders", orderH.Submit)
	r.Get("/orders/{order_id}", orderH.Get)
	r.Get("/orders/{order_id}/fills", orderH.Fills)
	r.Delete("/orders/{order_id}", orderH.Cancel)

	// Algorithmic order routes.
	r.Post("/algos", algoH.Start)
	r.Get("/algos/{algo_order_id}", algoH.Get)
	r.Get("/algos/{algo_order_id}/orders", algoH.ChildOrders)
	r.Post("/algos/{algo_order_id}/pause", algoH.Pause)
	r.Post("/algos/{algo_order_id}/resume", algoH.Resume)
	r.Delete("/algos/{algo_order_id}", algoH.Cancel)

	// Instrument and market data routes.
	r.Post("/instruments", marketH.RegisterInstrument)
	r.Get("/instruments", marketH.ListInstruments)
	r.Get("/instruments/{symbol}/quote", marketH.GetQuote)
	r.Get("/instruments/{symbol}/depth", marketH.GetDepth)
	r.Get("/instruments/{symbol}/trades", marketH.GetTrades)
	r.Get("/instruments/{symbol}/stats", marketH.GetStats)

	// Event store routes.
	r.Get("/events", eventH.Replay)
	r.Get("/events/deadletters", eventH.DeadLetters)

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests. If the Content-Type header doesn't start with
// "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
