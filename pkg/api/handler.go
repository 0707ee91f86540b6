package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/hazyhaar/trialmap/pkg/dict"
	"github.com/hazyhaar/trialmap/pkg/kit"
	"github.com/hazyhaar/trialmap/pkg/ledger"
	"github.com/hazyhaar/trialmap/pkg/match"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerName and ServerVersion identify the MCP server.
const (
	ServerName    = "trialmap"
	ServerVersion = "0.1.0"
)

// Config wires the router to its backing services.
type Config struct {
	Registry *dict.Registry
	// Ledger is optional; run routes answer 503 without it.
	Ledger *ledger.Ledger
	Match  match.Config
	// Gatherer is optional; /metrics is not mounted without it.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// endpoints are shared by the HTTP routes and the MCP tools.
type endpoints struct {
	resolve  kit.Endpoint
	lookup   kit.Endpoint
	listRuns kit.Endpoint
	getRun   kit.Endpoint
}

func newEndpoints(cfg Config) *endpoints {
	wrap := func(action string) kit.Middleware {
		return kit.Chain(kit.Logging(cfg.Logger, action), kit.Recover(cfg.Logger))
	}
	return &endpoints{
		resolve:  wrap("resolve")(resolveEndpoint(newResolver(cfg.Registry, cfg.Match))),
		lookup:   wrap("lookup")(lookupEndpoint(cfg.Registry)),
		listRuns: wrap("list_runs")(listRunsEndpoint(cfg.Ledger)),
		getRun:   wrap("get_run")(getRunEndpoint(cfg.Ledger)),
	}
}

// NewRouter returns an http.Handler with all trialmap API routes, the
// Prometheus scrape endpoint and the MCP streamable HTTP endpoint.
func NewRouter(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ep := newEndpoints(cfg)
	h := &handler{ep: ep, reg: cfg.Registry, hasLedger: cfg.Ledger != nil}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/resolve", methodNotAllowed) // resolve takes a body
	mux.HandleFunc("POST /v1/resolve", h.handleResolve)
	mux.HandleFunc("GET /v1/drugs/{name}", h.handleLookup)
	mux.HandleFunc("GET /v1/runs", h.handleListRuns)
	mux.HandleFunc("GET /v1/runs/{id}", h.handleGetRun)
	mux.HandleFunc("GET /v1/health", h.handleHealth)

	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	mcpSrv := server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(true))
	registerMCPTools(mcpSrv, ep)
	mux.Handle("/mcp", server.NewStreamableHTTPServer(mcpSrv))

	return cors(requestID(mux))
}

type handler struct {
	ep        *endpoints
	reg       *dict.Registry
	hasLedger bool
}

// --- resolve ---

func (h *handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 256*1024) // 256 KiB max
	var req resolveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	resp, err := h.ep.resolve(r.Context(), &req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- drug lookup ---

func (h *handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing name")
		return
	}
	resp, err := h.ep.lookup(r.Context(), &lookupReq{Name: name})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- runs ---

func (h *handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	resp, err := h.ep.listRuns(r.Context(), &listRunsReq{Limit: limit})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	resp, err := h.ep.getRun(r.Context(), &getRunReq{ID: r.PathValue("id")})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- health ---

type healthResponse struct {
	Status string           `json:"status"`
	Bundle *dict.BundleInfo `json:"bundle,omitempty"`
	Ledger bool             `json:"ledger"`
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	info, ok := h.reg.Info()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "no_bundle", Ledger: h.hasLedger})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Bundle: &info, Ledger: h.hasLedger})
}

// --- helpers ---

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, errDrugNotFound), errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errNoBundle), errors.Is(err, errNoLedger):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// requestID tags each request with an id, reusing the caller's X-Request-ID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := kit.WithTransport(kit.WithRequestID(r.Context(), id), "http")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// cors is a simple CORS middleware for browser-based clients.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, Mcp-Session-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
