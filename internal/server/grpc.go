package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"LendLedger/internal/observability"

	"github.com/go-chi/chi/v5"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Config holds listener addresses and per-client rate limits.
type Config struct {
	GRPCAddr string
	HTTPAddr string
	// RatePerSecond <= 0 disables rate limiting.
	RatePerSecond float64
	RateBurst     int
}

// Deps are the services the servers expose.
type Deps struct {
	Queries       Queries
	Commands      Commands // nil disables SubmitCommand
	Stream        *EventStream
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
	Gatherer      prometheus.Gatherer
}

// Server runs the gRPC service and the HTTP gateway side by side. Both
// share one ledgerServer, so HTTP calls do not go through a gRPC hop.
type Server struct {
	cfg        Config
	grpcServer *grpc.Server
	httpServer *http.Server
	health     *health.Server
	logger     zerolog.Logger
}

// New builds both servers. Nothing listens until StartGRPC and StartHTTP.
func New(cfg Config, deps Deps) (*Server, error) {
	logger := observability.NewLogger("server")
	limiter := newClientLimiter(cfg.RatePerSecond, cfg.RateBurst)
	ls := &ledgerServer{queries: deps.Queries, commands: deps.Commands}

	grpcServer := grpc.NewServer(unaryInterceptors(logger, limiter, deps.Metrics))
	grpcServer.RegisterService(&ledgerServiceDesc, ls)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	handler, err := newHTTPHandler(ls, deps, limiter, logger)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:        cfg,
		grpcServer: grpcServer,
		httpServer: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		health: healthServer,
		logger: logger,
	}, nil
}

// SetServing flips the gRPC health status of the ledger service.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, st)
}

// StartGRPC serves gRPC until ctx is cancelled.
func (s *Server) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.ServeGRPC(ctx, lis)
}

// ServeGRPC serves gRPC on lis until ctx is cancelled.
func (s *Server) ServeGRPC(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("gRPC server shutting down")
		s.grpcServer.GracefulStop()
	}()

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC server listening")
	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// StartHTTP serves the HTTP gateway until ctx is cancelled.
func (s *Server) StartHTTP(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("HTTP gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.cfg.HTTPAddr).Msg("HTTP gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// newHTTPHandler mounts ops endpoints on chi and the JSON API on a
// gateway mux under /v1.
func newHTTPHandler(ls *ledgerServer, deps Deps, limiter *clientLimiter, logger zerolog.Logger) (http.Handler, error) {
	gw := runtime.NewServeMux()
	routes := []struct {
		method, path string
		h            runtime.HandlerFunc
	}{
		{"GET", "/v1/protocol", handle(ls.GetProtocol, func(_ *http.Request, _ map[string]string) *Empty { return &Empty{} })},
		{"GET", "/v1/balances/{owner}", handle(ls.GetBalances, ownerFromPath)},
		{"GET", "/v1/positions/{owner}", handle(ls.GetPosition, ownerFromPath)},
		{"GET", "/v1/pools", handle(ls.ListPools, func(_ *http.Request, _ map[string]string) *Empty { return &Empty{} })},
		{"GET", "/v1/pools/{asset}", handle(ls.GetPool, func(_ *http.Request, p map[string]string) *AssetRequest {
			return &AssetRequest{Asset: p["asset"]}
		})},
		{"GET", "/v1/prices", handle(ls.ListPrices, func(_ *http.Request, _ map[string]string) *Empty { return &Empty{} })},
		{"GET", "/v1/leverage/{id}", handle(ls.GetLeverage, func(_ *http.Request, p map[string]string) *LeverageRequest {
			return &LeverageRequest{ID: p["id"]}
		})},
		{"GET", "/v1/owners/{owner}/leverage", handle(ls.ListLeverage, ownerFromPath)},
		{"GET", "/v1/owners/{owner}/gad", handle(ls.ListGadHistory, historyFromRequest)},
		{"GET", "/v1/owners/{owner}/journal", handle(ls.ListJournals, historyFromRequest)},
		{"GET", "/v1/admin/integrity", handle(ls.VerifyIntegrity, func(_ *http.Request, _ map[string]string) *Empty { return &Empty{} })},
		{"POST", "/v1/commands/{type}", submitHandler(ls)},
	}
	for _, rt := range routes {
		if err := gw.HandlePath(rt.method, rt.path, rt.h); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", rt.method, rt.path, err)
		}
	}

	r := chi.NewRouter()
	r.Use(recoveryMiddleware(logger))

	if deps.HealthChecker != nil {
		r.Get("/healthz", deps.HealthChecker.LivenessHandler)
		r.Get("/readyz", deps.HealthChecker.ReadinessHandler)
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(api chi.Router) {
		api.Use(rateLimitMiddleware(limiter))
		if deps.Stream != nil {
			api.Get("/v1/stream", deps.Stream.Handler())
		}
		api.Handle("/v1/*", gw)
	})
	return r, nil
}

// handle adapts a ledgerServer method to a gateway route.
func handle[Req, Resp any](
	call func(context.Context, *Req) (*Resp, error),
	build func(*http.Request, map[string]string) *Req,
) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		resp, err := call(r.Context(), build(r, params))
		writeJSON(w, resp, err)
	}
}

func submitHandler(ls *ledgerServer) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		resp, err := ls.SubmitCommand(r.Context(), &CommandRequest{EventType: params["type"], Payload: body})
		writeJSON(w, resp, err)
	}
}

func ownerFromPath(_ *http.Request, p map[string]string) *OwnerRequest {
	return &OwnerRequest{Owner: p["owner"]}
}

func historyFromRequest(r *http.Request, p map[string]string) *HistoryRequest {
	req := &HistoryRequest{Owner: p["owner"]}
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		req.Limit = v
	}
	if v, err := strconv.ParseInt(q.Get("after"), 10, 64); err == nil {
		req.AfterSequence = &v
	}
	return req
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, v any, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		st := status.Convert(toStatus(err))
		w.WriteHeader(runtime.HTTPStatusFromCode(st.Code()))
		_ = json.NewEncoder(w).Encode(errorBody{Code: st.Code().String(), Message: st.Message()})
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}
