package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"LendLedger/internal/core"
	"LendLedger/internal/event"
	"LendLedger/internal/ingestion"
	"LendLedger/internal/query"
	"LendLedger/internal/state"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeQueries struct {
	positions map[uuid.UUID]*query.PositionResponse
}

func (f *fakeQueries) GetProtocol(context.Context) (*query.ProtocolResponse, error) {
	return &query.ProtocolResponse{Paused: true}, nil
}

func (f *fakeQueries) GetBalances(_ context.Context, owner uuid.UUID) (*query.BalanceResponse, error) {
	return &query.BalanceResponse{Owner: owner.String()}, nil
}

func (f *fakeQueries) GetPosition(_ context.Context, owner uuid.UUID) (*query.PositionResponse, error) {
	if p, ok := f.positions[owner]; ok {
		return p, nil
	}
	return nil, state.ErrPositionNotFound
}

func (f *fakeQueries) GetPools(context.Context) ([]*query.PoolResponse, error) {
	return []*query.PoolResponse{{Asset: "USDC"}}, nil
}

func (f *fakeQueries) GetPool(_ context.Context, asset string) (*query.PoolResponse, error) {
	if asset != "USDC" {
		return nil, fmt.Errorf("%w: %s", state.ErrAssetNotSupported, asset)
	}
	return &query.PoolResponse{Asset: asset, UtilizationBps: 4_200}, nil
}

func (f *fakeQueries) GetPrices(context.Context) ([]query.PriceResponse, error) {
	return nil, nil
}

func (f *fakeQueries) GetLeverage(context.Context, uuid.UUID) (*query.LeverageResponse, error) {
	return nil, state.ErrLeverageNotFound
}

func (f *fakeQueries) GetLeverageByOwner(context.Context, uuid.UUID) ([]*query.LeverageResponse, error) {
	return nil, nil
}

func (f *fakeQueries) GetGadHistory(_ context.Context, _ uuid.UUID, limit int) ([]query.GadHistoryResponse, error) {
	return []query.GadHistoryResponse{{Sequence: int64(limit)}}, nil
}

func (f *fakeQueries) GetJournalHistory(context.Context, uuid.UUID, int, *int64) ([]query.JournalHistoryEntry, error) {
	return nil, query.ErrUnavailable
}

func (f *fakeQueries) VerifyIntegrity(context.Context) (*query.IntegrityReport, error) {
	return &query.IntegrityReport{IsHealthy: true}, nil
}

type fakeCommands struct {
	gotType    string
	gotPayload string
	err        error
}

func (f *fakeCommands) Submit(_ context.Context, eventType string, payload []byte) (*core.Result, error) {
	f.gotType, f.gotPayload = eventType, string(payload)
	if f.err != nil {
		return nil, f.err
	}
	return &core.Result{Sequence: 7, Events: []event.DomainEvent{event.Borrowed{}}}, nil
}

func newTestServer(t *testing.T, cfg Config) (*Server, *fakeQueries, *fakeCommands) {
	t.Helper()
	q := &fakeQueries{positions: map[uuid.UUID]*query.PositionResponse{}}
	c := &fakeCommands{}
	srv, err := New(cfg, Deps{
		Queries:  q,
		Commands: c,
		Stream:   NewEventStream(),
		Gatherer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	return srv, q, c
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHTTPPositionRoutes(t *testing.T) {
	srv, q, _ := newTestServer(t, Config{})
	owner := uuid.New()
	q.positions[owner] = &query.PositionResponse{Owner: owner.String(), LTVBps: 5_000}

	rec := get(t, srv.Handler(), "/v1/positions/"+owner.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var pos query.PositionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	require.Equal(t, int64(5_000), pos.LTVBps)

	rec = get(t, srv.Handler(), "/v1/positions/"+uuid.New().String())
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, srv.Handler(), "/v1/positions/not-a-uuid")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "InvalidArgument")
}

func TestHTTPPoolAndHistoryRoutes(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{})

	rec := get(t, srv.Handler(), "/v1/pools/USDC")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"utilization_bps":4200`)

	rec = get(t, srv.Handler(), "/v1/pools/DOGE")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, srv.Handler(), "/v1/owners/"+uuid.New().String()+"/gad?limit=3")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"sequence":3`)

	rec = get(t, srv.Handler(), "/v1/owners/"+uuid.New().String()+"/journal")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHTTPSubmitCommand(t *testing.T) {
	srv, _, cmds := newTestServer(t, Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/commands/Borrow", strings.NewReader(`{"asset":"USDC"}`))
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Borrow", cmds.gotType)
	require.Equal(t, `{"asset":"USDC"}`, cmds.gotPayload)

	var resp CommandResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(7), resp.Sequence)
	require.Equal(t, []string{"Borrowed"}, resp.Events)

	cmds.err = fmt.Errorf("borrow: %w", state.ErrExceedsLTV)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/commands/Borrow", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "FailedPrecondition")
}

func TestHTTPOpsEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{})

	rec := get(t, srv.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPRateLimit(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{RatePerSecond: 0.001, RateBurst: 2})

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, get(t, srv.Handler(), "/v1/pools").Code)
	}
	require.Equal(t, http.StatusTooManyRequests, get(t, srv.Handler(), "/v1/pools").Code)
}

func TestClientLimiterIsPerClient(t *testing.T) {
	l := newClientLimiter(0.001, 1)
	require.True(t, l.allow("a"))
	require.False(t, l.allow("a"))
	require.True(t, l.allow("b"))

	var disabled *clientLimiter
	require.True(t, disabled.allow("a"))
}

func TestGRPCWithJSONCodec(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{})
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeGRPC(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	require.NoError(t, err)
	defer conn.Close()

	var pool query.PoolResponse
	err = conn.Invoke(ctx, "/"+ServiceName+"/GetPool", &AssetRequest{Asset: "USDC"}, &pool)
	require.NoError(t, err)
	require.Equal(t, int64(4_200), pool.UtilizationBps)

	var lev query.LeverageResponse
	err = conn.Invoke(ctx, "/"+ServiceName+"/GetLeverage", &LeverageRequest{ID: uuid.New().String()}, &lev)
	require.Equal(t, codes.NotFound, status.Code(err))

	var proto query.ProtocolResponse
	require.NoError(t, conn.Invoke(ctx, "/"+ServiceName+"/GetProtocol", &Empty{}, &proto))
	require.True(t, proto.Paused)
}

func TestEventStreamBroadcasts(t *testing.T) {
	stream := NewEventStream()
	ts := httptest.NewServer(stream.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return stream.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	owner := uuid.New()
	stream.Broadcast(event.Emitted{Sequence: 12, Name: "Borrowed", Event: event.Borrowed{Owner: owner, Asset: "USDC"}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(msg), `"sequence":12`)
	require.Contains(t, string(msg), owner.String())
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("x: %w", state.ErrExceedsLTV), codes.FailedPrecondition},
		{state.ErrUnauthorized, codes.PermissionDenied},
		{state.ErrProtocolPaused, codes.Unavailable},
		{state.ErrPositionNotFound, codes.NotFound},
		{ingestion.ErrInvalidPayload, codes.InvalidArgument},
		{core.ErrRunnerStopped, codes.Unavailable},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
		{status.Error(codes.Aborted, "kept"), codes.Aborted},
	}
	for _, tc := range cases {
		if got := status.Code(toStatus(tc.err)); got != tc.want {
			t.Errorf("%v: got %s, want %s", tc.err, got, tc.want)
		}
	}
	if toStatus(nil) != nil {
		t.Error("nil error should stay nil")
	}
}
