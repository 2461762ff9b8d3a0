package server

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"LendLedger/internal/core"
	"LendLedger/internal/query"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "lendledger.v1.Ledger"

// Queries is the read side the server exposes. *query.QueryService
// implements it.
type Queries interface {
	GetProtocol(ctx context.Context) (*query.ProtocolResponse, error)
	GetBalances(ctx context.Context, owner uuid.UUID) (*query.BalanceResponse, error)
	GetPosition(ctx context.Context, owner uuid.UUID) (*query.PositionResponse, error)
	GetPools(ctx context.Context) ([]*query.PoolResponse, error)
	GetPool(ctx context.Context, asset string) (*query.PoolResponse, error)
	GetPrices(ctx context.Context) ([]query.PriceResponse, error)
	GetLeverage(ctx context.Context, id uuid.UUID) (*query.LeverageResponse, error)
	GetLeverageByOwner(ctx context.Context, owner uuid.UUID) ([]*query.LeverageResponse, error)
	GetGadHistory(ctx context.Context, owner uuid.UUID, limit int) ([]query.GadHistoryResponse, error)
	GetJournalHistory(ctx context.Context, owner uuid.UUID, limit int, afterSequence *int64) ([]query.JournalHistoryEntry, error)
	VerifyIntegrity(ctx context.Context) (*query.IntegrityReport, error)
}

// Commands accepts single commands. *ingestion.CommandIngestService
// implements it.
type Commands interface {
	Submit(ctx context.Context, eventType string, payload []byte) (*core.Result, error)
}

// --- wire types ---

type Empty struct{}

type OwnerRequest struct {
	Owner string `json:"owner"`
}

type AssetRequest struct {
	Asset string `json:"asset"`
}

type LeverageRequest struct {
	ID string `json:"id"`
}

type HistoryRequest struct {
	Owner         string `json:"owner"`
	Limit         int    `json:"limit"`
	AfterSequence *int64 `json:"after_sequence,omitempty"`
}

type CommandRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

type CommandResponse struct {
	Sequence  int64    `json:"sequence"`
	Duplicate bool     `json:"duplicate"`
	Stale     bool     `json:"stale"`
	StateHash string   `json:"state_hash"`
	Events    []string `json:"events"`
}

type PoolsResponse struct {
	Pools []*query.PoolResponse `json:"pools"`
}

type PricesResponse struct {
	Prices []query.PriceResponse `json:"prices"`
}

type LeverageListResponse struct {
	Positions []*query.LeverageResponse `json:"positions"`
}

type GadHistoryListResponse struct {
	Entries []query.GadHistoryResponse `json:"entries"`
}

type JournalListResponse struct {
	Journals []query.JournalHistoryEntry `json:"journals"`
}

// ledgerServer adapts Queries and Commands to request/response methods
// shared by the gRPC service and the HTTP gateway. Errors are gRPC statuses.
type ledgerServer struct {
	queries  Queries
	commands Commands
}

func (s *ledgerServer) GetProtocol(ctx context.Context, _ *Empty) (*query.ProtocolResponse, error) {
	resp, err := s.queries.GetProtocol(ctx)
	return resp, toStatus(err)
}

func (s *ledgerServer) GetBalances(ctx context.Context, req *OwnerRequest) (*query.BalanceResponse, error) {
	owner, err := parseID("owner", req.Owner)
	if err != nil {
		return nil, err
	}
	resp, err := s.queries.GetBalances(ctx, owner)
	return resp, toStatus(err)
}

func (s *ledgerServer) GetPosition(ctx context.Context, req *OwnerRequest) (*query.PositionResponse, error) {
	owner, err := parseID("owner", req.Owner)
	if err != nil {
		return nil, err
	}
	resp, err := s.queries.GetPosition(ctx, owner)
	return resp, toStatus(err)
}

func (s *ledgerServer) ListPools(ctx context.Context, _ *Empty) (*PoolsResponse, error) {
	pools, err := s.queries.GetPools(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &PoolsResponse{Pools: pools}, nil
}

func (s *ledgerServer) GetPool(ctx context.Context, req *AssetRequest) (*query.PoolResponse, error) {
	if req.Asset == "" {
		return nil, status.Error(codes.InvalidArgument, "asset is required")
	}
	resp, err := s.queries.GetPool(ctx, req.Asset)
	return resp, toStatus(err)
}

func (s *ledgerServer) ListPrices(ctx context.Context, _ *Empty) (*PricesResponse, error) {
	prices, err := s.queries.GetPrices(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &PricesResponse{Prices: prices}, nil
}

func (s *ledgerServer) GetLeverage(ctx context.Context, req *LeverageRequest) (*query.LeverageResponse, error) {
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	resp, err := s.queries.GetLeverage(ctx, id)
	return resp, toStatus(err)
}

func (s *ledgerServer) ListLeverage(ctx context.Context, req *OwnerRequest) (*LeverageListResponse, error) {
	owner, err := parseID("owner", req.Owner)
	if err != nil {
		return nil, err
	}
	list, err := s.queries.GetLeverageByOwner(ctx, owner)
	if err != nil {
		return nil, toStatus(err)
	}
	return &LeverageListResponse{Positions: list}, nil
}

func (s *ledgerServer) ListGadHistory(ctx context.Context, req *HistoryRequest) (*GadHistoryListResponse, error) {
	owner, err := parseID("owner", req.Owner)
	if err != nil {
		return nil, err
	}
	entries, err := s.queries.GetGadHistory(ctx, owner, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GadHistoryListResponse{Entries: entries}, nil
}

func (s *ledgerServer) ListJournals(ctx context.Context, req *HistoryRequest) (*JournalListResponse, error) {
	owner, err := parseID("owner", req.Owner)
	if err != nil {
		return nil, err
	}
	entries, err := s.queries.GetJournalHistory(ctx, owner, req.Limit, req.AfterSequence)
	if err != nil {
		return nil, toStatus(err)
	}
	return &JournalListResponse{Journals: entries}, nil
}

func (s *ledgerServer) VerifyIntegrity(ctx context.Context, _ *Empty) (*query.IntegrityReport, error) {
	resp, err := s.queries.VerifyIntegrity(ctx)
	return resp, toStatus(err)
}

func (s *ledgerServer) SubmitCommand(ctx context.Context, req *CommandRequest) (*CommandResponse, error) {
	if s.commands == nil {
		return nil, status.Error(codes.Unimplemented, "command ingestion disabled")
	}
	if req.EventType == "" {
		return nil, status.Error(codes.InvalidArgument, "event_type is required")
	}
	res, err := s.commands.Submit(ctx, req.EventType, req.Payload)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &CommandResponse{
		Sequence:  res.Sequence,
		Duplicate: res.Duplicate,
		Stale:     res.Stale,
		StateHash: hex.EncodeToString(res.StateHash[:]),
		Events:    make([]string, 0, len(res.Events)),
	}
	for _, e := range res.Events {
		resp.Events = append(resp.Events, e.Name())
	}
	return resp, nil
}

func parseID(field, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "%s is required", field)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid %s: %v", field, err)
	}
	return id, nil
}

// --- service descriptor ---

// unary builds a grpc.MethodDesc for a typed method of ledgerServer.
func unary[Req, Resp any](name string, call func(*ledgerServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
			}
			s := srv.(*ledgerServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

var ledgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetProtocol", (*ledgerServer).GetProtocol),
		unary("GetBalances", (*ledgerServer).GetBalances),
		unary("GetPosition", (*ledgerServer).GetPosition),
		unary("ListPools", (*ledgerServer).ListPools),
		unary("GetPool", (*ledgerServer).GetPool),
		unary("ListPrices", (*ledgerServer).ListPrices),
		unary("GetLeverage", (*ledgerServer).GetLeverage),
		unary("ListLeverage", (*ledgerServer).ListLeverage),
		unary("ListGadHistory", (*ledgerServer).ListGadHistory),
		unary("ListJournals", (*ledgerServer).ListJournals),
		unary("VerifyIntegrity", (*ledgerServer).VerifyIntegrity),
		unary("SubmitCommand", (*ledgerServer).SubmitCommand),
	},
}
