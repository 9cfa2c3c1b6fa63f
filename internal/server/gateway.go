package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// HTTP headers forwarded to gRPC metadata by the gateway.
const (
	CallerHeader      = "X-Vault-Caller"
	IdempotencyHeader = "Idempotency-Key"
)

type route struct {
	method  string
	pattern string
	handler runtime.HandlerFunc
}

// NewGatewayMux maps the HTTP/JSON routes onto a VaultServer, normally a
// Client connected to the local gRPC listener.
func NewGatewayMux(backend VaultServer) (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux()
	g := &gateway{backend: backend}

	routes := []route{
		{http.MethodPost, "/v1/oracle", g.initializeOracle},
		{http.MethodPost, "/v1/oracle:update", g.updatePrice},
		{http.MethodPost, "/v1/oracle:set-last-update", g.setLastUpdateTime},
		{http.MethodGet, "/v1/oracle", g.getOracle},
		{http.MethodPost, "/v1/ledgers", g.initializeLedger},
		{http.MethodGet, "/v1/ledgers/{owner}", g.getLedger},
		{http.MethodPost, "/v1/deposits", g.deposit},
		{http.MethodPost, "/v1/withdrawals", g.withdraw},
		{http.MethodGet, "/v1/preview/deposit/{amount}", g.previewDeposit},
		{http.MethodGet, "/v1/preview/withdraw/{shares}", g.previewWithdraw},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

type gateway struct {
	backend VaultServer
}

func (g *gateway) initializeOracle(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	respond(w, r, func(ctx context.Context) (any, error) {
		return g.backend.InitializeOracle(ctx, &InitializeOracleRequest{})
	})
}

func (g *gateway) updatePrice(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	respond(w, r, func(ctx context.Context) (any, error) {
		return g.backend.UpdatePrice(ctx, &UpdatePriceRequest{})
	})
}

func (g *gateway) setLastUpdateTime(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var in SetLastUpdateTimeRequest
	respond(w, r, func(ctx context.Context) (any, error) {
		if err := decodeBody(r, &in); err != nil {
			return nil, err
		}
		return g.backend.SetLastUpdateTime(ctx, &in)
	})
}

func (g *gateway) getOracle(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	respond(w, r, func(ctx context.Context) (any, error) {
		return g.backend.GetOracle(ctx, &GetOracleRequest{})
	})
}

func (g *gateway) initializeLedger(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	respond(w, r, func(ctx context.Context) (any, error) {
		return g.backend.InitializeLedger(ctx, &InitializeLedgerRequest{})
	})
}

func (g *gateway) getLedger(w http.ResponseWriter, r *http.Request, params map[string]string) {
	respond(w, r, func(ctx context.Context) (any, error) {
		return g.backend.GetLedger(ctx, &GetLedgerRequest{Owner: params["owner"]})
	})
}

func (g *gateway) deposit(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var in DepositRequest
	respond(w, r, func(ctx context.Context) (any, error) {
		if err := decodeBody(r, &in); err != nil {
			return nil, err
		}
		return g.backend.Deposit(ctx, &in)
	})
}

func (g *gateway) withdraw(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var in WithdrawRequest
	respond(w, r, func(ctx context.Context) (any, error) {
		if err := decodeBody(r, &in); err != nil {
			return nil, err
		}
		return g.backend.Withdraw(ctx, &in)
	})
}

func (g *gateway) previewDeposit(w http.ResponseWriter, r *http.Request, params map[string]string) {
	respond(w, r, func(ctx context.Context) (any, error) {
		amount, err := parseUint(params["amount"], "amount")
		if err != nil {
			return nil, err
		}
		return g.backend.PreviewDeposit(ctx, &PreviewDepositRequest{Amount: amount})
	})
}

func (g *gateway) previewWithdraw(w http.ResponseWriter, r *http.Request, params map[string]string) {
	respond(w, r, func(ctx context.Context) (any, error) {
		shares, err := parseUint(params["shares"], "shares")
		if err != nil {
			return nil, err
		}
		return g.backend.PreviewWithdraw(ctx, &PreviewWithdrawRequest{Shares: shares})
	})
}

// respond forwards identity headers into outgoing metadata, runs call and
// writes either the JSON result or a status error body.
func respond(w http.ResponseWriter, r *http.Request, call func(ctx context.Context) (any, error)) {
	ctx := r.Context()
	if caller := r.Header.Get(CallerHeader); caller != "" {
		id, err := uuid.Parse(caller)
		if err != nil {
			writeError(w, status.Errorf(codes.Unauthenticated, "invalid %s header: %v", CallerHeader, err))
			return
		}
		ctx = WithCaller(ctx, id)
	}
	ctx = WithIdempotencyKey(ctx, r.Header.Get(IdempotencyHeader))

	resp, err := call(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

type errorBody struct {
	Code    int32  `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	st, ok := status.FromError(err)
	if !ok {
		st = status.New(codes.Internal, err.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(runtime.HTTPStatusFromCode(st.Code()))
	_ = json.NewEncoder(w).Encode(errorBody{
		Code:    int32(st.Code()),
		Status:  st.Code().String(),
		Message: st.Message(),
	})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return status.Errorf(codes.InvalidArgument, "invalid request body: %v", err)
	}
	return nil
}

func parseUint(s, field string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, status.Errorf(codes.InvalidArgument, "invalid %s: %v", field, err)
	}
	return v, nil
}
