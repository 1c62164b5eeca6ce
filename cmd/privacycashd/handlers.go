// handlers.go - JSON HTTP surface over the orchestrator
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"privacycash/internal/chain"
	"privacycash/internal/log"
	"privacycash/internal/privacycash"
	"privacycash/internal/relay"
	"privacycash/internal/shielded"
	"privacycash/internal/transactions/deposit"
	"privacycash/internal/transactions/withdraw"
)

const maxBodyBytes = 1 << 20

// API serves the six orchestrator operations.
type API struct {
	svc     *privacycash.Service
	limiter *KeyRateLimiter
	metrics *Metrics
	audit   *AuditLogger
	health  *HealthChecker
	timeout time.Duration
}

type errorResponse struct {
	Error string `json:"error"`
}

// Router mounts the API on a chi mux.
func (a *API) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.New(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool { return true },
		AllowedMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:  []string{"*"},
		MaxAge:          300,
	}).Handler)

	r.Post("/deposit/prepare", handle(a, "prepare_deposit",
		func(req *privacycash.DepositRequest) string { return req.PublicKey },
		a.svc.PrepareDeposit))
	r.Post("/deposit/spl/prepare", handle(a, "prepare_spl_deposit",
		func(req *privacycash.DepositRequest) string { return req.PublicKey },
		a.svc.PrepareSplDeposit))
	r.Post("/deposit/submit", handle(a, "submit_deposit",
		func(req *privacycash.SubmitDepositRequest) string { return req.PublicKey },
		a.submitDeposit))
	r.Post("/balance", handle(a, "get_balance",
		func(req *privacycash.BalanceRequest) string { return req.PublicKey },
		a.svc.GetBalance))
	r.Post("/withdraw/prepare", handle(a, "prepare_withdraw",
		func(req *privacycash.WithdrawRequest) string { return req.PublicKey },
		a.svc.PrepareWithdraw))
	r.Post("/withdraw/submit", handle(a, "submit_withdraw",
		func(req *privacycash.SubmitWithdrawRequest) string {
			if req.Params == nil {
				return ""
			}
			return req.Params.SenderAddress
		},
		a.submitWithdraw))

	r.Get("/health", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.metrics.Registry, promhttp.HandlerOpts{}))
	return r
}

// handle decodes a JSON body, applies the caller's rate limit and runs one
// operation under the request deadline.
func handle[Req, Resp any](a *API, op string, key func(*Req) string, fn func(context.Context, *Req) (*Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := new(Req)
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body: " + err.Error()})
			return
		}
		k := key(req)
		if k == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "public key is required"})
			return
		}
		if !a.limiter.Allow(k) {
			a.metrics.RateLimited.Inc()
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
		defer cancel()
		start := time.Now()
		resp, err := fn(ctx, req)
		a.metrics.Observe(op, start, err)
		if err != nil {
			status := statusFor(err)
			switch {
			case status == http.StatusInternalServerError:
				log.Errorw("operation failed", "operation", op, "key", k, "err", err)
			case status > http.StatusInternalServerError:
				log.Warnw("remote dependency failed", "operation", op, "key", k, "err", err)
			default:
				log.Debugw("operation rejected", "operation", op, "key", k, "err", err)
			}
			writeJSON(w, status, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (a *API) submitDeposit(ctx context.Context, req *privacycash.SubmitDepositRequest) (*privacycash.Submission, error) {
	res, err := a.svc.SubmitDeposit(ctx, req)
	a.recordSubmission("deposit", req.PublicKey, req.Token, res, err)
	return res, err
}

func (a *API) submitWithdraw(ctx context.Context, req *privacycash.SubmitWithdrawRequest) (*privacycash.Submission, error) {
	res, err := a.svc.SubmitWithdraw(ctx, req)
	token := req.Token
	if asset, aerr := privacycash.WithdrawAsset(req.Params, req.Token); aerr == nil {
		token = asset.Name
	}
	a.recordSubmission("withdraw", req.Params.SenderAddress, token, res, err)
	return res, err
}

func (a *API) recordSubmission(kind, owner, token string, res *privacycash.Submission, err error) {
	if token == "" {
		token = shielded.SOL.Name
	}
	if err != nil {
		a.metrics.Submissions.WithLabelValues(kind, "rejected").Inc()
		a.audit.Audit(kind+"_rejected", zap.String("owner", owner), zap.String("token", token), zap.Error(err))
		return
	}
	outcome := "unconfirmed"
	if res.Confirmed {
		outcome = "confirmed"
	}
	a.metrics.Submissions.WithLabelValues(kind, outcome).Inc()
	a.audit.Audit(kind+"_submitted",
		zap.String("owner", owner),
		zap.String("token", token),
		zap.String("signature", res.Signature),
		zap.Bool("confirmed", res.Confirmed),
	)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	h := a.health.CheckHealth(ctx)
	status := http.StatusOK
	if h.OverallStatus == Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shielded.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, privacycash.ErrInvalidRequest),
		errors.Is(err, shielded.ErrUnsupportedAsset),
		errors.Is(err, deposit.ErrInvalidAmount),
		errors.Is(err, withdraw.ErrAmountTooLowAfterFees),
		errors.Is(err, withdraw.ErrBelowMinimum):
		return http.StatusBadRequest
	case errors.Is(err, withdraw.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, relay.ErrRemoteProtocol), errors.Is(err, chain.ErrAltNotFound):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugw("write response", "err", err)
	}
}
