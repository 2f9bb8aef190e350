// Package server exposes the market engines over JSON/HTTP and streams
// committed events over a websocket.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"floorvault/core/market"
	nativecommon "floorvault/native/common"
	"floorvault/native/custody"
	"floorvault/native/listings"
	"floorvault/native/protected"
	"floorvault/observability"
	marketdconfig "floorvault/services/marketd/config"
)

// Config wires the HTTP surface.
type Config struct {
	ServiceName    string
	Auth           marketdconfig.AuthConfig
	RateLimit      marketdconfig.RateLimitConfig
	OriginPatterns []string
}

// Server serves the market API.
type Server struct {
	market  *market.Market
	feed    *Broadcaster
	logger  *slog.Logger
	cfg     Config
	auth    *authenticator
	handler http.Handler
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
}

var okResponse = statusResponse{Status: "ok"}

// New builds the server. feed must be the sink installed on the market's
// state manager for /v1/events to carry anything.
func New(m *market.Market, feed *Broadcaster, cfg Config, logger *slog.Logger) (*Server, error) {
	if m == nil {
		return nil, fmt.Errorf("market required")
	}
	if feed == nil {
		feed = NewBroadcaster(1)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "marketd"
	}
	if strings.TrimSpace(cfg.Auth.AdminScope) == "" {
		cfg.Auth.AdminScope = "market:admin"
	}
	if !cfg.Auth.Disabled && len(cfg.Auth.HMACSecret) == 0 {
		return nil, fmt.Errorf("auth secret required")
	}
	s := &Server{
		market: m,
		feed:   feed,
		logger: logger.With(slog.String("component", "server")),
		cfg:    cfg,
		auth:   newAuthenticator(cfg.Auth),
	}
	s.handler = otelhttp.NewHandler(s.routes(), cfg.ServiceName)
	return s, nil
}

// Handler returns the instrumented HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(instrument(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, okResponse)
	})
	r.Handle("/metrics", promhttp.Handler())

	limiter := newRateLimiter(s.cfg.RateLimit)
	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(limiter.middleware)
		v1.Get("/events", s.handleEvents)

		v1.Route("/collections/{collection}", func(c chi.Router) {
			c.Get("/", s.handleCollection)
			c.Get("/listings", s.handleListings)
			c.Get("/listings/{tokenID}", s.handleListing)
			c.Get("/loans/{tokenID}", s.handleLoan)
			c.Get("/assets/{tokenID}", s.handleAsset)
			c.Get("/accounts/{account}", s.handleAccount)
		})

		v1.Group(func(auth chi.Router) {
			auth.Use(s.auth.require())
			auth.Post("/listings", s.handleCreateListings)
			auth.Post("/listings/modify", s.handleModifyListings)
			auth.Post("/listings/cancel", s.handleCancelListings)
			auth.Post("/listings/fill", s.handleFillListings)
			auth.Post("/listings/relist", s.handleRelist)
			auth.Post("/listings/reserve", s.handleReserve)
			auth.Post("/listings/transfer", s.handleTransferListing)
			auth.Post("/escrow/withdraw", s.handleWithdrawEscrow)

			auth.Post("/protected", s.handleCreateProtected)
			auth.Post("/protected/adjust", s.handleAdjustPosition)
			auth.Post("/protected/unlock", s.handleUnlock)
			auth.Post("/protected/withdraw", s.handleWithdrawProtected)
			auth.Post("/protected/liquidate", s.handleLiquidate)
			auth.Post("/protected/transfer", s.handleTransferLoan)
			auth.Post("/protected/checkpoint", s.handleCheckpoint)

			auth.Post("/custody/deposit", s.handleDeposit)
			auth.Post("/custody/redeem", s.handleRedeem)
			auth.Post("/custody/transfer", s.handleTokenTransfer)
		})

		v1.Group(func(admin chi.Router) {
			admin.Use(s.auth.require(s.cfg.Auth.AdminScope))
			admin.Post("/admin/collections", s.handleRegisterCollection)
			admin.Post("/admin/assets", s.handleIssueAssets)
		})
	})
	return r
}

// apply runs fn as one committed market transaction and records its outcome.
func (s *Server) apply(r *http.Request, module, operation string, collection common.Address, fn func() error) error {
	start := time.Now()
	_, span := otel.Tracer(s.cfg.ServiceName).Start(r.Context(), module+"."+operation,
		trace.WithAttributes(
			attribute.String("module", module),
			attribute.String("collection", collection.Hex()),
		))
	defer span.End()
	err := s.market.Apply(fn)
	observability.Engines().Observe(module, operation, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Debug("operation rejected",
			slog.String("request_id", requestIDFrom(r.Context())),
			slog.String("module", module),
			slog.String("operation", operation),
			slog.Any("error", err))
		return err
	}
	span.SetStatus(codes.Ok, operation)
	s.recordCollection(collection)
	return nil
}

func (s *Server) recordCollection(collection common.Address) {
	_ = s.market.View(func() error {
		vaulted, err := s.market.Custody.Vaulted(collection)
		if err != nil {
			return err
		}
		supply, err := s.market.Custody.TotalSupply(collection)
		if err != nil {
			return err
		}
		observability.Engines().RecordCollection(collection.Hex(), vaulted, supply)
		return nil
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("request failed", slog.String("request_id", requestIDFrom(r.Context())), slog.Any("error", err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: requestIDFrom(r.Context())})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, nativecommon.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, nativecommon.ErrReentrantCall):
		return http.StatusConflict
	case errors.Is(err, listings.ErrListingNotFound),
		errors.Is(err, protected.ErrListingNotFound),
		errors.Is(err, custody.ErrAssetNotFound),
		errors.Is(err, custody.ErrCollectionNotInitialized):
		return http.StatusNotFound
	default:
		return http.StatusUnprocessableEntity
	}
}
