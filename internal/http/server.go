// Package httpapi exposes the ride negotiation services over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-negotiation/internal/geo"
	"github.com/example/ride-negotiation/internal/lifecycle"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/notify"
	"github.com/example/ride-negotiation/internal/pricing"
	"github.com/example/ride-negotiation/internal/ratelimit"
	"github.com/example/ride-negotiation/internal/rating"
	"github.com/example/ride-negotiation/internal/referral"
	"github.com/example/ride-negotiation/internal/storage"
	"github.com/example/ride-negotiation/internal/wallet"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Identity, error)
}

type LocationPublisher interface {
	PublishLocation(ctx context.Context, d models.DriverLocation) error
}

// Limits are requests per Window for each endpoint class. TrustedProxies
// lists the networks whose X-Forwarded-For header is believed.
type Limits struct {
	Window time.Duration
	Write  int
	Read   int
	Search int

	TrustedProxies []netip.Prefix
}

var DefaultLimits = Limits{Window: time.Minute, Write: 15, Read: 30, Search: 20}

// Deps are the collaborators the server routes to. Charger, Locations, Users
// and Health are optional.
type Deps struct {
	Rides         *lifecycle.Manager
	Pricing       *pricing.Estimator
	Ledger        *wallet.Ledger
	Charger       wallet.Charger
	Ratings       *rating.Service
	Referrals     *referral.Service
	Notifications *notify.Dispatcher
	WS            *notify.WSRegistry
	Geo           geo.Index
	Locations     LocationPublisher
	Procedures    storage.ProcedureStore
	Users         storage.UserStore
	Auth          Authenticator
	Limiter       ratelimit.Limiter
	Limits        Limits
	Health        func(ctx context.Context) error
}

type Server struct {
	Deps
	mux    *mux.Router
	logger *slog.Logger
	now    func() time.Time
}

func NewServer(deps Deps, logger *slog.Logger) *Server {
	if deps.Limits.Window <= 0 {
		deps.Limits = DefaultLimits
	}
	s := &Server{Deps: deps, mux: mux.NewRouter(), logger: logger, now: time.Now}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.route(http.MethodPost, "/rides/estimate", classRead, s.handleEstimate)
	s.route(http.MethodPost, "/rides", classWrite, s.handleCreateRide)
	s.route(http.MethodGet, "/rides/{id}", classRead, s.handleGetRide)
	s.route(http.MethodPost, "/rides/{id}/offers", classWrite, s.handleSubmitOffer)
	s.route(http.MethodPost, "/offers/{id}/accept", classWrite, s.handleAcceptOffer)
	s.route(http.MethodPatch, "/rides/{id}/status", classWrite, s.handleUpdateStatus)
	s.route(http.MethodPost, "/rides/{id}/cancel", classWrite, s.handleCancel)
	s.route(http.MethodPost, "/rides/{id}/cancellation-fee", classWrite, s.handleSettleFee)

	s.route(http.MethodPost, "/ratings", classWrite, s.handleRate)
	s.route(http.MethodPost, "/referrals", classWrite, s.handleRedeemReferral)

	s.route(http.MethodGet, "/wallet", classRead, s.handleWalletHistory)
	s.route(http.MethodPost, "/wallet", classWrite, s.handleWalletAppend)
	s.route(http.MethodPost, "/wallet/deposits", classWrite, s.handleDeposit)

	s.route(http.MethodGet, "/drivers/nearby", classSearch, s.handleNearby)
	s.route(http.MethodPost, "/drivers/location", classWrite, s.handleDriverLocation)
	s.route(http.MethodGet, "/drivers/hot-zones", classSearch, s.handleHotZones)
	s.route(http.MethodGet, "/leaderboard", classSearch, s.handleLeaderboard)

	s.route(http.MethodGet, "/notifications", classRead, s.handleListNotifications)
	s.route(http.MethodPost, "/notifications/{id}/read", classWrite, s.handleMarkRead)

	s.mux.Handle("/ws", s.authenticate(http.HandlerFunc(s.handleWS))).Methods(http.MethodGet)
}

// route registers an authenticated, rate limited endpoint. Limiting runs
// first so unauthenticated floods are still counted.
func (s *Server) route(method, path string, class limitClass, h http.HandlerFunc) {
	s.mux.Handle(path, s.rateLimit(class, s.authenticate(h))).Methods(method)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.Health(ctx); err != nil {
			s.log(r).Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log(r).Warn("websocket upgrade failed", "user_id", id.UserID, "error", err)
		return
	}
	s.WS.Serve(id.UserID.String(), conn)
}

func pathID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	return id, err == nil
}
