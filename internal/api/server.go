// Package api exposes the control plane over HTTP: an operator
// surface guarded by a shared admin token and a worker surface each
// bot reaches with its own registration token. Handlers translate
// service errors into the documented status codes and never reach
// past the service layer, except for accounts, which have no service
// of their own.
package api

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cedros/claw-spawn/internal/metrics"
	"github.com/cedros/claw-spawn/internal/model"
)

// ProvisioningService is the slice of the provisioning saga the
// operator surface drives.
type ProvisioningService interface {
	CreateBot(ctx context.Context, accountID uuid.UUID, name string, persona model.Persona, cfg model.BotConfig) (*model.Bot, error)
	DestroyBot(ctx context.Context, botID uuid.UUID) error
	PauseBot(ctx context.Context, botID uuid.UUID) error
	ResumeBot(ctx context.Context, botID uuid.UUID) error
	RedeployBot(ctx context.Context, botID uuid.UUID) error
	SyncDropletStatus(ctx context.Context, botID uuid.UUID) error
}

// LifecycleService covers bot reads and the config channel for both
// surfaces.
type LifecycleService interface {
	GetBot(ctx context.Context, botID uuid.UUID) (*model.Bot, error)
	GetBotWithToken(ctx context.Context, botID uuid.UUID, token string) (*model.Bot, error)
	ListAccountBots(ctx context.Context, accountID uuid.UUID, limit, offset int64) ([]*model.Bot, error)
	ListBotConfigs(ctx context.Context, botID uuid.UUID) ([]*model.StoredBotConfig, error)
	CreateBotConfig(ctx context.Context, botID uuid.UUID, cfg model.BotConfig) (*model.StoredBotConfig, error)
	AcknowledgeConfig(ctx context.Context, botID, configID uuid.UUID) error
	GetDesiredConfig(ctx context.Context, botID uuid.UUID) (*model.StoredBotConfig, error)
	RecordHeartbeat(ctx context.Context, botID uuid.UUID) error
}

// AccountStore is the slice of the store the account endpoints use.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccountByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
}

// Pinger reports database connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000

	// workerRequestsPerMinute caps each worker address. Workers poll
	// config and heartbeat on the order of once a minute, so only a
	// runaway trips this.
	workerRequestsPerMinute = 120
)

type Options struct {
	Host       string
	Port       int
	AdminToken string
}

type Server struct {
	provisioning ProvisioningService
	lifecycle    LifecycleService
	accounts     AccountStore
	db           Pinger
	validate     *validator.Validate
	adminToken   string
	metrics      *metrics.Metrics
	log          *zap.Logger
	httpServer   *http.Server
}

func New(provisioning ProvisioningService, lifecycle LifecycleService, accounts AccountStore, db Pinger, m *metrics.Metrics, log *zap.Logger, opts Options) *Server {
	s := &Server{
		provisioning: provisioning,
		lifecycle:    lifecycle,
		accounts:     accounts,
		db:           db,
		validate:     newValidator(),
		adminToken:   opts.AdminToken,
		metrics:      m,
		log:          log,
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler builds the full routing tree. Exposed so tests can drive
// the middleware stack through httptest.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	// Operator surface.
	r.Group(func(r chi.Router) {
		r.Use(s.adminAuth)
		r.Post("/accounts", s.handleCreateAccount)
		r.Get("/accounts/{id}", s.handleGetAccount)
		r.Get("/accounts/{id}/bots", s.handleListBots)
		r.Post("/bots", s.handleCreateBot)
		r.Get("/bots/{id}", s.handleGetBot)
		r.Get("/bots/{id}/config", s.handleGetBotConfig)
		r.Get("/bots/{id}/configs", s.handleListBotConfigs)
		r.Post("/bots/{id}/config", s.handlePushBotConfig)
		r.Post("/bots/{id}/actions", s.handleBotAction)
	})

	// Worker surface. The register route authenticates from the body,
	// everything else from the {id} path segment.
	r.Route("/bot", func(r chi.Router) {
		r.Use(httprate.LimitByIP(workerRequestsPerMinute, time.Minute))
		r.Post("/register", s.handleRegisterBot)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(s.workerAuth)
			r.Get("/config", s.handleDesiredConfig)
			r.Post("/config_ack", s.handleAcknowledgeConfig)
			r.Post("/heartbeat", s.handleHeartbeat)
		})
	})

	return r
}

// Start serves until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "failed to serve http")
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// newValidator reports field names from json tags so validation
// details use the names clients actually sent.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
