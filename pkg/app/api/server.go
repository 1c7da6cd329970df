// Package api implements app.Runner for the settlement API server process.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apphttp "github.com/creatorpay/escrowd/pkg/app/http"
	"github.com/creatorpay/escrowd/pkg/auth"
	"github.com/creatorpay/escrowd/pkg/config"
	"github.com/creatorpay/escrowd/pkg/escrow"
	"github.com/creatorpay/escrowd/pkg/escrow/service"
	"github.com/creatorpay/escrowd/pkg/escrow/sign"
	"github.com/creatorpay/escrowd/pkg/escrowstore"
	"github.com/creatorpay/escrowd/pkg/pgutil"
)

const defaultRequestTimeout = 60 * time.Second

// Server holds cfg to init the api server.
type Server struct {
	cfg *config.Config
}

// NewServer initializes new api server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("api server config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting settlement API server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)

	store := escrowstore.NewStore(db)

	if err := s.initGenesis(ctx, store); err != nil {
		return fmt.Errorf("init genesis config: %w", err)
	}

	domain, err := s.signingDomain()
	if err != nil {
		return err
	}
	logger.Info("Attestation domain bound",
		zap.String("name", domain.Name),
		zap.String("version", domain.Version),
		zap.Uint64("chain_id", domain.ChainID),
		zap.String("verifying_contract", domain.VerifyingContract.Hex()),
	)

	svc := service.NewLog(service.NewService(store, domain, logger), logger)
	handler := service.NewHandler(svc, logger)

	router := s.setupRouter(handler, logger)

	return apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)
}

func (s *Server) initGenesis(ctx context.Context, store escrowstore.Store) error {
	g := s.cfg.Genesis
	for name, addr := range map[string]string{
		"owner":  g.Owner,
		"signer": g.Signer,
	} {
		if !auth.ValidateAddress(addr) {
			return fmt.Errorf("genesis %s is not a valid address: %q", name, addr)
		}
	}
	collector := common.Address{}
	if g.FeeCollector != "" {
		if !auth.ValidateAddress(g.FeeCollector) {
			return fmt.Errorf("genesis fee collector is not a valid address: %q", g.FeeCollector)
		}
		collector = common.HexToAddress(g.FeeCollector)
	}

	return service.InitGenesis(ctx, store, &escrow.Config{
		Owner:        common.HexToAddress(g.Owner),
		Signer:       common.HexToAddress(g.Signer),
		FeeCollector: collector,
		FeeRateBps:   g.FeeRateBps,
		UpdatedAt:    time.Now(),
	})
}

func (s *Server) signingDomain() (sign.Domain, error) {
	d := s.cfg.Domain
	if !auth.ValidateAddress(d.VerifyingContract) {
		return sign.Domain{}, fmt.Errorf("domain verifying contract is not a valid address: %q", d.VerifyingContract)
	}
	return sign.Domain{
		Name:              d.Name,
		Version:           d.Version,
		ChainID:           d.ChainID,
		VerifyingContract: common.HexToAddress(d.VerifyingContract),
	}, nil
}

func (s *Server) setupRouter(handler *service.Handler, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultRequestTimeout))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Settlement endpoints, behind the optional JWKS gate. Caller identity
	// for authorization still comes from the per-request body signature.
	r.Group(func(r chi.Router) {
		if s.cfg.JWKS.URL != "" {
			validator := auth.NewJWTValidator(s.cfg.JWKS.URL, s.cfg.JWKS.Issuer)
			r.Use(validator.Middleware)
			logger.Info("JWKS bearer token gate enabled", zap.String("jwks_url", s.cfg.JWKS.URL))
		}
		handler.RegisterRoutes(r)
	})

	return r
}
