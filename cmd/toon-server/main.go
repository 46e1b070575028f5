package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/babur-hussain/toon-fleet-server/internal/api"
	apiauth "github.com/babur-hussain/toon-fleet-server/internal/api/auth"
	"github.com/babur-hussain/toon-fleet-server/internal/attestation"
	"github.com/babur-hussain/toon-fleet-server/internal/audit"
	"github.com/babur-hussain/toon-fleet-server/internal/commandqueue"
	"github.com/babur-hussain/toon-fleet-server/internal/config"
	"github.com/babur-hussain/toon-fleet-server/internal/db"
	"github.com/babur-hussain/toon-fleet-server/internal/devicemanagement"
	"github.com/babur-hussain/toon-fleet-server/internal/employees"
	"github.com/babur-hussain/toon-fleet-server/internal/hooks"
	"github.com/babur-hussain/toon-fleet-server/internal/ingestion"
	"github.com/babur-hussain/toon-fleet-server/internal/logging"
	"github.com/babur-hussain/toon-fleet-server/internal/nonce"
	"github.com/babur-hussain/toon-fleet-server/internal/ratelimit"
	"github.com/babur-hussain/toon-fleet-server/internal/reports"
	"github.com/babur-hussain/toon-fleet-server/internal/router"
	"github.com/babur-hussain/toon-fleet-server/internal/signing"
	"github.com/babur-hussain/toon-fleet-server/internal/scheduler"
	"github.com/babur-hussain/toon-fleet-server/internal/tracing"
)

const serviceName = "toon-fleet-server"
const serviceVersion = "0.1.0"

// hookTopics is every topic name a connected AMQPMirror must subscribe to
// in order to mirror "every" hook event, since Bus has no wildcard
// subscription of its own.
var hookTopics = []string{
	"onEventIngested", "onDuplicateEvent", "onInvalidEvent",
	"onDeviceRegistered", "onDeviceHeartbeat", "onDeviceRevoked",
	"onDeviceCommand", "onCommandAcknowledged", "onFirmwareFailure",
	"onReportGenerated",
}

func main() {
	ctx, logger := logging.NewLogger(context.Background(), serviceName, serviceVersion)

	cleanup, err := tracing.Init(ctx, logger, serviceName, serviceVersion)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracing")
	}
	defer cleanup()

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	handle := setupDatabaseOrDie(cfg, logger)

	serverKey, err := signing.LoadPrivateKey(cfg.SigningKeyPEM)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load server signing key")
	}

	bus := hooks.New(logger)
	if cfg.AMQPConnectionString != "" {
		setupAMQPMirrorOrDie(cfg, logger, bus)
	}

	nonces, err := nonce.New(handle)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init nonce store")
	}

	auditRec := audit.New(handle)
	commands := commandqueue.New(handle, bus, serverKey)
	devices := devicemanagement.New(handle, bus, commands)
	ingest := ingestion.New(handle, bus, auditRec)
	gate := attestation.New(devices, nonces, auditRec)

	limiter := ratelimit.New(handle, map[string]ratelimit.Policy{
		"/devices/heartbeat": {Window: time.Hour, Cap: 100},
	})

	emp := employees.New(handle)
	rep := reports.New(handle, bus)

	sched, err := scheduler.New(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init scheduler")
	}
	mustRegisterSweep(logger, sched.RegisterNonceSweep(nonces, time.Hour))
	mustRegisterSweep(logger, sched.RegisterCommandExpirySweep(commands, 15*time.Minute))
	mustRegisterSweep(logger, sched.RegisterRateLimitEviction(limiter, 7*24*time.Hour, 24*time.Hour))
	mustRegisterSweep(logger, sched.RegisterFirmwareDeprecationSweep(commands, time.Hour))
	sched.Start()
	defer sched.Shutdown()

	r := router.New(serviceName)
	r.Handle("/metrics", promhttp.Handler())
	api.RegisterDeviceRoutes(r, logger, gate, devices, ingest, commands, nonces, limiter, auditRec, handle)

	bearer, tenantAuthz := setupOperatorAuthOrDie(ctx, cfg, logger)
	api.RegisterOperatorRoutes(r, logger, bearer, tenantAuthz, emp, rep, devices, commands)

	srv := &http.Server{
		Addr:    ":" + cfg.ServicePort,
		Handler: r,
	}

	go func() {
		logger.Info().Str("port", cfg.ServicePort).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func setupDatabaseOrDie(cfg config.Config, logger zerolog.Logger) *db.DB {
	var connector db.ConnectorFunc
	if cfg.UsesPostgres() {
		connector = db.NewPostgreSQLConnector(logger)
	} else {
		logger.Info().Msg("no sql database configured, using builtin sqlite instead")
		connector = db.NewSQLiteConnector(logger, cfg.SQLitePath)
	}

	handle, err := db.Open(connector)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if cfg.UsesPostgres() {
		dbURL := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s", cfg.SQLDBUser, cfg.SQLDBPassword, cfg.SQLDBHost, cfg.SQLDBName, cfg.SQLDBSSLMode)
		if err := db.MigratePostgres(dbURL); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply postgres migrations")
		}
	}

	return handle
}

func setupAMQPMirrorOrDie(cfg config.Config, logger zerolog.Logger, bus *hooks.Bus) {
	conn, err := amqp.Dial(cfg.AMQPConnectionString)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to amqp broker")
	}

	mirror, err := hooks.NewAMQPMirror(conn, cfg.AMQPExchange, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init amqp hook mirror")
	}

	for _, topic := range hookTopics {
		bus.Subscribe(topic, mirror)
	}
}

func setupOperatorAuthOrDie(ctx context.Context, cfg config.Config, logger zerolog.Logger) (func(http.Handler) http.Handler, func(http.Handler) http.Handler) {
	verifier, err := apiauth.NewVerifier(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init oidc verifier")
	}
	bearer := apiauth.NewBearerAuthenticator(verifier, logger)

	policies, err := os.Open(cfg.AuthzPolicyPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("unable to open authz policy file")
	}
	defer policies.Close()

	tenantAuthz, err := apiauth.NewTenantAuthorizer(ctx, policies, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to compile authz policy")
	}

	return bearer, tenantAuthz
}

func mustRegisterSweep(logger zerolog.Logger, err error) {
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register scheduled sweep")
	}
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
