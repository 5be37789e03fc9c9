// Command custody-bootstrap deploys a custody pair for a local test network
// and serves the read-only audit API over it.
//
// With no configuration it runs fully in-process: in-memory consumption
// store, log-based record sink, transfers logged rather than settled. Point
// CUSTODY_REDIS_ADDR at a Redis deployment and CUSTODY_RABBITMQ_URL at a
// broker to exercise the durable store and the record stream.
package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/LerianStudio/lib-custody/custody"
	"github.com/LerianStudio/lib-custody/custody/bootstrap"
	"github.com/LerianStudio/lib-custody/custody/consumption"
	consumptionredis "github.com/LerianStudio/lib-custody/custody/consumption/redis"
	"github.com/LerianStudio/lib-custody/custody/events"
	eventsrabbitmq "github.com/LerianStudio/lib-custody/custody/events/rabbitmq"
	"github.com/LerianStudio/lib-custody/custody/ledger"
	"github.com/LerianStudio/lib-custody/custody/log"
	"github.com/LerianStudio/lib-custody/custody/opentelemetry"
	"github.com/LerianStudio/lib-custody/custody/server"
	"github.com/LerianStudio/lib-custody/custody/signing"
	"github.com/LerianStudio/lib-custody/custody/units"
	libzap "github.com/LerianStudio/lib-custody/custody/zap"
	"github.com/caarlos0/env/v11"
	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
)

const serviceName = "custody-bootstrap"

type config struct {
	Environment     string `env:"ENV_NAME"                    envDefault:"local"`
	LogLevel        string `env:"LOG_LEVEL"                   envDefault:"info"`
	NetworkID       uint64 `env:"CUSTODY_NETWORK_ID"          envDefault:"31337"`
	KeyFile         string `env:"CUSTODY_APPROVER_KEY_FILE"   envDefault:"approver.key"`
	RecordFile      string `env:"CUSTODY_DEPLOYMENT_FILE"     envDefault:"deployment.json"`
	ListenAddr      string `env:"CUSTODY_AUDIT_ADDR"          envDefault:":3000"`
	RedisAddr       string `env:"CUSTODY_REDIS_ADDR"`
	RabbitURL       string `env:"CUSTODY_RABBITMQ_URL"`
	InitialBalance  string `env:"CUSTODY_INITIAL_BALANCE"     envDefault:"0"`
	EnableTelemetry bool   `env:"ENABLE_TELEMETRY"`
	OTelEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "custody-bootstrap: parse env:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintln(os.Stderr, "custody-bootstrap:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	logger, _, err := libzap.New(libzap.Config{
		Environment:     libzap.Environment(cfg.Environment),
		Level:           cfg.LogLevel,
		OTelLibraryName: serviceName,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync(context.Background()) }()

	telemetry, err := opentelemetry.InitializeTelemetryWithError(&opentelemetry.TelemetryConfig{
		LibraryName:               serviceName,
		ServiceName:               serviceName,
		ServiceVersion:            "1.0.0",
		DeploymentEnv:             cfg.Environment,
		CollectorExporterEndpoint: cfg.OTelEndpoint,
		EnableTelemetry:           cfg.EnableTelemetry,
		Logger:                    logger,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer telemetry.ShutdownTelemetry()

	ctx = custody.ContextWithLogger(ctx, logger)
	ctx = custody.ContextWithTracer(ctx, telemetry.Tracer())

	key, err := loadOrGenerateKey(ctx, cfg.KeyFile, logger)
	if err != nil {
		return err
	}

	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	sink, closeSink, err := buildSink(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	deployer, err := custody.RandomIdentity()
	if err != nil {
		return err
	}

	transferer := ledger.TransferFunc(
		func(ctx context.Context, recipient custody.Identity, amount *big.Int) error {
			logger.Log(ctx, log.LevelInfo, "transfer executed",
				log.String("recipient", recipient.Hex()),
				log.String("amount", amount.String()),
			)

			return nil
		})

	deployment, err := bootstrap.Deploy(ctx, bootstrap.Config{
		NetworkID:   cfg.NetworkID,
		Deployer:    deployer,
		ApproverKey: &key.PublicKey,
		Store:       store,
		Sink:        sink,
		Transferer:  transferer,
	})
	if err != nil {
		return err
	}

	if err := deployment.Record.WriteFile(cfg.RecordFile); err != nil {
		return err
	}

	logger.Log(ctx, log.LevelInfo, "deployment record written",
		log.String("path", cfg.RecordFile))

	if err := seedBalance(ctx, cfg, deployment, deployer); err != nil {
		return err
	}

	app, err := server.NewApp(server.Config{
		Ledger:      deployment.Ledger,
		Validator:   deployment.Validator,
		HealthCheck: deployment.HealthCheck,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	logger.Log(ctx, log.LevelInfo, "audit API listening",
		log.String("addr", cfg.ListenAddr))

	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Listen(cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Log(context.Background(), log.LevelInfo, "shutting down")

		return app.Shutdown()
	}
}

// loadOrGenerateKey reads the approver key file, minting a new key when the
// file does not exist yet.
func loadOrGenerateKey(ctx context.Context, path string, logger log.Logger) (*ecdsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		parsed, parseErr := signing.ParsePrivateKey(string(raw))
		if parseErr != nil {
			return nil, fmt.Errorf("parse approver key: %w", parseErr)
		}

		return parsed, nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	generated, err := signing.GenerateApproverKey()
	if err != nil {
		return nil, fmt.Errorf("generate approver key: %w", err)
	}

	encoded, err := signing.EncodePrivateKey(generated)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, []byte(encoded+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}

	logger.Log(ctx, log.LevelInfo, "generated approver key",
		log.String("path", path))

	return generated, nil
}

// buildStore selects the consumption store: Redis when configured, in-memory
// otherwise.
func buildStore(ctx context.Context, cfg config, logger log.Logger) (consumption.Store, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Log(ctx, log.LevelInfo, "using in-memory consumption store")

		return consumption.NewMemoryStore(), func() {}, nil
	}

	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})

	store, err := consumptionredis.NewStore(client, "")
	if err != nil {
		return nil, nil, err
	}

	if err := store.Ping(ctx); err != nil {
		_ = client.Close()

		return nil, nil, fmt.Errorf("redis unreachable at %s: %w", cfg.RedisAddr, err)
	}

	logger.Log(ctx, log.LevelInfo, "using redis consumption store",
		log.String("addr", cfg.RedisAddr))

	return store, func() { _ = client.Close() }, nil
}

// buildSink selects the record sink: RabbitMQ when configured, the logger
// otherwise.
func buildSink(cfg config, logger log.Logger) (events.Sink, func(), error) {
	if cfg.RabbitURL == "" {
		return events.NewLogSink(logger), func() {}, nil
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return nil, nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	sink, err := eventsrabbitmq.NewSink(channel, "")
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()

		return nil, nil, err
	}

	closer := func() {
		_ = channel.Close()
		_ = conn.Close()
	}

	return sink, closer, nil
}

// seedBalance deposits the configured initial balance into the fresh ledger.
func seedBalance(ctx context.Context, cfg config, d *bootstrap.Deployment, from custody.Identity) error {
	if cfg.InitialBalance == "" || cfg.InitialBalance == "0" {
		return nil
	}

	amount, err := units.Parse(cfg.InitialBalance)
	if err != nil {
		return fmt.Errorf("initial balance: %w", err)
	}

	return d.Ledger.Deposit(ctx, from, amount)
}
