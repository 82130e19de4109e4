// Command retrydlq-consumer consumes one configured event from SQS or RabbitMQ
// and routes handler failures through the retry and dead-letter policy engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hatsunemiku3939/retrydlq"
	"github.com/hatsunemiku3939/retrydlq/config"
	"github.com/hatsunemiku3939/retrydlq/consumer"
	"github.com/hatsunemiku3939/retrydlq/dispatcher"
	"github.com/hatsunemiku3939/retrydlq/metrics"
	"github.com/hatsunemiku3939/retrydlq/pkg/logging"
	"github.com/hatsunemiku3939/retrydlq/policy"
)

const (
	transportSQS  = "sqs"
	transportAMQP = "amqp"

	metricsShutdownTimeout = 5 * time.Second
)

type flags struct {
	configPath  string
	transport   string
	event       string
	metricsAddr string
	logFormat   string
	debug       bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "retrydlq.yaml", "Path to the event configuration file")
	flag.StringVar(&f.transport, "transport", transportSQS, "Message transport: sqs or amqp")
	flag.StringVar(&f.event, "event", "", "Name of the configured event to consume")
	flag.StringVar(&f.metricsAddr, "metrics-addr", ":9090", "Address of the Prometheus /metrics endpoint (empty disables it)")
	flag.StringVar(&f.logFormat, "log-format", "text", "Log format: text or json")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.Parse()
	return f
}

func newLogger(f flags) (retrydlq.Logger, error) {
	level := slog.LevelInfo
	if f.debug {
		level = slog.LevelDebug
	}

	switch f.logFormat {
	case "json":
		return logging.NewProductionZap(level.String())
	case "text":
		l := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.RFC3339}))
		slog.SetDefault(l)
		return l, nil
	default:
		return nil, fmt.Errorf("unknown log format %q", f.logFormat)
	}
}

func main() {
	f := parseFlags()

	logger, err := newLogger(f)
	if err != nil {
		slog.Error("failed to initialize logger", "error", err)
		os.Exit(1)
	}

	if err := run(f, logger); err != nil {
		logger.Error("consumer stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("application has shut down")
}

func run(f flags, logger retrydlq.Logger) error {
	// --- 1. Setup Context for Graceful Shutdown ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- 2. Load Configuration ---
	configs, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.event == "" {
		return errors.New("-event is required")
	}
	entry, err := configs.Resolve(f.event)
	if err != nil {
		return err
	}

	// --- 3. Declare Policies ---
	policies := policy.NewRegistry()
	p, err := userProfilePolicy(entry.Name)
	if err != nil {
		return err
	}
	if err := policies.Register(userProfileHandlerKey, p); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheus(reg)
	if f.metricsAddr != "" {
		shutdown := serveMetrics(f.metricsAddr, reg, logger)
		defer shutdown()
	}

	engineOpts := []retrydlq.EngineOption{retrydlq.WithLogger(logger), retrydlq.WithMetrics(recorder)}
	consumerOpts := []consumer.Option{consumer.WithLogger(logger)}

	// --- 4. Setup and Start the Consumer ---
	switch f.transport {
	case transportSQS:
		return runSQS(ctx, configs, policies, entry, engineOpts, consumerOpts)
	case transportAMQP:
		return runAMQP(ctx, configs, policies, entry, engineOpts, consumerOpts)
	default:
		return fmt.Errorf("unknown transport %q", f.transport)
	}
}

func runSQS(ctx context.Context, configs *config.Registry, policies *policy.Registry, entry config.Entry,
	engineOpts []retrydlq.EngineOption, consumerOpts []consumer.Option) error {
	if entry.SQS.QueueURL == "" {
		return fmt.Errorf("event %s has no sqs.queue_url", entry.Name)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := sqs.NewFromConfig(awsCfg)

	d, err := dispatcher.NewSQS(client)
	if err != nil {
		return err
	}
	engine, err := retrydlq.NewEngine(policies, configs, d, engineOpts...)
	if err != nil {
		return err
	}

	c, err := consumer.NewSQS(client, entry.SQS.QueueURL, engine.Guard(userProfileHandlerKey, updateUserProfile), consumerOpts...)
	if err != nil {
		return err
	}
	c.Start(ctx)
	return nil
}

func runAMQP(ctx context.Context, configs *config.Registry, policies *policy.Registry, entry config.Entry,
	engineOpts []retrydlq.EngineOption, consumerOpts []consumer.Option) error {
	conn, err := amqp.Dial(entry.AMQPURL())
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := dispatcher.DeclareTopology(ch, entry); err != nil {
		return err
	}

	d, err := dispatcher.NewAMQP(ch)
	if err != nil {
		return err
	}
	engine, err := retrydlq.NewEngine(policies, configs, d, engineOpts...)
	if err != nil {
		return err
	}

	deliveries, err := ch.ConsumeWithContext(ctx, entry.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", entry.Queue, err)
	}

	c, err := consumer.NewAMQP(deliveries, engine.Guard(userProfileHandlerKey, updateUserProfile), consumerOpts...)
	if err != nil {
		return err
	}
	c.Start(ctx)
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger retrydlq.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
