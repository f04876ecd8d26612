package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/rrx/ssl-expiration/internal/config"
	"github.com/rrx/ssl-expiration/internal/dedup"
	"github.com/rrx/ssl-expiration/internal/emit"
	"github.com/rrx/ssl-expiration/internal/expiry"
	"github.com/rrx/ssl-expiration/internal/health"
	"github.com/rrx/ssl-expiration/internal/logging"
	"github.com/rrx/ssl-expiration/internal/metrics"
	"github.com/rrx/ssl-expiration/internal/output"
	"github.com/rrx/ssl-expiration/internal/queue"
	"github.com/rrx/ssl-expiration/internal/rate"
	"github.com/rrx/ssl-expiration/internal/telemetry"
)

const version = "1.0.0"

func main() {
	os.Exit(run())
}

// run carries the whole process so deferred teardown still happens
// before the exit status is set.
func run() int {
	var configFile string
	var targetsFile string
	var warnDays int
	var probeID string
	var runID string
	var ratePerHost float64
	var ingest string
	var outputFormat string
	var batchMax int
	var batchFlushSec int
	var metricsAddr string
	var otelEndpoint string
	var otelInsecure bool
	var otelService string
	var verbose bool
	var showVersion bool

	flag.StringVar(&configFile, "config", "", "path to config file (YAML or JSON)")
	flag.StringVar(&targetsFile, "targets", "", "path to newline-separated targets")
	flag.IntVar(&warnDays, "warn_days", 0, "warn (and exit nonzero) when a certificate expires within this many days")
	flag.StringVar(&probeID, "probe", "", "probe id stamped onto emitted reports")
	flag.StringVar(&runID, "run", "", "run id stamped onto emitted reports")
	flag.Float64Var(&ratePerHost, "rate", 0, "per-host checks per second")
	flag.StringVar(&ingest, "ingest", "", "ingest endpoint for report batches (optional)")
	flag.StringVar(&outputFormat, "output_format", "", "machine output format (json, jsonl, csv); replaces the human status lines")
	flag.IntVar(&batchMax, "batch_max_reports", 0, "max reports per batch before flush")
	flag.IntVar(&batchFlushSec, "batch_flush_sec", 0, "seconds timer to flush a batch")
	flag.StringVar(&metricsAddr, "metrics_addr", "", "metrics and health listen addr (empty to disable)")
	flag.StringVar(&otelEndpoint, "otel_endpoint", "", "OTLP HTTP endpoint (host:port)")
	flag.BoolVar(&otelInsecure, "otel_insecure", true, "OTLP insecure (no TLS)")
	flag.StringVar(&otelService, "otel_service", "", "OTEL service.name")
	flag.BoolVar(&verbose, "verbose", false, "verbose logging")
	flag.BoolVar(&showVersion, "version", false, "show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "sslexp - reports how long until a server's SSL certificate expires\n\n")
		fmt.Fprintf(os.Stderr, "Certificate verification is intentionally disabled: the tool inspects\n")
		fmt.Fprintf(os.Stderr, "whatever certificate the peer presents, expired or self-signed included.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options] [host[:port] ...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s google.com example.org\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -targets=targets.txt -warn_days=14\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -targets=targets.txt -output_format=csv > report.csv\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  REDIS_QUEUE_ADDR Redis server feeding targets\n")
		fmt.Fprintf(os.Stderr, "  REDIS_QUEUE_KEY  Redis list key (default sslexp:queue)\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Println("sslexp v" + version)
		return 0
	}

	log := logging.New(verbose)
	defer log.Sync()

	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			log.Fatal("failed to load config file", "file", configFile, "err", err)
		}
		log.Info("loaded config from file", "file", configFile)
	} else {
		cfg = &config.Config{}
		cfg.SetDefaults()
	}
	cfg.LoadFromEnv()

	flags := make(map[string]interface{})
	if targetsFile != "" {
		flags["targets"] = targetsFile
	}
	if warnDays > 0 {
		flags["warn_days"] = warnDays
	}
	if probeID != "" {
		flags["probe"] = probeID
	}
	if runID != "" {
		flags["run"] = runID
	}
	if ratePerHost > 0 {
		flags["rate"] = ratePerHost
	}
	if ingest != "" {
		flags["ingest"] = ingest
	}
	if outputFormat != "" {
		flags["output_format"] = outputFormat
	}
	if batchMax > 0 {
		flags["batch_max_reports"] = batchMax
	}
	if batchFlushSec > 0 {
		flags["batch_flush_sec"] = batchFlushSec
	}
	if metricsAddr != "" {
		flags["metrics_addr"] = metricsAddr
	}
	if otelEndpoint != "" {
		flags["otel_endpoint"] = otelEndpoint
	}
	if otelService != "" {
		flags["otel_service"] = otelService
	}
	flags["otel_insecure"] = otelInsecure
	cfg.MergeWithFlags(flags)

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", "err", err)
	}

	args := flag.Args()
	if len(args) == 0 && cfg.Targets == "" && cfg.RedisQueueAddr == "" {
		flag.Usage()
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.OTELService, cfg.OTELInsecure)
	if err != nil {
		log.Warn("otel init failed", "err", err)
	} else {
		defer shutdown(context.Background())
	}

	healthHandler := health.NewHandler(log)
	healthHandler.SetMetadata("probe", cfg.Probe)
	healthHandler.SetMetadata("run", cfg.Run)
	healthHandler.SetMetadata("version", version)
	if cfg.MetricsAddr != "" {
		go metrics.ServeWithHealth(cfg.MetricsAddr, healthHandler, log)
		log.Info("metrics and health server started", "addr", cfg.MetricsAddr)
	}

	tasks := make(chan string, 1024)
	switch {
	case len(args) > 0:
		go func() {
			defer close(tasks)
			for _, a := range args {
				tasks <- normalizeTarget(a)
			}
		}()
	case cfg.Targets != "":
		f, err := os.Open(cfg.Targets)
		if err != nil {
			log.Fatal("open targets", "err", err)
		}
		go func() {
			defer close(tasks)
			defer f.Close()
			sc := bufio.NewScanner(f)
			for sc.Scan() {
				line := strings.TrimSpace(sc.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				tasks <- normalizeTarget(line)
			}
		}()
	default:
		q, err := queue.NewRedis(cfg.RedisQueueAddr, cfg.RedisQueueKey, 120*time.Second)
		if err != nil {
			log.Fatal("redis queue init", "err", err)
		}
		log.Info("redis queue enabled", "addr", cfg.RedisQueueAddr, "key", cfg.RedisQueueKey)
		healthHandler.RegisterChecker("redis", health.CheckFunc(q.Ping))
		go func() {
			defer close(tasks)
			for {
				select {
				case <-ctx.Done():
					return
				default:
					target, ack, err := q.Lease(ctx)
					if err != nil || target == "" {
						continue
					}
					tasks <- normalizeTarget(target)
					_ = ack()
				}
			}
		}()
	}

	var writer *output.Writer
	if cfg.OutputFormat != "" {
		writer, err = output.NewStdoutWriter(cfg.OutputFormat)
		if err != nil {
			log.Fatal("output writer", "err", err)
		}
	}

	var reports chan emit.Report
	var emitter *emit.Emitter
	if cfg.Ingest != "" {
		reports = make(chan emit.Report, 1024)
		emitter = emit.NewEmitter(cfg.Ingest, cfg.Probe, cfg.Run,
			cfg.BatchMaxReports, time.Duration(cfg.BatchFlushSec)*time.Second)
		go emitter.Run(ctx, reports, log)
	}

	log.Info("starting sslexp",
		"probe", cfg.Probe,
		"run", cfg.Run,
		"warn_days", cfg.WarnDays,
		"config_file", configFile,
	)
	healthHandler.SetReady(true)

	c := checker{
		warnDays: cfg.WarnDays,
		seen:     dedup.NewMemory(),
		ratelim:  rate.New(cfg.RatePerHost, 1),
		writer:   writer,
		reports:  reports,
		log:      log,
	}

	// Targets are checked strictly one at a time; each check owns its
	// connection and is independent of the rest.
	exitCode := 0
loop:
	for target := range tasks {
		select {
		case <-ctx.Done():
			break loop
		default:
		}
		if c.checkOne(ctx, target) {
			exitCode = 1
		}
	}

	if emitter != nil {
		emitter.Drain(log)
	}
	if writer != nil {
		_ = writer.Flush()
	}
	return exitCode
}

type checker struct {
	warnDays int
	seen     dedup.Interface
	ratelim  *rate.PerHost
	writer   *output.Writer
	reports  chan<- emit.Report
	log      *logging.Logger
}

// checkOne runs a single certificate check and reports whether the
// target should flip the process exit status (expired or expiring
// within the warn window). Errors are surfaced but never abort the
// remaining targets and never change the exit status.
func (c *checker) checkOne(ctx context.Context, target string) (failing bool) {
	if c.seen.Seen(target) {
		c.log.Debug("skipping duplicate target", "target", target)
		return false
	}
	host := target
	if h, _, err := net.SplitHostPort(target); err == nil {
		host = h
	}
	c.ratelim.Wait(host)

	tr := otel.Tracer("sslexp/check")
	_, span := tr.Start(ctx, "CheckOne")
	defer span.End()

	start := time.Now()
	exp, err := checkTarget(target)
	metrics.CheckDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ChecksTotal.WithLabelValues("error").Inc()
		fmt.Fprintf(os.Stderr, "An error occurred when checking %s: %v\n", target, err)
		c.report(emit.Report{Target: target, CheckedAt: start.UTC(), Error: err.Error()})
		return false
	}

	days := exp.Days()
	metrics.RemainingSeconds.WithLabelValues(target).Set(float64(exp.Seconds()))

	if c.writer == nil {
		for _, name := range exp.AltNames() {
			fmt.Printf("Alt: %s\n", name)
		}
	}
	switch {
	case exp.IsExpired():
		metrics.ChecksTotal.WithLabelValues("expired").Inc()
		c.statusf(os.Stderr, "%s SSL certificate expired %d days ago", target, -days)
		failing = true
	case days <= int64(c.warnDays):
		metrics.ChecksTotal.WithLabelValues("expiring").Inc()
		c.statusf(os.Stdout, "%s SSL certificate will expire soon, in %d days", target, days)
		failing = true
	default:
		metrics.ChecksTotal.WithLabelValues("ok").Inc()
		c.statusf(os.Stdout, "%s SSL certificate will expire in %d days", target, days)
	}

	r := emit.Report{
		Target:           target,
		CheckedAt:        start.UTC(),
		RemainingSeconds: exp.Seconds(),
		RemainingDays:    days,
		Expired:          exp.IsExpired(),
		AltNames:         exp.AltNames(),
	}
	if c.writer != nil {
		if err := c.writer.WriteReport(r); err != nil {
			c.log.Warn("write report", "target", target, "err", err)
		}
	}
	c.report(r)
	return failing
}

// statusf prints the human status line, or routes it through the
// logger when machine output owns stdout.
func (c *checker) statusf(w *os.File, format string, args ...interface{}) {
	if c.writer != nil {
		c.log.Infof(format, args...)
		return
	}
	fmt.Fprintf(w, format+"\n", args...)
}

func (c *checker) report(r emit.Report) {
	if c.reports == nil {
		return
	}
	select {
	case c.reports <- r:
	default:
		c.log.Warn("report channel full, dropping", "target", r.Target)
	}
}

func checkTarget(target string) (*expiry.Expiration, error) {
	if _, _, err := net.SplitHostPort(target); err == nil {
		return expiry.CheckAddr(target)
	}
	return expiry.Check(target)
}

func normalizeTarget(t string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(t), "."))
}
