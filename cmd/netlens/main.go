package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shortontech/netlens/internal/detect"
	httpx "github.com/shortontech/netlens/internal/http"
	"github.com/shortontech/netlens/internal/lookup"
	"github.com/shortontech/netlens/internal/metrics"
	"github.com/shortontech/netlens/internal/report"
	"github.com/shortontech/netlens/internal/session"
	"github.com/shortontech/netlens/internal/sink"
	"github.com/shortontech/netlens/pkg/config"
)

func main() {
	testMode := flag.Bool("test", false, "run synthetic detections through the engine and sinks, then exit")
	flag.Parse()

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rules := detect.NewRuleStore(detect.DefaultRules())
	if cfg.RulesFile != "" {
		if err := rules.LoadFile(cfg.RulesFile); err != nil {
			log.Fatalf("rules: %v", err)
		}
		if cfg.RulesWatch {
			if err := rules.Watch(ctx, cfg.RulesFile); err != nil {
				log.Printf("rules: watching disabled: %v", err)
			}
		}
	}

	m := metrics.NewMetrics()
	engine := buildEngine(cfg, rules, m)

	sinks := buildSinks(cfg.Outputs)
	for _, s := range sinks {
		if err := s.Start(ctx); err != nil {
			log.Fatalf("sink %s: %v", s.Name(), err)
		}
	}
	closeSinks := func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				log.Printf("sink %s: close: %v", s.Name(), err)
			}
		}
	}

	emit := func(r report.Report) {
		m.ObserveDetection(string(r.Verdict.ConnectionType), string(r.Verdict.Confidence),
			time.Duration(r.DetectMS)*time.Millisecond)
		for _, s := range sinks {
			if err := s.Enqueue(r); err != nil {
				m.IncrementSinkErrors(s.Name(), "enqueue")
				log.Printf("sink %s: %v", s.Name(), err)
				continue
			}
			m.IncrementReports(s.Name())
		}
	}

	if *testMode {
		runTestMode(ctx, engine, emit)
		cancel()
		closeSinks()
		return
	}

	env := httpx.Env{
		Cfg:    cfg,
		Engine: engine,
		Visits: session.NewStore(),
		Emit:   emit,
	}

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           httpx.NewMux(env, m),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsSrv := metrics.NewServer(metrics.LoadConfig())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("netlens listening on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return metricsSrv.Start(gctx)
	})
	g.Go(func() error {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-gctx.Done():
		case s := <-stop:
			log.Printf("received %s, shutting down", s)
		}
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		_ = metricsSrv.Shutdown(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
	cancel()
	closeSinks()
}

// buildEngine assembles the detection engine from the configured lookup
// sources. Any subset may be absent; the engine degrades accordingly.
func buildEngine(cfg config.Config, rules *detect.RuleStore, m *metrics.Metrics) *detect.Engine {
	var geoProviders []detect.GeoProvider
	if cfg.GeoAPIURL != "" {
		geoProviders = append(geoProviders, lookup.NewIPAPI(cfg.GeoAPIURL))
	}
	if cfg.MaxMindCityDB != "" && cfg.MaxMindASNDB != "" {
		mm, err := lookup.NewMaxMind(cfg.MaxMindCityDB, cfg.MaxMindASNDB, rules)
		if err != nil {
			log.Fatalf("maxmind: %v", err)
		}
		geoProviders = append(geoProviders, mm)
	}

	var torProvider detect.TorProvider
	if cfg.TorAPIURL != "" {
		torProvider = lookup.NewTorExit(cfg.TorAPIURL)
	}

	return detect.NewEngine(detect.EngineConfig{
		GeoProviders: geoProviders,
		TorProvider:  torProvider,
		Rules:        rules,
		GeoTimeout:   time.Duration(cfg.GeoTimeoutMS) * time.Millisecond,
		TorTimeout:   time.Duration(cfg.TorTimeoutMS) * time.Millisecond,
		LookupError: func(provider string, err error) {
			m.IncrementLookupErrors(provider, detect.LookupErrorKind(err))
		},
	})
}

func buildSinks(outputs []string) []sink.Sink {
	var sinks []sink.Sink
	for _, out := range outputs {
		switch out {
		case "log":
			sinks = append(sinks, sink.NewLogSink())
		case "kafka":
			sinks = append(sinks, sink.NewKafkaSinkFromEnv())
		case "postgres":
			sinks = append(sinks, sink.NewPGSinkFromEnv())
		default:
			log.Printf("unknown output %q ignored", out)
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, sink.NewLogSink())
	}
	return sinks
}
