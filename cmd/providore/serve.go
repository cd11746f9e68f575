package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lamassuiot/providore/pkg/api"
	"github.com/lamassuiot/providore/pkg/auth"
	"github.com/lamassuiot/providore/pkg/ca"
	"github.com/lamassuiot/providore/pkg/config"
	"github.com/lamassuiot/providore/pkg/docs"
	"github.com/lamassuiot/providore/pkg/models/device"
	devicestore "github.com/lamassuiot/providore/pkg/models/device/store"
	devicedb "github.com/lamassuiot/providore/pkg/models/device/store/db"
	devicefile "github.com/lamassuiot/providore/pkg/models/device/store/file"
	"github.com/lamassuiot/providore/pkg/openssl"
	"github.com/lamassuiot/providore/pkg/utils"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/go-openapi/runtime/middleware"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	"gopkg.in/yaml.v2"
)

func levelOption(name string) level.Option {
	switch strings.ToLower(name) {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}

func serve(ctx context.Context, overrides config.Config) error {
	var logger log.Logger
	{
		logger = log.NewJSONLogger(os.Stdout)
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not load configuration")
		return err
	}
	logger = level.NewFilter(logger, levelOption(cfg.LogLevel))
	level.Info(logger).Log("msg", "Configuration loaded", "config_dir", cfg.ConfigDir)

	var deviceStore devicestore.DB
	switch cfg.DeviceStore {
	case "postgres":
		deviceStore, err = devicedb.NewDB("postgres", cfg.PostgresConnStr(), log.With(logger, "component", "devices"))
		if err != nil {
			level.Error(logger).Log("err", err, "msg", "Could not start connection with devices database")
			return err
		}
		level.Info(logger).Log("msg", "Connection established with devices database")
	default:
		deviceStore = devicefile.NewFile(cfg.ConfigDir, log.With(logger, "component", "devices"))
	}
	devices, err := deviceStore.SelectAll(ctx)
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not load devices")
		return err
	}
	directory := device.NewDirectory(devices)
	level.Info(logger).Log("msg", "Devices loaded", "count", directory.Len())

	jcfg, err := jaegercfg.FromEnv()
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not load Jaeger configuration values fron environment")
		return err
	}
	if jcfg.ServiceName == "" {
		jcfg.ServiceName = "providore"
	}
	tracer, closer, err := jcfg.NewTracer()
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not start Jaeger tracer")
		return err
	}
	defer closer.Close()
	level.Info(logger).Log("msg", "Jaeger tracer started")

	runner := openssl.NewRunner(cfg.OpenSSL.Binary, cfg.OpenSSL.WorkDir, cfg.OpenSSL.Timeout, log.With(logger, "component", "openssl"))
	authority, err := ca.NewOpenSSL(ca.OpenSSLConfig{
		ConfigFile:   cfg.OpenSSL.ConfigFile,
		PasswordFile: cfg.OpenSSL.PasswordFile,
		Extensions:   cfg.OpenSSL.Extensions,
		Digest:       cfg.OpenSSL.Digest,
	}, runner, log.With(logger, "component", "ca"))
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not configure certificate authority")
		return err
	}
	manager, err := ca.NewManager(authority, ca.NewKeyedMutex(), cfg.CertificateStore, log.With(logger, "component", "ca"))
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not configure certificate manager")
		return err
	}

	fieldKeys := []string{"method", "error"}

	var s api.Service
	{
		s = api.NewProvidoreService(directory, manager, api.Stores{
			ConfigDir:     cfg.ConfigDir,
			FirmwareStore: cfg.FirmwareStore,
			CRLFile:       authority.CRLFile(),
		}, logger)
		s = api.LoggingMiddleware(logger)(s)
		s = api.NewInstrumentingMiddleware(
			kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
				Namespace: "providore",
				Subsystem: "providore_service",
				Name:      "request_count",
				Help:      "Number of requests received.",
			}, fieldKeys),
			kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
				Namespace: "providore",
				Subsystem: "providore_service",
				Name:      "request_latency_microseconds",
				Help:      "Total duration of requests in microseconds.",
			}, fieldKeys),
		)(s)
	}

	if err := writeDocs(cfg); err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not create openapiv3 docs")
		return err
	}

	router := api.MakeHTTPHandler(s, api.HTTPConfig{
		Verifier:             auth.NewVerifier(directory, auth.SystemClock{}),
		Secrets:              directory,
		CSRRequestsPerMinute: cfg.CSRRequestsPerMinute,
	}, log.With(logger, "component", "HTTP"), tracer)
	router.Methods("GET").Path("/metrics").Handler(promhttp.Handler())
	router.Methods("GET").Path("/openapiv3.json").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(cfg.DocsDir, "openapiv3.json"))
	})
	router.Methods("GET").Path("/docs").Handler(middleware.SwaggerUI(middleware.SwaggerUIOpts{
		BasePath: "/",
		SpecURL:  "/openapiv3.json",
		Path:     "docs",
	}, nil))

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           accessControl(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	go func() {
		if cfg.HTTPS() {
			tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
			if cfg.CACertFile != "" {
				pool, err := utils.CreateCAPool(cfg.CACertFile)
				if err != nil {
					errs <- fmt.Errorf("could not create client CA pool: %w", err)
					return
				}
				tlsConfig.ClientCAs = pool
				tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
			}
			server.TLSConfig = tlsConfig
			level.Info(logger).Log("transport", "HTTPS", "address", cfg.Address(), "msg", "listening")
			errs <- server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			level.Info(logger).Log("transport", "HTTP", "address", cfg.Address(), "msg", "listening")
			errs <- server.ListenAndServe()
		}
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		level.Error(logger).Log("err", err, "msg", "HTTP server stopped")
		return err
	case sig := <-sigs:
		level.Info(logger).Log("exit", sig.String())
	case <-ctx.Done():
		level.Info(logger).Log("exit", ctx.Err())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not shut down HTTP server")
		return err
	}
	return nil
}

func writeDocs(cfg config.Config) error {
	openapiSpec := docs.NewOpenAPI3(cfg)

	openapiSpecJsonData, err := json.Marshal(&openapiSpec)
	if err != nil {
		return err
	}
	openapiSpecYamlData, err := yaml.Marshal(&openapiSpec)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DocsDir, 0744); err != nil {
		return err
	}
	if err := os.WriteFile(path.Join(cfg.DocsDir, "openapiv3.json"), openapiSpecJsonData, 0644); err != nil {
		return err
	}
	return os.WriteFile(path.Join(cfg.DocsDir, "openapiv3.yaml"), openapiSpecYamlData, 0644)
}

func accessControl(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, created-at, expiry, x-firmware-version")
		w.Header().Set("Access-Control-Expose-Headers", "created-at, expiry, signature")

		if r.Method == "OPTIONS" {
			return
		}

		h.ServeHTTP(w, r)
	})
}
