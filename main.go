package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bufbuild/connect-go"
	"github.com/carefollow/callboard/internal/auth"
	"github.com/carefollow/callboard/internal/config"
	"github.com/carefollow/callboard/internal/log"
	"github.com/carefollow/callboard/internal/rpc"
	"github.com/carefollow/callboard/internal/services"
	"github.com/carefollow/callboard/internal/worker"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// a missing .env file is fine, the environment may be set otherwise
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.Warnf("failed to load .env file: %s", err)
	}

	var cfgFilePath string
	if len(os.Args) > 1 {
		cfgFilePath = os.Args[1]
	}

	cfg, err := config.LoadConfig(ctx, cfgFilePath)
	if err != nil {
		logrus.Fatalf("failed to load configuration: %s", err)
	}

	if err := log.Configure(cfg.LogFormat, cfg.LogLevel); err != nil {
		logrus.Fatalf("failed to configure logging: %s", err)
	}
	logrus.Infof("configuration loaded successfully")

	providers, err := config.NewProviders(ctx, *cfg)
	if err != nil {
		logrus.Fatalf("failed to prepare providers: %s", err)
	}
	logrus.Infof("application providers prepared successfully")

	verifier, err := auth.NewVerifier(auth.Options{
		PublicKeyPEM: cfg.AuthPublicKey,
		Secret:       cfg.AuthSecret,
		Issuer:       cfg.AuthIssuer,
		Audience:     cfg.AuthAudience,
	})
	if err != nil {
		logrus.Fatalf("failed to prepare token verifier: %s", err)
	}

	opts := rpc.HandlerOptions(
		rpc.NewLoggingInterceptor(),
		auth.NewInterceptor(verifier),
		rpc.NewValidationInterceptor(nil),
	)

	// Prepare our servemux and add handlers.
	serveMux := http.NewServeMux()

	for _, svc := range []interface {
		Handler(...connect.HandlerOption) (string, http.Handler)
	}{
		services.NewCallService(providers),
		services.NewPatientService(providers),
		services.NewPresetService(providers),
		services.NewOrganisationService(providers),
	} {
		path, handler := svc.Handler(opts...)
		serveMux.Handle(path, handler)
	}

	serveMux.Handle(services.IngestPath, services.NewIngestHandler(providers))
	serveMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id", "Grpc-Status", "Grpc-Message"},
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           h2c.NewHandler(corsHandler.Handler(serveMux), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	providers.Hub.Start(ctx)
	worker.StartPatientMatcher(ctx, providers)

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.Errorf("failed to shut down server: %s", err)
		}
	}()

	logrus.Infof("HTTP/2 server (h2c) prepared successfully, starting to listen on %s ...", cfg.ListenAddress)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.Fatalf("failed to serve: %s", err)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := providers.Close(closeCtx); err != nil {
		logrus.Errorf("failed to close providers: %s", err)
	}
}
