// Package main initializes and starts the booth server, setting up
// configuration, logging, the database, the blob store, the camera,
// services, handlers and optional TLS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	nethttp "net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/PartyBooth/internal/blobstore"
	"github.com/atinyakov/PartyBooth/internal/capture"
	"github.com/atinyakov/PartyBooth/internal/clock"
	"github.com/atinyakov/PartyBooth/internal/config"
	"github.com/atinyakov/PartyBooth/internal/db"
	"github.com/atinyakov/PartyBooth/internal/logger"
	"github.com/atinyakov/PartyBooth/internal/repository"
	"github.com/atinyakov/PartyBooth/internal/server/handler/http"
	"github.com/atinyakov/PartyBooth/internal/service"
	"github.com/atinyakov/PartyBooth/internal/token"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

// revealTTL bounds how long a new device password can be read back.
const revealTTL = 10 * time.Minute

func main() {
	// Parse command-line, config file and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := blobstore.NewFSStore(options.MediaDir)
	if err != nil {
		zapLogger.Fatal("cannot init media store", zap.Error(err))
	}

	// Initialize the database. Without a DSN a SQLite file next to the
	// photos is used.
	dsn := cmp.Or(options.DatabaseDSN, "sqlite://"+filepath.Join(options.MediaDir, "partybooth.db"))
	conn, err := db.Open(dsn)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}
	defer conn.Close()

	// Remove expired sessions and their photos.
	db.StartExpiredSessionCleaner(ctx, conn, clock.Real(), options.CleanupInterval, store.Delete, zapLogger)

	issuer, err := token.NewIssuer([]byte(options.AuthSecret), options.TokenTTL, clock.Real())
	if err != nil {
		zapLogger.Fatal("cannot init token issuer", zap.Error(err))
	}

	// Initialize repositories and business-logic services.
	deviceRepo := repository.NewDeviceRepository(conn)
	sessionRepo := repository.NewSessionRepository(conn)
	authService := service.NewAuthService(deviceRepo, issuer, zapLogger)
	photoService := service.NewPhotoService(sessionRepo, store, service.PhotoConfig{
		PublicURL: options.PublicURL,
		TTL:       options.PhotoTTL,
		Log:       zapLogger,
	})

	source, closeSource := cameraSource(options.CameraURL, zapLogger)
	defer closeSource()
	sequencer := capture.NewSequencer(source, capture.WithLogger(zapLogger))

	// Build the router with middleware and routes.
	router, err := http.NewRouter(http.Handlers{
		Auth:     &http.AuthHandler{AuthService: authService, Log: zapLogger},
		Admin:    &http.AdminHandler{Devices: authService, Log: zapLogger},
		Sessions: &http.SessionHandler{Photos: photoService, Log: zapLogger},
		Capture:  &http.CaptureHandler{Sequencer: sequencer, Photos: photoService, Log: zapLogger},
		Download: &http.DownloadHandler{Photos: photoService, Log: zapLogger},
		Tokens:   authService,
		AdminKey: options.AdminKey,
		Reveal:   service.NewRevealCache(revealTTL, clock.Real()),
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("cannot build router", zap.Error(err))
	}
	if options.AdminKey == "" {
		zapLogger.Warn("no admin key configured, admin endpoints are disabled")
	}

	server := &nethttp.Server{
		Addr:              options.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	if options.TLSCert != "" && options.TLSKey != "" {
		// Load server TLS certificate and key.
		cert, err := tls.LoadX509KeyPair(options.TLSCert, options.TLSKey)
		if err != nil {
			zapLogger.Fatal("failed to load server TLS cert/key", zap.Error(err))
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		zapLogger.Info("starting HTTPS server", zap.String("addr", options.Address))
		err = server.ListenAndServeTLS("", "")
		if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			zapLogger.Fatal("failed to start HTTPS server", zap.Error(err))
		}
		return
	}

	zapLogger.Info("starting HTTP server", zap.String("addr", options.Address))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("failed to start HTTP server", zap.Error(err))
	}
}

// cameraSource returns the snapshot camera at url, or a blank demo
// picture when no camera is configured.
func cameraSource(url string, log *zap.Logger) (capture.Source, func()) {
	if url != "" {
		src := capture.NewHTTPSnapshotSource(url)
		log.Info("using snapshot camera", zap.String("url", url))
		return src, func() { _ = src.Close() }
	}
	log.Warn("no camera configured, captures use a demo picture")
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 0xf4, G: 0x6b, B: 0x9c, A: 0xff}}, image.Point{}, draw.Src)
	return &capture.StaticSource{Image: img}, func() {}
}
