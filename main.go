package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"

	"nutrilog/cmd"
	"nutrilog/internal/cache"
	"nutrilog/internal/extract"
	"nutrilog/internal/meals"
	"nutrilog/internal/realtime"
	"nutrilog/internal/server"
	"nutrilog/internal/store"
	"nutrilog/internal/transcribe"
	"nutrilog/internal/ui"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	config, err := cmd.ParseFlags(version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if config.ShowVersion {
		return
	}

	if config.ServeAddr != "" {
		err = serve(config)
	} else {
		err = runTUI(config)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve(config *cmd.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	gin.SetMode(gin.ReleaseMode)

	feed := store.NewFeed(logger)
	database, err := store.Open(config.DBPath, feed, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	srv := &http.Server{
		Addr:              config.ServeAddr,
		Handler:           server.New(database, feed, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("store server listening", "addr", config.ServeAddr, "db", config.DBPath)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runTUI(config *cmd.Config) error {
	logFile, err := tea.LogToFile(config.LogPath, "")
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	logger := slog.New(slog.NewTextHandler(logFile, nil))

	var (
		st     store.Store
		dialer realtime.Dialer
	)
	if config.RemoteURL != "" {
		st = store.NewClient(config.RemoteURL)
		dialer = realtime.WebSocketDialer{BaseURL: config.RemoteURL, Log: logger}
	} else {
		feed := store.NewFeed(logger)
		database, err := store.Open(config.DBPath, feed, logger)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()
		st = database
		dialer = realtime.FeedDialer{Feed: feed}
	}

	c, err := cache.New(cache.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}
	rt := realtime.NewManager(dialer, c, realtime.WithLogger(logger))
	defer rt.Disconnect()

	var clientOpts []extract.ClientOption
	if config.Model != "" {
		clientOpts = append(clientOpts, extract.WithModel(config.Model))
	}
	parser := extract.NewParser(extract.NewOpenAIClient(config.OpenAIKey, clientOpts...), logger)

	var transcriber transcribe.Transcriber
	if config.VoiceEnabled {
		transcriber = transcribe.NewWhisperClient(config.OpenAIKey, "")
	}

	m := ui.New(ui.Options{
		Service:   meals.NewService(parser, transcriber, st, c, logger),
		Cache:     c,
		Realtime:  rt,
		PrefsPath: config.PrefsPath,
		Logger:    logger,
	})
	defer m.Close()

	logger.Info("starting", "version", version, "remote", config.RemoteURL, "db", config.DBPath)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithReportFocus())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running app: %w", err)
	}
	return nil
}
