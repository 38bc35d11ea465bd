package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/quipdash/internal/api"
	"github.com/kiliankoe/quipdash/internal/config"
	"github.com/kiliankoe/quipdash/internal/game"
	"github.com/kiliankoe/quipdash/internal/storage/sqlite"
	"github.com/kiliankoe/quipdash/internal/telemetry"
	"github.com/kiliankoe/quipdash/internal/ws"
	"github.com/rs/zerolog"
	zerologlog "github.com/rs/zerolog/log"
)

var version = "dev" // Set at build time via -ldflags

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`quipdash - Real-time party trivia server

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --port PORT     Port to listen on (default: 3001 or PORT env var)

Environment Variables:
  PORT                Port to listen on (default: 3001)
  LOG_LEVEL           trace, debug, info, warn, error (default: info)
  PROMPT_CAP          Prompts collected before two are drawn (default: 4)
  SESSION_TTL         Drop rooms idle this long, e.g. 2h (default: 0, never)
  REAP_INTERVAL       How often idle rooms are checked (default: 10m)
  GUARD_PHASES        Reject actions sent in the wrong phase (default: false)
  SINGLE_VOTE         One vote per player per round (default: false)
  REQUIRE_VIP_START   Only the VIP may start a game (default: false)
  MIN_PLAYERS         Players needed to start (default: 0, unchecked)
  HOST_USER           Basic auth username for POST /api/sessions
  HOST_PASS           Basic auth password for POST /api/sessions
  EXPORT_ENABLED      Append finished games to a text file (default: false)
  EXPORT_FILE         Export path (default: ./quipdash-results.txt)
  ARCHIVE_PATH        SQLite file for finished games (default: off)
  OTEL_ENDPOINT       OTLP/HTTP traces endpoint (default: off)

Examples:
  %s                  Start server with default settings
  %s --port 3000      Start server on port 3000
`, os.Args[0], os.Args[0], os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("quipdash %s\n", version)
		return
	}

	zerolog.TimeFieldFormat = time.RFC3339
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	zerologlog.Logger = zerologlog.Output(cw)

	cfg, err := config.Load()
	if err != nil {
		zerologlog.Fatal().Err(err).Msg("config")
	}
	if *portFlag != "" {
		cfg.Port = *portFlag
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		zerologlog.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, using info")
	}

	ctx := context.Background()
	shutdown, err := telemetry.Setup(ctx, "quipdash", cfg.OTelEndpoint)
	if err != nil {
		zerologlog.Error().Err(err).Msg("tracing disabled")
	}
	defer func() { _ = shutdown(ctx) }()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		status := c.Writer.Status()
		dur := time.Since(start)
		zerologlog.Info().Str("path", path).Int("status", status).Dur("dur", dur).Msg("http")
	})

	rm := game.NewRoomManager(game.WithRules(cfg.Rules()))
	api.Register(r, rm, cfg)

	sock := ws.New(rm, cfg)
	if cfg.ExportEnabled {
		sock.AddSink(game.FileExporter{Path: cfg.ExportFile})
	}
	if cfg.ArchivePath != "" {
		store, err := sqlite.Open(cfg.ArchivePath)
		if err != nil {
			zerologlog.Fatal().Err(err).Str("path", cfg.ArchivePath).Msg("open archive")
		}
		defer store.Close()
		sock.AddSink(store)
	}
	io := sock.Mount(r)
	defer io.Close()

	if cfg.SessionTTL > 0 {
		go reapLoop(rm, cfg.SessionTTL, cfg.ReapInterval)
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"name": "quipdash", "version": version})
	})

	zerologlog.Info().Str("port", cfg.Port).Msg("listening")
	if err := r.Run(":" + cfg.Port); err != nil {
		zerologlog.Fatal().Err(err).Msg("server stopped")
	}
}

func reapLoop(rm *game.RoomManager, ttl, every time.Duration) {
	if every <= 0 {
		every = 10 * time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		for _, code := range rm.Reap(ttl) {
			zerologlog.Info().Str("code", code).Msg("idle session reaped")
		}
	}
}
