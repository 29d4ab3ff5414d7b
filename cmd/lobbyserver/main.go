// Package main provides the lobby server binary: the TCP matchmaking
// service players connect to for creating, joining, and running games.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/config"
	"github.com/cory-johannsen/skirmish/internal/game/dispatch"
	"github.com/cory-johannsen/skirmish/internal/game/match"
	"github.com/cory-johannsen/skirmish/internal/game/ruleset"
	"github.com/cory-johannsen/skirmish/internal/game/session"
	"github.com/cory-johannsen/skirmish/internal/lobbyserver"
	"github.com/cory-johannsen/skirmish/internal/observability"
	"github.com/cory-johannsen/skirmish/internal/server"
	"github.com/cory-johannsen/skirmish/internal/storage/postgres"
	"github.com/cory-johannsen/skirmish/internal/transport"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	civsDir := flag.String("civilizations", "content/civilizations", "path to civilization YAML files directory")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting lobby server",
		zap.String("server", cfg.Server.Name),
		zap.String("protocol_version", cfg.Server.ProtocolVersion),
		zap.String("listen_addr", cfg.Listener.Addr()),
	)

	// Load ruleset content
	civStart := time.Now()
	civs, err := ruleset.LoadCivilizations(*civsDir)
	if err != nil {
		logger.Fatal("loading civilizations", zap.Error(err))
	}
	rules := ruleset.NewRules(civs, cfg.Lobby.MaxTeams)
	logger.Info("ruleset loaded",
		zap.Int("civilizations", len(civs)),
		zap.Int("max_teams", cfg.Lobby.MaxTeams),
		zap.Duration("elapsed", time.Since(civStart)),
	)

	// Connect to PostgreSQL for player identities
	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)
	playerRepo := postgres.NewPlayerRepository(pool.DB())

	// Wire the game state machine
	sessions := session.NewRegistry()
	games := match.NewRegistry()
	dispatcher := dispatch.New(sessions, games, rules, cfg.Lobby.MaxGameCapacity, logger)

	handler := lobbyserver.NewHandler(
		playerRepo,
		sessions,
		dispatcher,
		cfg.Server.Name,
		cfg.Server.ProtocolVersion,
		cfg.Lobby.MailboxSize,
		logger,
	)

	acceptor := transport.NewAcceptor(cfg.Listener, handler, logger)

	// Wire lifecycle
	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("acceptor", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})

	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error {
			for {
				time.Sleep(30 * time.Second)
				if err := pool.Health(ctx, 5*time.Second); err != nil {
					logger.Warn("database health check failed", zap.Error(err))
				}
			}
		},
		StopFn: func() {
			pool.Close()
		},
	})

	logger.Info("lobby server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
