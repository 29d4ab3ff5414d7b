// Package main provides a CLI tool for registering player identities
// without going through the lobby protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cory-johannsen/skirmish/internal/config"
	"github.com/cory-johannsen/skirmish/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	name := flag.String("name", "", "player name (required)")
	password := flag.String("password", "", "player password (required)")
	flag.Parse()

	if *name == "" || *password == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	defer pool.Close()

	repo := postgres.NewPlayerRepository(pool.DB())

	player, err := repo.Create(ctx, *name, *password)
	if err != nil {
		if errors.Is(err, postgres.ErrPlayerExists) {
			log.Fatalf("player %q already exists", *name)
		}
		log.Fatalf("creating player: %v", err)
	}

	elapsed := time.Since(start)
	fmt.Fprintf(os.Stdout, "created player %s (#%d) [%s]\n",
		player.Name, player.ID, elapsed)
}
