// Command botctl inspects and manages grid bots stored in the bot database.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"gridBot/config"
	"gridBot/internal/adapters/logger"
	"gridBot/internal/adapters/sqlite"
	"gridBot/internal/domain"
)

const usage = `usage: botctl <command> [flags]

commands:
  list                       table of bots with trading statistics
  show    -bot ID            statistics, recent logs and alerts of one bot
  create  [flags]            register a new bot, -start to run it (see botctl create -h)
  start   -bot ID            mark a bot RUNNING; the server starts its engine
  stop    -bot ID            mark a bot STOPPED; the server stops its engine
  close   -bot ID -position P
                             ask the running engine to sell one open position
  set-active -bot ID -active=false
                             flip the activation switch read by running engines
  delete  -bot ID            remove a bot with its positions, trades, logs and alerts
  export  -bot ID -out FILE  write the bot's trades as CSV
  seal    -key K -secret S   print an encrypted credentials blob
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	if err := run(context.Background(), cfg, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		log.Fatalf("botctl %s: %v", os.Args[1], err)
	}
}

func run(ctx context.Context, cfg *config.Config, command string, args []string, out io.Writer) error {
	if command == "seal" {
		return runSeal(cfg, args, out)
	}

	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: logger.New(logger.Config{Level: "error", Output: "console"}),
	})
	if err != nil {
		return err
	}
	defer repo.Close()

	switch command {
	case "list":
		return runList(ctx, repo, out)
	case "show":
		return runShow(ctx, repo, args, out)
	case "create":
		return runCreate(ctx, cfg, repo, args, out)
	case "start":
		return runSetStatus(ctx, repo, command, domain.BotRunning, args, out)
	case "stop":
		return runSetStatus(ctx, repo, command, domain.BotStopped, args, out)
	case "close":
		return runClose(ctx, repo, args, out)
	case "set-active":
		return runSetActive(ctx, repo, args, out)
	case "delete":
		return runDelete(ctx, repo, args, out)
	case "export":
		return runExport(ctx, repo, args, out)
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}
