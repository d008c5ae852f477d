package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"ticket-wallet/internal/config"
	"ticket-wallet/internal/logger"
	"ticket-wallet/internal/storage"
	rediswrap "ticket-wallet/internal/storage/redis"
)

func main() {
	_ = godotenv.Load()
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg := config.Load()

	var users []string
	dsn := cfg.Database.DSN
	redisAddr := cfg.Redis.Addr

	flagSet := pflag.NewFlagSet("wallet-migrate", pflag.ContinueOnError)
	flagSet.StringArrayVar(&users, "user", nil, "user id whose legacy events are moved (repeatable)")
	flagSet.StringVar(&dsn, "dsn", dsn, "durable store DSN (postgres:// or a sqlite file)")
	flagSet.StringVar(&redisAddr, "redis", redisAddr, "address of the legacy redis store")
	flagSet.SetOutput(stdout)

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if len(flagSet.Args()) > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Args()[0])
	}

	log := logger.New(stdout, logger.INFO)

	bunDB, err := storage.Open(dsn)
	if err != nil {
		return err
	}
	defer bunDB.Close()
	db := &storage.DB{Bun: bunDB, Logger: log}
	if err := db.CreateSchema(ctx); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	log.Info("MIGRATE", "Schema ready")

	if len(users) == 0 {
		return nil
	}

	client, err := rediswrap.Connect(redisAddr, cfg.Redis.DB, log)
	if err != nil {
		return err
	}
	defer client.Close()

	m := storage.NewMigrator(rediswrap.NewStore(client), db, log)
	var failed int
	for _, userID := range users {
		n, err := m.MigrateFromLegacy(ctx, userID)
		if err != nil {
			log.Error("MIGRATE", fmt.Sprintf("%s: %v", userID, err))
			failed++
			continue
		}
		log.Info("MIGRATE", fmt.Sprintf("%s: %d events migrated", userID, n))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d users failed to migrate", failed, len(users))
	}
	return nil
}
