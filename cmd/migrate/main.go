package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/dhernos/dynpages/internal/database"
)

func main() {
	_ = godotenv.Load()

	var (
		databaseURL = pflag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
		down        = pflag.Bool("down", false, "roll back the most recent migration")
		status      = pflag.Bool("status", false, "print the migration status and exit")
		timeout     = pflag.Duration("timeout", 2*time.Minute, "overall migration timeout")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [--down | --status] [--database-url URL]\n\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *databaseURL == "" {
		log.Fatal("DATABASE_URL or --database-url is required")
	}
	if *down && *status {
		log.Fatal("--down and --status are mutually exclusive")
	}

	dir := database.Up
	switch {
	case *down:
		dir = database.Down
	case *status:
		dir = database.Status
	}

	db, err := database.Connect(*databaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := database.Migrate(ctx, db, dir); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	log.Printf("migrate %s complete", dir)
}
