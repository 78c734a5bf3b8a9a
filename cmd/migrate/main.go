// Command migrate runs database migrations via goose.
//
// Usage:
//
//	go run ./cmd/migrate up           # Apply all pending migrations
//	go run ./cmd/migrate down         # Roll back the last migration
//	go run ./cmd/migrate status       # Show migration status
//	go run ./cmd/migrate -usage up    # Run against USAGE_DATABASE_URL
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

const migrationsDir = "migrations"

func main() {
	useUsageDB := flag.Bool("usage", false, "run against USAGE_DATABASE_URL instead of DATABASE_URL")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: migrate [-usage] <command>")
		fmt.Println("Commands: up, down, status, version, redo, up-to <version>, down-to <version>")
		os.Exit(1)
	}

	envVar := "DATABASE_URL"
	if *useUsageDB {
		envVar = "USAGE_DATABASE_URL"
	}
	dbURL := os.Getenv(envVar)
	if dbURL == "" {
		log.Fatalf("%s environment variable is required", envVar)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	if err := goose.RunContext(context.Background(), command, db, migrationsDir, args...); err != nil {
		log.Fatalf("Migration %s failed: %v", command, err)
	}
}
