package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/ignite/campaign-engine/internal/repository/postgres"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding the migration files")
	steps := flag.Int("steps", 1, "number of migrations to roll back with down")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: migrate [flags] up|down|version\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	cmd := flag.Arg(0)
	switch cmd {
	case "up", "":
		if err := postgres.MigrateUp(dsn, *dir); err != nil {
			log.Fatalf("migrate up: %v", err)
		}
	case "down":
		if err := postgres.MigrateDown(dsn, *dir, *steps); err != nil {
			log.Fatalf("migrate down: %v", err)
		}
	case "version":
	default:
		flag.Usage()
		os.Exit(2)
	}

	version, dirty, err := postgres.MigrationVersion(dsn, *dir)
	if err != nil {
		log.Fatalf("read version: %v", err)
	}
	log.Printf("Schema version %d (dirty=%v)", version, dirty)
}
