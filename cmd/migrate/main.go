// Command migrate manages the Postgres schema. The SQLite backend creates
// its schema on open and does not use this tool.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	var (
		databaseURL    = flag.String("database", "", "database URL (or DATABASE_URL env)")
		migrationsPath = flag.String("path", "migrations", "path to migrations directory")
		command        = flag.String("command", "up", "up, down, version or force")
	)
	flag.Parse()

	url := *databaseURL
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		log.Fatal("database URL required: -database flag or DATABASE_URL")
	}

	m, err := migrate.New(fmt.Sprintf("file://%s", *migrationsPath), url)
	if err != nil {
		log.Fatalf("create migrator: %v", err)
	}
	defer m.Close()

	switch *command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("migrate up: %v", err)
		}
		log.Println("schema is up to date")

	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("migrate down: %v", err)
		}
		log.Println("rollback complete")

	case "version":
		v, dirty, err := m.Version()
		if err != nil {
			log.Fatalf("version: %v", err)
		}
		log.Printf("version %d (dirty: %v)", v, dirty)

	case "force":
		if flag.NArg() < 1 {
			log.Fatal("force requires a version argument")
		}
		var v int
		if _, err := fmt.Sscanf(flag.Arg(0), "%d", &v); err != nil {
			log.Fatalf("invalid version %q", flag.Arg(0))
		}
		if err := m.Force(v); err != nil {
			log.Fatalf("force: %v", err)
		}
		log.Printf("forced version to %d", v)

	default:
		log.Fatalf("unknown command %q (use up, down, version, force)", *command)
	}
}
