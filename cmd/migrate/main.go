package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/costlens/costlens/internal/clickhouse"
	"github.com/costlens/costlens/internal/config"
	"github.com/costlens/costlens/internal/logger"
	"github.com/costlens/costlens/internal/postgres"
	_ "github.com/lib/pq"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Print migration SQL without executing it")
	target := flag.String("target", "all", "Migration target: postgres, clickhouse or all")
	dir := flag.String("dir", "migrations", "Directory holding migration SQL files")
	flag.Parse()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if *target == "all" || *target == "postgres" {
		statements, err := loadStatements(filepath.Join(*dir, "postgres"))
		if err != nil {
			log.Fatalf("Failed to load postgres migrations: %v", err)
		}
		if *dryRun {
			printStatements("postgres", statements)
		} else {
			db, err := postgres.NewDB(cfg)
			if err != nil {
				log.Fatalf("Failed to connect to postgres: %v", err)
			}
			defer db.Close()

			for _, stmt := range statements {
				if _, err := db.ExecContext(ctx, stmt); err != nil {
					log.Fatalf("Postgres migration failed: %v", err)
				}
			}
			logger.Infow("applied postgres migrations", "statements", len(statements))
		}
	}

	if *target == "all" || *target == "clickhouse" {
		statements, err := loadStatements(filepath.Join(*dir, "clickhouse"))
		if err != nil {
			log.Fatalf("Failed to load clickhouse migrations: %v", err)
		}
		if *dryRun {
			printStatements("clickhouse", statements)
		} else {
			store, err := clickhouse.NewClickHouseStore(cfg)
			if err != nil {
				log.Fatalf("Failed to connect to clickhouse: %v", err)
			}
			defer store.Close()

			for _, stmt := range statements {
				if err := store.GetConn().Exec(ctx, stmt); err != nil {
					log.Fatalf("ClickHouse migration failed: %v", err)
				}
			}
			logger.Infow("applied clickhouse migrations", "statements", len(statements))
		}
	}
}

// loadStatements reads every .sql file of the directory in name order and
// splits it into statements on double semicolon-newline boundaries. One
// statement per file is the convention; the split is a safety net.
func loadStatements(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var statements []string
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		for _, stmt := range strings.Split(string(data), ";\n\n") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			statements = append(statements, stmt)
		}
	}
	return statements, nil
}

func printStatements(target string, statements []string) {
	for _, stmt := range statements {
		fmt.Printf("-- %s\n%s;\n\n", target, stmt)
	}
}
