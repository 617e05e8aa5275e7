// Command safetyctl is the operator CLI: offline exports, schema
// migrations and configuration checks.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/DukeRupert/safetyline/internal"
	"github.com/DukeRupert/safetyline/internal/store"
)

var (
	// Global flags
	documentStore string
	databaseURL   string
	mongoURI      string
	mongoDatabase string
	logLevel      string
)

var rootCmd = &cobra.Command{
	Use:   "safetyctl",
	Short: "Operator tools for the SafetyLine API",
	Long: `safetyctl runs maintenance tasks against the SafetyLine stores.

Connection settings default to the same environment variables the server
reads (DOCUMENT_STORE, DATABASE_URL, MONGO_URI, MONGO_DATABASE). A .env file
in the working directory is loaded first when present.

Examples:
  safetyctl export users --company Acme --format pdf
  safetyctl migrate up
  safetyctl serve-check`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		applyEnvDefaults(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&documentStore, "store", "postgres", "Document store: postgres, mongo or memory (env DOCUMENT_STORE)")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres connection string (env DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&mongoURI, "mongo-uri", "", "MongoDB connection string (env MONGO_URI)")
	rootCmd.PersistentFlags().StringVar(&mongoDatabase, "mongo-database", "safetyline", "MongoDB database name (env MONGO_DATABASE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
}

// applyEnvDefaults fills flags the user did not set from the environment.
func applyEnvDefaults(cmd *cobra.Command) {
	flags := cmd.Flags()
	for flag, env := range map[string]string{
		"store":          "DOCUMENT_STORE",
		"database-url":   "DATABASE_URL",
		"mongo-uri":      "MONGO_URI",
		"mongo-database": "MONGO_DATABASE",
	} {
		if flags.Changed(flag) {
			continue
		}
		if v := os.Getenv(env); v != "" {
			_ = flags.Set(flag, v)
		}
	}
}

// newLogger writes human-readable logs to stderr so stdout stays clean.
func newLogger() *slog.Logger {
	return internal.NewLogger(os.Stderr, "development", logLevel)
}

// openDatabase opens and pings the Postgres handle named by --database-url.
func openDatabase(ctx context.Context) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL (or --database-url) is required")
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// openDocumentStore returns the configured store and a func releasing it.
func openDocumentStore(ctx context.Context) (store.DocumentStore, func(), error) {
	switch documentStore {
	case "postgres":
		db, err := openDatabase(ctx)
		if err != nil {
			return nil, nil, err
		}
		return store.NewPostgresStore(db), func() { db.Close() }, nil
	case "mongo":
		if mongoURI == "" {
			return nil, nil, fmt.Errorf("MONGO_URI (or --mongo-uri) is required")
		}
		m, err := store.NewMongoStore(ctx, mongoURI, mongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to mongo: %w", err)
		}
		return m, func() { m.Close(context.Background()) }, nil
	case "memory":
		return store.NewMemoryStore(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown document store %q", documentStore)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
