package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rapidoc/docsync/internal/config"
	"github.com/rapidoc/docsync/internal/engine"
	"github.com/rapidoc/docsync/internal/remote"
	"github.com/rapidoc/docsync/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	userID    string
	outFormat string
	logLevel  string

	// openStore is replaced in tests with a shared in-memory store.
	openStore = remote.Open
)

var rootCmd = &cobra.Command{
	Use:           "docsyncctl",
	Short:         "Headless client for the document sync engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(logLevel)
	},
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&userID, "user", "u", "", "identity to act as (required by document commands)")
	f.StringVarP(&outFormat, "output", "o", "yaml", "output format: yaml or json")
	f.StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	f.String("store", "", "remote store backend: memory, redis, mongo, firestore (overrides STORE_BACKEND)")
	f.String("redis-host", "", "Redis host (overrides REDIS_HOST)")
	f.String("mongodb-uri", "", "MongoDB URI (overrides MONGODB_URI)")
	f.String("firestore-project", "", "Firestore project (overrides FIRESTORE_PROJECT_ID)")

	// config.LoadConfig reads these keys from the global viper instance
	_ = viper.BindPFlag("STORE_BACKEND", f.Lookup("store"))
	_ = viper.BindPFlag("REDIS_HOST", f.Lookup("redis-host"))
	_ = viper.BindPFlag("MONGODB_URI", f.Lookup("mongodb-uri"))
	_ = viper.BindPFlag("FIRESTORE_PROJECT_ID", f.Lookup("firestore-project"))
}

// client is an open engine session plus the resources behind it.
type client struct {
	cfg     *config.Config
	session *engine.Session
	release func()
}

func (c *client) Close() {
	c.session.Close()
	c.release()
}

// connect loads configuration, opens the store and starts a session for
// --user. editor may be nil.
func connect(ctx context.Context, editor engine.EditorAdapter) (*client, error) {
	if userID == "" {
		return nil, fmt.Errorf("--user is required")
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	store, release, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := remote.EnsureOwner(ctx, store, userID); err != nil {
		logger.Warnf("could not seed document record for %s: %v", userID, err)
	}
	eng := engine.New(store, engine.Options{
		StoreTimeout: cfg.Sync.StoreTimeout,
		QueueSize:    cfg.Sync.QueueSize,
		SignalBuffer: cfg.Sync.SignalBuffer,
	})
	sess, err := eng.Open(engine.Identity{UserID: userID}, editor)
	if err != nil {
		release()
		return nil, err
	}
	return &client{cfg: cfg, session: sess, release: release}, nil
}
