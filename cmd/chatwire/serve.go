package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/chatwire/internal/server"
	"github.com/Tyrowin/chatwire/internal/store"
)

var serveFlags struct {
	addr     string
	httpAddr string
	dbPath   string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat relay",
	Long: `Start the chat relay. It listens for binary chat connections on the TCP
address and, when --http is set, exposes the WebSocket gateway together
with /healthz and /metrics on the HTTP address.

Examples:
  # Listen on the default address
  chatwire serve

  # Custom addresses and database
  chatwire serve --addr :9000 --http :9001 --db /var/lib/chatwire/chat.db`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.addr, "addr", "a", "", "override TCP listen address")
	serveCmd.Flags().StringVar(&serveFlags.httpAddr, "http", "", "enable the HTTP gateway on this address")
	serveCmd.Flags().StringVar(&serveFlags.dbPath, "db", "", "override SQLite database path")
}

func runServe(_ *cobra.Command, _ []string) error {
	logger := newLogger()
	cfg := server.NewConfigFromEnv()
	if serveFlags.addr != "" {
		cfg.Addr = serveFlags.addr
	}
	if serveFlags.httpAddr != "" {
		cfg.HTTPAddr = serveFlags.httpAddr
	}
	if serveFlags.dbPath != "" {
		cfg.DatabasePath = serveFlags.dbPath
	}

	db, err := store.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	relay := server.New(*cfg, db, db, logger)
	if err := relay.Start(); err != nil {
		return fmt.Errorf("start relay: %w", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	return relay.Shutdown()
}
