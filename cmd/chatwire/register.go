package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/chatwire/internal/server"
	"github.com/Tyrowin/chatwire/internal/store"
)

var registerFlags struct {
	username string
	password string
	dbPath   string
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a user in the credential database",
	RunE:  runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().StringVarP(&registerFlags.username, "username", "u", "", "username to register")
	registerCmd.Flags().StringVarP(&registerFlags.password, "password", "p", "", "password to register")
	registerCmd.Flags().StringVar(&registerFlags.dbPath, "db", "", "override SQLite database path")
	_ = registerCmd.MarkFlagRequired("username")
	_ = registerCmd.MarkFlagRequired("password")
}

func runRegister(cmd *cobra.Command, _ []string) error {
	dbPath := registerFlags.dbPath
	if dbPath == "" {
		dbPath = server.NewConfigFromEnv().DatabasePath
	}

	db, err := store.OpenSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Register(cmd.Context(), registerFlags.username, registerFlags.password); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return fmt.Errorf("username %q is already taken", registerFlags.username)
		}
		return err
	}
	fmt.Printf("User %s registered successfully.\n", registerFlags.username)
	return nil
}
