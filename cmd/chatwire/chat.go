package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/chatwire/internal/client"
)

var chatFlags struct {
	addr        string
	username    string
	password    string
	downloadDir string
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join the chat from the terminal",
	Long: `Connect to a relay and chat. Plain lines are sent as text; directives:

  .file <path>    send a file
  .image <path>   send an image (png/jpeg/gif/webp)
  .quit           leave

Incoming files are saved under the download directory in files/ and
images/.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVarP(&chatFlags.addr, "addr", "a", "127.0.0.1:11111", "relay address")
	chatCmd.Flags().StringVarP(&chatFlags.username, "username", "u", "", "your username")
	chatCmd.Flags().StringVarP(&chatFlags.password, "password", "p", "", "your password")
	chatCmd.Flags().StringVar(&chatFlags.downloadDir, "downloads", ".", "directory for received files")
	_ = chatCmd.MarkFlagRequired("username")
	_ = chatCmd.MarkFlagRequired("password")
}

func runChat(cmd *cobra.Command, _ []string) error {
	c, err := client.Dial(client.Config{
		Addr:        chatFlags.addr,
		Username:    chatFlags.username,
		Password:    chatFlags.password,
		DownloadDir: chatFlags.downloadDir,
		Logger:      newLogger(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
