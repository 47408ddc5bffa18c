package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "grabbit",
		Short: "Telegram bot that fetches TikTok videos",
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the HTTP server, and the download workers",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
