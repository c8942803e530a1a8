package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/takutakahashi/chatgpt-mirror/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "chatgpt-mirror",
	Short: "ChatGPT mirror server",
	Long:  "A reverse proxy that mirrors ChatGPT for users holding share tokens",
}

func init() {
	rootCmd.AddCommand(cmd.ServerCmd)
	rootCmd.AddCommand(cmd.ShareCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
