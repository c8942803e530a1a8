package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/takutakahashi/chatgpt-mirror/internal/di"
	"github.com/takutakahashi/chatgpt-mirror/internal/domain/entities"
	"github.com/takutakahashi/chatgpt-mirror/internal/usecases/share"
)

type shareOptions struct {
	config      string
	userName    string
	accessToken string
	expiresIn   time.Duration
	revoke      bool
}

var shareOpts shareOptions

var ShareCmd = &cobra.Command{
	Use:   "share",
	Short: "Issue or revoke a share token",
	Long: `Issue a share token for a user directly against the registry.

The token is derived from the access token and the user name, so issuing again
for the same pair prints the same token. Any other token held by the user stops
working. Use --revoke to remove the user's share instead.`,
	RunE: runShare,
}

func init() {
	ShareCmd.Flags().StringVarP(&shareOpts.config, "config", "c", "", "Configuration file path")
	ShareCmd.Flags().StringVarP(&shareOpts.userName, "user", "u", "", "User name the share is issued to")
	ShareCmd.Flags().StringVarP(&shareOpts.accessToken, "access-token", "t", "", "Upstream access token")
	ShareCmd.Flags().DurationVar(&shareOpts.expiresIn, "expires-in", 0, "Lifetime of the share (0 never expires)")
	ShareCmd.Flags().BoolVar(&shareOpts.revoke, "revoke", false, "Revoke the user's share")

	if err := ShareCmd.MarkFlagRequired("user"); err != nil {
		log.Printf("Failed to mark user flag required: %v", err)
	}
}

func runShare(cmd *cobra.Command, args []string) error {
	configData := loadServerConfig(shareOpts.config)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	container, err := di.NewContainer(ctx, configData, false)
	if err != nil {
		return err
	}
	defer func() { _ = container.Close() }()

	if container.Backend == di.BackendMemory {
		log.Printf("Warning: no redis configured, the share only lives for this command")
	}
	return executeShare(ctx, container.Registry, shareOpts, time.Now(), cmd.OutOrStdout())
}

func executeShare(ctx context.Context, registry *share.Registry, opts shareOptions, now time.Time, out io.Writer) error {
	if opts.revoke {
		if err := registry.RevokeShare(ctx, opts.userName); err != nil {
			return err
		}
		_, err := fmt.Fprintf(out, "Revoked share of %s\n", opts.userName)
		return err
	}

	s, err := entities.NewShare(opts.userName, opts.accessToken)
	if err != nil {
		return err
	}
	if opts.expiresIn > 0 {
		s.SetExpireAt(now.Add(opts.expiresIn).Unix())
	}

	token, err := registry.IssueShare(ctx, s)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
