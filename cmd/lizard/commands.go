package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/lizard-client/pkg/client"
	"github.com/Sternrassler/lizard-client/pkg/connector"
	"github.com/Sternrassler/lizard-client/pkg/endpoint"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newEndpointsCmd(v *viper.Viper) *cobra.Command {
	var discover bool

	cmd := &cobra.Command{
		Use:     "endpoints",
		Aliases: []string{"eps"},
		Short:   "List known endpoints",
		Long:    "List the built-in and configured endpoints, or discover them from the API root",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := newApp(ctx, v)
			if err != nil {
				return err
			}
			defer a.Close()

			eps := a.registry.List()
			if discover {
				root, err := a.client.Resolve("")
				if err != nil {
					return err
				}
				eps, err = endpoint.Discover(ctx, a.client, root, credentials(v))
				if err != nil {
					return fmt.Errorf("failed to discover endpoints: %w", err)
				}
			}

			return renderEndpoints(cmd.OutOrStdout(), v.GetString("output"), eps)
		},
	}

	cmd.Flags().BoolVar(&discover, "discover", false, "list the resources advertised by the API root")

	return cmd
}

func newDownloadCmd(v *viper.Viper) *cobra.Command {
	var (
		filters filterFlags
		async   bool
	)

	cmd := &cobra.Command{
		Use:   "download ENDPOINT",
		Short: "Download all records of an endpoint",
		Long: `Download all records of an endpoint, following every result page.

With --redis configured, a download interrupted by server or network errors
leaves a checkpoint that "lizard resume" continues from.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descriptors, err := filters.descriptors()
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := newApp(ctx, v)
			if err != nil {
				return err
			}
			defer a.Close()

			var res *connector.Result
			if async {
				res, err = a.connector.DownloadAsync(ctx, args[0], descriptors...)
			} else {
				res, err = a.connector.Download(ctx, args[0], descriptors...)
			}
			return report(cmd, v, a, res, err)
		},
	}

	filters.register(cmd)
	cmd.Flags().BoolVar(&async, "async", false, "let the server prepare the result as a background task")

	return cmd
}

func newResumeCmd(v *viper.Viper) *cobra.Command {
	var filters filterFlags

	cmd := &cobra.Command{
		Use:   "resume ENDPOINT",
		Short: "Continue an interrupted download",
		Long:  "Continue an interrupted download from its checkpoint. Use the same filters as the original download.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if v.GetString("redis") == "" {
				return errors.New("resume needs checkpoints: set --redis or LIZARD_REDIS")
			}

			descriptors, err := filters.descriptors()
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := newApp(ctx, v)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.connector.Resume(ctx, args[0], descriptors...)
			return report(cmd, v, a, res, err)
		},
	}

	filters.register(cmd)

	return cmd
}

func newURLCmd(v *viper.Viper) *cobra.Command {
	var filters filterFlags

	cmd := &cobra.Command{
		Use:   "url ENDPOINT",
		Short: "Print the first request URL of a download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descriptors, err := filters.descriptors()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.connector.URL(args[0], descriptors...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}

	filters.register(cmd)

	return cmd
}

// report prints the records of res, complete or partial, and a summary.
func report(cmd *cobra.Command, v *viper.Viper, a *app, res *connector.Result, err error) error {
	if res != nil && (err == nil || len(res.Records) > 0) {
		if rerr := renderRecords(cmd.OutOrStdout(), v.GetString("output"), res.Records); rerr != nil {
			return rerr
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%d records from %d pages (%d skipped)\n",
			len(res.Records), res.Pages, res.Skipped)
	}

	if err != nil {
		var transient *client.TransientFetchError
		if errors.As(err, &transient) && a.redis != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), `Checkpoint saved, run "lizard resume" with the same flags to continue.`)
		}
		return err
	}
	return nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
