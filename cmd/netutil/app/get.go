package app

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/darshan-rambhia/netutil"
)

func newGetCmd(o *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get URL",
		Short: "Send a GET request and print the response body",
		Long: `Send a GET request and print the response body to stdout, or save the
raw bytes with --output. https servers are not verified.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := o.profile.HTTP.options(o.logger)

			if output != "" {
				body, err := netutil.GetBytes(cmd.Context(), args[0], opts...)
				if err != nil {
					return err
				}
				if err := os.WriteFile(output, body, 0644); err != nil {
					return fmt.Errorf("failed to write response to %s: %w", output, err)
				}
				o.logger.Info("response saved", "path", output, "bytes", len(body))
				return nil
			}

			body, err := netutil.Get(cmd.Context(), args[0], opts...)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), body)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the raw response body to a file")

	return cmd
}
