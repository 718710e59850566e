package app

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/darshan-rambhia/netutil"
)

func newPostCmd(o *rootOptions) *cobra.Command {
	var (
		data        string
		dataFile    string
		form        []string
		contentType string
	)

	cmd := &cobra.Command{
		Use:   "post URL",
		Short: "Send a POST request and print the response body",
		Long: `Send a POST request with a text body (--data), a raw file body
(--data-file) or url-encoded form fields (--form key=value, repeatable).`,
		Example: `  netutil post https://example.com/api --data '{"a":1}' --content-type application/json
  netutil post https://example.com/login --form user=deploy --form token=abc`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := o.profile.HTTP.options(o.logger)
			if contentType != "" {
				opts = append(opts, netutil.WithContentType(contentType))
			}
			out := cmd.OutOrStdout()

			switch {
			case len(form) > 0:
				values, err := parseForm(form)
				if err != nil {
					return err
				}
				body, err := netutil.PostForm(cmd.Context(), args[0], values, opts...)
				if err != nil {
					return err
				}
				_, err = io.WriteString(out, body)
				return err

			case dataFile != "":
				payload, err := os.ReadFile(dataFile)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", dataFile, err)
				}
				body, err := netutil.PostBytes(cmd.Context(), args[0], payload, opts...)
				if err != nil {
					return err
				}
				_, err = out.Write(body)
				return err

			default:
				body, err := netutil.Post(cmd.Context(), args[0], data, opts...)
				if err != nil {
					return err
				}
				_, err = io.WriteString(out, body)
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "Request body as text")
	cmd.Flags().StringVar(&dataFile, "data-file", "", "Send the contents of a file as the request body")
	cmd.Flags().StringArrayVarP(&form, "form", "F", nil, "Form field as key=value")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Content-Type header")
	cmd.MarkFlagsMutuallyExclusive("data", "data-file", "form")

	return cmd
}

func parseForm(fields []string) (url.Values, error) {
	values := url.Values{}
	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid form field %q, expected key=value", field)
		}
		values.Add(key, value)
	}
	return values, nil
}
