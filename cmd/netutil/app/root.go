package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/darshan-rambhia/netutil"
)

// rootOptions is shared by every subcommand. profile and logger are filled
// in before a subcommand runs.
type rootOptions struct {
	configFile string
	envDir     string
	verbose    bool

	profile *Profile
	logger  *slog.Logger
}

// NewRootCommand builds the netutil command tree.
func NewRootCommand() *cobra.Command {
	o := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "netutil",
		Short: "One-shot HTTP requests and bulk SFTP transfers",
		Long: `netutil sends single HTTP GET/POST requests and moves whole folders
over SFTP. Settings come from a YAML profile (--config), .env files and
NETUTIL_* environment variables; flags override all of them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.complete(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&o.configFile, "config", "c", "", "YAML profile file")
	flags.StringVar(&o.envDir, "env-dir", ".", "Directory searched for .env and .env.local")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "Enable debug logging")
	flags.Duration("timeout", 0, "Request or connection timeout, e.g. 30s")

	// HTTP
	flags.String("user", "", "HTTP basic-auth user")
	flags.String("password", "", "HTTP basic-auth password")
	flags.Bool("fail", false, "Exit with an error on non-2xx responses")
	flags.Bool("compressed", false, "Request a gzip-compressed response")

	// SFTP
	flags.String("host", "", "SFTP host")
	flags.Int("port", netutil.DefaultPort, "SFTP port")
	flags.String("ssh-user", "", "SFTP user")
	flags.String("key", "", "SSH private key file")
	flags.String("passphrase", "", "Passphrase for an encrypted private key")
	flags.String("known-hosts", "", "known_hosts file used to verify the host key")
	flags.StringSlice("ignore", nil, "Filename prefixes to skip, e.g. --ignore .,tmp")

	cmd.AddCommand(
		newGetCmd(o),
		newPostCmd(o),
		newUploadCmd(o),
		newDownloadCmd(o),
		newVersionCmd(),
	)

	return cmd
}

func (o *rootOptions) complete(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	o.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	profile, err := NewProfileBuilder().
		LoadFile(o.configFile).
		WithEnv(o.envDir).
		WithFlags(cmd.Flags()).
		Build()
	if err != nil {
		return err
	}
	o.profile = profile
	return nil
}

// sftpClient connects using the SFTP section of the profile.
func (o *rootOptions) sftpClient() (*netutil.Client, error) {
	config, err := o.profile.SFTP.config(o.logger)
	if err != nil {
		return nil, err
	}
	return netutil.NewClient(config)
}

// Run executes the root command, cancelling on SIGINT or SIGTERM. This is
// the entry point called by main.go.
func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCommand().ExecuteContext(ctx)
}
