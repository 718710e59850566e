package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/darshan-rambhia/netutil"
)

// envPrefix namespaces every environment override.
const envPrefix = "NETUTIL_"

// Profile holds the settings shared by all subcommands. Values are layered:
// defaults, then the YAML profile file, then the environment, then flags.
type Profile struct {
	HTTP HTTPProfile `yaml:"http"`
	SFTP SFTPProfile `yaml:"sftp"`
}

// HTTPProfile configures the get and post commands.
type HTTPProfile struct {
	User        string        `yaml:"user"`
	Password    string        `yaml:"password"`
	Timeout     time.Duration `yaml:"timeout"`
	Compression bool          `yaml:"compression"`
	// Fail turns non-2xx responses into a command error.
	Fail bool `yaml:"fail"`
}

// SFTPProfile configures the upload and download commands.
type SFTPProfile struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	User       string        `yaml:"user"`
	Key        string        `yaml:"key"`
	Passphrase string        `yaml:"passphrase"`
	KnownHosts string        `yaml:"knownHosts"`
	Timeout    time.Duration `yaml:"timeout"`
	Ignore     []string      `yaml:"ignore"`
}

// options converts the profile into request options.
func (p HTTPProfile) options(logger *slog.Logger) []netutil.Option {
	opts := []netutil.Option{
		netutil.WithLogger(logger),
		netutil.WithCompression(p.Compression),
	}
	if p.User != "" || p.Password != "" {
		opts = append(opts, netutil.WithBasicAuth(p.User, p.Password))
	}
	if p.Timeout > 0 {
		opts = append(opts, netutil.WithTimeout(p.Timeout))
	}
	if p.Fail {
		opts = append(opts, netutil.WithStatusCheck())
	}
	return opts
}

// config converts the profile into an SFTP client configuration.
func (p SFTPProfile) config(logger *slog.Logger) (netutil.Config, error) {
	if p.Host == "" {
		return netutil.Config{}, fmt.Errorf("SFTP host is required (--host or %sSFTP_HOST)", envPrefix)
	}
	if p.User == "" {
		return netutil.Config{}, fmt.Errorf("SFTP user is required (--ssh-user or %sSFTP_USER)", envPrefix)
	}
	if p.Key == "" {
		return netutil.Config{}, fmt.Errorf("SSH private key is required (--key or %sSFTP_KEY)", envPrefix)
	}

	config := netutil.Config{
		Host:           p.Host,
		Port:           p.Port,
		User:           p.User,
		KeyPath:        p.Key,
		KnownHostsFile: p.KnownHosts,
		Timeout:        p.Timeout,
		IgnorePrefixes: p.Ignore,
		Logger:         logger,
	}
	if p.Passphrase != "" {
		config.Passphrase = []byte(p.Passphrase)
	}
	return config, nil
}

// ProfileBuilder layers profile sources in order.
type ProfileBuilder struct {
	profile *Profile
	err     error
}

// NewProfileBuilder returns a ProfileBuilder with default settings.
func NewProfileBuilder() *ProfileBuilder {
	return &ProfileBuilder{
		profile: &Profile{
			SFTP: SFTPProfile{Port: netutil.DefaultPort},
		},
	}
}

// LoadFile loads settings from a YAML file. An empty path is skipped.
func (b *ProfileBuilder) LoadFile(path string) *ProfileBuilder {
	if b.err != nil || path == "" {
		return b
	}

	data, err := os.ReadFile(netutil.ExpandPath(path))
	if err != nil {
		b.err = fmt.Errorf("failed to read config file: %w", err)
		return b
	}

	if err := yaml.Unmarshal(data, b.profile); err != nil {
		b.err = fmt.Errorf("failed to parse config file %s: %w", path, err)
		return b
	}

	return b
}

// WithEnv loads .env.local and .env from dirpath, then applies NETUTIL_*
// overrides from the environment. Variables already set in the process
// environment are not replaced by the files.
func (b *ProfileBuilder) WithEnv(dirpath string) *ProfileBuilder {
	if b.err != nil {
		return b
	}

	_ = godotenv.Load(filepath.Join(dirpath, ".env.local"))
	_ = godotenv.Load(filepath.Join(dirpath, ".env"))

	if err := applyEnv(b.profile, os.LookupEnv); err != nil {
		b.err = fmt.Errorf("failed to override configuration from environment: %w", err)
	}

	return b
}

// WithFlags applies flags that were set explicitly on the command line.
func (b *ProfileBuilder) WithFlags(fs *pflag.FlagSet) *ProfileBuilder {
	if b.err != nil {
		return b
	}

	if err := applyFlags(b.profile, fs); err != nil {
		b.err = fmt.Errorf("failed to apply flags: %w", err)
	}

	return b
}

// Build validates and returns the final Profile.
func (b *ProfileBuilder) Build() (*Profile, error) {
	if b.err != nil {
		return nil, b.err
	}

	if b.profile.SFTP.Port < 1 || b.profile.SFTP.Port > 65535 {
		return nil, fmt.Errorf("invalid configuration: SFTP port %d out of range", b.profile.SFTP.Port)
	}
	if b.profile.HTTP.Timeout < 0 || b.profile.SFTP.Timeout < 0 {
		return nil, fmt.Errorf("invalid configuration: timeouts must not be negative")
	}

	return b.profile, nil
}

func applyEnv(p *Profile, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(envPrefix + name)
		if !ok {
			return nil
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = parsed
		return nil
	}
	duration := func(name string, dst *time.Duration) error {
		v, ok := lookup(envPrefix + name)
		if !ok {
			return nil
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = parsed
		return nil
	}

	str("HTTP_USER", &p.HTTP.User)
	str("HTTP_PASSWORD", &p.HTTP.Password)
	str("SFTP_HOST", &p.SFTP.Host)
	str("SFTP_USER", &p.SFTP.User)
	str("SFTP_KEY", &p.SFTP.Key)
	str("SFTP_PASSPHRASE", &p.SFTP.Passphrase)
	str("SFTP_KNOWN_HOSTS", &p.SFTP.KnownHosts)

	if v, ok := lookup(envPrefix + "SFTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sSFTP_PORT: %w", envPrefix, err)
		}
		p.SFTP.Port = port
	}
	if v, ok := lookup(envPrefix + "SFTP_IGNORE"); ok {
		p.SFTP.Ignore = splitList(v)
	}

	if err := boolean("HTTP_FAIL", &p.HTTP.Fail); err != nil {
		return err
	}
	if err := boolean("HTTP_COMPRESSION", &p.HTTP.Compression); err != nil {
		return err
	}
	if err := duration("HTTP_TIMEOUT", &p.HTTP.Timeout); err != nil {
		return err
	}
	return duration("SFTP_TIMEOUT", &p.SFTP.Timeout)
}

func applyFlags(p *Profile, fs *pflag.FlagSet) error {
	var err error
	str := func(name string, dst *string) {
		if err == nil && fs.Lookup(name) != nil && fs.Changed(name) {
			*dst, err = fs.GetString(name)
		}
	}

	str("user", &p.HTTP.User)
	str("password", &p.HTTP.Password)
	str("host", &p.SFTP.Host)
	str("ssh-user", &p.SFTP.User)
	str("key", &p.SFTP.Key)
	str("passphrase", &p.SFTP.Passphrase)
	str("known-hosts", &p.SFTP.KnownHosts)
	if err != nil {
		return err
	}

	if fs.Changed("port") {
		if p.SFTP.Port, err = fs.GetInt("port"); err != nil {
			return err
		}
	}
	if fs.Changed("ignore") {
		if p.SFTP.Ignore, err = fs.GetStringSlice("ignore"); err != nil {
			return err
		}
	}
	if fs.Changed("fail") {
		if p.HTTP.Fail, err = fs.GetBool("fail"); err != nil {
			return err
		}
	}
	if fs.Changed("compressed") {
		if p.HTTP.Compression, err = fs.GetBool("compressed"); err != nil {
			return err
		}
	}
	if fs.Changed("timeout") {
		timeout, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		p.HTTP.Timeout = timeout
		p.SFTP.Timeout = timeout
	}
	return nil
}

// splitList splits a comma separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
