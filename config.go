package netutil

import (
	"log/slog"
	"time"
)

// DefaultPort is the SSH port the SFTP client dials unless Config.Port is set.
const DefaultPort = 22

// Config holds SFTP connection configuration.
type Config struct {
	// Host is the target SSH server hostname or IP address.
	Host string

	// Port is the SSH port (default 22).
	Port int

	// User is the SSH username.
	User string

	// KeyPath is the path to the SSH private key file. A leading ~/ is
	// expanded to the user's home directory.
	KeyPath string

	// PrivateKey is the SSH private key content (PEM encoded).
	// Takes precedence over KeyPath.
	PrivateKey string

	// Passphrase decrypts an encrypted private key. Leave empty for
	// unencrypted keys.
	Passphrase []byte

	// KnownHostsFile enables host key verification against the given
	// known_hosts file. When empty, host keys are not checked.
	KnownHostsFile string

	// Timeout is the connection timeout (default 30s).
	Timeout time.Duration

	// IgnorePrefixes lists filename prefixes excluded from bulk transfers.
	IgnorePrefixes []string

	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// WithDefaults returns a copy of the config with default values applied.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// keyRef names the key in error messages without exposing its content.
func (c Config) keyRef() string {
	if c.PrivateKey != "" {
		return "<inline key>"
	}
	return c.KeyPath
}

// FileTransfer describes one transferred file.
type FileTransfer struct {
	// LocalPath is the file on the local side.
	LocalPath string

	// RemotePath is the file on the remote side.
	RemotePath string

	// Size is the number of bytes copied.
	Size int64

	// Overwritten is set when a download replaced an existing local file.
	Overwritten bool
}

// TransferResult summarises a bulk upload or download.
type TransferResult struct {
	// Files lists the transferred files in transfer order.
	Files []FileTransfer

	// Transferred is the number of files copied.
	Transferred int

	// Skipped is the number of entries excluded by the ignore list or
	// because they are not regular files.
	Skipped int

	// TotalSize is the number of bytes copied.
	TotalSize int64
}

func (r *TransferResult) add(ft FileTransfer) {
	r.Files = append(r.Files, ft)
	r.Transferred++
	r.TotalSize += ft.Size
}
