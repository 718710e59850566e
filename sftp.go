package netutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// State is the lifecycle state of a Client.
type State int

const (
	// StateUninitialized is the zero state; no session was ever opened.
	StateUninitialized State = iota
	// StateConnected means the SSH session and SFTP channel are open.
	StateConnected
	// StateClosed means Destroy has been called. There is no reconnect.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "uninitialized"
	}
}

// SFTPClientInterface abstracts SFTP operations for testing.
type SFTPClientInterface interface {
	Open(path string) (SFTPFile, error)
	Create(path string) (SFTPFile, error)
	Mkdir(path string) error
	ReadDir(path string) ([]os.FileInfo, error)
	Close() error
}

// SFTPFile abstracts file operations for testing.
type SFTPFile interface {
	io.Reader
	io.Writer
	io.Closer
}

// SFTPClientWrapper wraps the real sftp.Client to implement SFTPClientInterface.
type SFTPClientWrapper struct {
	client *sftp.Client
}

var _ SFTPClientInterface = (*SFTPClientWrapper)(nil)

func (w *SFTPClientWrapper) Open(path string) (SFTPFile, error)   { return w.client.Open(path) }
func (w *SFTPClientWrapper) Create(path string) (SFTPFile, error) { return w.client.Create(path) }
func (w *SFTPClientWrapper) Mkdir(path string) error              { return w.client.Mkdir(path) }
func (w *SFTPClientWrapper) ReadDir(path string) ([]os.FileInfo, error) {
	return w.client.ReadDir(path)
}
func (w *SFTPClientWrapper) Close() error { return w.client.Close() }

// session owns the SSH connection and the SFTP channel running on it. They
// are opened together and released together.
type session struct {
	sshClient  *ssh.Client
	sftpClient SFTPClientInterface
}

func (s *session) close() error {
	var result *multierror.Error
	if s.sftpClient != nil {
		if err := s.sftpClient.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close SFTP channel: %w", err))
		}
	}
	if s.sshClient != nil {
		if err := s.sshClient.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, fmt.Errorf("failed to close SSH connection: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// Client is a single authenticated SFTP session with bulk upload and
// download. It is not safe for concurrent use.
type Client struct {
	addr    string
	session *session
	state   State
	ignore  []string
	logger  *slog.Logger
}

// NewClient connects to config.Host and opens an SFTP channel. Any failure
// is returned as an ErrConnection and no client is created.
func NewClient(config Config) (*Client, error) {
	config = config.WithDefaults()
	addr := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))

	connErr := func(err error) error {
		return newError(KindConnection, "connect", addr,
			fmt.Errorf("could not connect to host %s using key %s for user %s: %w",
				config.Host, config.keyRef(), config.User, err))
	}

	signer, err := buildSigner(config)
	if err != nil {
		return nil, connErr(err)
	}
	config.Logger.Debug("identity added", "key", config.keyRef())

	hostKeyCallback, err := buildHostKeyCallback(config)
	if err != nil {
		return nil, connErr(fmt.Errorf("failed to configure host key verification: %w", err))
	}

	sshConfig := &ssh.ClientConfig{
		User:            config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         config.Timeout,
	}

	sshClient, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, connErr(fmt.Errorf("failed to open SSH session: %w", err))
	}
	config.Logger.Debug("session connected", "addr", addr)

	rawSftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, connErr(fmt.Errorf("failed to open SFTP channel: %w", err))
	}
	config.Logger.Debug("sftp channel connected", "addr", addr)

	return newConnectedClient(config, addr, &session{
		sshClient:  sshClient,
		sftpClient: &SFTPClientWrapper{client: rawSftpClient},
	}), nil
}

// NewClientWithSFTP creates a connected Client around an existing SFTP
// client. This is primarily used for testing with mock SFTP clients.
func NewClientWithSFTP(config Config, sftpClient SFTPClientInterface, sshClient *ssh.Client) *Client {
	config = config.WithDefaults()
	addr := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	return newConnectedClient(config, addr, &session{
		sshClient:  sshClient,
		sftpClient: sftpClient,
	})
}

func newConnectedClient(config Config, addr string, s *session) *Client {
	return &Client{
		addr:    addr,
		session: s,
		state:   StateConnected,
		ignore:  config.IgnorePrefixes,
		logger:  config.Logger,
	}
}

// State reports where the client is in its lifecycle.
func (c *Client) State() State {
	if c == nil {
		return StateUninitialized
	}
	return c.state
}

// IgnoreFiles returns the filename prefixes excluded from bulk transfers.
func (c *Client) IgnoreFiles() []string {
	return c.ignore
}

// SetIgnoreFiles replaces the filename prefixes excluded from bulk transfers.
func (c *Client) SetIgnoreFiles(prefixes []string) {
	c.ignore = prefixes
}

func (c *Client) ensureConnected(op string) error {
	if state := c.State(); state != StateConnected {
		return newError(KindState, op, "", fmt.Errorf("client is %s", state))
	}
	return nil
}

// Destroy closes the SFTP channel and then the SSH connection. The client
// cannot be used afterwards.
func (c *Client) Destroy() error {
	if err := c.ensureConnected("destroy"); err != nil {
		return err
	}

	c.state = StateClosed
	err := c.session.close()
	c.session = nil
	if err != nil {
		return newError(KindIO, "destroy", c.addr, err)
	}
	c.logger.Debug("sftp session closed", "addr", c.addr)
	return nil
}

// Close is Destroy for use with defer. Closing a client that is not
// connected is a no-op.
func (c *Client) Close() error {
	if c.State() != StateConnected {
		return nil
	}
	return c.Destroy()
}

// UploadFiles uploads every file found under localDir, recursively, into
// remoteDir. Directory structure is flattened: each file keeps only its base
// name. Files whose names match the ignore list are skipped.
//
// A missing localDir is logged and is not an error. The remote folder is
// created if possible; a failure to create it (usually because it already
// exists) is ignored. The first failing file aborts the batch.
func (c *Client) UploadFiles(ctx context.Context, localDir, remoteDir string) (*TransferResult, error) {
	if err := c.ensureConnected("upload"); err != nil {
		return nil, err
	}

	result := &TransferResult{}
	ok, err := c.localDirExists("upload", localDir)
	if !ok || err != nil {
		return result, err
	}

	files, err := ScanDirectory(localDir)
	if err != nil {
		return nil, newError(KindIO, "upload", localDir, fmt.Errorf("failed to scan directory: %w", err))
	}

	if err := c.session.sftpClient.Mkdir(remoteDir); err != nil {
		c.logger.Debug("remote folder not created", "path", remoteDir, "error", err)
	}

	for _, localPath := range files {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("upload cancelled: %w", err)
		}

		name := filepath.Base(localPath)
		if !IsRealFile(name) || IsIgnored(name, c.ignore) {
			result.Skipped++
			continue
		}

		remotePath := path.Join(remoteDir, name)
		size, err := c.upload(localPath, remotePath)
		if err != nil {
			return result, newError(KindTransfer, "upload", localPath, err)
		}
		result.add(FileTransfer{LocalPath: localPath, RemotePath: remotePath, Size: size})
		c.logger.Debug("upload", "file", name, "remote", remotePath, "size", size)
	}

	return result, nil
}

// DownloadFiles downloads every file listed in remoteDir into localDir.
// Subdirectories are not descended into. An existing local file with the
// same name is overwritten.
//
// A missing localDir is logged and is not an error. The first failing file
// aborts the batch.
func (c *Client) DownloadFiles(ctx context.Context, remoteDir, localDir string) (*TransferResult, error) {
	if err := c.ensureConnected("download"); err != nil {
		return nil, err
	}

	result := &TransferResult{}
	ok, err := c.localDirExists("download", localDir)
	if !ok || err != nil {
		return result, err
	}

	entries, err := c.session.sftpClient.ReadDir(remoteDir)
	if err != nil {
		return nil, newError(KindTransfer, "download", remoteDir, fmt.Errorf("failed to list remote folder: %w", err))
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("download cancelled: %w", err)
		}

		name := entry.Name()
		if !IsRealFile(name) || IsIgnored(name, c.ignore) {
			result.Skipped++
			continue
		}
		if entry.IsDir() {
			c.logger.Debug("skipping remote folder", "path", path.Join(remoteDir, name))
			result.Skipped++
			continue
		}

		remotePath := path.Join(remoteDir, name)
		localPath := filepath.Join(localDir, name)

		overwritten := false
		if _, err := os.Stat(localPath); err == nil {
			c.logger.Info("file already exists", "path", absPath(localPath))
			overwritten = true
		}

		size, err := c.download(remotePath, localPath)
		if err != nil {
			return result, newError(KindTransfer, "download", remotePath, err)
		}
		result.add(FileTransfer{LocalPath: localPath, RemotePath: remotePath, Size: size, Overwritten: overwritten})
		c.logger.Debug("download", "file", name, "local", localPath, "size", size)
	}

	return result, nil
}

// UploadFile copies one local file to remotePath. The remote parent folder
// must exist.
func (c *Client) UploadFile(ctx context.Context, localPath, remotePath string) error {
	if err := c.ensureConnected("upload"); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("operation cancelled: %w", err)
	}
	if _, err := c.upload(localPath, remotePath); err != nil {
		return newError(KindTransfer, "upload", localPath, err)
	}
	return nil
}

// DownloadFile copies one remote file to localPath, replacing any existing
// file.
func (c *Client) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	if err := c.ensureConnected("download"); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("operation cancelled: %w", err)
	}
	if _, err := c.download(remotePath, localPath); err != nil {
		return newError(KindTransfer, "download", remotePath, err)
	}
	return nil
}

func (c *Client) upload(localPath, remotePath string) (int64, error) {
	localFile, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open local file: %w", err)
	}
	defer localFile.Close()

	remoteFile, err := c.session.sftpClient.Create(remotePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create remote file %s: %w", remotePath, err)
	}

	n, err := io.Copy(remoteFile, localFile)
	if err != nil {
		remoteFile.Close()
		return n, fmt.Errorf("failed to copy file content: %w", err)
	}
	if err := remoteFile.Close(); err != nil {
		return n, fmt.Errorf("failed to close remote file %s: %w", remotePath, err)
	}
	return n, nil
}

func (c *Client) download(remotePath, localPath string) (int64, error) {
	remoteFile, err := c.session.sftpClient.Open(remotePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open remote file: %w", err)
	}
	defer remoteFile.Close()

	// Stream into a sibling temp file so a failed copy leaves any existing
	// file untouched.
	mode := os.FileMode(0644)
	if info, err := os.Stat(localPath); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(localPath), "."+filepath.Base(localPath)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("failed to create local file %s: %w", localPath, err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, remoteFile)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return n, fmt.Errorf("failed to copy file content: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return n, fmt.Errorf("failed to set mode on %s: %w", localPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return n, fmt.Errorf("failed to close local file %s: %w", localPath, err)
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		os.Remove(tmpPath)
		return n, fmt.Errorf("failed to replace local file %s: %w", localPath, err)
	}
	return n, nil
}

// localDirExists reports whether dir is an existing directory. A missing
// directory is logged and reported as false with no error.
func (c *Client) localDirExists(op, dir string) (bool, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			c.logger.Error("local folder does not exist", "path", absPath(dir))
			return false, nil
		}
		return false, newError(KindIO, op, dir, err)
	}
	if !info.IsDir() {
		return false, newError(KindIO, op, dir, errors.New("not a directory"))
	}
	return true, nil
}

func buildSigner(config Config) (ssh.Signer, error) {
	var keyData []byte
	var err error

	if config.PrivateKey != "" {
		keyData = []byte(config.PrivateKey)
	} else if config.KeyPath != "" {
		keyData, err = os.ReadFile(ExpandPath(config.KeyPath))
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key file: %w", err)
		}
	} else {
		return nil, errors.New("no SSH private key provided (set PrivateKey or KeyPath)")
	}

	if len(config.Passphrase) > 0 {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(keyData, config.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH private key with passphrase: %w", err)
		}
		return signer, nil
	}

	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("SSH private key is encrypted and no passphrase was given: %w", err)
		}
		return nil, fmt.Errorf("failed to parse SSH private key: %w", err)
	}
	return signer, nil
}

func buildHostKeyCallback(config Config) (ssh.HostKeyCallback, error) {
	if config.KnownHostsFile != "" {
		expandedPath := ExpandPath(config.KnownHostsFile)
		callback, err := knownhosts.New(expandedPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts file %s: %w", expandedPath, err)
		}
		return callback, nil
	}

	config.Logger.Warn("SSH host key verification disabled", "host", config.Host, "port", config.Port)
	return ssh.InsecureIgnoreHostKey(), nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
