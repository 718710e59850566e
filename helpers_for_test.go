package netutil

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/sftp"
	gossh "golang.org/x/crypto/ssh"
)

// generateTestRSAKey creates a test RSA private key and returns both PEM-encoded
// key content and a path to a temp file containing the key.
func generateTestRSAKey(t testing.TB) (string, string) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}

	privateKeyPEM := string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	}))

	tmpDir := t.TempDir()
	keyPath := filepath.Join(tmpDir, "test_key")
	if err := os.WriteFile(keyPath, []byte(privateKeyPEM), 0600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	return privateKeyPEM, keyPath
}

// generateEncryptedTestKey creates an ed25519 key in OpenSSH format protected
// by passphrase and returns the key file path and its public key.
func generateEncryptedTestKey(t testing.TB, passphrase []byte) (string, gossh.PublicKey) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate ed25519 key: %v", err)
	}

	block, err := gossh.MarshalPrivateKeyWithPassphrase(priv, "netutil-test", passphrase)
	if err != nil {
		t.Fatalf("failed to marshal encrypted key: %v", err)
	}

	keyPath := filepath.Join(t.TempDir(), "encrypted_key")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	sshPub, err := gossh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("failed to create SSH public key: %v", err)
	}
	return keyPath, sshPub
}

// publicKeyFromPEM returns the SSH public key of a PEM private key.
func publicKeyFromPEM(t testing.TB, privateKeyPEM string) gossh.PublicKey {
	t.Helper()

	signer, err := gossh.ParsePrivateKey([]byte(privateKeyPEM))
	if err != nil {
		t.Fatalf("failed to parse private key: %v", err)
	}
	return signer.PublicKey()
}

// createTestFileStructure creates a directory structure with files for testing.
// Files is a map of relative path -> content.
func createTestFileStructure(t testing.TB, files map[string][]byte) string {
	t.Helper()

	tmpDir := t.TempDir()

	for relPath, content := range files {
		fullPath := filepath.Join(tmpDir, relPath)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("failed to create directory: %v", err)
		}
		if err := os.WriteFile(fullPath, content, 0644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
	}

	return tmpDir
}

// assertFileContents verifies that a file has the expected content.
func assertFileContents(t testing.TB, path string, expected []byte) {
	t.Helper()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Errorf("failed to read file %s: %v", path, err)
		return
	}

	if !bytes.Equal(content, expected) {
		t.Errorf("file content mismatch:\nexpected: %q\ngot: %q", string(expected), string(content))
	}
}

// assertFileNotExists verifies that a file does not exist.
func assertFileNotExists(t testing.TB, path string) {
	t.Helper()

	if _, err := os.Stat(path); err == nil {
		t.Errorf("expected file to not exist: %s", path)
	}
}

// discardLogger keeps test output quiet.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// withMockSFTPClient creates a connected client with a mock SFTP implementation.
func withMockSFTPClient(t *testing.T, fn func(t *testing.T, client *Client, mock *MockSFTPClient)) {
	t.Helper()

	mock := NewMockSFTPClient()
	client := NewClientWithSFTP(Config{Host: "mock", User: "testuser", Logger: discardLogger()}, mock, nil)
	defer client.Close()

	fn(t, client, mock)
}

// testSFTPServer is an in-process SSH server exposing an in-memory SFTP
// filesystem.
type testSFTPServer struct {
	host     string
	port     int
	listener net.Listener
	handlers sftp.Handlers
}

// startTestSFTPServer starts a server that accepts only authorized.
func startTestSFTPServer(t testing.TB, authorized gossh.PublicKey) *testSFTPServer {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate host key: %v", err)
	}
	hostSigner, err := gossh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatalf("failed to create host signer: %v", err)
	}

	serverConfig := &gossh.ServerConfig{
		PublicKeyCallback: func(conn gossh.ConnMetadata, key gossh.PublicKey) (*gossh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown public key for %q", conn.User())
		},
	}
	serverConfig.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	srv := &testSFTPServer{
		host:     "127.0.0.1",
		port:     listener.Addr().(*net.TCPAddr).Port,
		listener: listener,
		handlers: sftp.InMemHandler(),
	}

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go srv.serveConn(conn, serverConfig)
		}
	}()

	return srv
}

func (s *testSFTPServer) serveConn(conn net.Conn, config *gossh.ServerConfig) {
	_, chans, reqs, err := gossh.NewServerConn(conn, config)
	if err != nil {
		conn.Close()
		return
	}
	go gossh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(gossh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}

		go func(in <-chan *gossh.Request) {
			for req := range in {
				ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
				req.Reply(ok, nil)
			}
		}(requests)

		go func() {
			server := sftp.NewRequestServer(channel, s.handlers)
			_ = server.Serve()
			server.Close()
		}()
	}
}

// config returns a client Config for this server authenticating with keyPath.
func (s *testSFTPServer) config(keyPath string) Config {
	return Config{
		Host:    s.host,
		Port:    s.port,
		User:    "testuser",
		KeyPath: keyPath,
		Logger:  discardLogger(),
	}
}

// newConnectedTestClient starts a server and returns a client connected to it.
func newConnectedTestClient(t testing.TB) (*Client, *testSFTPServer) {
	t.Helper()

	privateKey, keyPath := generateTestRSAKey(t)
	srv := startTestSFTPServer(t, publicKeyFromPEM(t, privateKey))

	client, err := NewClient(srv.config(keyPath))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client, srv
}

// putRemoteFile writes content to a file on the client's remote side.
func putRemoteFile(t testing.TB, client *Client, remotePath string, content []byte) {
	t.Helper()

	f, err := client.session.sftpClient.Create(remotePath)
	if err != nil {
		t.Fatalf("failed to create remote file %s: %v", remotePath, err)
	}
	if _, err := f.Write(content); err != nil {
		t.Fatalf("failed to write remote file %s: %v", remotePath, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close remote file %s: %v", remotePath, err)
	}
}

// readRemoteFile reads a file from the client's remote side.
func readRemoteFile(t testing.TB, client *Client, remotePath string) []byte {
	t.Helper()

	f, err := client.session.sftpClient.Open(remotePath)
	if err != nil {
		t.Fatalf("failed to open remote file %s: %v", remotePath, err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("failed to read remote file %s: %v", remotePath, err)
	}
	return content
}
