package netutil

import (
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"
)

// mockFileInfo implements os.FileInfo for testing.
type mockFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	isDir   bool
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() os.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// MockSFTPFile implements SFTPFile for testing. Writes are stored back into
// the owning mock on every call.
type MockSFTPFile struct {
	content    []byte
	readOffset int
	closed     bool
	path       string
	owner      *MockSFTPClient
	writeErr   error
	// readErr is returned once content is exhausted, in place of io.EOF.
	readErr error
}

// NewMockSFTPFile creates a new mock SFTP file with the given content.
func NewMockSFTPFile(content []byte) *MockSFTPFile {
	return &MockSFTPFile{content: content}
}

func (f *MockSFTPFile) Read(p []byte) (n int, err error) {
	if f.readOffset >= len(f.content) {
		if f.readErr != nil {
			return 0, f.readErr
		}
		return 0, io.EOF
	}
	n = copy(p, f.content[f.readOffset:])
	f.readOffset += n
	return n, nil
}

func (f *MockSFTPFile) Write(p []byte) (n int, err error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.content = append(f.content, p...)
	if f.owner != nil {
		f.owner.files[f.path] = f.content
	}
	return len(p), nil
}

func (f *MockSFTPFile) Close() error {
	f.closed = true
	return nil
}

// MockSFTPClient implements SFTPClientInterface for testing.
type MockSFTPClient struct {
	files   map[string][]byte
	dirs    map[string]bool
	errors  map[string]error
	created []string
	closed  bool

	// failCreate fails Create only for paths ending in this suffix.
	failCreate string
	// failWrite makes writes to files ending in this suffix fail.
	failWrite string
	// failRead makes reads of files ending in this suffix fail after the
	// content has been returned.
	failRead string
}

// NewMockSFTPClient creates a new mock SFTP client.
func NewMockSFTPClient() *MockSFTPClient {
	return &MockSFTPClient{
		files:  make(map[string][]byte),
		dirs:   make(map[string]bool),
		errors: make(map[string]error),
	}
}

// Ensure MockSFTPClient implements SFTPClientInterface.
var _ SFTPClientInterface = (*MockSFTPClient)(nil)

// SetError sets an error to be returned for a specific method.
func (m *MockSFTPClient) SetError(method string, err error) {
	m.errors[method] = err
}

// SetFile sets a file in the mock SFTP client.
func (m *MockSFTPClient) SetFile(p string, content []byte) {
	m.files[p] = content
	m.dirs[path.Dir(p)] = true
}

func (m *MockSFTPClient) Open(p string) (SFTPFile, error) {
	if err := m.errors["Open"]; err != nil {
		return nil, err
	}
	content, ok := m.files[p]
	if !ok {
		return nil, os.ErrNotExist
	}
	f := NewMockSFTPFile(content)
	if m.failRead != "" && strings.HasSuffix(p, m.failRead) {
		f.readErr = io.ErrUnexpectedEOF
	}
	return f, nil
}

func (m *MockSFTPClient) Create(p string) (SFTPFile, error) {
	if err := m.errors["Create"]; err != nil {
		return nil, err
	}
	if m.failCreate != "" && strings.HasSuffix(p, m.failCreate) {
		return nil, os.ErrPermission
	}
	m.files[p] = []byte{}
	m.created = append(m.created, p)
	f := &MockSFTPFile{path: p, owner: m}
	if m.failWrite != "" && strings.HasSuffix(p, m.failWrite) {
		f.writeErr = io.ErrClosedPipe
	}
	return f, nil
}

func (m *MockSFTPClient) Mkdir(p string) error {
	if err := m.errors["Mkdir"]; err != nil {
		return err
	}
	if m.dirs[p] {
		return os.ErrExist
	}
	m.dirs[p] = true
	return nil
}

func (m *MockSFTPClient) ReadDir(p string) ([]os.FileInfo, error) {
	if err := m.errors["ReadDir"]; err != nil {
		return nil, err
	}
	if !m.dirs[p] {
		return nil, os.ErrNotExist
	}

	var infos []os.FileInfo
	for name, content := range m.files {
		if path.Dir(name) == p {
			infos = append(infos, &mockFileInfo{name: path.Base(name), size: int64(len(content)), mode: 0644})
		}
	}
	for dir := range m.dirs {
		if dir != p && path.Dir(dir) == p {
			infos = append(infos, &mockFileInfo{name: path.Base(dir), mode: os.ModeDir | 0755, isDir: true})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	return infos, nil
}

func (m *MockSFTPClient) Close() error {
	if err := m.errors["Close"]; err != nil {
		return err
	}
	m.closed = true
	return nil
}

// createdNames returns the base names of created remote files in order.
func (m *MockSFTPClient) createdNames() []string {
	names := make([]string, 0, len(m.created))
	for _, p := range m.created {
		names = append(names, path.Base(p))
	}
	return names
}
