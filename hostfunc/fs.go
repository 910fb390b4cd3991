package hostfunc

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/tjs/errno"
)

// MountMode defines the permission level for a mount point.
type MountMode int

const (
	// MountReadOnly allows only read operations.
	MountReadOnly MountMode = iota
	// MountReadWrite allows read and write operations to existing files/dirs.
	MountReadWrite
	// MountReadWriteCreate allows read, write, and create operations.
	MountReadWriteCreate
)

func (m MountMode) String() string {
	switch m {
	case MountReadOnly:
		return "ro"
	case MountReadWrite:
		return "rw"
	case MountReadWriteCreate:
		return "rwc"
	default:
		return "unknown"
	}
}

// ParseMountMode accepts "ro", "rw" and "rwc".
func ParseMountMode(s string) (MountMode, error) {
	switch s {
	case "ro", "":
		return MountReadOnly, nil
	case "rw":
		return MountReadWrite, nil
	case "rwc":
		return MountReadWriteCreate, nil
	default:
		return 0, errors.New("invalid mount mode: " + s + " (expected ro, rw, or rwc)")
	}
}

// Mount represents a virtual path mapped to a host path with specific permissions.
type Mount struct {
	VirtualPath string    // Path as seen by scripts (e.g., "/data")
	HostPath    string    // Actual path on host filesystem
	Mode        MountMode // Permission level
}

const (
	DefaultMaxFileSize   = 10 << 20
	DefaultMaxWriteSize  = 10 << 20
	DefaultMaxPathLength = 4096
)

// FSOption configures limits on an FS.
type FSOption func(*FS)

// WithMaxFileSize limits the size of files that can be read.
func WithMaxFileSize(size int64) FSOption {
	return func(f *FS) { f.maxFileSize = size }
}

// WithMaxWriteSize limits the size of content that can be written.
func WithMaxWriteSize(size int64) FSOption {
	return func(f *FS) { f.maxWriteSize = size }
}

// WithMaxPathLength limits the length of virtual paths.
func WithMaxPathLength(n int) FSOption {
	return func(f *FS) { f.maxPathLength = n }
}

// FS provides filesystem operations with explicit mount points. Every failure
// that comes from the OS, or that the mount table turns into one, is raised as
// an errno error.
type FS struct {
	mounts        []Mount
	maxFileSize   int64
	maxWriteSize  int64
	maxPathLength int
}

// NewFS creates a new filesystem handler with the given mount points.
func NewFS(mounts []Mount, opts ...FSOption) *FS {
	normalized := make([]Mount, 0, len(mounts))
	for _, m := range mounts {
		vp := "/" + strings.Trim(m.VirtualPath, "/")
		hp, err := filepath.Abs(m.HostPath)
		if err != nil {
			continue
		}
		normalized = append(normalized, Mount{VirtualPath: vp, HostPath: hp, Mode: m.Mode})
	}

	f := &FS{
		mounts:        normalized,
		maxFileSize:   DefaultMaxFileSize,
		maxWriteSize:  DefaultMaxWriteSize,
		maxPathLength: DefaultMaxPathLength,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Mounts returns the normalized mount table.
func (f *FS) Mounts() []Mount {
	out := make([]Mount, len(f.mounts))
	copy(out, f.mounts)
	return out
}

func (f *FS) findMount(vp string) *Mount {
	for i := range f.mounts {
		m := &f.mounts[i]
		if m.VirtualPath == "/" || vp == m.VirtualPath || strings.HasPrefix(vp, m.VirtualPath+"/") {
			return m
		}
	}
	return nil
}

// resolve maps a virtual path to a host path. A path outside every mount
// reports ENOENT, as it does not exist from the script's point of view.
func (f *FS) resolve(virtualPath string, needWrite bool) (string, *Mount, error) {
	if virtualPath == "" {
		return "", nil, errors.New("path required")
	}
	if f.maxPathLength > 0 && len(virtualPath) > f.maxPathLength {
		return "", nil, errno.Raise(errno.ENAMETOOLONG)
	}

	vp := filepath.Clean("/" + strings.TrimPrefix(virtualPath, "/"))

	m := f.findMount(vp)
	if m == nil {
		return "", nil, errno.Raise(errno.ENOENT)
	}
	if needWrite && m.Mode == MountReadOnly {
		return "", nil, errno.Raise(errno.EROFS)
	}

	rel := strings.TrimPrefix(vp, m.VirtualPath)
	hostPath, err := filepath.Abs(filepath.Join(m.HostPath, rel))
	if err != nil {
		return "", nil, errno.Raise(errno.EINVAL)
	}
	if hostPath != m.HostPath && !strings.HasPrefix(hostPath, m.HostPath+string(filepath.Separator)) {
		return "", nil, errno.Raise(errno.EACCES)
	}

	return hostPath, m, nil
}

func (f *FS) readFile(virtualPath string) ([]byte, error) {
	hostPath, _, err := f.resolve(virtualPath, false)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(hostPath)
	if err != nil {
		return nil, errno.Wrap(err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, errno.Wrap(err)
	}
	if info.IsDir() {
		return nil, errno.Raise(errno.EISDIR)
	}
	if f.maxFileSize > 0 && info.Size() > f.maxFileSize {
		return nil, errno.Raise(errno.EFBIG)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errno.Wrap(err)
	}
	return data, nil
}

// Read returns the contents of a file.
func (f *FS) Read(ctx context.Context, args map[string]any) (any, error) {
	req, err := decode[FSPathRequest]("fs_read", args)
	if err != nil {
		return nil, err
	}
	data, err := f.readFile(req.Path)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Write writes content to a file, or appends to it.
func (f *FS) Write(ctx context.Context, args map[string]any) (any, error) {
	req, err := decode[FSWriteRequest]("fs_write", args)
	if err != nil {
		return nil, err
	}
	if _, ok := args["content"]; !ok {
		return nil, errors.New("content required")
	}

	hostPath, m, err := f.resolve(req.Path, true)
	if err != nil {
		return nil, err
	}
	if f.maxWriteSize > 0 && int64(len(req.Content)) > f.maxWriteSize {
		return nil, errno.Raise(errno.EFBIG)
	}

	if _, statErr := os.Stat(hostPath); errors.Is(statErr, os.ErrNotExist) && m.Mode != MountReadWriteCreate {
		return nil, errno.Raise(errno.EACCES)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if req.Append {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	file, err := os.OpenFile(hostPath, flags, 0o644)
	if err != nil {
		return nil, errno.Wrap(err)
	}
	if _, err := file.WriteString(req.Content); err != nil {
		file.Close()
		return nil, errno.Wrap(err)
	}
	if err := file.Close(); err != nil {
		return nil, errno.Wrap(err)
	}

	return len(req.Content), nil
}

// List returns the contents of a directory.
func (f *FS) List(ctx context.Context, args map[string]any) (any, error) {
	req, err := decode[FSPathRequest]("fs_list", args)
	if err != nil {
		return nil, err
	}

	hostPath, _, err := f.resolve(req.Path, false)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(hostPath)
	if err != nil {
		return nil, errno.Wrap(err)
	}

	result := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		item := map[string]any{
			"name":   entry.Name(),
			"is_dir": entry.IsDir(),
		}
		if info, err := entry.Info(); err == nil {
			item["size"] = info.Size()
		}
		result = append(result, item)
	}
	return result, nil
}

// Exists reports whether a path exists. Paths outside every mount do not.
func (f *FS) Exists(ctx context.Context, args map[string]any) (any, error) {
	req, err := decode[FSPathRequest]("fs_exists", args)
	if err != nil {
		return nil, err
	}

	hostPath, _, err := f.resolve(req.Path, false)
	if err != nil {
		return false, nil
	}

	_, err = os.Stat(hostPath)
	return err == nil, nil
}

// Mkdir creates a directory and any missing parents.
func (f *FS) Mkdir(ctx context.Context, args map[string]any) (any, error) {
	req, err := decode[FSPathRequest]("fs_mkdir", args)
	if err != nil {
		return nil, err
	}

	hostPath, m, err := f.resolve(req.Path, true)
	if err != nil {
		return nil, err
	}
	if m.Mode != MountReadWriteCreate {
		return nil, errno.Raise(errno.EACCES)
	}

	if err := os.MkdirAll(hostPath, 0o755); err != nil {
		return nil, errno.Wrap(err)
	}
	return nil, nil
}

// Remove deletes a file or empty directory.
func (f *FS) Remove(ctx context.Context, args map[string]any) (any, error) {
	req, err := decode[FSPathRequest]("fs_remove", args)
	if err != nil {
		return nil, err
	}

	hostPath, m, err := f.resolve(req.Path, true)
	if err != nil {
		return nil, err
	}
	if hostPath == m.HostPath {
		return nil, errno.Raise(errno.EPERM)
	}

	if err := os.Remove(hostPath); err != nil {
		return nil, errno.Wrap(err)
	}
	return nil, nil
}

// Stat returns information about a file or directory.
func (f *FS) Stat(ctx context.Context, args map[string]any) (any, error) {
	req, err := decode[FSPathRequest]("fs_stat", args)
	if err != nil {
		return nil, err
	}

	hostPath, _, err := f.resolve(req.Path, false)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(hostPath)
	if err != nil {
		return nil, errno.Wrap(err)
	}

	return map[string]any{
		"name":     info.Name(),
		"size":     info.Size(),
		"is_dir":   info.IsDir(),
		"mod_time": info.ModTime().Unix(),
	}, nil
}

// Register installs the fs_* functions on r.
func (f *FS) Register(r *Registry) {
	r.Register("fs_read", f.Read)
	r.Register("fs_write", f.Write)
	r.Register("fs_list", f.List)
	r.Register("fs_exists", f.Exists)
	r.Register("fs_mkdir", f.Mkdir)
	r.Register("fs_remove", f.Remove)
	r.Register("fs_stat", f.Stat)
}
