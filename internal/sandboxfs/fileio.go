package sandboxfs

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/agentserver/agentserver/internal/apierror"
)

// ReadFile resolves path and returns its bytes.
func (f *FS) ReadFile(path string) ([]byte, error) {
	resolved, err := f.Resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierror.NotFound("file %q not found", path)
		}
		return nil, apierror.Wrap(apierror.KindInternal, "read file", err)
	}
	return data, nil
}

// WriteFile resolves path, creates any missing parent directories, and
// atomically replaces the file's contents.
func (f *FS) WriteFile(path string, data []byte) error {
	resolved, err := f.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return apierror.Wrap(apierror.KindInternal, "create parent directories", err)
	}

	tmp := resolved + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apierror.Wrap(apierror.KindInternal, "write file", err)
	}
	if err := os.Rename(tmp, resolved); err != nil {
		os.Remove(tmp)
		return apierror.Wrap(apierror.KindInternal, "replace file", err)
	}
	return nil
}

// DirEntry is one node in a directory tree returned by ListDirectory.
type DirEntry struct {
	Name      string      `json:"name"`
	Path      string      `json:"path"`
	IsDir     bool        `json:"isDir"`
	Size      int64       `json:"size,omitempty"`
	Children  []*DirEntry `json:"children,omitempty"`
	Truncated bool        `json:"truncated,omitempty"`
}

// ListDirectory resolves path and returns a bounded tree of its
// contents, stopping (and marking the node truncated) once maxEntries
// total entries have been visited.
func (f *FS) ListDirectory(path string, maxEntries int) (*DirEntry, error) {
	resolved, err := f.Resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierror.NotFound("directory %q not found", path)
		}
		return nil, apierror.Wrap(apierror.KindInternal, "stat directory", err)
	}
	if !info.IsDir() {
		return nil, apierror.BadRequest("%q is not a directory", path)
	}

	visited := 0
	root, err := walkDir(resolved, path, maxEntries, &visited)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "list directory", err)
	}
	return root, nil
}

func walkDir(absPath, sandboxPath string, maxEntries int, visited *int) (*DirEntry, error) {
	node := &DirEntry{Name: filepath.Base(sandboxPath), Path: sandboxPath, IsDir: true}
	entries, err := os.ReadDir(absPath)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if *visited >= maxEntries {
			node.Truncated = true
			break
		}
		*visited++

		childAbs := filepath.Join(absPath, e.Name())
		childSandbox := filepath.Join(sandboxPath, e.Name())
		if e.IsDir() {
			child, err := walkDir(childAbs, childSandbox, maxEntries, visited)
			if err != nil {
				// Skip unreadable subdirectories rather than aborting.
				continue
			}
			node.Children = append(node.Children, child)
			continue
		}
		info, err := e.Info()
		var size int64
		if err == nil {
			size = info.Size()
		}
		node.Children = append(node.Children, &DirEntry{Name: e.Name(), Path: childSandbox, Size: size})
	}
	return node, nil
}
