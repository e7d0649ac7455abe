// Package treecopy materialises a hierarchical source (a folder picked by the
// user, a document provider tree, an fs.FS) onto local storage.
package treecopy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/book-expert/voice-installer/internal/fsutil"
)

const (
	dirPermissions  = 0o750
	filePermissions = 0o640
)

// ErrIO marks every failure raised while copying a tree.
var ErrIO = errors.New("tree copy i/o failure")

// Node is one entry of a hierarchical source: either a directory with children
// or a leaf with byte content.
type Node interface {
	Name() string
	IsDir() bool
	Children() ([]Node, error)
	Open() (io.ReadCloser, error)
}

// PathError identifies the source node that could not be copied.
type PathError struct {
	Path string
	Op   string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrIO, e.Op, e.Path, e.Err)
}

// Unwrap exposes both ErrIO and the underlying cause to errors.Is.
func (e *PathError) Unwrap() []error {
	return []error{ErrIO, e.Err}
}

// Copy mirrors the children of root into dest, creating directories as needed.
// The root node itself maps onto dest. On failure partial output is left for
// the caller to remove.
func Copy(ctx context.Context, root Node, dest string) error {
	if root == nil {
		return &PathError{Path: ".", Op: "read", Err: fs.ErrInvalid}
	}

	if !root.IsDir() {
		nameErr := fsutil.CheckName(root.Name())
		if nameErr != nil {
			return &PathError{Path: root.Name(), Op: "name", Err: nameErr}
		}
	}

	err := os.MkdirAll(dest, dirPermissions)
	if err != nil {
		return &PathError{Path: ".", Op: "mkdir", Err: err}
	}

	if !root.IsDir() {
		return copyLeaf(root, root.Name(), filepath.Join(dest, root.Name()))
	}

	return copyChildren(ctx, root, ".", dest)
}

func copyChildren(ctx context.Context, dir Node, rel, dest string) error {
	children, err := dir.Children()
	if err != nil {
		return &PathError{Path: rel, Op: "list", Err: err}
	}

	for _, child := range children {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		name := child.Name()
		childRel := path.Join(rel, name)

		nameErr := fsutil.CheckName(name)
		if nameErr != nil {
			return &PathError{Path: childRel, Op: "name", Err: nameErr}
		}

		target := filepath.Join(dest, name)

		if child.IsDir() {
			mkErr := os.MkdirAll(target, dirPermissions)
			if mkErr != nil {
				return &PathError{Path: childRel, Op: "mkdir", Err: mkErr}
			}

			err = copyChildren(ctx, child, childRel, target)
			if err != nil {
				return err
			}

			continue
		}

		err = copyLeaf(child, childRel, target)
		if err != nil {
			return err
		}
	}

	return nil
}

func copyLeaf(node Node, rel, target string) error {
	src, err := node.Open()
	if err != nil {
		return &PathError{Path: rel, Op: "open", Err: err}
	}
	defer src.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermissions)
	if err != nil {
		return &PathError{Path: rel, Op: "create", Err: err}
	}

	_, copyErr := io.Copy(out, src)
	closeErr := out.Close()

	if copyErr != nil {
		return &PathError{Path: rel, Op: "copy", Err: copyErr}
	}

	if closeErr != nil {
		return &PathError{Path: rel, Op: "close", Err: closeErr}
	}

	return nil
}

// fsNode adapts one entry of an fs.FS to Node.
type fsNode struct {
	fsys  fs.FS
	path  string
	name  string
	isDir bool
}

// FromFS returns the Node rooted at root inside fsys. Use os.DirFS for a local folder.
func FromFS(fsys fs.FS, root string) (Node, error) {
	info, err := fs.Stat(fsys, root)
	if err != nil {
		return nil, &PathError{Path: root, Op: "stat", Err: err}
	}

	return &fsNode{fsys: fsys, path: root, name: info.Name(), isDir: info.IsDir()}, nil
}

func (n *fsNode) Name() string { return n.name }

func (n *fsNode) IsDir() bool { return n.isDir }

func (n *fsNode) Children() ([]Node, error) {
	entries, err := fs.ReadDir(n.fsys, n.path)
	if err != nil {
		return nil, err
	}

	children := make([]Node, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() && !entry.Type().IsRegular() {
			continue
		}

		children = append(children, &fsNode{
			fsys:  n.fsys,
			path:  path.Join(n.path, entry.Name()),
			name:  entry.Name(),
			isDir: entry.IsDir(),
		})
	}

	return children, nil
}

func (n *fsNode) Open() (io.ReadCloser, error) {
	return n.fsys.Open(n.path)
}
