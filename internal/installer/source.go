package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/book-expert/voice-installer/internal/archive"
	"github.com/book-expert/voice-installer/internal/fsutil"
	"github.com/book-expert/voice-installer/internal/treecopy"
)

const (
	defaultUploadName = "import.bin"
	uploadDirName     = "upload"
)

// Source is something the installer can materialise into its scratch area.
// The set is closed: use StreamSource, TreeSource or PathSource.
type Source interface {
	materialize(ctx context.Context, scratch, staging string) error
	describe() string
}

// StreamSource is a byte stream, either an archive or a bare package file.
// Name is the original file name and is used to recognise archives and to name
// a bare file.
type StreamSource struct {
	Name   string
	Reader io.Reader
}

func (s StreamSource) describe() string {
	return fmt.Sprintf("stream %q", s.Name)
}

func (s StreamSource) materialize(ctx context.Context, scratch, staging string) error {
	if s.Reader == nil {
		return fmt.Errorf("%w: %s has no reader", ErrSourceUnreadable, s.describe())
	}

	name := fsutil.SanitizeFilename(filepath.Base(s.Name))
	if fsutil.CheckName(name) != nil {
		name = defaultUploadName
	}

	uploadDir := filepath.Join(scratch, uploadDirName)

	err := fsutil.EnsureDir(uploadDir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	spooled := filepath.Join(uploadDir, name)

	err = spool(s.Reader, spooled)
	if err != nil {
		return err
	}

	err = archive.ExtractFile(ctx, spooled, staging)
	if err == nil {
		return nil
	}

	if !errors.Is(err, archive.ErrNotArchive) {
		return err
	}

	// A bare package file is staged unchanged.
	err = os.Rename(spooled, filepath.Join(staging, name))
	if err != nil {
		return fmt.Errorf("%w: stage %s: %w", ErrIO, name, err)
	}

	return nil
}

func spool(r io.Reader, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrIO, path, err)
	}

	_, copyErr := io.Copy(out, r)
	closeErr := out.Close()

	if copyErr != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnreadable, copyErr)
	}

	if closeErr != nil {
		return fmt.Errorf("%w: close %s: %w", ErrIO, path, closeErr)
	}

	return nil
}

// TreeSource is an already hierarchical source such as a picked folder.
type TreeSource struct {
	Root treecopy.Node
}

func (t TreeSource) describe() string {
	if t.Root == nil {
		return "tree <nil>"
	}

	return fmt.Sprintf("tree %q", t.Root.Name())
}

func (t TreeSource) materialize(ctx context.Context, _, staging string) error {
	if t.Root == nil {
		return fmt.Errorf("%w: %s", ErrSourceUnreadable, t.describe())
	}

	err := treecopy.Copy(ctx, t.Root, staging)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	return nil
}

// PathSource is a local file (archive or bare package file) or directory.
type PathSource struct {
	Path string
}

func (p PathSource) describe() string {
	return fmt.Sprintf("path %q", p.Path)
}

func (p PathSource) materialize(ctx context.Context, scratch, staging string) error {
	info, err := os.Stat(p.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}

	if info.IsDir() {
		root, rootErr := treecopy.FromFS(os.DirFS(p.Path), ".")
		if rootErr != nil {
			return fmt.Errorf("%w: %w", ErrSourceUnreadable, rootErr)
		}

		return TreeSource{Root: root}.materialize(ctx, scratch, staging)
	}

	f, err := os.Open(p.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}
	defer f.Close()

	return StreamSource{Name: filepath.Base(p.Path), Reader: f}.materialize(ctx, scratch, staging)
}
