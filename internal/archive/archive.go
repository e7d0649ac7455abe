// Package archive unpacks voice package archives (zip, tar, tar+bzip2) into a directory.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mholt/archiver/v4"
)

const (
	dirPermissions  = 0o750
	filePermissions = 0o640
	spoolPattern    = ".spool-*"
)

// Archive extensions that are expected to contain a supported container.
var archiveExtensions = []string{".zip", ".tar", ".tar.bz2", ".tbz2", ".tbz", ".bz2"}

var (
	// ErrNotArchive is returned when the input is not a recognised container at all.
	ErrNotArchive = errors.New("input is not a supported archive")
	// ErrArchiveFormat is returned when the input looks like an archive but cannot be decoded.
	ErrArchiveFormat = errors.New("malformed or unsupported archive")
	// ErrUnsafePath is returned for entries that would land outside the destination.
	ErrUnsafePath = errors.New("archive entry escapes destination")
	// ErrIO is returned when writing extracted content fails.
	ErrIO = errors.New("archive i/o failure")
)

// LooksLikeArchive reports whether name carries one of the supported archive extensions.
func LooksLikeArchive(name string) bool {
	lower := strings.ToLower(name)

	for _, ext := range archiveExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}

	return false
}

// Extract decodes the archive read from r into dest. The name is used as a
// format hint alongside the content header. The stream is spooled to a
// temporary file next to dest because zip needs random access.
func Extract(ctx context.Context, name string, r io.Reader, dest string) error {
	spool, err := os.CreateTemp(filepath.Dir(filepath.Clean(dest)), spoolPattern)
	if err != nil {
		return fmt.Errorf("%w: create spool file: %w", ErrIO, err)
	}

	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	_, err = io.Copy(spool, r)
	if err != nil {
		return fmt.Errorf("%w: spool %s: %w", ErrIO, name, err)
	}

	return extractFile(ctx, name, spool, dest)
}

// ExtractFile decodes the archive stored at archivePath into dest.
func ExtractFile(ctx context.Context, archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrIO, archivePath, err)
	}
	defer f.Close()

	return extractFile(ctx, filepath.Base(archivePath), f, dest)
}

func extractFile(ctx context.Context, name string, f *os.File, dest string) error {
	_, err := f.Seek(0, io.SeekStart)
	if err != nil {
		return fmt.Errorf("%w: rewind %s: %w", ErrIO, name, err)
	}

	format, stream, err := archiver.Identify(name, f)
	if err != nil {
		if errors.Is(err, archiver.ErrNoMatch) {
			if LooksLikeArchive(name) {
				return fmt.Errorf("%w: %s: unrecognised content", ErrArchiveFormat, name)
			}

			return fmt.Errorf("%w: %s", ErrNotArchive, name)
		}

		return fmt.Errorf("%w: identify %s: %w", ErrArchiveFormat, name, err)
	}

	err = os.MkdirAll(dest, dirPermissions)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrIO, dest, err)
	}

	switch fmtd := format.(type) {
	case archiver.Zip:
		// zip needs io.ReaderAt, so hand it the file rather than the buffered stream.
		_, err = f.Seek(0, io.SeekStart)
		if err != nil {
			return fmt.Errorf("%w: rewind %s: %w", ErrIO, name, err)
		}

		return runExtractor(ctx, fmtd, f, name, dest)
	case archiver.Extractor:
		return runExtractor(ctx, fmtd, stream, name, dest)
	case archiver.Decompressor:
		return decompressSingle(fmtd, stream, name, dest)
	default:
		return fmt.Errorf("%w: %s: %s cannot be extracted", ErrArchiveFormat, name, format.Name())
	}
}

func runExtractor(ctx context.Context, ex archiver.Extractor, r io.Reader, name, dest string) error {
	err := ex.Extract(ctx, r, nil, func(_ context.Context, f archiver.File) error {
		return writeEntry(f, dest)
	})
	if err != nil {
		if errors.Is(err, ErrIO) || errors.Is(err, ErrArchiveFormat) {
			return err
		}

		return fmt.Errorf("%w: %s: %w", ErrArchiveFormat, name, err)
	}

	return nil
}

// entryTarget maps an archive entry name onto a path inside dest.
func entryTarget(dest, entryName string) (string, error) {
	clean := strings.ReplaceAll(entryName, `\`, "/")
	if path.IsAbs(clean) || filepath.IsAbs(entryName) || filepath.VolumeName(entryName) != "" {
		return "", fmt.Errorf("%w: %w: %q", ErrArchiveFormat, ErrUnsafePath, entryName)
	}

	for _, segment := range strings.Split(clean, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: %w: %q", ErrArchiveFormat, ErrUnsafePath, entryName)
		}
	}

	rel := path.Clean(clean)
	if rel == "." {
		return dest, nil
	}

	return filepath.Join(dest, filepath.FromSlash(rel)), nil
}

func writeEntry(f archiver.File, dest string) error {
	target, err := entryTarget(dest, f.NameInArchive)
	if err != nil {
		return err
	}

	if f.IsDir() {
		mkErr := os.MkdirAll(target, dirPermissions)
		if mkErr != nil {
			return fmt.Errorf("%w: create %s: %w", ErrIO, target, mkErr)
		}

		return nil
	}

	// Links and device entries carry no package content.
	if f.LinkTarget != "" || !f.Mode().IsRegular() {
		return nil
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %s: open entry %q: %w", ErrArchiveFormat, dest, f.NameInArchive, err)
	}
	defer src.Close()

	return writeFile(target, src)
}

func writeFile(target string, src io.Reader) error {
	err := os.MkdirAll(filepath.Dir(target), dirPermissions)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrIO, filepath.Dir(target), err)
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermissions)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrIO, target, err)
	}

	_, copyErr := io.Copy(out, src)
	closeErr := out.Close()

	if copyErr != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, target, copyErr)
	}

	if closeErr != nil {
		return fmt.Errorf("%w: close %s: %w", ErrIO, target, closeErr)
	}

	return nil
}

// decompressSingle handles a bare compressed file such as "voice.onnx.bz2".
func decompressSingle(dc archiver.Decompressor, r io.Reader, name, dest string) error {
	rc, err := dc.OpenReader(r)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrArchiveFormat, name, err)
	}
	defer rc.Close()

	outName := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if outName == "" || outName == "." || outName == ".." {
		outName = "payload"
	}

	return writeFile(filepath.Join(dest, outName), rc)
}
