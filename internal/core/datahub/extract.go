package datahub

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// safeJoin rejects archive entries that would land outside dest.
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal path in archive: %s", name)
	}
	return target, nil
}

func writeFile(target string, src io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), os.ModePerm); err != nil {
		return err
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func writeAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

// extractAtomic unpacks the archive into a staging directory under dest and
// then renames each top level entry into dest, so readers never observe a
// partially written file.
func extractAtomic(filename, ext, dest string) error {
	staging, err := os.MkdirTemp(dest, filepath.Base(filename)+".*.extract")
	if err != nil {
		return fmt.Errorf("error creating staging dir: %w", err)
	}
	defer os.RemoveAll(staging) //nolint:errcheck

	switch ext {
	case ".zip":
		err = extractZip(filename, staging)
	case ".tar", ".tar.gz", ".tgz":
		err = extractTar(filename, staging, ext != ".tar")
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(staging)
	if err != nil {
		return err
	}
	for _, e := range entries {
		target := filepath.Join(dest, e.Name())
		if target == filename {
			return fmt.Errorf("archive entry %s would replace the archive", e.Name())
		}
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("error replacing %s: %w", target, err)
		}
		if err := os.Rename(filepath.Join(staging, e.Name()), target); err != nil {
			return fmt.Errorf("error moving %s into place: %w", e.Name(), err)
		}
	}
	return nil
}

func extractZip(filename, dest string) error {
	reader, err := zip.OpenReader(filename)
	if err != nil {
		return err
	}
	defer reader.Close()

	for _, f := range reader.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, os.ModePerm); err != nil {
				return err
			}
			continue
		}

		src, err := f.Open()
		if err != nil {
			return fmt.Errorf("error opening %s in archive: %w", f.Name, err)
		}
		err = writeFile(target, src, f.Mode().Perm()|0600)
		src.Close()
		if err != nil {
			return fmt.Errorf("error extracting %s: %w", f.Name, err)
		}
	}

	return nil
}

func extractTar(filename, dest string, gzipped bool) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	var r io.Reader = file
	if gzipped {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return err
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.ModePerm); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()|0600); err != nil {
				return fmt.Errorf("error extracting %s: %w", hdr.Name, err)
			}
		}
	}
}
