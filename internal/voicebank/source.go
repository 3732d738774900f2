package voicebank

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/wsynth-go/internal/errors"
)

// Load reads a voicebank from a directory or a .zip archive.
func Load(source string) (*Voicebank, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, errors.New(err).
			Component("voicebank").
			Category(errors.CategoryFileIO).
			Context("source", source).
			Build()
	}
	if info.IsDir() {
		return LoadDir(source)
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, errors.New(err).
			Component("voicebank").
			Category(errors.CategoryFileIO).
			FileContext(source, info.Size()).
			Build()
	}
	return LoadZip(source, data)
}

// LoadDir reads a voicebank from a directory tree.
func LoadDir(dir string) (*Voicebank, error) {
	fsys := os.DirFS(dir)
	var entries []entry
	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		entries = append(entries, entry{name: name, read: func() ([]byte, error) {
			return readLimited(fsys, name)
		}})
		return nil
	})
	if err != nil {
		return nil, errors.New(err).
			Component("voicebank").
			Category(errors.CategoryFileIO).
			Context("source", dir).
			Build()
	}
	return assemble(dir, filepath.Base(filepath.Clean(dir)), entries)
}

// LoadZip reads a voicebank from zip archive bytes. name is used for error
// context and as the fallback voicebank name.
func LoadZip(name string, data []byte) (*Voicebank, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open voicebank archive: %w", err)).
			Component("voicebank").
			Category(errors.CategoryFileParsing).
			FileContext(name, int64(len(data))).
			Build()
	}

	entries := make([]entry, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		entryName := f.Name
		if f.NonUTF8 {
			entryName = DecodeText([]byte(entryName))
		}
		entryName = strings.TrimPrefix(filepath.ToSlash(entryName), "/")
		if strings.HasPrefix(entryName, "__MACOSX/") {
			continue
		}
		entries = append(entries, entry{name: entryName, read: func() ([]byte, error) {
			return readZipFile(f)
		}})
	}

	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	return assemble(name, base, entries)
}

func readLimited(fsys fs.FS, name string) ([]byte, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readAllLimited(f, name)
}

func readZipFile(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > MaxFileSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", f.Name, MaxFileSize)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return readAllLimited(rc, f.Name)
}

func readAllLimited(r io.Reader, name string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", name, MaxFileSize)
	}
	return data, nil
}
