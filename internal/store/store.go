// Package store persists values as snappy-framed gob streams. It backs the
// processed-data cache and model checkpoints.
package store

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// Encode writes obj to w as a snappy-framed gob stream.
func Encode(w io.Writer, obj interface{}) error {
	comp := snappy.NewBufferedWriter(w)
	if err := gob.NewEncoder(comp).Encode(obj); err != nil {
		comp.Close()
		return errors.Wrap(err, "store: gob encode")
	}
	return errors.Wrap(comp.Close(), "store: flush snappy stream")
}

// Decode reads one value written by Encode into obj, which must be a pointer.
func Decode(r io.Reader, obj interface{}) error {
	return errors.Wrap(gob.NewDecoder(snappy.NewReader(r)).Decode(obj), "store: gob decode")
}

// WriteFile encodes obj into path. The file is written next to its target
// and renamed into place, so readers never see a partial file.
func WriteFile(path string, obj interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "store: create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrapf(err, "store: create temp file in %s", dir)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, obj); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "store: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "store: close %s", tmp.Name())
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "store: rename into %s", path)
}

// ReadFile decodes the value stored at path into obj.
func ReadFile(path string, obj interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "store: open %s", path)
	}
	defer f.Close()
	return errors.Wrapf(Decode(f, obj), "store: read %s", path)
}

// Exists reports whether path names a regular file.
func Exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
