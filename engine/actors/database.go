package actors

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"equitydesk/engine/library"
)

// Open returns the flat file a mind last wrote for db. ok is false when nothing has been written yet.
func Open(mind, db string) (f *os.File, ok bool) {
	f, err := os.Open(dataFile(mind, db))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false
	}
	if err != nil {
		library.LogCLI(err.Error(), 0)
		return nil, false
	}
	return f, true
}

// Write replaces the flat file for db with b. The old file is only replaced once b is fully on disk.
func Write(mind, db string, b []byte) error {
	if err := os.MkdirAll(directory(mind), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(directory(mind), db+"-*.tmp")
	if err != nil {
		return err
	}
	if _, err = tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dataFile(mind, db))
}

func dataFile(mind, db string) string {
	return filepath.Join(directory(mind), db+".dat")
}

func directory(mind string) string {
	conf := MakeOrGetConfig()
	return filepath.Join(conf.GetString("rootDir"), conf.GetString("flatFileDir"), mind)
}
