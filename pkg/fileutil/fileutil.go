package fileutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rohmanhakim/catalog-crawler/pkg/failure"
)

// EnsureDir check if a given directory plus the following path exist, then create one if not
func EnsureDir(dir string, path ...string) failure.ClassifiedError {
	targetPath := []string{dir}
	targetPath = append(targetPath, path...)

	target := filepath.Join(targetPath...)
	if err := os.MkdirAll(target, 0755); err != nil {
		return &FileError{
			Message:   fmt.Sprintf("%v", err),
			Retryable: false,
			Cause:     ErrCausePathError,
		}
	}
	return nil
}

// WriteFileAtomic writes data to dir/name through a temporary file in the
// same directory followed by a rename, so readers never see a partial file.
// dir is created when missing. It returns the final path.
func WriteFileAtomic(dir, name string, data []byte) (string, failure.ClassifiedError) {
	if err := EnsureDir(dir); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", &FileError{Message: err.Error(), Cause: ErrCauseWriteError}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", &FileError{Message: err.Error(), Cause: ErrCauseWriteError}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", &FileError{Message: err.Error(), Cause: ErrCauseWriteError}
	}

	target := filepath.Join(dir, name)
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", &FileError{Message: err.Error(), Cause: ErrCauseWriteError}
	}
	return target, nil
}
