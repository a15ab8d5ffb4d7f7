package metadata

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/n2code/hdb/internal/fsys"
)

// HashFile streams the content of a regular file through SHA-512.
// If preserveAtime is set the access time is reset afterwards, the modification time stays untouched.
func HashFile(path string, preserveAtime bool) (Digest, error) {
	var before fsys.Info
	if preserveAtime {
		var err error
		if before, err = fsys.Lstat(path); err != nil {
			return "", err
		}
	}

	file, err := fsys.Open(path)
	if err != nil {
		return "", err
	}
	hasher := sha512.New()
	_, err = io.Copy(hasher, file)
	file.Close()
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}

	if preserveAtime {
		after, err := fsys.Lstat(path)
		if err != nil {
			return "", err
		}
		if err := fsys.SetTimes(path, before.ATime, after.MTime); err != nil {
			return "", fmt.Errorf("restoring access time of %s: %w", path, err)
		}
	}
	return Digest(hex.EncodeToString(hasher.Sum(nil))), nil
}
