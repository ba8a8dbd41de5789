package model

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"

	"tox-lab/errors"
)

// ChecksumManifest maps artifact-relative file names to BLAKE2b-256 hex
// digests. Written by tools/checksumgen, verified on every load.
type ChecksumManifest map[string]string

// FileChecksum computes the BLAKE2b-256 hex digest of one file.
func FileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// verifyChecksums checks every manifest entry that exists on disk. Returns
// whether a manifest was found. A digest mismatch or an unreadable manifest
// is a ModelLoadError: the artifact cannot be trusted.
func verifyChecksums(dir string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, ChecksumFile))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.NewModelLoadError(dir, err)
	}

	var manifest ChecksumManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return false, errors.NewModelLoadError(dir, fmt.Errorf("checksum manifest malformed: %w", err))
	}

	for name, want := range manifest {
		if err := validManifestName(name); err != nil {
			return false, errors.NewModelLoadError(dir, err)
		}
		path := filepath.Join(dir, filepath.FromSlash(name))
		got, err := FileChecksum(path)
		if os.IsNotExist(err) {
			// Manifests may cover files of another variant; absence is
			// the resolver's concern, not an integrity failure.
			continue
		}
		if err != nil {
			return false, errors.NewModelLoadError(dir, err)
		}
		if !strings.EqualFold(got, want) {
			return false, errors.NewModelLoadError(dir, fmt.Errorf("checksum mismatch for %q", name))
		}
	}
	return true, nil
}

func validManifestName(name string) error {
	cleaned := filepath.ToSlash(filepath.Clean(filepath.FromSlash(name)))
	if name == "" || filepath.IsAbs(name) || cleaned != name || strings.HasPrefix(cleaned, "..") {
		return fmt.Errorf("checksum manifest entry %q escapes the artifact directory", name)
	}
	return nil
}
