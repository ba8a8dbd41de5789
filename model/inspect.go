package model

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ArtifactFile describes one file under an artifact directory, for operators.
type ArtifactFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	MIME string `json:"mime"`
}

// InspectDir lists the artifact directory (one level plus graph/) with sizes
// and sniffed MIME types. Feeds `toxctl -info` and the HTML inspector.
func InspectDir(dir string) ([]ArtifactFile, error) {
	var files []ArtifactFile

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if entry.Name() != GraphDir {
				continue
			}
			subEntries, err := os.ReadDir(filepath.Join(dir, GraphDir))
			if err != nil {
				return nil, err
			}
			for _, sub := range subEntries {
				if sub.IsDir() {
					continue
				}
				name := filepath.Join(GraphDir, sub.Name())
				file, err := describeFile(dir, name)
				if err != nil {
					return nil, err
				}
				files = append(files, file)
			}
			continue
		}
		file, err := describeFile(dir, entry.Name())
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

func describeFile(dir, name string) (ArtifactFile, error) {
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return ArtifactFile{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return ArtifactFile{}, err
	}
	defer f.Close()

	// Sniffing the head is enough for type detection.
	sniffBuf := make([]byte, 512)
	n, err := f.Read(sniffBuf)
	if err != nil && err != io.EOF {
		return ArtifactFile{}, err
	}

	return ArtifactFile{
		Name: name,
		Size: info.Size(),
		MIME: mimetype.Detect(sniffBuf[:n]).String(),
	}, nil
}

// sniffBinary rejects files whose content sniffs as text where a binary
// payload is mandatory. Catches the classic corruption where a JSON or HTML
// error page got saved under a weights file name.
func sniffBinary(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sniffBuf := make([]byte, 512)
	n, err := f.Read(sniffBuf)
	if err != nil && err != io.EOF {
		return err
	}

	detected := mimetype.Detect(sniffBuf[:n])
	if strings.HasPrefix(detected.String(), "text/") {
		return fmt.Errorf("binary file %q sniffs as %s", filepath.Base(path), detected)
	}
	return nil
}
