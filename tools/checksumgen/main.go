package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"

	"tox-lab/model"
)

func main() {
	dir := flag.String("dir", "resources", "Artifact directory to fingerprint")
	flag.Parse()

	manifest, err := buildManifest(*dir)
	if err != nil {
		log.Fatal(err)
	}
	if len(manifest) == 0 {
		log.Fatalf("no artifact files found under %s", *dir)
	}

	path := filepath.Join(*dir, model.ChecksumFile)
	if err := writeManifest(path, manifest); err != nil {
		log.Fatal(err)
	}

	table := newTable([]string{"File", "Blake2b-256"})
	names := make([]string, 0, len(manifest))
	for name := range manifest {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		table.Append([]string{name, manifest[name]})
	}
	table.Render()

	fmt.Printf("\nManifest written to %s (%d files)\n", path, len(manifest))
}

// buildManifest walks the artifact directory and fingerprints every regular
// file. The manifest itself and dotfiles are left out, keys are slash
// separated relative paths so the manifest stays portable.
func buildManifest(dir string) (model.ChecksumManifest, error) {
	manifest := model.ChecksumManifest{}

	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			return nil
		}
		if entry.Name() == model.ChecksumFile {
			return nil
		}

		digest, err := model.FileChecksum(path)
		if err != nil {
			return fmt.Errorf("cannot fingerprint %s: %w", path, err)
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		manifest[filepath.ToSlash(rel)] = digest
		return nil
	})
	if err != nil {
		return nil, err
	}
	return manifest, nil
}

func writeManifest(path string, manifest model.ChecksumManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}
