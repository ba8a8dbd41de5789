package lexicon

import (
	"bufio"
	"bytes"
	"io/fs"
	"sort"
	"strings"

	"tox-lab/errors"
)

// Dictionaries carries loaded terms plus metadata worth logging.
type Dictionaries struct {
	Terms     []string
	Languages []string
}

// LoadDictionaries reads every .txt file under path in fsys: one term per
// line, blank lines and #-comments skipped, the file name doubling as the
// language code ("en.txt" -> "en"). Terms appearing in several languages
// collapse to one entry; the result is sorted for determinism.
func LoadDictionaries(fsys fs.FS, path string) (*Dictionaries, error) {
	entries, err := fs.ReadDir(fsys, path)
	if err != nil {
		return nil, err
	}

	var languages []string
	unique := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fs.ReadFile(fsys, path+"/"+entry.Name())
		if err != nil {
			return nil, err
		}

		// A scanner copes with both \n and \r\n line endings.
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			unique[line] = struct{}{}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(unique) == 0 {
		return nil, errors.ErrEmptyLexicon
	}

	terms := make([]string, 0, len(unique))
	for term := range unique {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	return &Dictionaries{Terms: terms, Languages: languages}, nil
}
