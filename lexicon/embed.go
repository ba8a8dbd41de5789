package lexicon

import "embed"

//go:embed dictionaries
var dictionaryFS embed.FS

// Default builds a screen over the embedded dictionaries with '*' masking.
func Default() (*Screen, *Dictionaries, error) {
	return WithMask(defaultMaskRune)
}

// WithMask builds the embedded-dictionary screen with a caller-chosen mask
// rune, for binaries that take the character from configuration.
func WithMask(maskRune rune) (*Screen, *Dictionaries, error) {
	dicts, err := LoadDictionaries(dictionaryFS, "dictionaries")
	if err != nil {
		return nil, nil, err
	}
	screen, err := NewScreen(dicts.Terms, maskRune)
	if err != nil {
		return nil, nil, err
	}
	return screen, dicts, nil
}
