package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"tox-lab/model"
	"tox-lab/vectorize"
)

// The demo model carries its signal on two embedding axes: hostile words
// load the first, menacing words the second, everything else pools to zero.
// Friendly texts therefore sit at the bias floor and hostile ones clear the
// default threshold, so the -examples run of the CLI shows both verdicts.
const (
	embeddingDim   = 3
	sequenceLength = 64
)

var demoEmbeddings = map[string][]float32{
	"stupid":    {4, 0, 0},
	"terrible":  {4, 0, 0},
	"idiot":     {6, 0, 0},
	"moron":     {6, 0, 0},
	"trash":     {3, 0, 0},
	"awful":     {3, 0, 0},
	"hate":      {5, 1, 0},
	"disappear": {0, 6, 0},
}

// Head weights, one row per embedding axis, one column per category in
// declaration order: toxic, severe_toxic, obscene, threat, insult,
// identity_hate.
var (
	demoHead = [][]float32{
		{4, 1, 1, 0, 3, 0},
		{2, 1, 0, 5, 0, 0},
		{0, 0, 0, 0, 0, 0},
	}
	demoBias = []float32{-3, -5, -4, -3, -3, -5}
)

func main() {
	dir := flag.String("dir", "resources", "Destination directory for the demo artifact")
	flag.Parse()

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		log.Fatalf("Impossible de créer le dossier : %v", err)
	}

	fmt.Println("🚀 Génération d'un artefact legacy de démonstration...")

	vocab := buildVocabulary()
	if err := writeVocabulary(*dir, vocab); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("✅ %s (%d mots)\n", model.VocabularyFile, len(vocab.Tokens))

	arch := model.LegacyConfig{
		Architecture:   "embedding_pool_mlp",
		VocabSize:      vocab.Size(),
		EmbeddingDim:   embeddingDim,
		SequenceLength: sequenceLength,
		PadID:          vocab.PadID,
	}
	if err := writeArchitecture(*dir, arch); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("✅ %s\n", model.ArchitectureFile)

	if err := writeWeights(*dir, arch, vocab); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("✅ %s\n", model.WeightsFile)

	fmt.Printf("\n✅ Prêt ! Génère maintenant les empreintes : go run ./tools/checksumgen -dir %s\n", *dir)
}

func buildVocabulary() *vectorize.Vocabulary {
	vocab := &vectorize.Vocabulary{PadID: 0, OOVID: 1, Tokens: map[string]int64{}}
	id := int64(2)
	// Stable id assignment so regenerating never reshuffles the table
	for _, word := range []string{"stupid", "terrible", "idiot", "moron", "trash", "awful", "hate", "disappear"} {
		vocab.Tokens[word] = id
		id++
	}
	return vocab
}

func writeVocabulary(dir string, vocab *vectorize.Vocabulary) error {
	data, err := json.MarshalIndent(vocab, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, model.VocabularyFile), append(data, '\n'), 0o644)
}

func writeArchitecture(dir string, arch model.LegacyConfig) error {
	data, err := json.MarshalIndent(arch, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, model.ArchitectureFile), append(data, '\n'), 0o644)
}

// writeWeights lays the sections down in load order: the embedding table,
// then the output head, each prefixed with its float32 count.
func writeWeights(dir string, arch model.LegacyConfig, vocab *vectorize.Vocabulary) error {
	embedding := make([]float32, arch.VocabSize*arch.EmbeddingDim)
	for word, vec := range demoEmbeddings {
		id, ok := vocab.Tokens[word]
		if !ok {
			return fmt.Errorf("word %q carries weights but no id", word)
		}
		copy(embedding[int(id)*arch.EmbeddingDim:], vec)
	}

	head := make([]float32, 0, arch.EmbeddingDim*len(demoBias))
	for _, row := range demoHead {
		head = append(head, row...)
	}

	var buf bytes.Buffer
	for _, section := range [][]float32{embedding, head, demoBias} {
		if err := binary.Write(&buf, binary.LittleEndian, uint32(len(section))); err != nil {
			return err
		}
		if err := binary.Write(&buf, binary.LittleEndian, section); err != nil {
			return err
		}
	}
	return os.WriteFile(filepath.Join(dir, model.WeightsFile), buf.Bytes(), 0o644)
}
