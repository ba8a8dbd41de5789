package model

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"tox-lab/domain"
	"tox-lab/errors"
	"tox-lab/vectorize"
)

func writeVocabularyFixture(tb testing.TB, dir string, vocab vectorize.Vocabulary) {
	tb.Helper()
	data, err := json.Marshal(vocab)
	require.NoError(tb, err)
	require.NoError(tb, os.WriteFile(filepath.Join(dir, VocabularyFile), data, 0644))
}

// writeWorkingArtifact produces a loadable legacy artifact: the plain
// fixture network plus a two-word vocabulary.
func writeWorkingArtifact(tb testing.TB, dir string) {
	tb.Helper()
	writeLegacyFixture(tb, dir, plainFixtureConfig(), plainFixtureSections()...)
	writeVocabularyFixture(tb, dir, vectorize.Vocabulary{
		PadID: 0,
		OOVID: 1,
		Tokens: map[string]int64{
			"bad": 2,
			"day": 3,
		},
	})
}

func TestLoader_SingleLoadUnderConcurrency(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	writeWorkingArtifact(t, dir)

	loader := NewLoader()

	const callers = 10
	artifacts := make([]*Artifact, callers)
	errs := make([]error, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			artifacts[i], errs[i] = loader.Load(dir, LoadOptions{})
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		req.NoError(errs[i], "caller %d", i)
		req.Same(artifacts[0], artifacts[i], "caller %d must share the instance", i)
	}
	req.EqualValues(1, loader.Loads(), "racing callers must collapse into one load")
}

func TestLoader_InvalidateForcesReload(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	writeWorkingArtifact(t, dir)

	loader := NewLoader()

	first, err := loader.Load(dir, LoadOptions{})
	req.NoError(err)

	again, err := loader.Load(dir, LoadOptions{})
	req.NoError(err)
	req.Same(first, again)
	req.EqualValues(1, loader.Loads())

	req.NoError(loader.Invalidate(dir))

	reloaded, err := loader.Load(dir, LoadOptions{})
	req.NoError(err)
	req.NotSame(first, reloaded)
	req.NotEqual(first.Info.InstanceID, reloaded.Info.InstanceID)
	req.EqualValues(2, loader.Loads())
}

func TestLoader_EmptyDirServesFallback(t *testing.T) {
	req := require.New(t)
	loader := NewLoader()

	artifact, err := loader.Load(t.TempDir(), LoadOptions{SequenceLength: 32})
	req.NoError(err)
	req.Equal(domain.VariantFallback, artifact.Variant())
	req.Nil(artifact.Vocabulary())
	req.Equal(32, artifact.SequenceLength())

	rows, err := artifact.Predict(context.Background(), []vectorize.Sequence{
		vectorize.Passthrough("whatever"),
		vectorize.Passthrough(""),
	})
	req.NoError(err)
	req.Len(rows, 2)
	for _, row := range rows {
		req.Len(row, domain.CategoryCount)
		for _, v := range row {
			req.Equal(0.1, v)
		}
	}
}

func TestLoader_LegacyArtifactMetadata(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	writeWorkingArtifact(t, dir)

	loader := NewLoader()

	// The artifact declares sequence length 4; the configured fallback of 9
	// must lose.
	artifact, err := loader.Load(dir, LoadOptions{SequenceLength: 9})
	req.NoError(err)

	req.Equal(domain.VariantLegacy, artifact.Info.Variant)
	req.Equal(4, artifact.SequenceLength())
	req.Equal(4, artifact.Info.VocabularySize)
	req.Equal(domain.Categories(), artifact.Info.Categories)
	req.NotEqual(uuid.Nil, artifact.Info.InstanceID)
	req.False(artifact.Info.Checksummed)
	req.False(artifact.Info.LoadedAt.IsZero())

	vocab := artifact.Vocabulary()
	req.NotNil(vocab)
	req.EqualValues(2, vocab.ID("bad"))
	req.EqualValues(1, vocab.ID("unseen-word"))
}

func TestLoader_MissingVocabularyForLegacy(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	writeLegacyFixture(t, dir, plainFixtureConfig(), plainFixtureSections()...)

	loader := NewLoader()

	_, err := loader.Load(dir, LoadOptions{})
	req.Error(err)
	req.True(errors.IsModelLoadError(err), "got %v", err)
	// The cause keeps its own type through the wrap.
	req.True(errors.IsVectorizationError(err), "got %v", err)
}

func TestLoader_VocabularyLargerThanTable(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	writeLegacyFixture(t, dir, plainFixtureConfig(), plainFixtureSections()...)
	writeVocabularyFixture(t, dir, vectorize.Vocabulary{
		PadID: 0,
		OOVID: 1,
		Tokens: map[string]int64{
			"a": 2, "b": 3, "c": 4, "d": 5, "e": 6,
		},
	})

	loader := NewLoader()

	_, err := loader.Load(dir, LoadOptions{})
	req.Error(err)
	req.True(errors.IsModelLoadError(err), "got %v", err)
	req.ErrorContains(err, "embedding table")
}

func TestLoader_ChecksumVerification(t *testing.T) {
	writeManifest := func(t *testing.T, dir string, manifest ChecksumManifest) {
		t.Helper()
		data, err := json.Marshal(manifest)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ChecksumFile), data, 0644))
	}

	checksumOf := func(t *testing.T, dir, name string) string {
		t.Helper()
		sum, err := FileChecksum(filepath.Join(dir, name))
		require.NoError(t, err)
		return sum
	}

	t.Run("valid manifest marks the artifact checksummed", func(t *testing.T) {
		req := require.New(t)
		dir := t.TempDir()
		writeWorkingArtifact(t, dir)
		writeManifest(t, dir, ChecksumManifest{
			ArchitectureFile: checksumOf(t, dir, ArchitectureFile),
			WeightsFile:      checksumOf(t, dir, WeightsFile),
			VocabularyFile:   checksumOf(t, dir, VocabularyFile),
		})

		artifact, err := NewLoader().Load(dir, LoadOptions{})
		req.NoError(err)
		req.True(artifact.Info.Checksummed)
	})

	t.Run("tampered file fails the load", func(t *testing.T) {
		req := require.New(t)
		dir := t.TempDir()
		writeWorkingArtifact(t, dir)
		writeManifest(t, dir, ChecksumManifest{
			WeightsFile: checksumOf(t, dir, WeightsFile),
		})

		// Regenerate the weights with a different bias: still a valid
		// codec stream, but not the bytes the manifest pinned.
		sections := plainFixtureSections()
		sections[2][0] = 42
		writeLegacyFixture(t, dir, plainFixtureConfig(), sections...)

		_, err := NewLoader().Load(dir, LoadOptions{})
		req.Error(err)
		req.True(errors.IsModelLoadError(err), "got %v", err)
		req.ErrorContains(err, "checksum mismatch")
	})

	t.Run("entries for absent files are skipped", func(t *testing.T) {
		req := require.New(t)
		dir := t.TempDir()
		writeWorkingArtifact(t, dir)
		writeManifest(t, dir, ChecksumManifest{
			WeightsFile:   checksumOf(t, dir, WeightsFile),
			TokenizerFile: "0000000000000000000000000000000000000000000000000000000000000000",
		})

		artifact, err := NewLoader().Load(dir, LoadOptions{})
		req.NoError(err)
		req.True(artifact.Info.Checksummed)
	})

	t.Run("malformed manifest fails the load", func(t *testing.T) {
		req := require.New(t)
		dir := t.TempDir()
		writeWorkingArtifact(t, dir)
		req.NoError(os.WriteFile(filepath.Join(dir, ChecksumFile), []byte("{nope"), 0644))

		_, err := NewLoader().Load(dir, LoadOptions{})
		req.Error(err)
		req.ErrorContains(err, "malformed")
	})

	t.Run("manifest entry escaping the directory fails the load", func(t *testing.T) {
		req := require.New(t)
		dir := t.TempDir()
		writeWorkingArtifact(t, dir)
		writeManifest(t, dir, ChecksumManifest{
			"../elsewhere": "00",
		})

		_, err := NewLoader().Load(dir, LoadOptions{})
		req.Error(err)
		req.ErrorContains(err, "escapes")
	})
}

func TestLoader_Close(t *testing.T) {
	req := require.New(t)
	dirA := t.TempDir()
	dirB := t.TempDir()
	writeWorkingArtifact(t, dirA)
	writeWorkingArtifact(t, dirB)

	loader := NewLoader()
	_, err := loader.Load(dirA, LoadOptions{})
	req.NoError(err)
	_, err = loader.Load(dirB, LoadOptions{})
	req.NoError(err)
	req.EqualValues(2, loader.Loads())

	req.NoError(loader.Close())

	// The cache is empty again: loading reopens from disk.
	_, err = loader.Load(dirA, LoadOptions{})
	req.NoError(err)
	req.EqualValues(3, loader.Loads())
}
