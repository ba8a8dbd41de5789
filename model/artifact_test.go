package model

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"tox-lab/domain"
	"tox-lab/mocks"
	"tox-lab/vectorize"
)

func TestArtifact_DelegatesToBackend(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	backend := mocks.NewMockBackend(ctrl)

	artifact := &Artifact{
		Info:    domain.ModelInfo{Variant: domain.VariantLegacy},
		backend: backend,
	}

	batch := []vectorize.Sequence{{IDs: []int64{2, 3, 0, 0}}}
	rows := [][]float64{{0.9, 0.1, 0.2, 0.05, 0.4, 0.01}}

	backend.EXPECT().Predict(gomock.Any(), batch).Return(rows, nil)
	backend.EXPECT().Close().Return(nil)

	got, err := artifact.Predict(context.Background(), batch)
	req.NoError(err)
	req.Equal(rows, got)
	req.NoError(artifact.Close())
}

func TestArtifact_SurfacesBackendFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	backend := mocks.NewMockBackend(ctrl)

	boom := fmt.Errorf("session lost")
	backend.EXPECT().Predict(gomock.Any(), gomock.Any()).Return(nil, boom)

	artifact := &Artifact{backend: backend}

	_, err := artifact.Predict(context.Background(), []vectorize.Sequence{vectorize.Passthrough("hello")})
	req.ErrorIs(err, boom)
}

func TestNewFallbackArtifact(t *testing.T) {
	req := require.New(t)

	artifact := NewFallbackArtifact("/missing/dir", 128)

	req.Equal(domain.VariantFallback, artifact.Variant())
	req.Equal("/missing/dir", artifact.Info.Path)
	req.Equal(128, artifact.SequenceLength())
	req.Equal(domain.Categories(), artifact.Info.Categories)
	req.Nil(artifact.Vocabulary())
	req.NotZero(artifact.Info.InstanceID)
	req.False(artifact.Info.LoadedAt.IsZero())

	rows, err := artifact.Predict(context.Background(), []vectorize.Sequence{
		vectorize.Passthrough("anything"),
		vectorize.Passthrough("at all"),
	})
	req.NoError(err)
	req.Len(rows, 2)
	for _, row := range rows {
		req.Len(row, domain.CategoryCount)
		for _, p := range row {
			req.Equal(fallbackScore, p)
		}
	}
	req.NoError(artifact.Close())
}
