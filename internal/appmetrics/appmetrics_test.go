package appmetrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObserveCycle_PropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	err := ObserveCycle("propagates-errors", func() error { return wantErr })
	require.Same(t, wantErr, err)
}

func TestObserveCycle_ReturnsNilOnSuccess(t *testing.T) {
	err := ObserveCycle("succeeds", func() error { return nil })
	require.NoError(t, err)
}
