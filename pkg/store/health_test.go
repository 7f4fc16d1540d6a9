package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tarsy-labs/session-governor/pkg/store"
)

func TestHealth_ZeroValueStoreIsNotConnected(t *testing.T) {
	var s store.Store
	status, err := s.Health(t.Context())
	assert.ErrorIs(t, err, store.ErrNotConnected)
	assert.Equal(t, "unhealthy", status.Status)
}
