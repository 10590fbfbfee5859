package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkspot-backend/config"
)

func TestNew(t *testing.T) {
	logger, err := New(config.LogConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	logger, err = New(config.LogConfig{Level: "warn"})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
