package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracerDisabledWithoutEndpoint(t *testing.T) {
	tp, err := InitTracer(context.Background(), Config{ServiceName: "test"})
	require.NoError(t, err)
	assert.Nil(t, tp)
}

func TestTrimScheme(t *testing.T) {
	assert.Equal(t, "collector:4318", trimScheme("http://collector:4318/"))
	assert.Equal(t, "collector:4318", trimScheme("https://collector:4318"))
	assert.Equal(t, "collector:4318", trimScheme("collector:4318"))
}
