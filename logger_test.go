package cocods

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLogger(t *testing.T) {
	prev := Log()
	defer SetLogger(prev)

	core, logs := observer.New(zap.InfoLevel)
	SetLogger(zap.New(core))

	files := AnnotatedFiles{
		{FilePath: "a.png", Annotations: []Annotation{{Box: Box{0, 0, 1, 1}, CategoryID: 1}}},
		{FilePath: "b.png"},
	}
	files.Filter(nil, 0, 0, false, true)

	require.NotZero(t, logs.Len())
	assert.Same(t, Log(), zap.L(), "the zap globals follow the package logger")
	assert.NotNil(t, S())
}

func TestInitLoggers(t *testing.T) {
	prev := Log()
	defer SetLogger(prev)

	require.NoError(t, InitDevelopment())
	assert.NotNil(t, Log())
	require.NoError(t, InitProduction())
	assert.NotNil(t, S())
	Sync()
}
