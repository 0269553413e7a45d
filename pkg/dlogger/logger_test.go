// Copyright © 2018 One Concern

package dlogger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestGetLogger(t *testing.T) {
	for _, level := range []string{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError} {
		l, err := GetLogger(level)
		require.NoError(t, err)
		require.NotNil(t, l)
	}

	l, err := GetLogger(LogLevelNone)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.ErrorLevel))

	_, err = GetLogger("verbose")
	require.Error(t, err)

	assert.Panics(t, func() { _ = MustGetLogger("verbose") })
}
