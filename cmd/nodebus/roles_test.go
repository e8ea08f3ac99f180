package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-nodebus/config"
	"github.com/arloliu/go-nodebus/logger"
)

func TestIgnoreCanceled(t *testing.T) {
	assert.NoError(t, ignoreCanceled(nil))
	assert.NoError(t, ignoreCanceled(context.Canceled))
	assert.NoError(t, ignoreCanceled(context.DeadlineExceeded))
	assert.NoError(t, ignoreCanceled(fmt.Errorf("loop: %w", context.Canceled)))

	err := errors.New("line fault")
	assert.Equal(t, err, ignoreCanceled(err))
}

func TestRunSim(t *testing.T) {
	cfg, err := config.Parse([]byte(`
role: sim
line:
  byte_time_us: 200
sim:
  nodes: 2
`))
	require.NoError(t, err)
	cfg.Sim.StoreDir = t.TempDir()
	config.Normalize(cfg)
	require.NoError(t, config.Validate(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	l := logger.NewSlog(logger.ErrorLevel, false)
	assert.NoError(t, runSim(ctx, cfg, l))
}

func TestRunSecondary_BadDevice(t *testing.T) {
	cfg := &config.Config{Role: config.RoleSecondary}
	cfg.Line.Device = "/dev/nodebus-missing"
	cfg.Secondary.StorePath = t.TempDir()
	config.Normalize(cfg)

	l := logger.NewSlog(logger.ErrorLevel, false)
	assert.Error(t, runSecondary(context.Background(), cfg, l))
}

func TestReportStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ml := logger.NewMockLogger()
	ml.On("Info", "nodebus: stopped", mock.Anything).Once()
	reportStop(ctx, ml, config.RoleSim, context.Canceled)
	ml.AssertExpectations(t)

	ml = logger.NewMockLogger()
	ml.On("Fatal", "nodebus: stopped", mock.Anything).Once()
	reportStop(context.Background(), ml, config.RolePrimary, errors.New("line: hardware receive overrun"))
	ml.AssertExpectations(t)
	ml.AssertNotCalled(t, "Info", mock.Anything, mock.Anything)
}
