package tools

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/wpanctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

type scriptedRunner struct {
	mu    sync.Mutex
	calls []call
	code  int32
	block chan struct{}
}

func (r *scriptedRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int32, error) {
	r.mu.Lock()
	r.calls = append(r.calls, call{name: name, args: args})
	code, block := r.code, r.block
	r.mu.Unlock()
	if block != nil {
		<-block
	}
	if code != 0 {
		return nil, []byte("nope\n"), code, errors.New("exit status")
	}
	return nil, nil, 0, nil
}

func (r *scriptedRunner) last() call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func TestCanUpgradePassesVersion(t *testing.T) {
	testlog.Start(t)
	runner := &scriptedRunner{}
	fw := NewFirmware("/usr/bin/fw-check --board nrf52", "/usr/bin/fw-flash")
	fw.Runner = runner

	assert.True(t, fw.CanUpgrade("OPENTHREAD/1.0; it's new"))
	got := runner.last()
	assert.Equal(t, "/usr/bin/fw-check", got.name)
	assert.Equal(t, []string{"--board", "nrf52", "OPENTHREAD/1.0; it's new"}, got.args)

	runner.code = 1
	assert.False(t, fw.CanUpgrade("OPENTHREAD/1.0"))
}

func TestCanUpgradeNeedsBothCommands(t *testing.T) {
	testlog.Start(t)
	runner := &scriptedRunner{}

	fw := NewFirmware("", "flash")
	fw.Runner = runner
	assert.False(t, fw.CanUpgrade("v1"))

	fw = NewFirmware("check", "")
	fw.Runner = runner
	assert.False(t, fw.CanUpgrade("v1"))

	fw = NewFirmware("check", "flash")
	fw.Runner = runner
	assert.False(t, fw.CanUpgrade(""))
	assert.False(t, fw.CanUpgrade("v1\x00"))
	assert.Empty(t, runner.calls)
}

func TestStartReportsThroughPost(t *testing.T) {
	testlog.Start(t)
	runner := &scriptedRunner{block: make(chan struct{})}
	fw := NewFirmware("check", "flash --yes")
	fw.Runner = runner

	posted := make(chan func(), 1)
	fw.Post = func(fn func()) error {
		posted <- fn
		return nil
	}
	results := make(chan error, 1)
	fw.Finish = func(err error) { results <- err }

	require.NoError(t, fw.Start())
	require.ErrorIs(t, fw.Start(), ErrUpgradeRunning)
	assert.True(t, fw.Running())

	close(runner.block)
	var fn func()
	select {
	case fn = <-posted:
	case <-time.After(5 * time.Second):
		t.Fatal("upgrade result was not posted")
	}
	assert.Empty(t, results)
	fn()
	require.NoError(t, <-results)
	assert.False(t, fw.Running())
	assert.Equal(t, call{name: "flash", args: []string{"--yes"}}, runner.last())
}

func TestStartFailure(t *testing.T) {
	testlog.Start(t)
	fw := NewFirmware("check", "")
	require.ErrorIs(t, fw.Start(), ErrNoUpgradeCommand)

	runner := &scriptedRunner{code: 2}
	fw = NewFirmware("check", "flash")
	fw.Runner = runner
	results := make(chan error, 1)
	fw.Finish = func(err error) { results <- err }

	require.NoError(t, fw.Start())
	select {
	case err := <-results:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exit=2")
	case <-time.After(5 * time.Second):
		t.Fatal("upgrade result was not reported")
	}
}
