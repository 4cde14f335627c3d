package jobs

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func procState(pid int) string {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return ""
	}
	// The state follows the parenthesised command name.
	fields := strings.Fields(string(data[strings.LastIndexByte(string(data), ')')+1:]))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func TestRouter_WaitFinished(t *testing.T) {
	r := NewRouterWithEvents(make(chan os.Signal, 1), nil)
	job := startJob(t, "true")

	res, err := r.Wait(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, Finished, res)
	assert.Equal(t, Done, job.Status())
	assert.Nil(t, r.Foreground())
}

func TestRouter_WaitInterrupt(t *testing.T) {
	events := make(chan os.Signal, 1)
	r := NewRouterWithEvents(events, nil)
	job := startJob(t, "sleep", "30")

	events <- unix.SIGINT
	res, err := r.Wait(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, Interrupted, res)
	assert.Nil(t, r.Foreground())

	p := job.Processes()[0]
	waitDone(t, p)
	o, _ := p.Outcome()
	assert.Equal(t, unix.SIGINT, o.Signal)
	assert.Equal(t, Terminated, job.Status())
}

func TestRouter_WaitSuspend(t *testing.T) {
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("procfs not available")
	}

	events := make(chan os.Signal, 1)
	r := NewRouterWithEvents(events, nil)
	job := startJob(t, "sleep", "30")
	pid := job.Processes()[0].Pid

	events <- unix.SIGTSTP
	res, err := r.Wait(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, Suspended, res)
	assert.True(t, job.Suspended)
	assert.False(t, job.Background)
	assert.Equal(t, Running, job.Status())
	assert.Eventually(t, func() bool { return procState(pid) == "T" }, 5*time.Second, 10*time.Millisecond)

	r.Continue(job)
	assert.Eventually(t, func() bool { return procState(pid) == "S" }, 5*time.Second, 10*time.Millisecond)
}

func TestRouter_WaitContext(t *testing.T) {
	r := NewRouterWithEvents(make(chan os.Signal), nil)
	job := startJob(t, "sleep", "30")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Wait(ctx, job)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRouter_Idle(t *testing.T) {
	events := make(chan os.Signal, 4)
	r := NewRouterWithEvents(events, nil)

	events <- unix.SIGINT
	events <- unix.SIGTSTP

	assert.Equal(t, 2, r.Idle())
	assert.Equal(t, 0, r.Idle())
}
