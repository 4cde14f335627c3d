package builtins

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"rash/internal/execute"
	"rash/internal/jobs"
)

type fixture struct {
	b      *Builtins
	table  *jobs.Table
	events chan os.Signal
}

func newFixture() *fixture {
	events := make(chan os.Signal, 4)
	table := jobs.NewTable(nil)
	return &fixture{
		b:      New(table, jobs.NewRouterWithEvents(events, nil)),
		table:  table,
		events: events,
	}
}

// spawn registers a job running name with args, followed by the job of the
// builtin invocation itself.
func (f *fixture) spawn(t *testing.T, name string, args ...string) *jobs.Job {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}

	job := jobs.NewJob(name, false)
	_, err := job.Spawn(exec.Command(name, args...))
	require.NoError(t, err)
	job.Launched()
	t.Cleanup(func() {
		_ = job.Signal(unix.SIGKILL)
		_ = job.Signal(unix.SIGCONT)
		for _, p := range job.Processes() {
			<-p.Done()
		}
	})

	f.table.Register(job)
	f.table.Register(jobs.NewJob("fg", false))
	return job
}

func procState(t *testing.T, pid int) byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		t.Skip("no /proc")
	}
	// pid (comm) S ...
	for i := len(data) - 1; i >= 0; i-- {
		if data[i] == ')' && i+2 < len(data) {
			return data[i+2]
		}
	}
	t.Fatalf("unexpected stat line %q", data)
	return 0
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	assert.Eventually(t, cond, 5*time.Second, 20*time.Millisecond)
}

func TestLookup(t *testing.T) {
	b := newFixture().b
	for _, name := range []string{"fg", "bg", "jobs", "cd", "pwd", "help", "exit"} {
		_, ok := b.Lookup(name)
		assert.True(t, ok, name)
	}
	_, ok := b.Lookup("ls")
	assert.False(t, ok)
}

func TestFg_noCurrentJob(t *testing.T) {
	f := newFixture()

	_, err := f.b.Fg(context.Background(), nil)
	assert.EqualError(t, err, "fg: no current job")
	assert.ErrorIs(t, err, jobs.ErrNoCurrentJob)

	// Only the invocation's own job.
	f.table.Register(jobs.NewJob("fg", false))
	_, err = f.b.Fg(context.Background(), nil)
	assert.ErrorIs(t, err, jobs.ErrNoCurrentJob)
}

func TestBg_noSuchJob(t *testing.T) {
	f := newFixture()

	_, err := f.b.Bg(context.Background(), []string{"999999"})

	assert.EqualError(t, err, "bg: no such job: 999999")
}

func TestBg_terminated(t *testing.T) {
	f := newFixture()
	job := f.spawn(t, "true")
	<-job.Processes()[0].Done()

	_, err := f.b.Bg(context.Background(), nil)

	assert.EqualError(t, err, "bg: job has terminated")
}

func TestBg_resumesSuspended(t *testing.T) {
	f := newFixture()
	job := f.spawn(t, "sleep", "30")
	pid := job.Processes()[0].Pid

	require.NoError(t, job.Signal(unix.SIGTSTP))
	job.Suspended = true
	eventually(t, func() bool { return procState(t, pid) == 'T' })

	out, err := f.b.Bg(context.Background(), []string{job.ID()})

	require.NoError(t, err)
	assert.Equal(t, "["+job.ID()+"] sleep &", out)
	assert.True(t, job.Background)
	assert.False(t, job.Suspended)
	eventually(t, func() bool { return procState(t, pid) != 'T' })
	assert.Equal(t, jobs.Running, job.Status())
}

func TestFg_waitsForCompletion(t *testing.T) {
	f := newFixture()
	job := f.spawn(t, "sleep", "0.2")
	job.Background = true

	out, err := f.b.Fg(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, out)
	assert.False(t, job.Background)
	assert.Equal(t, jobs.Done, job.Status())
}

func TestFg_reportsTermination(t *testing.T) {
	f := newFixture()
	job := f.spawn(t, "sh", "-c", "sleep 0.2; exit 3")

	_, err := f.b.Fg(context.Background(), []string{job.ID()})

	assert.EqualError(t, err, "fg: job has terminated")
	assert.Equal(t, jobs.Terminated, job.Status())
}

func TestFg_suspendedAgain(t *testing.T) {
	f := newFixture()
	job := f.spawn(t, "sleep", "30")
	f.events <- unix.SIGTSTP

	out, err := f.b.Fg(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, job.ID()+" Suspended", out)
	assert.True(t, job.Suspended)
	assert.False(t, job.Background)
	assert.Equal(t, jobs.Running, job.Status())
}

func TestFg_interrupted(t *testing.T) {
	f := newFixture()
	job := f.spawn(t, "sleep", "30")
	f.events <- unix.SIGINT

	out, err := f.b.Fg(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, out)
	<-job.Processes()[0].Done()
	assert.Equal(t, jobs.Terminated, job.Status())
}

func TestJobs_prunes(t *testing.T) {
	f := newFixture()
	job := f.spawn(t, "true")
	<-job.Processes()[0].Done()

	out, err := f.b.Jobs(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, "Position | PGID   | Background | Suspended | Status", out)
	assert.Zero(t, f.table.Len())
}

func TestCd(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	_, err := Cd(context.Background(), []string{"sub"})
	require.NoError(t, err)
	wd, _ := Pwd(context.Background(), nil)
	assert.Equal(t, "sub", filepath.Base(wd))

	_, err = Cd(context.Background(), []string{".."})
	require.NoError(t, err)
	wd, _ = Pwd(context.Background(), nil)
	assert.Equal(t, filepath.Base(dir), filepath.Base(wd))

	_, err = Cd(context.Background(), []string{"missing"})
	assert.EqualError(t, err, "cd: no such file or directory: missing")

	_, err = Cd(context.Background(), []string{"a", "b"})
	assert.EqualError(t, err, "cd: too many arguments")
}

func TestCd_home(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	chdir(t, t.TempDir())

	for _, args := range [][]string{nil, {"~"}} {
		_, err := Cd(context.Background(), args)
		require.NoError(t, err)
		wd, _ := Pwd(context.Background(), nil)
		resolved, _ := filepath.EvalSymlinks(home)
		actual, _ := filepath.EvalSymlinks(wd)
		assert.Equal(t, resolved, actual)
	}
}

func TestHelpAndExit(t *testing.T) {
	out, err := Help(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "rash: a simple job-control shell.", out)

	_, err = Exit(context.Background(), nil)
	assert.ErrorIs(t, err, execute.ErrExit)
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
