//go:build !windows

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tools.zach/dev/richcord/internal/apps"
	"tools.zach/dev/richcord/internal/config"
	"tools.zach/dev/richcord/internal/control"
	"tools.zach/dev/richcord/internal/discord"
	"tools.zach/dev/richcord/internal/paths"
	"tools.zach/dev/richcord/internal/session"
)

const testClientID = "123456789012345678"

// ///////////////////////////////////////////////
// Fake Discord
// ///////////////////////////////////////////////

type fakeDiscord struct {
	mu         sync.Mutex
	logins     []string
	activities []*discord.Activity
	clears     int
}

func (d *fakeDiscord) newConn() session.Conn { return &fakeConn{d: d} }

func (d *fakeDiscord) last() *discord.Activity {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.activities) == 0 {
		return nil
	}
	return d.activities[len(d.activities)-1]
}

func (d *fakeDiscord) loginIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.logins...)
}

type fakeConn struct{ d *fakeDiscord }

func (c *fakeConn) Login(_ context.Context, clientID string) error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.logins = append(c.d.logins, clientID)
	return nil
}

func (c *fakeConn) SetActivity(_ context.Context, act *discord.Activity) error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.activities = append(c.d.activities, act)
	return nil
}

func (c *fakeConn) ClearActivity(context.Context) error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.clears++
	return nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) Subscribe(discord.Handler) discord.Subscription { return nopSub{} }

type nopSub struct{}

func (nopSub) Unsubscribe() {}

// ///////////////////////////////////////////////
// Harness
// ///////////////////////////////////////////////

// shortDataDir keeps the socket path under the platform's sun_path limit.
func shortDataDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "rc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func testApp(fake *fakeDiscord) *app {
	a := newApp()
	a.newConn = fake.newConn
	a.checkOnBoot = false
	return a
}

func executeCLI(t *testing.T, fake *fakeDiscord, dataDir string, args ...string) (string, string, error) {
	t.Helper()
	return executeApp(t, testApp(fake), dataDir, args...)
}

func executeApp(t *testing.T, a *app, dataDir string, args ...string) (string, string, error) {
	t.Helper()
	root := a.rootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--data-dir", dataDir}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// startDaemon runs `richcord daemon` until the test ends.
func startDaemon(t *testing.T, fake *fakeDiscord, dataDir string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		root := testApp(fake).rootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs([]string{"--data-dir", dataDir, "daemon"})
		done <- root.ExecuteContext(ctx)
	}()

	client := control.NewClient(control.DefaultAddress(dataDir))
	require.Eventually(t, func() bool {
		_, err := client.Status(context.Background())
		return err == nil
	}, 5*time.Second, 10*time.Millisecond, "daemon did not come up")

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("daemon did not stop")
		}
	})
}

func writeConfig(t *testing.T, dataDir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, paths.ConfigFile), []byte(body), 0o644))
}

// ///////////////////////////////////////////////
// Tests
// ///////////////////////////////////////////////

func TestDaemon_CommandRoundTrip(t *testing.T) {
	dataDir := shortDataDir(t)
	writeConfig(t, dataDir, "[discord]\nclient_id = \""+testClientID+"\"\nauto_connect = false\n")
	fake := &fakeDiscord{}
	startDaemon(t, fake, dataDir)

	out, _, err := executeCLI(t, fake, dataDir, "status", "--json")
	require.NoError(t, err)
	var st session.Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.False(t, st.Connected, "auto_connect is off")

	_, _, err = executeCLI(t, fake, dataDir, "set", "-d", "too early")
	require.ErrorIs(t, err, session.ErrNotConnected)

	out, _, err = executeCLI(t, fake, dataDir, "connect")
	require.NoError(t, err)
	assert.Equal(t, "connected as "+testClientID+"\n", out)
	assert.Equal(t, []string{testClientID}, fake.loginIDs())

	out, _, err = executeCLI(t, fake, dataDir, "set", "-d", "Writing tests", "-s", "richcord", "--elapsed")
	require.NoError(t, err)
	assert.Equal(t, "presence updated\n", out)
	act := fake.last()
	require.NotNil(t, act)
	assert.Equal(t, "Writing tests", act.Details)
	assert.Equal(t, "richcord", act.State)
	assert.NotNil(t, act.Timestamps)

	out, _, err = executeCLI(t, fake, dataDir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "connected")
	assert.Contains(t, out, "Writing tests")

	_, _, err = executeCLI(t, fake, dataDir, "profile", "save", "tests", "--current")
	require.NoError(t, err)

	out, _, err = executeCLI(t, fake, dataDir, "clear")
	require.NoError(t, err)
	assert.Equal(t, "presence cleared\n", out)

	out, _, err = executeCLI(t, fake, dataDir, "profile", "apply", "TESTS")
	require.NoError(t, err)
	assert.Equal(t, "applied profile tests\n", out)
	assert.Equal(t, "Writing tests", fake.last().Details)

	out, _, err = executeCLI(t, fake, dataDir, "disconnect")
	require.NoError(t, err)
	assert.Equal(t, "disconnected\n", out)

	out, _, err = executeCLI(t, fake, dataDir, "status", "--json")
	require.NoError(t, err)
	st = session.Status{}
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.False(t, st.Connected)
	assert.Nil(t, st.Presence)
}

func TestDaemon_AutoConnectAndConfigReload(t *testing.T) {
	dataDir := shortDataDir(t)
	writeConfig(t, dataDir, "[discord]\nclient_id = \""+testClientID+"\"\n")
	fake := &fakeDiscord{}
	startDaemon(t, fake, dataDir)

	require.Eventually(t, func() bool { return len(fake.loginIDs()) == 1 }, 5*time.Second, 10*time.Millisecond)

	const next = "876543210987654321"
	writeConfig(t, dataDir, "[discord]\nclient_id = \""+next+"\"\n")

	require.Eventually(t, func() bool {
		ids := fake.loginIDs()
		return len(ids) == 2 && ids[1] == next
	}, 10*time.Second, 20*time.Millisecond, "a new client id re-initializes the session")
}

func TestDaemon_SeedsConfigAndRefusesSecondInstance(t *testing.T) {
	dataDir := shortDataDir(t)
	fake := &fakeDiscord{}
	startDaemon(t, fake, dataDir)

	_, err := os.Stat(filepath.Join(dataDir, paths.ConfigFile))
	require.NoError(t, err, "the default config is written on first start")
	assert.Empty(t, fake.loginIDs(), "the placeholder client id never connects")

	_, _, err = executeCLI(t, fake, dataDir, "daemon")
	require.ErrorContains(t, err, "daemon already running")
}

func TestCommands_DaemonNotRunning(t *testing.T) {
	dataDir := shortDataDir(t)
	fake := &fakeDiscord{}

	for _, args := range [][]string{{"status"}, {"clear"}, {"disconnect"}, {"connect", testClientID}} {
		_, _, err := executeCLI(t, fake, dataDir, args...)
		require.Error(t, err, args)
		assert.True(t, errors.Is(err, control.ErrDaemonNotRunning), "%v: %v", args, err)
		assert.Contains(t, err.Error(), "richcord daemon", args)
	}
}

func TestConnect_Validation(t *testing.T) {
	dataDir := shortDataDir(t)
	fake := &fakeDiscord{}

	_, _, err := executeCLI(t, fake, dataDir, "connect")
	assert.ErrorContains(t, err, "discord.client_id is not set")

	_, _, err = executeCLI(t, fake, dataDir, "connect", "abc")
	assert.ErrorContains(t, err, "invalid client id")
}

func TestProfileCommands(t *testing.T) {
	dataDir := shortDataDir(t)
	fake := &fakeDiscord{}

	out, _, err := executeCLI(t, fake, dataDir, "profile", "list")
	require.NoError(t, err)
	assert.Equal(t, "no profiles saved\n", out)

	_, _, err = executeCLI(t, fake, dataDir, "profile", "save", "Focus", "-d", "Deep work", "-b", "Site=https://example.com")
	require.NoError(t, err)

	out, _, err = executeCLI(t, fake, dataDir, "profile", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Focus")
	assert.Contains(t, out, "Deep work")

	out, _, err = executeCLI(t, fake, dataDir, "profile", "delete", "focus")
	require.NoError(t, err)
	assert.Equal(t, "deleted profile focus\n", out)

	_, _, err = executeCLI(t, fake, dataDir, "profile", "delete", "focus")
	assert.ErrorContains(t, err, "profile not found")
}

func TestLogsCommand(t *testing.T) {
	dataDir := shortDataDir(t)
	fake := &fakeDiscord{}

	_, _, err := executeCLI(t, fake, dataDir, "logs")
	assert.ErrorContains(t, err, "no daemon log")

	require.NoError(t, os.WriteFile(filepath.Join(dataDir, paths.LogFile), []byte("one\ntwo\nthree\n"), 0o600))
	out, _, err := executeCLI(t, fake, dataDir, "logs", "-n", "2")
	require.NoError(t, err)
	assert.Equal(t, "two\nthree\n", out)
}

type staticLister []apps.App

func (l staticLister) List(context.Context) ([]apps.App, error) { return l, nil }

type noIcons struct{}

func (noIcons) Icon(context.Context, apps.App) ([]byte, error) { return nil, apps.ErrNoIcon }

func appsTestApp(fake *fakeDiscord, list []apps.App) *app {
	a := testApp(fake)
	a.newLister = func(*config.Config) apps.Lister { return staticLister(list) }
	a.icons = noIcons{}
	a.isTerminal = func() bool { return true }
	return a
}

func TestAppsCommand_List(t *testing.T) {
	dataDir := shortDataDir(t)
	list := []apps.App{{Name: "Code", PID: 42, Title: "main.go"}, {Name: "Firefox", PID: 7}}

	out, _, err := executeApp(t, appsTestApp(&fakeDiscord{}, list), dataDir, "apps")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Code")
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "main.go")

	out, _, err = executeApp(t, appsTestApp(&fakeDiscord{}, list), dataDir, "apps", "--json")
	require.NoError(t, err)
	var got []apps.App
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, list, got)

	out, _, err = executeApp(t, appsTestApp(&fakeDiscord{}, nil), dataDir, "apps")
	require.NoError(t, err)
	assert.Equal(t, "no applications with a visible window\n", out)
}

func TestAppsCommand_Pick(t *testing.T) {
	dataDir := shortDataDir(t)
	writeConfig(t, dataDir, "[discord]\nclient_id = \""+testClientID+"\"\n")
	fake := &fakeDiscord{}
	startDaemon(t, fake, dataDir)
	require.Eventually(t, func() bool { return len(fake.loginIDs()) == 1 }, 5*time.Second, 10*time.Millisecond)

	list := []apps.App{{Name: "Code"}, {Name: "Firefox", Title: "Docs"}}
	a := appsTestApp(fake, list)
	a.pick = func(_ context.Context, got []apps.App, _ io.Reader, _ io.Writer) (apps.App, bool, error) {
		return got[1], true, nil
	}

	out, _, err := executeApp(t, a, dataDir, "apps", "--pick")
	require.NoError(t, err)
	assert.Equal(t, "showing Firefox\n", out)
	act := fake.last()
	require.NotNil(t, act)
	assert.Equal(t, "Using Firefox", act.Details)
	assert.Equal(t, "Docs", act.State)
	assert.Nil(t, act.Assets, "no icon means no image")
}

func TestAppsCommand_PickCancelledOrNoTerminal(t *testing.T) {
	dataDir := shortDataDir(t)
	list := []apps.App{{Name: "Code"}}

	a := appsTestApp(&fakeDiscord{}, list)
	a.pick = func(context.Context, []apps.App, io.Reader, io.Writer) (apps.App, bool, error) {
		return apps.App{}, false, nil
	}
	out, _, err := executeApp(t, a, dataDir, "apps", "--pick")
	require.NoError(t, err)
	assert.Empty(t, out)

	a = appsTestApp(&fakeDiscord{}, list)
	a.isTerminal = func() bool { return false }
	_, _, err = executeApp(t, a, dataDir, "apps", "--pick")
	assert.ErrorContains(t, err, "interactive terminal")
}
