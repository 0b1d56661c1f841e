package lifecycle

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/substrate-rt/internal/actorcore"
)

func TestFSMHappyPathInstallStartUpdateStop(t *testing.T) {
	t.Parallel()

	f := New(actorcore.NewComponentID("calc"))
	now := time.Now()

	require.NoError(t, f.ProcessEvent(InstallRequestedEvent{Source: GitSource{URL: "git://x", Commit: "abc"}}, now))
	require.Equal(t, Installing, f.State())

	require.NoError(t, f.ProcessEvent(InstalledEvent{Version: VersionInfo{Version: "1.0.0"}}, now))
	require.Equal(t, Installed, f.State())
	require.Equal(t, "1.0.0", f.Version().Version)

	require.NoError(t, f.ProcessEvent(StartRequestedEvent{}, now))
	require.Equal(t, Starting, f.State())

	require.NoError(t, f.ProcessEvent(StartedEvent{}, now))
	require.Equal(t, Running, f.State())

	require.NoError(t, f.ProcessEvent(UpdateRequestedEvent{
		Strategy:   BlueGreen,
		NewVersion: VersionInfo{Version: "2.0.0"},
	}, now))
	require.Equal(t, Updating, f.State())
	require.Equal(t, "2.0.0", f.Version().Version)

	require.NoError(t, f.ProcessEvent(UpdatedEvent{}, now))
	require.Equal(t, Running, f.State())

	require.NoError(t, f.ProcessEvent(StopRequestedEvent{}, now))
	require.Equal(t, Stopping, f.State())

	require.NoError(t, f.ProcessEvent(StoppedEvent{}, now))
	require.Equal(t, Stopped, f.State())

	require.NoError(t, f.ProcessEvent(UninstallRequestedEvent{}, now))
	require.Equal(t, Uninstalled, f.State())

	require.Len(t, f.History(), 9)
}

func TestFSMRejectsStartBeforeInstall(t *testing.T) {
	t.Parallel()

	f := New(actorcore.NewComponentID("calc"))
	err := f.ProcessEvent(StartRequestedEvent{}, time.Now())

	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, Uninstalled, f.State())
}

func TestFSMFailureDuringInstallLeadsTowardUninstalled(t *testing.T) {
	t.Parallel()

	f := New(actorcore.NewComponentID("calc"))
	now := time.Now()

	require.NoError(t, f.ProcessEvent(InstallRequestedEvent{Source: FileSource{Path: "/tmp/x.wasm"}}, now))
	require.NoError(t, f.ProcessEvent(FailedEvent{Reason: "checksum mismatch"}, now))
	require.Equal(t, Failed, f.State())

	require.NoError(t, f.ProcessEvent(UninstallRequestedEvent{}, now))
	require.Equal(t, Uninstalled, f.State())
}

func TestFSMRestartFromStoppedSkipsReinstall(t *testing.T) {
	t.Parallel()

	f := New(actorcore.NewComponentID("calc"))
	now := time.Now()

	require.NoError(t, f.ProcessEvent(InstallRequestedEvent{Source: URLSource{URL: "https://x"}}, now))
	require.NoError(t, f.ProcessEvent(InstalledEvent{Version: VersionInfo{Version: "1.0.0"}}, now))
	require.NoError(t, f.ProcessEvent(StartRequestedEvent{}, now))
	require.NoError(t, f.ProcessEvent(StartedEvent{}, now))
	require.NoError(t, f.ProcessEvent(StopRequestedEvent{}, now))
	require.NoError(t, f.ProcessEvent(StoppedEvent{}, now))

	require.NoError(t, f.ProcessEvent(StartRequestedEvent{}, now))
	require.Equal(t, Starting, f.State())
}

func TestRegistryRegisterGetAndAuditDump(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	id := actorcore.NewComponentID("calc")

	f, err := reg.Register(id)
	require.NoError(t, err)

	_, err = reg.Register(id)
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	got, err := reg.Get(id)
	require.NoError(t, err)
	require.Same(t, f, got)

	require.NoError(t, f.ProcessEvent(InstallRequestedEvent{Source: FileSource{Path: "/x"}}, time.Now()))

	var buf bytes.Buffer
	require.NoError(t, reg.DumpAudit(&buf))
	require.Contains(t, buf.String(), "component_id: calc")
	require.Contains(t, buf.String(), "state: installing")

	reg.Forget(id)
	_, err = reg.Get(id)
	require.ErrorIs(t, err, ErrNotRegistered)
}
