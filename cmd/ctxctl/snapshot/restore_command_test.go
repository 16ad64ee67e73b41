package snapshot_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	snapshotcmd "github.com/dobrovols/ctxctl/cmd/ctxctl/snapshot"
	pkginstall "github.com/dobrovols/ctxctl/pkg/install"
	"github.com/dobrovols/ctxctl/pkg/snapshot"
	"github.com/dobrovols/ctxctl/pkg/telemetry"
)

type stubRestorer struct {
	result *pkginstall.Result
	err    error
	gotID  string
}

func (s *stubRestorer) Restore(_ context.Context, snapshotID string, _ pkginstall.Options, _ pkginstall.Targets) (*pkginstall.Result, error) {
	s.gotID = snapshotID
	return s.result, s.err
}

func newTestCommand() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	stdout := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetContext(context.Background())
	return cmd, stdout
}

func restoreDeps(restorer *stubRestorer) snapshotcmd.RestoreDeps {
	return snapshotcmd.RestoreDeps{
		BuildRestorer: func(pkginstall.Targets, *telemetry.Emitter) snapshotcmd.Restorer {
			return restorer
		},
		ResolveTargets: func(configRoot, backupRoot string) (pkginstall.Targets, error) {
			return pkginstall.Targets{ConfigRoot: "/tmp/config", BackupRoot: "/tmp/backups"}, nil
		},
	}
}

func TestRestoreCommandSuccess(t *testing.T) {
	restorer := &stubRestorer{result: &pkginstall.Result{
		Action:           pkginstall.ActionRestore,
		Status:           pkginstall.StatusSuccess,
		RestoredSnapshot: "20260830T120000Z",
		SnapshotID:       "20260830T130000Z",
	}}
	cmd, stdout := newTestCommand()

	opts := snapshotcmd.RestoreOptions{SnapshotID: "20260830T120000Z"}
	if err := snapshotcmd.RunRestoreForTest(cmd, opts, restoreDeps(restorer)); err != nil {
		t.Fatalf("RunRestoreForTest: %v", err)
	}
	if restorer.gotID != "20260830T120000Z" {
		t.Fatalf("restorer received snapshot %q", restorer.gotID)
	}
	out := stdout.String()
	if !strings.Contains(out, "Restored snapshot 20260830T120000Z") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "Pre-restore snapshot: 20260830T130000Z") {
		t.Fatalf("pre-restore snapshot not reported:\n%s", out)
	}
}

func TestRestoreCommandRequiresSnapshotID(t *testing.T) {
	cmd, _ := newTestCommand()

	err := snapshotcmd.RunRestoreForTest(cmd, snapshotcmd.RestoreOptions{SnapshotID: " "}, restoreDeps(&stubRestorer{}))
	if err == nil || !strings.Contains(err.Error(), "snapshot ID is required") {
		t.Fatalf("expected missing snapshot ID error, got %v", err)
	}
}

func TestRestoreCommandUnknownSnapshot(t *testing.T) {
	restorer := &stubRestorer{err: snapshot.ErrSnapshotNotFound}
	cmd, _ := newTestCommand()

	opts := snapshotcmd.RestoreOptions{SnapshotID: "20260101T000000Z"}
	err := snapshotcmd.RunRestoreForTest(cmd, opts, restoreDeps(restorer))
	if !errors.Is(err, snapshot.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestRestoreCommandJSONOutput(t *testing.T) {
	restorer := &stubRestorer{result: &pkginstall.Result{
		Action:           pkginstall.ActionRestore,
		Status:           pkginstall.StatusSuccess,
		RestoredSnapshot: "20260830T120000Z",
	}}
	cmd, stdout := newTestCommand()

	opts := snapshotcmd.RestoreOptions{SnapshotID: "20260830T120000Z", Output: "json"}
	if err := snapshotcmd.RunRestoreForTest(cmd, opts, restoreDeps(restorer)); err != nil {
		t.Fatalf("RunRestoreForTest: %v", err)
	}

	var decoded pkginstall.Result
	if decodeErr := json.Unmarshal(stdout.Bytes(), &decoded); decodeErr != nil {
		t.Fatalf("decode JSON output: %v\n%s", decodeErr, stdout.String())
	}
	if decoded.RestoredSnapshot != "20260830T120000Z" {
		t.Fatalf("unexpected decoded result: %#v", decoded)
	}
}
