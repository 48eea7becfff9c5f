package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"l25/pkg/config"
	"l25/pkg/session"
	"l25/pkg/vfs"
	"l25/pkg/vm"
)

func newTestSession(t *testing.T, input string) (*session.Session, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.OutDir = t.TempDir()
	var stdout, stderr bytes.Buffer
	s := session.New(cfg, &stdout, &stderr, vm.NewScanReader(strings.NewReader(input)))
	return s, &stdout, &stderr
}

func artifact(t *testing.T, s *session.Session, name string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(s.Config.OutDir, name))
	require.NoError(t, err)
	return string(raw)
}

func TestPrograms(t *testing.T) {
	tests := []struct {
		file    string
		input   string
		results string
	}{
		{"add.l25", "", "Start l25\n5 \nEnd l25\n"},
		{"loop.l25", "", "Start l25\n0 1 2 \nEnd l25\n"},
		{"fact.l25", "", "Start l25\n1 2 6 24 120 \nEnd l25\n"},
		{"sum.l25", "3 4", "Start l25\n?3\n?4\n7 \nEnd l25\n"},
		{
			"trycatch.l25", "",
			"Start l25\n** Runtime Error: Division by zero at instruction 6\n99 \nEnd l25\n",
		},
	}

	for _, tt := range tests {
		for _, mode := range []vm.AddressingMode{vm.Flat, vm.Nested} {
			t.Run(tt.file+"/"+mode.String(), func(t *testing.T) {
				s, stdout, _ := newTestSession(t, tt.input)
				s.Config.Mode = mode

				require.NoError(t, s.Build(filepath.Join("testdata", tt.file)))
				require.Equal(t, tt.results, artifact(t, s, vfs.Results))

				transcript := artifact(t, s, vfs.Transcript)
				require.True(t, strings.HasSuffix(transcript, "\n===Parsing success!===\n"), transcript)
				require.Contains(t, stdout.String(), "Start l25\n")
				require.NotEmpty(t, artifact(t, s, vfs.Listing))
				require.NotEmpty(t, artifact(t, s, vfs.Symbols))
			})
		}
	}
}

func TestInputEchoStaysOutOfStdout(t *testing.T) {
	s, stdout, _ := newTestSession(t, "3 4")
	require.NoError(t, s.Build("testdata/sum.l25"))
	require.True(t, strings.HasSuffix(stdout.String(), "Start l25\n??7 \nEnd l25\n"), stdout.String())
}

func TestCompileErrorsSkipRun(t *testing.T) {
	s, stdout, _ := newTestSession(t, "")
	err := s.Build("testdata/broken.l25")
	require.Error(t, err)
	require.True(t, errors.Is(err, session.ErrCompile))

	transcript := artifact(t, s, vfs.Transcript)
	require.Contains(t, transcript, "**     ^11\n")
	require.True(t, strings.HasSuffix(transcript, "\n2 errors in l25 program!\n"), transcript)
	require.Equal(t, transcript, stdout.String())

	_, err = os.Stat(filepath.Join(s.Config.OutDir, vfs.Listing))
	require.True(t, os.IsNotExist(err), "no listing for a failed build")
	_, err = os.Stat(filepath.Join(s.Config.OutDir, vfs.Results))
	require.True(t, os.IsNotExist(err), "no results for a failed build")
}

func TestUncaughtFaultWritesCore(t *testing.T) {
	s, _, stderr := newTestSession(t, "")
	s.Core = filepath.Join(t.TempDir(), "core.zip")

	err := s.Build("testdata/divzero.l25")
	require.Error(t, err)
	require.True(t, errors.Is(err, vm.ErrDivisionByZero))
	require.Contains(t, stderr.String(), "** Runtime Error: Division by zero at instruction 4\n")
	require.Equal(t, "Start l25\n** Runtime Error: Division by zero at instruction 4\n\n", artifact(t, s, vfs.Results))

	m, err := vm.LoadSnapshot(s.Core)
	require.NoError(t, err)
	require.True(t, m.Halted, "a faulted machine stays halted")
	require.Equal(t, 5, m.P)

	var desc bytes.Buffer
	m.Describe(&desc)
	require.Contains(t, desc.String(), "mode=flat p=5 b=1 ")
	require.Contains(t, desc.String(), " halted=true ")
}

func TestListingsAndTable(t *testing.T) {
	s, stdout, _ := newTestSession(t, "")
	s.Config.ListCode = true
	s.Config.ListTable = true
	require.NoError(t, s.Build("testdata/add.l25"))

	out := stdout.String()
	require.Contains(t, out, "0 function add lev=0 addr=1 size=5 params=2\n")
	require.Contains(t, out, "4 opr 0 2\t; add\n")
	require.Equal(t, "0 jmp 0 7\n", strings.SplitAfter(artifact(t, s, vfs.Listing), "\n")[0])
}

func TestRunSavedListing(t *testing.T) {
	s, _, _ := newTestSession(t, "")
	require.NoError(t, s.Build("testdata/loop.l25"))

	listing := filepath.Join(s.Config.OutDir, vfs.Listing)
	replay, stdout, _ := newTestSession(t, "")
	require.NoError(t, replay.RunListing(listing))
	require.Equal(t, "Start l25\n0 1 2 \nEnd l25\n", stdout.String())
}

func TestRebuildClearsStaleArtifacts(t *testing.T) {
	s, _, _ := newTestSession(t, "")
	require.NoError(t, s.Build("testdata/add.l25"))
	require.FileExists(t, filepath.Join(s.Config.OutDir, vfs.Results))

	require.Error(t, s.Build("testdata/broken.l25"))
	require.NoFileExists(t, filepath.Join(s.Config.OutDir, vfs.Results))
	require.NoFileExists(t, filepath.Join(s.Config.OutDir, vfs.Listing))
}

func TestTraceGoesToStderr(t *testing.T) {
	s, _, stderr := newTestSession(t, "")
	s.Config.Trace = true
	require.NoError(t, s.Build("testdata/add.l25"))
	require.Contains(t, stderr.String(), "[after opr 0 2]  stack (t=")
}

func TestRuntimeNoticesGoToStderr(t *testing.T) {
	s, stdout, stderr := newTestSession(t, "")
	require.NoError(t, s.Build("testdata/trycatch.l25"))

	notice := "** Runtime Error: Division by zero at instruction 6\n"
	require.Contains(t, stderr.String(), notice)
	require.NotContains(t, stdout.String(), notice)
	require.True(t, strings.HasSuffix(stdout.String(), "Start l25\n99 \nEnd l25\n"), stdout.String())
	require.Contains(t, artifact(t, s, vfs.Results), notice)
}
