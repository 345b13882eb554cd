package procspec

import (
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func TestNewRejectsBlankCommand(t *testing.T) {
	for _, cmd := range []string{"", "   ", "\t"} {
		_, err := New(cmd)
		require.ErrorIs(t, err, ErrEmptyCommand)
	}
}

func TestNewRedirectsBothStreams(t *testing.T) {
	spec, err := New("echo", WithArgs("Hello, World!"), WithDir("/tmp"))
	require.NoError(t, err)

	assert.True(t, spec.RedirectStdout)
	assert.True(t, spec.RedirectStderr)
	assert.False(t, spec.ExitOnly())
	assert.Equal(t, LaunchDirect, spec.Launch)
	assert.Equal(t, []string{"Hello, World!"}, spec.Args)
	assert.Equal(t, "/tmp", spec.Dir)
}

func TestNewDoesNotResolveExecutable(t *testing.T) {
	spec, err := New("definitely-not-a-real-binary-4f1c")
	require.NoError(t, err)
	assert.Equal(t, "definitely-not-a-real-binary-4f1c", spec.Command)
}

func TestEnvOverlayLaterValuesWin(t *testing.T) {
	spec, err := New("env",
		WithEnv(map[string]string{"A": "1", "B": "2"}),
		WithEnvVar("B", "3"),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"A=1", "B=3"}, spec.EnvList())
}

func TestCloneIsIndependent(t *testing.T) {
	spec, err := New("env", WithArgs("a"), WithEnvVar("K", "v"))
	require.NoError(t, err)

	dup := spec.Clone()
	dup.Args[0] = "b"
	dup.Env["K"] = "changed"

	assert.Equal(t, "a", spec.Args[0])
	assert.Equal(t, "v", spec.Env["K"])
}

func TestArgvAppendsSplitArgLine(t *testing.T) {
	spec, err := New("printf", WithArgs("%s|"), WithArgLine(`one "two three" 'four'`))
	require.NoError(t, err)

	argv, err := spec.Argv()
	require.NoError(t, err)
	assert.Equal(t, []string{"%s|", "one", "two three", "four"}, argv)
}

func TestSplitArgs(t *testing.T) {
	got, err := SplitArgs(`a  b\ c "d \"e\"" 'f\g' ""`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b c", `d "e"`, `f\g`, ""}, got)

	_, err = SplitArgs(`"open`)
	assert.True(t, errors.Is(err, ErrUnterminatedQuote))
}

func TestShellSpecs(t *testing.T) {
	spec, err := Shell("echo hi")
	require.NoError(t, err)
	alt, err := AltShell("echo hi")
	require.NoError(t, err)

	if runtime.GOOS == "windows" {
		assert.Equal(t, "powershell.exe", spec.Command)
		assert.Equal(t, "cmd.exe", alt.Command)
		assert.Equal(t, []string{"/C", "echo hi"}, alt.Args)
		return
	}
	assert.Equal(t, "/bin/sh", spec.Command)
	assert.Equal(t, []string{"-c", "echo hi"}, spec.Args)
	assert.Equal(t, "bash", alt.Command)
}

func TestLookupEncoding(t *testing.T) {
	enc, err := LookupEncoding("")
	require.NoError(t, err)
	assert.Nil(t, enc)

	enc, err = LookupEncoding("UTF-8")
	require.NoError(t, err)
	assert.Nil(t, enc)

	enc, err = LookupEncoding("windows-1252")
	require.NoError(t, err)
	assert.Equal(t, charmap.Windows1252, enc)

	_, err = LookupEncoding("klingon")
	assert.Error(t, err)
}
