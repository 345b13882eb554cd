//go:build !windows

package procspec

const (
	primaryShell   = "/bin/sh"
	alternateShell = "bash"
)

func primaryShellArgs(line string) []string {
	return []string{"-c", line}
}

func alternateShellArgs(line string) []string {
	return []string{"-c", line}
}
