//go:build windows

package procspec

const (
	primaryShell   = "powershell.exe"
	alternateShell = "cmd.exe"
)

func primaryShellArgs(line string) []string {
	return []string{"-NoProfile", "-NonInteractive", "-Command", line}
}

func alternateShellArgs(line string) []string {
	return []string{"/C", line}
}
