//go:build windows

package procspec

func applyPlatformElevation(spec *Spec) {
	spec.RedirectStdout = false
	spec.RedirectStderr = false
	spec.Launch = LaunchShellOwned
}
