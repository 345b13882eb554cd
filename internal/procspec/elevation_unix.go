//go:build !windows

package procspec

import "os"

var effectiveUID = os.Geteuid

func applyPlatformElevation(spec *Spec) {
	if effectiveUID() == 0 {
		spec.Launch = LaunchDirect
		return
	}
	spec.Launch = LaunchSudo
}
