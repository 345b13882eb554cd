package procspec

// ApplyElevation reconciles the admin request with output capture.
//
// On Windows elevation requires the shell to own the process, so both
// redirect flags are cleared and the spec degrades to exit-only supervision:
// elevated runs there never return captured lines. On unix platforms
// redirection is unaffected and the command is routed through sudo unless
// the current process is already root.
func ApplyElevation(spec *Spec) {
	if spec == nil || !spec.Admin {
		return
	}
	applyPlatformElevation(spec)
}
