package procspec

// Shell builds a spec that runs line through the platform's primary shell.
func Shell(line string, opts ...Option) (*Spec, error) {
	return New(primaryShell, append([]Option{WithArgs(primaryShellArgs(line)...)}, opts...)...)
}

// AltShell builds a spec that runs line through the alternate command shell.
func AltShell(line string, opts ...Option) (*Spec, error) {
	return New(alternateShell, append([]Option{WithArgs(alternateShellArgs(line)...)}, opts...)...)
}
