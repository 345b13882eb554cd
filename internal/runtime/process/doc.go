// Package process provides a runtime that launches a spec as a local
// operating system process with its output streams connected to pipes.
//
// Descendant termination differs per platform. On unix the child is placed in
// its own process group and Kill signals the whole group, which reaches every
// descendant that did not move itself into a new session. On Windows the
// child is assigned to a job object right after spawn and Kill terminates the
// job; processes the child created before the assignment completed may
// escape.
//
// Elevated runs use sudo on unix. On Windows they are launched through
// PowerShell's Start-Process -Verb RunAs, which owns the elevated process, so
// no stream is redirected and only the exit code is observed.
package process
