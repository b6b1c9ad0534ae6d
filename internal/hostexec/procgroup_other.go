//go:build !unix

package hostexec

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}
