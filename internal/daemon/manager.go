package daemon

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"firestige.xyz/arpguard/internal/core"
)

// ReadPIDFile returns the process ID recorded in path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: no PID file at %s", core.ErrDaemonNotRunning, path)
		}
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file %s: %q", path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// Signal sends sig to the daemon recorded in pidFile. It is the fallback
// for stop and reload when the control socket does not answer.
func Signal(pidFile string, sig syscall.Signal) error {
	pid, err := ReadPIDFile(pidFile)
	if err != nil {
		return err
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := process.Signal(sig); err != nil {
		return fmt.Errorf("%w: signal pid %d: %v", core.ErrDaemonNotRunning, pid, err)
	}
	return nil
}
