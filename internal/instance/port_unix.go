//go:build !windows
// +build !windows

package instance

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// GetProcessUsingPort attempts to find which process is using a given port.
// Returns the PID of the process, or an error if none is found.
func GetProcessUsingPort(port int) (int, error) {
	cmd := exec.Command("sh", "-c", fmt.Sprintf("lsof -t -i TCP:%d -sTCP:LISTEN", port))
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("lsof command failed: %w", err)
	}

	lines := strings.Fields(strings.TrimSpace(string(output)))
	if len(lines) == 0 {
		return 0, fmt.Errorf("no process found listening on port %d", port)
	}

	pid, err := strconv.Atoi(lines[0])
	if err != nil {
		return 0, fmt.Errorf("could not parse PID from lsof output: %w", err)
	}

	return pid, nil
}

// openBrowser opens url in the default browser.
func openBrowser(url string) error {
	opener := "xdg-open"
	if _, err := exec.LookPath("open"); err == nil {
		opener = "open" // macOS
	}
	return exec.Command(opener, url).Start()
}
