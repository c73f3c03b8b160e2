package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names an external tool a backend shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	// Optional tools only disable the backends that need them.
	Optional bool
}

// Status is a Requirement plus the outcome of locating it. Command holds the
// resolved path when the tool was found.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Check locates req on disk or PATH.
func Check(req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	resolved, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Command = resolved
	status.Available = true
	return status
}

// CheckAll runs Check for each requirement in order.
func CheckAll(requirements ...Requirement) []Status {
	out := make([]Status, len(requirements))
	for i, req := range requirements {
		out[i] = Check(req)
	}
	return out
}
