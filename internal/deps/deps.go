package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Requirement defines an external tool the pipeline shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is a Requirement plus the outcome of resolving it.
type Status struct {
	Requirement
	Path      string
	Available bool
	Detail    string
}

// MediaRequirements lists the media tools frame extraction and clip
// assembly shell out to.
func MediaRequirements(ffmpeg, ffprobe string) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: ffmpeg, Description: "Frame extraction and clip assembly"},
		{Name: "FFprobe", Command: ffprobe, Description: "Media inspection"},
	}
}

// CheckBinaries resolves every requirement. Bare names are looked up on
// PATH; anything containing a separator must be an executable file.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		status := Status{Requirement: req}
		status.Path, status.Detail = resolve(req.Command)
		status.Available = status.Detail == ""
		results = append(results, status)
	}
	return results
}

func resolve(command string) (string, string) {
	if command == "" {
		return "", "command not configured"
	}
	if !strings.ContainsRune(command, filepath.Separator) {
		path, err := exec.LookPath(command)
		if err != nil {
			return "", fmt.Sprintf("binary %q not found", command)
		}
		return path, ""
	}
	info, err := os.Stat(command)
	switch {
	case err != nil:
		return "", fmt.Sprintf("binary %q not found", command)
	case info.IsDir():
		return "", fmt.Sprintf("%q is a directory", command)
	case info.Mode().Perm()&0o111 == 0:
		return "", fmt.Sprintf("%q is not executable", command)
	}
	return command, ""
}

// Missing returns the required dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}

// Describe joins the details of statuses into one line.
func Describe(statuses []Status) string {
	parts := make([]string, 0, len(statuses))
	for _, status := range statuses {
		detail := strings.TrimSpace(status.Detail)
		if detail == "" {
			detail = "unavailable"
		}
		parts = append(parts, status.Name+": "+detail)
	}
	return strings.Join(parts, "; ")
}
