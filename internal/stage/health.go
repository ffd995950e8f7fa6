package stage

import "sort"

// Health summarizes the readiness of a pipeline stage.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// Summarize reports whether every stage is ready and lists the ones that are not.
func Summarize(checks []Health) (bool, []string) {
	var failing []string
	for _, h := range checks {
		if !h.Ready {
			failing = append(failing, h.Name)
		}
	}
	sort.Strings(failing)
	return len(failing) == 0, failing
}
