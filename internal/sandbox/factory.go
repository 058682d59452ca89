package sandbox

import "fmt"

// NewRunner selects a backend by name: "docker" (default isolation) or
// "local" (development/testing).
func NewRunner(backend string, policy Policy) (Runner, error) {
	switch backend {
	case "docker":
		return NewDockerRunner(policy), nil
	case "local":
		return NewLocalRunner(), nil
	default:
		return nil, fmt.Errorf("unknown sandbox backend: %q", backend)
	}
}
