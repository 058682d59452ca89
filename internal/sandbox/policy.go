package sandbox

// Policy defines resource limits applied to every sandbox.
type Policy struct {
	MemoryMB  int     // hard memory limit
	CPUCores  float64 // CPU rate limit (e.g. 0.5 = half a core)
	PIDsLimit int     // fork bomb protection
	Network   bool    // false = no network stack at all
}

// DefaultPolicy returns safe defaults for classroom code.
func DefaultPolicy() Policy {
	return Policy{
		MemoryMB:  256,
		CPUCores:  1.0,
		PIDsLimit: 64,
		Network:   false,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MemoryMB <= 0 {
		p.MemoryMB = d.MemoryMB
	}
	if p.CPUCores <= 0 {
		p.CPUCores = d.CPUCores
	}
	if p.PIDsLimit <= 0 {
		p.PIDsLimit = d.PIDsLimit
	}
	return p
}
