package orchestrator

import "github.com/hashicorp/go-hclog"

// ProfileInfo is what the runtime needs to know about an agent profile
type ProfileInfo struct {
	Name          string
	ContextWindow int
}

// ProfileSelector resolves the profile for a spawn request
type ProfileSelector struct {
	profiles []ProfileInfo
	logger   hclog.Logger
}

func NewProfileSelector(profiles []ProfileInfo, logger hclog.Logger) *ProfileSelector {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ProfileSelector{profiles: profiles, logger: logger}
}

// Select returns the requested profile when it is configured, otherwise the
// first agent profile
func (s *ProfileSelector) Select(requested string) ProfileInfo {
	for _, p := range s.profiles {
		if p.Name == requested {
			return p
		}
	}
	if len(s.profiles) == 0 {
		return ProfileInfo{Name: requested}
	}
	fallback := s.profiles[0]
	if requested != "" {
		s.logger.Info("requested profile not available, using default", "requested", requested, "profile", fallback.Name)
	}
	return fallback
}

func (s *ProfileSelector) Names() []string {
	names := make([]string, len(s.profiles))
	for i, p := range s.profiles {
		names[i] = p.Name
	}
	return names
}
