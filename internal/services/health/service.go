package health

// Service encapsulates health-related checks.
type Service struct {
	backends []string
}

// NewService constructs a health service reporting the configured backends.
func NewService(backends []string) *Service {
	return &Service{backends: backends}
}

// Status returns a simple health payload.
func (s *Service) Status() map[string]any {
	return map[string]any{
		"ok":       true,
		"backends": s.backends,
	}
}
