package refresh

// InFlight reports how many keys currently have an operation running.
func (s *Synchronizer) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Waiters reports how many callers are waiting on the operation for key.
func (s *Synchronizer) Waiters(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.calls[key]; ok {
		return c.waiters
	}
	return 0
}
