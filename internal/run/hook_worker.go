package run

import "context"

// hookWorker runs queued hooks until hookCh is closed. Jobs already queued at
// shutdown still run, each bounded by hook.timeout_sec.
func (s *Server) hookWorker() {
	defer s.wg.Done()
	for job := range s.hookCh {
		if err := s.hook.Run(context.Background(), job); err != nil {
			s.metrics.HookFailed()
			s.logger.Errorf("hook: %v", err)
			continue
		}
		s.metrics.HookSent()
	}
}
