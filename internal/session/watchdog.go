package session

import (
	"context"
	"fmt"
	"time"
)

const defaultWatchdogInterval = 3 * time.Second

// startWatchdog enforces the session's time budgets: idle timeout,
// authorization expiry, and maximum session duration. The first budget
// exceeded closes the session with a matching reason.
func (s *Session) startWatchdog(interval time.Duration) {
	if s.auth.MaxIdleTime <= 0 && s.auth.ExpireAt <= 0 && s.auth.MaxSessionTime <= 0 {
		return
	}
	go s.watch(interval)
}

func (s *Session) watch(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
		}

		now := time.Now()
		switch {
		case s.auth.MaxIdleTime > 0 && now.Sub(s.lastActiveTime()) >= s.auth.MaxIdleTime:
			s.Close(context.Background(),
				fmt.Sprintf("session idle for more than %s", s.auth.MaxIdleTime))
			return
		case s.auth.ExpireAt > 0 && now.Unix() >= s.auth.ExpireAt:
			s.Close(context.Background(), "session authorization expired")
			return
		case s.auth.MaxSessionTime > 0 && now.Sub(s.started) >= s.auth.MaxSessionTime:
			s.Close(context.Background(),
				fmt.Sprintf("session exceeded maximum duration %s", s.auth.MaxSessionTime))
			return
		}
	}
}
