package application

import "time"

// EndTime derives the scheduled end from the start and the duration.
func (s Session) EndTime() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// ComputeStatus derives the display status at now.
//
// Persisted completed and cancelled states are final. A live session is shown
// as ended once the derived end passes even when no explicit end arrived. A
// scheduled session follows the clock.
func ComputeStatus(s Session, now time.Time) DisplayStatus {
	end := s.EndTime()
	switch s.Status {
	case SessionCancelled:
		return DisplayCancelled
	case SessionCompleted:
		return DisplayEnded
	case SessionLive:
		if !now.Before(end) {
			return DisplayEnded
		}
		return DisplayLive
	default:
		if now.Before(s.StartTime) {
			return DisplayUpcoming
		}
		if now.Before(end) {
			return DisplayLive
		}
		return DisplayEnded
	}
}

// Overdue reports whether a scheduled or live session has passed its derived end.
func Overdue(s Session, now time.Time) bool {
	if s.Status != SessionScheduled && s.Status != SessionLive {
		return false
	}
	return !now.Before(s.EndTime())
}

func viewOf(s Session, now time.Time) SessionView {
	return SessionView{Session: s, DisplayStatus: ComputeStatus(s, now)}
}
