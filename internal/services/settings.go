package services

import "github.com/tbourn/mailsweep-backend/internal/domain"

// Training unlock thresholds on the successful super action count.
const (
	extendedTrainingAt   = 5
	unlimitedTrainingAt  = 10
	extendedTrainingDays = 90
)

// recordSuccess counts one successful super action and loosens training
// mode: 5 successes extend the window to 90 days, 10 lift it entirely.
// It reports whether the training policy changed.
func recordSuccess(s *domain.UserSettings) bool {
	s.SuccessfulActionsCount++
	switch {
	case s.SuccessfulActionsCount >= unlimitedTrainingAt:
		if !s.TrainingModeActive && s.DaysLimit == 0 {
			return false
		}
		s.TrainingModeActive = false
		s.DaysLimit = 0
		return true
	case s.SuccessfulActionsCount >= extendedTrainingAt:
		if s.DaysLimit == 0 || s.DaysLimit >= extendedTrainingDays {
			return false
		}
		s.DaysLimit = extendedTrainingDays
		return true
	}
	return false
}
