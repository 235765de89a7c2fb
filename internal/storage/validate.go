package storage

import "clanwatch/internal/domain"

// ValidateSnapshot checks required snapshot fields at the store boundary.
// Returns ErrInvalidInput on a nil row, missing clan name or battle id,
// negative points, or a zero capture instant.
func ValidateSnapshot(s *domain.Snapshot) error {
	if s == nil || s.ClanName == "" || s.BattleID == "" || s.Points < 0 || s.CapturedAt.IsZero() {
		return ErrInvalidInput
	}
	return nil
}
