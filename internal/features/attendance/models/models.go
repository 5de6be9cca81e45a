package models

import "solock-backend/internal/features/attendance/derive"

// Profile is a participant's on-ledger account. One identity owns at most
// one profile; it is created by Register and mutated only by CheckIn.
type Profile struct {
	Owner        string `json:"owner"` // base58 public key
	DisplayName  string `json:"display_name"`
	CheckInCount uint64 `json:"check_in_count"`
	LastCheckIn  int64  `json:"last_check_in"` // epoch seconds, 0 when never
	Registered   bool   `json:"registered"`
}

// DailyRecord proves a single check-in. At most one record exists per
// (owner, dayIndex) pair; its address is fully determined by that pair.
type DailyRecord struct {
	Owner     string `json:"owner"`
	DayIndex  uint64 `json:"day_index"`
	CreatedAt int64  `json:"created_at"`
}

// SystemRegistry is the singleton bootstrap account of the attendance
// program. It is created out-of-band by the administrator.
type SystemRegistry struct {
	Administrator        string `json:"administrator"`
	Name                 string `json:"name"`
	TotalRegisteredUsers uint64 `json:"total_registered_users"`
}

// MaxDisplayNameLen bounds profile display names.
const MaxDisplayNameLen = 20

// ProfileResponse is the UI-facing view of a participant's resolved state.
type ProfileResponse struct {
	Address        derive.Address `json:"address"`
	Owner          string         `json:"owner"`
	DisplayName    string         `json:"display_name"`
	CheckInCount   uint64         `json:"check_in_count"`
	LastCheckIn    int64          `json:"last_check_in"`
	CheckedInToday bool           `json:"checked_in_today"`
	// Confirmed is false when the counter reflects an optimistic local
	// increment that the ledger has not been observed to apply yet.
	Confirmed bool   `json:"confirmed"`
	State     string `json:"state"`
}

// CheckInResponse is returned by the check-in operation.
type CheckInResponse struct {
	Profile          ProfileResponse `json:"profile"`
	AlreadyCheckedIn bool            `json:"already_checked_in"`
	Confirmed        bool            `json:"confirmed"`
	SubmissionID     string          `json:"submission_id,omitempty"`
}

// LeaderboardEntry is one ranked row of the projection.
type LeaderboardEntry struct {
	DisplayName  string `json:"display_name"`
	CheckInCount uint64 `json:"check_in_count"`
}

// LeaderboardResponse carries the ranked projection. Stale marks a cached
// snapshot served because the authoritative fetch failed.
type LeaderboardResponse struct {
	Entries []LeaderboardEntry `json:"entries"`
	Stale   bool               `json:"stale,omitempty"`
}

// DayStatus is one day of attendance history.
type DayStatus struct {
	DayIndex  uint64 `json:"day_index"`
	Date      string `json:"date"` // YYYY-MM-DD, UTC
	CheckedIn bool   `json:"checked_in"`
	CheckedAt int64  `json:"checked_at,omitempty"`
}

// SystemStats is the read-only registry view.
type SystemStats struct {
	Name                 string `json:"name"`
	Administrator        string `json:"administrator"`
	TotalRegisteredUsers uint64 `json:"total_registered_users"`
}
