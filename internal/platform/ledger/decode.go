package ledger

import (
	"encoding/json"
	"fmt"

	"solock-backend/internal/features/attendance/models"
)

// Account payloads carry an explicit schema version. Version 1 is the legacy
// field naming the first program deployment used; version 2 is current.
// Decoding is a single versioned step, never ad hoc optional-field probing.

type accountEnvelope struct {
	Schema int             `json:"schema"`
	Kind   string          `json:"kind"`
	Data   json.RawMessage `json:"data"`
}

func decodeProfile(raw json.RawMessage) (*models.Profile, error) {
	env, err := decodeEnvelope(raw, "profile")
	if err != nil {
		return nil, err
	}

	switch env.Schema {
	case 1:
		var legacy struct {
			Authority     string `json:"authority"`
			Name          string `json:"name"`
			TotalClockIns uint64 `json:"total_clock_ins"`
			LastTimestamp int64  `json:"last_timestamp"`
			IsRegistered  bool   `json:"is_registered"`
		}
		if err := json.Unmarshal(env.Data, &legacy); err != nil {
			return nil, fmt.Errorf("decode profile v1: %w", err)
		}
		return &models.Profile{
			Owner:        legacy.Authority,
			DisplayName:  legacy.Name,
			CheckInCount: legacy.TotalClockIns,
			LastCheckIn:  legacy.LastTimestamp,
			Registered:   legacy.IsRegistered,
		}, nil
	case 2:
		var p models.Profile
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode profile v2: %w", err)
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unsupported profile schema %d", env.Schema)
	}
}

func decodeDailyRecord(raw json.RawMessage) (*models.DailyRecord, error) {
	env, err := decodeEnvelope(raw, "daily_record")
	if err != nil {
		return nil, err
	}

	switch env.Schema {
	case 1:
		var legacy struct {
			User      string `json:"user"`
			Day       uint64 `json:"day"`
			Timestamp int64  `json:"timestamp"`
		}
		if err := json.Unmarshal(env.Data, &legacy); err != nil {
			return nil, fmt.Errorf("decode record v1: %w", err)
		}
		return &models.DailyRecord{
			Owner:     legacy.User,
			DayIndex:  legacy.Day,
			CreatedAt: legacy.Timestamp,
		}, nil
	case 2:
		var r models.DailyRecord
		if err := json.Unmarshal(env.Data, &r); err != nil {
			return nil, fmt.Errorf("decode record v2: %w", err)
		}
		return &r, nil
	default:
		return nil, fmt.Errorf("unsupported record schema %d", env.Schema)
	}
}

func decodeRegistry(raw json.RawMessage) (*models.SystemRegistry, error) {
	env, err := decodeEnvelope(raw, "registry")
	if err != nil {
		return nil, err
	}

	switch env.Schema {
	case 1:
		var legacy struct {
			Authority  string `json:"authority"`
			Name       string `json:"name"`
			TotalUsers uint64 `json:"total_users"`
		}
		if err := json.Unmarshal(env.Data, &legacy); err != nil {
			return nil, fmt.Errorf("decode registry v1: %w", err)
		}
		return &models.SystemRegistry{
			Administrator:        legacy.Authority,
			Name:                 legacy.Name,
			TotalRegisteredUsers: legacy.TotalUsers,
		}, nil
	case 2:
		var r models.SystemRegistry
		if err := json.Unmarshal(env.Data, &r); err != nil {
			return nil, fmt.Errorf("decode registry v2: %w", err)
		}
		return &r, nil
	default:
		return nil, fmt.Errorf("unsupported registry schema %d", env.Schema)
	}
}

func decodeEnvelope(raw json.RawMessage, wantKind string) (*accountEnvelope, error) {
	var env accountEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode account envelope: %w", err)
	}
	if env.Kind != wantKind {
		return nil, fmt.Errorf("account kind %q, want %q", env.Kind, wantKind)
	}
	return &env, nil
}
