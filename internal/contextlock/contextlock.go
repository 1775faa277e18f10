// Package contextlock reconciles the entities detected in a turn with the
// entities pinned on the session.
package contextlock

import "strings"

// Context is the pinned city, area and vehicle of a conversation.
type Context struct {
	City    string `json:"city"`
	Area    string `json:"area"`
	Vehicle string `json:"vehicle"`
}

// Resolve merges explicit over saved. An area never survives a city change
// unless the same turn names one.
func Resolve(saved, explicit Context) Context {
	out := Context{
		City:    firstNonEmpty(explicit.City, saved.City),
		Vehicle: firstNonEmpty(explicit.Vehicle, saved.Vehicle),
	}

	switch {
	case explicit.Area != "":
		out.Area = explicit.Area
	case CityChanged(saved.City, explicit.City):
		out.Area = ""
	default:
		out.Area = saved.Area
	}

	return out
}

// CityChanged reports whether explicit names a different city than saved.
// Naming a city when none was saved counts as a change.
func CityChanged(saved, explicit string) bool {
	if explicit == "" {
		return false
	}
	if saved == "" {
		return true
	}
	return !strings.EqualFold(saved, explicit)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
