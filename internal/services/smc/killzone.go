package smc

import "time"

var sessions = []KillZone{
	{Name: "Asian", StartHour: 0, EndHour: 4},
	{Name: "London", StartHour: 7, EndHour: 10},
	{Name: "NY AM", StartHour: 12, EndHour: 15},
	{Name: "NY PM", StartHour: 18, EndHour: 21},
}

// KillZones returns the session windows with Active evaluated at now (UTC).
func KillZones(now time.Time) []KillZone {
	hour := now.UTC().Hour()
	out := make([]KillZone, len(sessions))
	for i, kz := range sessions {
		kz.Active = hour >= kz.StartHour && hour < kz.EndHour
		out[i] = kz
	}
	return out
}

// ActiveKillZone returns the session containing now, if any.
func ActiveKillZone(now time.Time) (KillZone, bool) {
	for _, kz := range KillZones(now) {
		if kz.Active {
			return kz, true
		}
	}
	return KillZone{}, false
}

// WithKillZonesAt returns a copy of a with the session windows evaluated at
// now. Detected artifacts are shared with a.
func (a Analysis) WithKillZonesAt(now time.Time) Analysis {
	a.KillZones = KillZones(now)
	a.ActiveKillZone = nil
	if kz, ok := ActiveKillZone(now); ok {
		a.ActiveKillZone = &kz
	}
	return a
}
