package indego

// MowerState is the collapsed view of a device status code.
type MowerState int

const (
	StateUnknown MowerState = iota
	StateIdle
	StateMowing
)

func (s MowerState) String() string {
	switch s {
	case StateMowing:
		return "mowing"
	case StateIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Known reports whether the state may overwrite a cached value.
func (s MowerState) Known() bool {
	return s == StateMowing || s == StateIdle
}

// Mowing reports the boolean exposed to HomeKit. Only meaningful when Known.
func (s MowerState) Mowing() bool {
	return s == StateMowing
}

// MapStatus collapses a vendor status code into mowing / idle / unknown.
func MapStatus(code int) MowerState {
	switch {
	case code >= 513 && code <= 519:
		return StateMowing
	case code >= 769 && code <= 776:
		return StateMowing
	case code >= 257 && code <= 263:
		return StateIdle
	default:
		return StateUnknown
	}
}

var statusNames = map[int]string{
	0:    "reading_status",
	257:  "charging",
	258:  "docked",
	259:  "docked_software_update",
	260:  "docked",
	261:  "docked",
	262:  "docked_loading_map",
	263:  "docked_saving_map",
	512:  "leaving_dock",
	513:  "mowing",
	514:  "relocalising",
	515:  "loading_map",
	516:  "learning_lawn",
	517:  "paused",
	518:  "border_cut",
	519:  "idle_in_lawn",
	769:  "returning_to_dock",
	770:  "returning_to_dock",
	771:  "returning_to_dock_battery_low",
	772:  "returning_to_dock_calendar_timeslot_ended",
	773:  "returning_to_dock_battery_temp_range",
	774:  "returning_to_dock",
	775:  "returning_to_dock_lawn_complete",
	776:  "returning_to_dock_relocalising",
	1025: "diagnostic_mode",
	1026: "end_of_life",
	1281: "software_update",
}

// StatusName returns a label for a raw status code. Labels are informational only.
func StatusName(code int) string {
	if name, ok := statusNames[code]; ok {
		return name
	}
	return "unknown"
}
