package schedule

// durationMode determines how a session's length is read from a row.
type durationMode int

const (
	// durationMinutes means one column holding the length in minutes.
	durationMinutes durationMode = iota
	// durationEndTime means the length is the gap between start and end times.
	durationEndTime
)

// Profile describes the column layout of a session schedule export. Column
// names are matched case-insensitively.
type Profile struct {
	Name         string
	IDCol        string
	CourseCol    string
	DateCol      string
	DateLayout   string
	StartCol     string
	DurationMode durationMode
	DurationCol  string // used when DurationMode == durationMinutes
	EndCol       string // used when DurationMode == durationEndTime
	TrainerCol   string
	EmailCol     string
	VenueCol     string
	CapacityCol  string
	PriceCol     string
}

// requiredCols returns the column names that must be present for this profile to match.
func (p Profile) requiredCols() []string {
	cols := []string{p.CourseCol, p.DateCol, p.StartCol}

	if p.DurationMode == durationEndTime {
		cols = append(cols, p.EndCol)
	}

	return cols
}

// profiles is the ordered list of layouts tried during auto-detection.
var profiles = []Profile{
	{
		Name:         "template",
		IDCol:        "session_id",
		CourseCol:    "course_code",
		DateCol:      "date",
		DateLayout:   "2006-01-02",
		StartCol:     "start_time",
		DurationMode: durationMinutes,
		DurationCol:  "duration_minutes",
		TrainerCol:   "trainer_name",
		EmailCol:     "trainer_email",
		VenueCol:     "venue",
		CapacityCol:  "capacity",
		PriceCol:     "price",
	},
	{
		Name:         "rota",
		CourseCol:    "course code",
		DateCol:      "date",
		DateLayout:   "02/01/2006",
		StartCol:     "start",
		DurationMode: durationEndTime,
		EndCol:       "end",
		TrainerCol:   "trainer",
		EmailCol:     "trainer email",
		VenueCol:     "venue",
		CapacityCol:  "places",
		PriceCol:     "price (£)",
	},
}
