package state

import "fmt"

// Calendar odometer radices.
const (
	TicksPerDay    = 6
	DaysPerSeason  = 30
	SeasonsPerYear = 4
	DaysPerYear    = DaysPerSeason * SeasonsPerYear
)

var (
	seasonNames = [SeasonsPerYear]string{"Spring", "Summer", "Autumn", "Winter"}
	timeNames   = [TicksPerDay]string{"Dawn", "Morning", "Afternoon", "Dusk", "Evening", "Midnight"}
)

// Calendar is a mixed-radix in-world clock.
// TimeOfDay rolls into Day, Day into Season, Season into Year.
type Calendar struct {
	Year      int `json:"year"`
	Season    int `json:"season"`
	Day       int `json:"day"`
	TimeOfDay int `json:"timeOfDay"`
}

// NewCalendar returns the first tick of year one.
func NewCalendar() Calendar {
	return Calendar{Year: 1, Season: 0, Day: 1, TimeOfDay: 0}
}

// Tick advances the calendar by one time-of-day unit.
func (c *Calendar) Tick() {
	c.TimeOfDay++
	if c.TimeOfDay < TicksPerDay {
		return
	}
	c.TimeOfDay = 0
	c.Day++
	if c.Day <= DaysPerSeason {
		return
	}
	c.Day = 1
	c.Season++
	if c.Season < SeasonsPerYear {
		return
	}
	c.Season = 0
	c.Year++
}

// TotalDays counts days since the start of year one, starting at 1.
func (c Calendar) TotalDays() int {
	return (c.Year-1)*DaysPerYear + c.Season*DaysPerSeason + c.Day
}

// Label renders the date, e.g. "Year 1, Spring, Day 1".
func (c Calendar) Label() string {
	season := "?"
	if c.Season >= 0 && c.Season < SeasonsPerYear {
		season = seasonNames[c.Season]
	}
	return fmt.Sprintf("Year %d, %s, Day %d", c.Year, season, c.Day)
}

// TimeLabel renders the time of day.
func (c Calendar) TimeLabel() string {
	if c.TimeOfDay < 0 || c.TimeOfDay >= TicksPerDay {
		return "?"
	}
	return timeNames[c.TimeOfDay]
}

// valid reports whether every digit is within its radix.
func (c Calendar) valid() bool {
	return c.Year >= 1 &&
		c.Season >= 0 && c.Season < SeasonsPerYear &&
		c.Day >= 1 && c.Day <= DaysPerSeason &&
		c.TimeOfDay >= 0 && c.TimeOfDay < TicksPerDay
}
