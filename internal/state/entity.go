package state

// Status is the lifecycle state of a non-player entity.
type Status string

const (
	StatusActive     Status = "active"
	StatusInjured    Status = "injured"
	StatusMissing    Status = "missing"
	StatusImprisoned Status = "imprisoned"
	StatusBetrayed   Status = "betrayed"
	StatusDead       Status = "dead"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInjured, StatusMissing, StatusImprisoned, StatusBetrayed, StatusDead:
		return true
	}
	return false
}

// Entity is a non-player character in the roster.
type Entity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	Description string `json:"desc,omitempty"`
	Faction     int    `json:"faction"`
	Personality string `json:"personality,omitempty"`
	Secret      string `json:"secret,omitempty"`
	Status      Status `json:"status"`

	// Display offset. Randomized on add and never persisted.
	X float64 `json:"-"`
	Y float64 `json:"-"`
}

// Relationship links two entities. At most one exists per unordered pair.
type Relationship struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Type     string `json:"type"`
	Revealed bool   `json:"revealed"`
}

func (r Relationship) joins(a, b string) bool {
	return (r.From == a && r.To == b) || (r.From == b && r.To == a)
}

// Faction is one power group of the world with the player's standing in it.
type Faction struct {
	Name        string `json:"name"`
	Description string `json:"desc,omitempty"`
	Stance      string `json:"stance,omitempty"`
	Reputation  int    `json:"rep"`
}

// Player is the player character.
type Player struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Role        string         `json:"role,omitempty"`
	Description string         `json:"desc,omitempty"`
	Faction     int            `json:"faction"`
	Gender      string         `json:"gender,omitempty"`
	Background  string         `json:"background,omitempty"`
	Stats       map[string]int `json:"stats"`
	Traits      []string       `json:"traits,omitempty"`
}

// DefaultPlayer returns the character a new run starts with.
func DefaultPlayer() Player {
	return Player{
		ID:          "player",
		Name:        "Traveler",
		Role:        "Witness of fate",
		Description: "You, a traveler stepping into this world.",
		Faction:     -1,
		Gender:      "unspecified",
		Background:  "wanderer",
		Stats:       map[string]int{"strength": 0, "wisdom": 0, "charisma": 0, "luck": 0},
	}
}

// Stat returns the named stat, zero when absent.
func (p Player) Stat(name string) int {
	return p.Stats[name]
}

// RunRules names the world mutators and legacy boons a run was started
// under. Both are fixed for the life of the run.
type RunRules struct {
	Mutators []string `json:"mutators,omitempty"`
	Boons    []string `json:"boons,omitempty"`
}

// Option is one choice offered to the player after a scene.
type Option struct {
	Text        string `json:"text"`
	Type        string `json:"type,omitempty"` // "risk" options trigger a check
	CheckStat   string `json:"checkStat,omitempty"`
	Difficulty  string `json:"difficulty,omitempty"`
	TimeAdvance int    `json:"timeAdvance,omitempty"`
}

// IsRisk reports whether choosing the option requires a check.
func (o Option) IsRisk() bool { return o.Type == "risk" }

// LogEntry is one line of the narrative history.
type LogEntry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Log roles used by the engine itself.
const (
	RolePlayer = "Player"
	RoleGM     = "GM"
	RoleStatus = "Status"
	RoleFate   = "Fate"
	RoleDoom   = "Doom"
	RoleSystem = "System"
)

// Settings are the per-session generation preferences.
// The credential is kept in memory only.
type Settings struct {
	Credential       string `json:"-"`
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	BaseURL          string `json:"baseUrl"`
	StreamingEnabled bool   `json:"streamingEnabled"`
}

// DefaultSettings returns settings with provider auto-detection.
func DefaultSettings() Settings {
	return Settings{Provider: "auto"}
}
