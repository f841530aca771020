// Package config holds tilepilot's process-wide settings and their durable
// SQLite-backed store. Settings are read once at startup and fully rewritten
// on every mutation; there is no teardown beyond process exit.
package config

// Settings is the process-wide solver state.
type Settings struct {
	// Enabled gates the whole pipeline. When false the locator suspends
	// its mutation watch and clears its processed set.
	Enabled bool `json:"enabled"`

	// AutoSolve controls whether consent checkboxes are clicked and
	// challenges solved without an explicit request.
	AutoSolve bool `json:"auto_solve"`

	// Debug enables category file logging and on-page overlays.
	Debug bool `json:"debug"`

	// SolvedCount is incremented after every successfully submitted solve.
	SolvedCount int `json:"solved_count"`
}

// DefaultSettings returns the state used when no durable record exists yet.
func DefaultSettings() Settings {
	return Settings{
		Enabled:   true,
		AutoSolve: true,
		Debug:     false,
	}
}
