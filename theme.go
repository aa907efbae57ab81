package loupe

// Theme defines semantic color mappings using ANSI color indices (0-15).
// The user's terminal theme determines the actual RGB values, so the app
// automatically matches any color scheme.
type Theme struct {
	UserMsg  int // User message accent
	StepDone int // Completed timeline steps
	StepRun  int // Running timeline steps
	Error    int // Error bubbles and failed steps
	Muted    int // Status line, timestamps, placeholders
	Source   int // Source list entries
	CodeBg   int // Code block background
	Accent   int // Headings, links, confirmation prompt
}

// DefaultTheme returns the default ANSI color mapping.
func DefaultTheme() Theme {
	return Theme{
		UserMsg:  4,
		StepDone: 2,
		StepRun:  3,
		Error:    1,
		Muted:    8,
		Source:   6,
		CodeBg:   0,
		Accent:   5,
	}
}
