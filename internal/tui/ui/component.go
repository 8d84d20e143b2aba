package ui

// MenuHint describes a keyboard shortcut for display in the header.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // screen shortcuts, drawn in a different color
}

// Component is a screen or overlay that advertises its shortcuts.
type Component interface {
	Name() string
	Hints() []MenuHint
}
