package macro

import "fmt"

// ValidationError reports malformed macro or action data.
type ValidationError struct {
	MacroID  string
	ActionID string
	Index    int
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	switch {
	case e.ActionID != "":
		return fmt.Sprintf("invalid action %s (#%d): %s: %s", e.ActionID, e.Index+1, e.Field, e.Reason)
	case e.MacroID != "":
		return fmt.Sprintf("invalid macro %s: %s: %s", e.MacroID, e.Field, e.Reason)
	default:
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
}
