package cli

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"hkmacro/internal/macro"
)

// parseActionSpec reads an action written as "kind:param=value,...", for
// example "key_press:key=ctrl+c" or "mouse_move:x=10,y=-5,relative=true".
// Values are YAML scalars, so numbers and booleans keep their type. The
// pseudo parameter "desc" sets the description.
func parseActionSpec(spec string) (macro.Action, error) {
	kindStr, rest, _ := strings.Cut(strings.TrimSpace(spec), ":")
	kind, err := macro.ParseKind(strings.TrimSpace(kindStr))
	if err != nil {
		return macro.Action{}, err
	}

	params := macro.Params{}
	var desc string
	if strings.TrimSpace(rest) != "" {
		for _, pair := range strings.Split(rest, ",") {
			name, raw, ok := strings.Cut(pair, "=")
			name = strings.TrimSpace(name)
			if !ok || name == "" {
				return macro.Action{}, fmt.Errorf("action %q: expected param=value, got %q", spec, pair)
			}
			if name == "desc" {
				desc = strings.TrimSpace(raw)
				continue
			}
			params[name] = scalar(raw)
		}
	}

	a := macro.NewAction(kind, params, desc)
	if err := macro.Validate(a); err != nil {
		return macro.Action{}, fmt.Errorf("action %q: %w", spec, err)
	}
	return a, nil
}

// scalar decodes raw as a YAML scalar, falling back to the trimmed string.
// Key names such as "ctrl+c" or "esc" stay strings.
func scalar(raw string) any {
	raw = strings.TrimSpace(raw)
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	switch v.(type) {
	case int, float64, bool:
		return v
	}
	return raw
}

// formatAction renders a in the same form parseActionSpec reads.
func formatAction(a macro.Action) string {
	var b strings.Builder
	b.WriteString(string(a.Kind))
	sep := ":"
	for _, name := range sortedKeys(a.Params) {
		fmt.Fprintf(&b, "%s%s=%v", sep, name, a.Params[name])
		sep = ","
	}
	return b.String()
}
