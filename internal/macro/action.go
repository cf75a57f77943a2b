// Package macro defines the data model of a macro program: actions, macros
// and the variable environment a run executes against.
package macro

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"hkmacro/internal/input"
)

// Kind identifies what an Action does. The string values are the persisted
// action_type names.
type Kind string

const (
	KindKeyPress      Kind = "key_press"
	KindKeyHold       Kind = "key_hold"
	KindKeyRelease    Kind = "key_release"
	KindMouseClick    Kind = "mouse_click"
	KindMouseMove     Kind = "mouse_move"
	KindMouseScroll   Kind = "mouse_scroll"
	KindDelay         Kind = "delay"
	KindLoopStart     Kind = "loop_start"
	KindLoopEnd       Kind = "loop_end"
	KindVariableSet   Kind = "variable_set"
	KindHotkeyTrigger Kind = "hotkey_trigger"
	KindCondition     Kind = "condition"
)

// Kinds lists every known kind in display order.
var Kinds = []Kind{
	KindKeyPress, KindKeyHold, KindKeyRelease,
	KindMouseClick, KindMouseMove, KindMouseScroll,
	KindDelay, KindLoopStart, KindLoopEnd,
	KindVariableSet, KindHotkeyTrigger, KindCondition,
}

// ParseKind converts a persisted action_type into a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown action type %q", s)
}

// EmitsInput reports whether actions of this kind call the input injector.
func (k Kind) EmitsInput() bool {
	switch k {
	case KindKeyPress, KindKeyHold, KindKeyRelease,
		KindMouseClick, KindMouseMove, KindMouseScroll:
		return true
	}
	return false
}

// Parameter names.
const (
	ParamKey        = "key"
	ParamDuration   = "duration"
	ParamButton     = "button"
	ParamX          = "x"
	ParamY          = "y"
	ParamClicks     = "clicks"
	ParamRelative   = "relative"
	ParamDelta      = "delta"
	ParamIterations = "iterations"
	ParamName       = "name"
	ParamValue      = "value"
)

// Defaults for optional parameters.
const (
	DefaultHoldDuration = 0.1
	DefaultButton       = "left"
	DefaultClicks       = 1
	DefaultScrollDelta  = 1
)

// Params holds the kind-specific parameters of an action. Values come from
// YAML or JSON decoders, so numbers may be any of int, int64 or float64.
type Params map[string]any

// Has reports whether name is present.
func (p Params) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// String returns the string parameter name or def when absent.
func (p Params) String(name, def string) string {
	v, ok := p[name]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Float returns the numeric parameter name or def when absent.
func (p Params) Float(name string, def float64) (float64, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("parameter %q is not a number: %v", name, v)
	}
	return f, nil
}

// Int returns the integer parameter name or def when absent. Floats with a
// fractional part are rejected.
func (p Params) Int(name string, def int) (int, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, fmt.Errorf("parameter %q is not an integer: %v", name, v)
	}
	return int(f), nil
}

// Bool returns the boolean parameter name or def when absent.
func (p Params) Bool(name string, def bool) (bool, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("parameter %q is not a boolean: %v", name, v)
	}
	return b, nil
}

// Clone returns a shallow copy; parameter values are scalars.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Action is one step of a macro.
type Action struct {
	ID          string
	Kind        Kind
	Params      Params
	Enabled     bool
	Description string
}

// NewAction returns an enabled action with a fresh id.
func NewAction(kind Kind, params Params, description string) Action {
	if params == nil {
		params = Params{}
	}
	return Action{
		ID:          NewID(),
		Kind:        kind,
		Params:      params,
		Enabled:     true,
		Description: description,
	}
}

// Label is the text reported when the action runs.
func (a Action) Label() string {
	if a.Description != "" {
		return a.Description
	}
	return string(a.Kind)
}

// Clone returns a copy that shares nothing mutable with a.
func (a Action) Clone() Action {
	a.Params = a.Params.Clone()
	return a
}

// NewID returns a collision resistant identifier.
func NewID() string {
	return uuid.NewString()
}

var requiredParams = map[Kind][]string{
	KindKeyPress:    {ParamKey},
	KindKeyHold:     {ParamKey},
	KindKeyRelease:  {ParamKey},
	KindMouseMove:   {ParamX, ParamY},
	KindDelay:       {ParamDuration},
	KindLoopStart:   {ParamIterations},
	KindVariableSet: {ParamName},
}

// RequiredParams returns the parameter names kind cannot run without.
func RequiredParams(kind Kind) []string {
	return requiredParams[kind]
}

// Validate checks that a carries every parameter its kind requires and that
// numeric parameters are in range.
func Validate(a Action) error {
	if _, err := ParseKind(string(a.Kind)); err != nil {
		return &ValidationError{ActionID: a.ID, Field: "action_type", Reason: err.Error()}
	}
	for _, name := range requiredParams[a.Kind] {
		if !a.Params.Has(name) {
			return &ValidationError{ActionID: a.ID, Field: name, Reason: "required parameter missing"}
		}
	}

	fail := func(field, reason string) error {
		return &ValidationError{ActionID: a.ID, Field: field, Reason: reason}
	}

	switch a.Kind {
	case KindKeyPress, KindKeyHold, KindKeyRelease:
		key := a.Params.String(ParamKey, "")
		if strings.TrimSpace(key) == "" {
			return fail(ParamKey, "key must not be empty")
		}
		if err := validCombo(key); err != nil {
			return fail(ParamKey, err.Error())
		}
		if a.Kind == KindKeyHold {
			if err := nonNegative(a.Params, ParamDuration, DefaultHoldDuration); err != nil {
				return fail(ParamDuration, err.Error())
			}
		}

	case KindMouseClick:
		switch a.Params.String(ParamButton, DefaultButton) {
		case "left", "right", "middle":
		default:
			return fail(ParamButton, "button must be left, right or middle")
		}
		clicks, err := a.Params.Int(ParamClicks, DefaultClicks)
		if err != nil {
			return fail(ParamClicks, err.Error())
		}
		if clicks < 1 {
			return fail(ParamClicks, "clicks must be at least 1")
		}
		if a.Params.Has(ParamX) != a.Params.Has(ParamY) {
			return fail(ParamX, "x and y must be given together")
		}
		for _, name := range []string{ParamX, ParamY} {
			n, err := a.Params.Int(name, 0)
			if err != nil {
				return fail(name, err.Error())
			}
			if n < 0 {
				return fail(name, name+" must not be negative")
			}
		}

	case KindMouseMove:
		relative, err := a.Params.Bool(ParamRelative, false)
		if err != nil {
			return fail(ParamRelative, err.Error())
		}
		for _, name := range []string{ParamX, ParamY} {
			if relative {
				if _, err := a.Params.Float(name, 0); err != nil {
					return fail(name, err.Error())
				}
			} else if err := nonNegative(a.Params, name, 0); err != nil {
				return fail(name, err.Error()+" (negative coordinates need relative=true)")
			}
		}
		if err := nonNegative(a.Params, ParamDuration, 0); err != nil {
			return fail(ParamDuration, err.Error())
		}

	case KindMouseScroll:
		if _, err := a.Params.Int(ParamDelta, DefaultScrollDelta); err != nil {
			return fail(ParamDelta, err.Error())
		}

	case KindDelay:
		if err := nonNegative(a.Params, ParamDuration, 0); err != nil {
			return fail(ParamDuration, err.Error())
		}

	case KindLoopStart:
		n, err := a.Params.Int(ParamIterations, 1)
		if err != nil {
			return fail(ParamIterations, err.Error())
		}
		if n < 1 {
			return fail(ParamIterations, "iterations must be at least 1")
		}

	case KindVariableSet:
		if strings.TrimSpace(a.Params.String(ParamName, "")) == "" {
			return fail(ParamName, "variable name must not be empty")
		}
		if v, ok := a.Params[ParamValue]; ok && v != nil {
			if _, err := NormalizeValue(v); err != nil {
				return fail(ParamValue, err.Error())
			}
		}
	}
	return nil
}

func nonNegative(p Params, name string, def float64) error {
	f, err := p.Float(name, def)
	if err != nil {
		return err
	}
	if f < 0 {
		return fmt.Errorf("%s must not be negative", name)
	}
	return nil
}

// validCombo checks that every part of a key combination names a key the
// injector can press.
func validCombo(combo string) error {
	parts, err := input.ParseCombo(combo)
	if err != nil {
		return err
	}
	for _, k := range parts {
		if _, ok := input.VirtualKey(k); !ok {
			return fmt.Errorf("unknown key %q in %q", k, combo)
		}
	}
	return nil
}
