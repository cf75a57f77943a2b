package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"hkmacro/internal/input"
	"hkmacro/internal/macro"
)

// onError says what happens to the run when an action of a kind fails.
type onError int

const (
	abortRun onError = iota
	skipAction
)

var errorPolicy = map[macro.Kind]onError{
	macro.KindKeyPress:      abortRun,
	macro.KindKeyHold:       abortRun,
	macro.KindKeyRelease:    abortRun,
	macro.KindMouseClick:    abortRun,
	macro.KindMouseMove:     abortRun,
	macro.KindMouseScroll:   abortRun,
	macro.KindDelay:         abortRun,
	macro.KindLoopStart:     abortRun,
	macro.KindLoopEnd:       abortRun,
	macro.KindVariableSet:   skipAction,
	macro.KindHotkeyTrigger: skipAction,
	macro.KindCondition:     skipAction,
}

// dispatch performs a and returns the index the pass continues from; the
// caller advances it by one.
func (e *Executor) dispatch(r *Run, i int, a macro.Action) (int, error) {
	if a.Kind.EmitsInput() && e.injector == nil {
		return i, ErrInputUnavailable
	}

	var err error
	switch a.Kind {
	case macro.KindKeyPress:
		err = e.keyPress(a.Params)
	case macro.KindKeyHold:
		err = e.keyHold(r.ctx, a.Params)
	case macro.KindKeyRelease:
		err = e.keyRelease(a.Params)
	case macro.KindMouseClick:
		err = e.mouseClick(a.Params)
	case macro.KindMouseMove:
		err = e.mouseMove(r.ctx, a.Params)
	case macro.KindMouseScroll:
		var delta int
		if delta, err = a.Params.Int(macro.ParamDelta, macro.DefaultScrollDelta); err == nil {
			err = e.injector.Scroll(delta)
		}
	case macro.KindDelay:
		var secs float64
		if secs, err = a.Params.Float(macro.ParamDuration, 0); err == nil {
			err = sleep(r.ctx, macro.Seconds(secs))
		}
	case macro.KindLoopStart:
		var n int
		if n, err = a.Params.Int(macro.ParamIterations, 1); err == nil {
			r.loops = append(r.loops, loopFrame{start: i + 1, total: n})
		}
	case macro.KindLoopEnd:
		return loopEnd(r, i), nil
	case macro.KindVariableSet:
		err = r.vars.Set(a.Params.String(macro.ParamName, ""), a.Params[macro.ParamValue])
	case macro.KindHotkeyTrigger, macro.KindCondition:
		// reserved kinds, nothing to do
	default:
		err = fmt.Errorf("unknown action type %q", a.Kind)
	}

	if err != nil && !errors.Is(err, context.Canceled) && errorPolicy[a.Kind] == skipAction {
		log.Printf("Executor: Ignoring failed %s action: %v", a.Kind, err)
		return i, nil
	}
	return i, err
}

func loopEnd(r *Run, i int) int {
	if len(r.loops) == 0 {
		return i
	}
	top := &r.loops[len(r.loops)-1]
	top.done++
	if top.done < top.total {
		return top.start - 1
	}
	r.loops = r.loops[:len(r.loops)-1]
	return i
}

func comboOf(p macro.Params) ([]string, error) {
	return input.ParseCombo(p.String(macro.ParamKey, ""))
}

func (e *Executor) pressAll(keys []string) ([]string, error) {
	for n, k := range keys {
		if err := e.injector.Press(k); err != nil {
			return keys[:n], err
		}
	}
	return keys, nil
}

func (e *Executor) releaseAll(keys []string) error {
	var first error
	for n := len(keys) - 1; n >= 0; n-- {
		if err := e.injector.Release(keys[n]); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (e *Executor) keyPress(p macro.Params) error {
	keys, err := comboOf(p)
	if err != nil {
		return err
	}
	pressed, err := e.pressAll(keys)
	relErr := e.releaseAll(pressed)
	return errors.Join(err, relErr)
}

// keyHold releases whatever it pressed even when the hold is interrupted.
func (e *Executor) keyHold(ctx context.Context, p macro.Params) error {
	keys, err := comboOf(p)
	if err != nil {
		return err
	}
	secs, err := p.Float(macro.ParamDuration, macro.DefaultHoldDuration)
	if err != nil {
		return err
	}
	pressed, err := e.pressAll(keys)
	if err == nil {
		err = sleep(ctx, macro.Seconds(secs))
	}
	relErr := e.releaseAll(pressed)
	if errors.Is(err, context.Canceled) {
		return err
	}
	return errors.Join(err, relErr)
}

func (e *Executor) keyRelease(p macro.Params) error {
	keys, err := comboOf(p)
	if err != nil {
		return err
	}
	return e.releaseAll(keys)
}

func (e *Executor) mouseClick(p macro.Params) error {
	if p.Has(macro.ParamX) && p.Has(macro.ParamY) {
		x, errX := p.Int(macro.ParamX, 0)
		y, errY := p.Int(macro.ParamY, 0)
		if err := errors.Join(errX, errY); err != nil {
			return err
		}
		if err := e.injector.MoveTo(x, y); err != nil {
			return err
		}
	}
	clicks, err := p.Int(macro.ParamClicks, macro.DefaultClicks)
	if err != nil {
		return err
	}
	return e.injector.Click(input.Button(p.String(macro.ParamButton, macro.DefaultButton)), clicks)
}

func (e *Executor) mouseMove(ctx context.Context, p macro.Params) error {
	x, errX := p.Float(macro.ParamX, 0)
	y, errY := p.Float(macro.ParamY, 0)
	relative, errR := p.Bool(macro.ParamRelative, false)
	secs, errD := p.Float(macro.ParamDuration, 0)
	if err := errors.Join(errX, errY, errR, errD); err != nil {
		return err
	}

	if secs <= 0 {
		if relative {
			return e.injector.MoveRelative(int(math.Round(x)), int(math.Round(y)))
		}
		return e.injector.MoveTo(int(math.Round(x)), int(math.Round(y)))
	}

	sx, sy, err := e.injector.Position()
	if err != nil {
		return err
	}
	tx, ty := x, y
	if relative {
		tx, ty = float64(sx)+x, float64(sy)+y
	}

	steps := max(minMoveSteps, int(secs*moveStepsPerSecond))
	stepDelay := macro.Seconds(secs) / time.Duration(steps)
	for n := 1; n <= steps; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		frac := float64(n) / float64(steps)
		cx := float64(sx) + (tx-float64(sx))*frac
		cy := float64(sy) + (ty-float64(sy))*frac
		if err := e.injector.MoveTo(int(math.Round(cx)), int(math.Round(cy))); err != nil {
			return err
		}
		if n < steps {
			if err := sleep(ctx, stepDelay); err != nil {
				return err
			}
		}
	}
	return nil
}
