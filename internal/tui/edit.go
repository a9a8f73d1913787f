package tui

import (
	"github.com/fakeyudi/scopecomms/internal/wire"
)

// nudge returns item data moved by steps: Float and Int move by 1% of their
// range and clamp to it, Bool toggles on any odd step, Enum cycles through
// its options. ok is false for types that cannot be nudged.
func nudge(t wire.ItemType, data []byte, steps int) (out []byte, ok bool) {
	switch t {
	case wire.ItemFloat:
		v, err := wire.ParseFloatValue(data)
		if err != nil {
			return nil, false
		}
		step := (v.Max - v.Min) / 100
		if step <= 0 {
			step = 0.01
		}
		v.Current = clamp(v.Current+step*float32(steps), v.Min, v.Max)
		return v.Bytes(), true
	case wire.ItemInt:
		v, err := wire.ParseIntValue(data)
		if err != nil {
			return nil, false
		}
		step := max(1, (int64(v.Max)-int64(v.Min))/100)
		cur := int64(v.Current) + step*int64(steps)
		v.Current = int32(clamp(cur, int64(v.Min), int64(v.Max)))
		return v.Bytes(), true
	case wire.ItemBool:
		v, err := wire.ParseBoolValue(data)
		if err != nil {
			return nil, false
		}
		if steps%2 != 0 {
			v = !v
		}
		return v.Bytes(), true
	case wire.ItemEnum:
		v, err := wire.ParseEnumValue(data)
		if err != nil || len(v.Options) == 0 {
			return nil, false
		}
		n := len(v.Options)
		v.Selected = ((v.Selected+steps)%n + n) % n
		return v.Bytes(), true
	}
	return nil, false
}

func clamp[T int64 | float32](v, lo, hi T) T {
	if hi < lo {
		return v
	}
	return min(max(v, lo), hi)
}
