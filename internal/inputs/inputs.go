// Package inputs decodes raw firmware input codes into semantic events.
//
// Decoding is a pure table dispatch on the variant's code map. It never
// fails: a code that matches nothing declared for the variant decodes to an
// Unknown event so the session loop can keep running and surface the raw
// bytes for diagnostics.
package inputs

import "github.com/deckbridge/deckd/internal/catalog"

// Direction of a touchscreen swipe.
type Direction string

const (
	SwipeLeft  Direction = "left"
	SwipeRight Direction = "right"
	SwipeUp    Direction = "up"
	SwipeDown  Direction = "down"
)

// Event is a semantic input event produced by Decode. Exactly one of the
// concrete types below is returned per raw report.
type Event interface {
	isEvent()
}

type ButtonPress struct {
	Index   int
	Pressed bool
}

type EncoderTwist struct {
	Index int
	Delta int
}

type EncoderPress struct {
	Index   int
	Pressed bool
}

type TouchTap struct {
	Zone int
}

type TouchSwipe struct {
	Direction Direction
}

type Unknown struct {
	Code  byte
	State byte
}

func (ButtonPress) isEvent()  {}
func (EncoderTwist) isEvent() {}
func (EncoderPress) isEvent() {}
func (TouchTap) isEvent()     {}
func (TouchSwipe) isEvent()   {}
func (Unknown) isEvent()      {}

// Decode maps a raw (code, state) pair to a semantic event for the given
// variant. Button indices are row-major over the grid; encoder and zone
// indices are 0-based. Stateless and safe for concurrent use.
func Decode(v catalog.Variant, code, state byte) Event {
	cm := v.Codes

	if keys := v.Keys(); int(code) >= int(cm.ButtonBase) && int(code) < int(cm.ButtonBase)+keys {
		return ButtonPress{Index: int(code) - int(cm.ButtonBase), Pressed: state != 0}
	}

	for i, enc := range cm.Encoders {
		switch code {
		case enc.Neg:
			return EncoderTwist{Index: i, Delta: -1}
		case enc.Pos:
			return EncoderTwist{Index: i, Delta: 1}
		case enc.Press:
			return EncoderPress{Index: i, Pressed: state != 0}
		}
	}

	for zone, tap := range cm.TouchTaps {
		if code == tap {
			return TouchTap{Zone: zone}
		}
	}

	if dir, ok := swipeDirection(cm.Swipes, code); ok {
		return TouchSwipe{Direction: dir}
	}

	return Unknown{Code: code, State: state}
}

func swipeDirection(s catalog.SwipeCodes, code byte) (Direction, bool) {
	if code == 0 {
		return "", false
	}
	switch code {
	case s.Left:
		return SwipeLeft, true
	case s.Right:
		return SwipeRight, true
	case s.Up:
		return SwipeUp, true
	case s.Down:
		return SwipeDown, true
	}
	return "", false
}
