package inputs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckbridge/deckd/internal/catalog"
)

func variant(t *testing.T, vid, pid uint16) catalog.Variant {
	t.Helper()
	v, ok := catalog.Default().Lookup(vid, pid)
	require.True(t, ok)
	return v
}

func TestDecodeButtons(t *testing.T) {
	akp05 := variant(t, 0x0300, 0x1010)
	akp03 := variant(t, 0x0300, 0x1001)

	tests := []struct {
		name    string
		variant catalog.Variant
		code    byte
		state   byte
		want    Event
	}{
		{"akp05 code 7 pressed on 2x5 grid", akp05, 7, 1, ButtonPress{Index: 7, Pressed: true}},
		{"akp05 code 0 is first button", akp05, 0, 1, ButtonPress{Index: 0, Pressed: true}},
		{"akp05 release", akp05, 3, 0, ButtonPress{Index: 3, Pressed: false}},
		{"akp03 codes are 1-based", akp03, 1, 1, ButtonPress{Index: 0, Pressed: true}},
		{"akp03 last button", akp03, 9, 1, ButtonPress{Index: 8, Pressed: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(tt.variant, tt.code, tt.state))
		})
	}
}

func TestDecodeEncoders(t *testing.T) {
	akp05 := variant(t, 0x0300, 0x1010)

	assert.Equal(t, EncoderTwist{Index: 0, Delta: -1}, Decode(akp05, 0x90, 0))
	assert.Equal(t, EncoderTwist{Index: 0, Delta: 1}, Decode(akp05, 0x91, 0))
	assert.Equal(t, EncoderTwist{Index: 3, Delta: 1}, Decode(akp05, 0x71, 0))

	// Press codes are not in numeric encoder order on this hardware.
	assert.Equal(t, EncoderPress{Index: 0, Pressed: true}, Decode(akp05, 0x33, 1))
	assert.Equal(t, EncoderPress{Index: 1, Pressed: true}, Decode(akp05, 0x35, 1))
	assert.Equal(t, EncoderPress{Index: 2, Pressed: false}, Decode(akp05, 0x34, 0))
	assert.Equal(t, EncoderPress{Index: 3, Pressed: true}, Decode(akp05, 0x36, 1))
}

func TestDecodeTouch(t *testing.T) {
	akp05 := variant(t, 0x0300, 0x1010)

	assert.Equal(t, TouchTap{Zone: 0}, Decode(akp05, 0x40, 1))
	assert.Equal(t, TouchTap{Zone: 3}, Decode(akp05, 0x43, 1))
	assert.Equal(t, TouchSwipe{Direction: SwipeLeft}, Decode(akp05, 0x44, 0))
	assert.Equal(t, TouchSwipe{Direction: SwipeDown}, Decode(akp05, 0x47, 0))
}

func TestDecodeUnknownNeverPanics(t *testing.T) {
	akp03 := variant(t, 0x0300, 0x1001)

	// Codes outside every declared range decode to Unknown, never an error.
	assert.Equal(t, Unknown{Code: 0xff, State: 2}, Decode(akp03, 0xff, 2))
	assert.Equal(t, Unknown{Code: 0x40, State: 1}, Decode(akp03, 0x40, 1)) // no touch strip on akp03
}

// Every decoded event must stay within the variant's declared geometry, and
// everything undeclared must decode to Unknown, for the full code space of
// every supported variant.
func TestDecodeBounds(t *testing.T) {
	for _, v := range catalog.Default().Variants() {
		v := v
		t.Run(string(v.Model), func(t *testing.T) {
			for code := 0; code < 256; code++ {
				switch ev := Decode(v, byte(code), 1).(type) {
				case ButtonPress:
					assert.GreaterOrEqual(t, ev.Index, 0)
					assert.Less(t, ev.Index, v.Keys())
				case EncoderTwist:
					assert.Less(t, ev.Index, v.Encoders)
					assert.Contains(t, []int{-1, 1}, ev.Delta)
				case EncoderPress:
					assert.Less(t, ev.Index, v.Encoders)
				case TouchTap:
					assert.GreaterOrEqual(t, ev.Zone, 0)
					assert.Less(t, ev.Zone, v.TouchZones)
				case TouchSwipe:
					assert.NotEmpty(t, ev.Direction)
				case Unknown:
					assert.Equal(t, byte(code), ev.Code)
				}
			}
		})
	}
}

func TestDecodeIsDeterministic(t *testing.T) {
	akp05 := variant(t, 0x0300, 0x1010)
	for code := 0; code < 256; code++ {
		first := Decode(akp05, byte(code), 1)
		assert.Equal(t, first, Decode(akp05, byte(code), 1))
	}
}
