package hostsvc

// Wire frames exchanged with the host over the plugin socket. Everything is
// JSON with an "event" discriminator, matching the host plugin protocol.

type registerFrame struct {
	Event      string `json:"event"`
	Device     string `json:"device"`
	Name       string `json:"name"`
	Rows       int    `json:"rows"`
	Columns    int    `json:"columns"`
	Encoders   int    `json:"encoders"`
	TouchZones int    `json:"touchZones"`
	Class      uint8  `json:"type"`
	Protocol   string `json:"protocol,omitempty"`
}

type deviceFrame struct {
	Event  string `json:"event"`
	Device string `json:"device"`
}

type positionFrame struct {
	Event    string `json:"event"`
	Device   string `json:"device"`
	Position int    `json:"position"`
}

type encoderChangeFrame struct {
	Event    string `json:"event"`
	Device   string `json:"device"`
	Position int    `json:"position"`
	Ticks    int    `json:"ticks"`
}

type touchTapFrame struct {
	Event  string `json:"event"`
	Device string `json:"device"`
	Zone   int    `json:"zone"`
}

type touchSwipeFrame struct {
	Event     string `json:"event"`
	Device    string `json:"device"`
	Direction string `json:"direction"`
}

type unknownInputFrame struct {
	Event  string `json:"event"`
	Device string `json:"device"`
	Code   uint8  `json:"code"`
	State  uint8  `json:"state"`
}

const (
	eventRegisterDevice   = "registerDevice"
	eventDeregisterDevice = "deregisterDevice"
	eventKeyDown          = "keyDown"
	eventKeyUp            = "keyUp"
	eventEncoderDown      = "encoderDown"
	eventEncoderUp        = "encoderUp"
	eventEncoderChange    = "encoderChange"
	eventTouchTap         = "touchTap"
	eventTouchSwipe       = "touchSwipe"
	eventUnknownInput     = "unknownInput"

	eventSetImage      = "setImage"
	eventSetBrightness = "setBrightness"
)

// inboundFrame is the superset of fields the host sends us.
type inboundFrame struct {
	Event      string `json:"event"`
	Device     string `json:"device"`
	Position   *int   `json:"position,omitempty"`
	Surface    string `json:"surface,omitempty"`
	Image      string `json:"image,omitempty"`
	Brightness *int   `json:"brightness,omitempty"`
}

const (
	surfaceButton = "button"
	surfaceTouch  = "touch"
)
