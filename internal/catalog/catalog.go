// Package catalog holds the static table of supported device variants.
// A variant describes everything the rest of the agent needs to know about a
// hardware model: how to match it on the bus, its control surface geometry,
// the image format its screens expect and the input-code layout its firmware
// emits.
package catalog

import (
	"fmt"
)

// Model identifies a supported hardware model.
type Model string

// Query matches a device on the HID bus by usage page, usage id and
// vendor/product identifiers.
type Query struct {
	UsagePage uint16
	Usage     uint16
	VendorID  uint16
	ProductID uint16
}

func (q Query) String() string {
	return fmt.Sprintf("%04x:%04x (usage %d/%d)", q.VendorID, q.ProductID, q.UsagePage, q.Usage)
}

type Rotation int

const (
	Rot0 Rotation = iota
	Rot90
	Rot180
	Rot270
)

type Mirror int

const (
	MirrorNone Mirror = iota
	MirrorX
	MirrorY
)

// ImageSpec declares the native framebuffer format of one screen surface.
type ImageSpec struct {
	Width    int
	Height   int
	Rotation Rotation
	Mirror   Mirror
	// Quality is the JPEG quality used when re-encoding for the wire.
	Quality int
}

// EncoderCodes holds the raw input codes one encoder emits. Rotation
// direction is encoded by the firmware as two distinct codes, not as a signed
// delta.
type EncoderCodes struct {
	Neg   byte `yaml:"neg"`
	Pos   byte `yaml:"pos"`
	Press byte `yaml:"press"`
}

// SwipeCodes holds the raw codes for touchscreen swipe gestures. A zero value
// means the variant does not emit that gesture.
type SwipeCodes struct {
	Left  byte `yaml:"left"`
	Right byte `yaml:"right"`
	Up    byte `yaml:"up"`
	Down  byte `yaml:"down"`
}

// CodeMap describes the input-code layout of a variant. Button codes occupy a
// contiguous range starting at ButtonBase, row-major over the grid. Encoder,
// touch-tap and swipe codes are listed explicitly.
//
// The layouts for newer models are placeholder data pending verification
// against real hardware and can be overridden from the agent configuration.
type CodeMap struct {
	ButtonBase byte           `yaml:"buttonBase"`
	Encoders   []EncoderCodes `yaml:"encoders"`
	TouchTaps  []byte         `yaml:"touchTaps"`
	Swipes     SwipeCodes     `yaml:"swipes"`
}

// Variant is the immutable descriptor of one supported hardware model.
type Variant struct {
	Model Model
	// Name is the human-readable name reported to the host. USB string
	// descriptors on these devices are unreliable, so the catalog carries
	// its own names.
	Name      string
	Namespace string
	Query     Query

	Rows       int
	Cols       int
	Encoders   int
	TouchZones int

	ButtonImage ImageSpec
	TouchImage  ImageSpec

	Codes CodeMap

	// Protocol tags the firmware framing generation, announced to the host
	// during registration.
	Protocol string
	// Class is the device class used when announcing to the host.
	Class uint8

	// ReportCodeIndex and ReportStateIndex locate the input code and state
	// bytes inside a raw input report.
	ReportCodeIndex  int
	ReportStateIndex int
}

// Keys returns the number of buttons on the variant's grid.
func (v Variant) Keys() int {
	return v.Rows * v.Cols
}

// Table is a validated, immutable set of variants keyed by vendor/product id.
type Table struct {
	variants []Variant
	byID     map[[2]uint16]Variant
}

// New builds a Table from the given variants. Duplicate vendor/product pairs
// and inconsistent code maps are configuration errors and fail fast.
func New(variants ...Variant) (*Table, error) {
	t := &Table{
		variants: make([]Variant, 0, len(variants)),
		byID:     make(map[[2]uint16]Variant, len(variants)),
	}
	for _, v := range variants {
		if err := validate(v); err != nil {
			return nil, fmt.Errorf("variant %s: %w", v.Model, err)
		}
		key := [2]uint16{v.Query.VendorID, v.Query.ProductID}
		if dup, ok := t.byID[key]; ok {
			return nil, fmt.Errorf("variant %s: duplicate query %s (already used by %s)", v.Model, v.Query, dup.Model)
		}
		t.byID[key] = v
		t.variants = append(t.variants, v)
	}
	return t, nil
}

// MustNew is New for compile-time tables.
func MustNew(variants ...Variant) *Table {
	t, err := New(variants...)
	if err != nil {
		panic(err)
	}
	return t
}

func validate(v Variant) error {
	if v.Rows <= 0 || v.Cols <= 0 {
		return fmt.Errorf("invalid grid %dx%d", v.Rows, v.Cols)
	}
	if len(v.Codes.Encoders) != v.Encoders {
		return fmt.Errorf("code map declares %d encoders, variant has %d", len(v.Codes.Encoders), v.Encoders)
	}
	if len(v.Codes.TouchTaps) != v.TouchZones {
		return fmt.Errorf("code map declares %d touch zones, variant has %d", len(v.Codes.TouchTaps), v.TouchZones)
	}
	if v.TouchZones > 0 && (v.TouchImage.Width <= 0 || v.TouchImage.Height <= 0) {
		return fmt.Errorf("touch zones declared without a touch image spec")
	}
	if v.ButtonImage.Width <= 0 || v.ButtonImage.Height <= 0 {
		return fmt.Errorf("missing button image spec")
	}
	if v.Namespace == "" {
		return fmt.Errorf("missing namespace")
	}
	return nil
}

// Lookup resolves identifying attributes to a variant.
func (t *Table) Lookup(vendorID, productID uint16) (Variant, bool) {
	v, ok := t.byID[[2]uint16{vendorID, productID}]
	return v, ok
}

// Variants returns the table rows in declaration order.
func (t *Table) Variants() []Variant {
	out := make([]Variant, len(t.variants))
	copy(out, t.variants)
	return out
}

// Queries returns the match set used for enumeration filtering.
func (t *Table) Queries() []Query {
	out := make([]Query, 0, len(t.variants))
	for _, v := range t.variants {
		out = append(out, v.Query)
	}
	return out
}

// WithCodeMap returns a copy of the table with the given model's code map
// replaced. The result is re-validated.
func (t *Table) WithCodeMap(model Model, codes CodeMap) (*Table, error) {
	variants := t.Variants()
	found := false
	for i, v := range variants {
		if v.Model == model {
			variants[i].Codes = codes
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("unknown model: %s", model)
	}
	return New(variants...)
}
