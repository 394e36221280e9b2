package catalog

// Vendor ids shared by the supported families.
const (
	vendorAjazz   = 0x0300
	vendorMirabox = 0x6603
)

const (
	ModelAKP03  Model = "akp03"
	ModelAKP03E Model = "akp03e"
	ModelAKP03R Model = "akp03r"
	ModelN3EN   Model = "n3en"
	ModelAKP05  Model = "akp05"
)

// All supported variants match on usage page 65440 / usage 2, the vendor
// collection these devices expose for their control channel.
const (
	controlUsagePage = 65440
	controlUsage     = 2
)

// akp03Codes is shared by the three-encoder 3x3 family. Button codes are
// 1-based on these models.
var akp03Codes = CodeMap{
	ButtonBase: 0x01,
	Encoders: []EncoderCodes{
		{Neg: 0x90, Pos: 0x91, Press: 0x33},
		{Neg: 0x50, Pos: 0x51, Press: 0x35},
		{Neg: 0x60, Pos: 0x61, Press: 0x34},
	},
}

// akp05Codes covers the 2x5 model with four encoders and a four-zone
// touch strip. Button codes are 0-based. Touch and swipe codes are
// placeholders pending hardware verification; override them from the agent
// configuration when the real layout is known.
var akp05Codes = CodeMap{
	ButtonBase: 0x00,
	Encoders: []EncoderCodes{
		{Neg: 0x90, Pos: 0x91, Press: 0x33},
		{Neg: 0x50, Pos: 0x51, Press: 0x35},
		{Neg: 0x60, Pos: 0x61, Press: 0x34},
		{Neg: 0x70, Pos: 0x71, Press: 0x36},
	},
	TouchTaps: []byte{0x40, 0x41, 0x42, 0x43},
	Swipes:    SwipeCodes{Left: 0x44, Right: 0x45, Up: 0x46, Down: 0x47},
}

func builtinVariants() []Variant {
	button60 := func(rot Rotation) ImageSpec {
		return ImageSpec{Width: 60, Height: 60, Rotation: rot, Quality: 90}
	}
	return []Variant{
		{
			Model:            ModelAKP03,
			Name:             "Ajazz AKP03",
			Namespace:        "n3",
			Query:            Query{controlUsagePage, controlUsage, vendorAjazz, 0x1001},
			Rows:             3,
			Cols:             3,
			Encoders:         3,
			ButtonImage:      button60(Rot90),
			Codes:            akp03Codes,
			Protocol:         "v2",
			Class:            0,
			ReportCodeIndex:  9,
			ReportStateIndex: 10,
		},
		{
			Model:            ModelAKP03E,
			Name:             "Ajazz AKP03E",
			Namespace:        "n3",
			Query:            Query{controlUsagePage, controlUsage, vendorAjazz, 0x3002},
			Rows:             3,
			Cols:             3,
			Encoders:         3,
			ButtonImage:      button60(Rot0),
			Codes:            akp03Codes,
			Protocol:         "v2",
			Class:            0,
			ReportCodeIndex:  9,
			ReportStateIndex: 10,
		},
		{
			Model:            ModelAKP03R,
			Name:             "Ajazz AKP03R",
			Namespace:        "n3",
			Query:            Query{controlUsagePage, controlUsage, vendorAjazz, 0x1003},
			Rows:             3,
			Cols:             3,
			Encoders:         3,
			ButtonImage:      button60(Rot0),
			Codes:            akp03Codes,
			Protocol:         "v2",
			Class:            0,
			ReportCodeIndex:  9,
			ReportStateIndex: 10,
		},
		{
			Model:            ModelN3EN,
			Name:             "Mirabox N3EN",
			Namespace:        "n3",
			Query:            Query{controlUsagePage, controlUsage, vendorMirabox, 0x1003},
			Rows:             3,
			Cols:             3,
			Encoders:         3,
			ButtonImage:      button60(Rot90),
			Codes:            akp03Codes,
			Protocol:         "v2",
			Class:            0,
			ReportCodeIndex:  9,
			ReportStateIndex: 10,
		},
		{
			Model:            ModelAKP05,
			Name:             "Ajazz AKP05",
			Namespace:        "n5",
			Query:            Query{controlUsagePage, controlUsage, vendorAjazz, 0x1010},
			Rows:             2,
			Cols:             5,
			Encoders:         4,
			TouchZones:       4,
			ButtonImage:      ImageSpec{Width: 85, Height: 85, Rotation: Rot0, Quality: 90},
			TouchImage:       ImageSpec{Width: 200, Height: 100, Rotation: Rot0, Quality: 90},
			Codes:            akp05Codes,
			Protocol:         "v3",
			Class:            0,
			ReportCodeIndex:  9,
			ReportStateIndex: 10,
		},
	}
}

// Default returns the built-in variant table.
func Default() *Table {
	return MustNew(builtinVariants()...)
}
