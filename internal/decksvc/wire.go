package decksvc

import (
	"encoding/binary"

	"github.com/deckbridge/deckd/internal/imaging"
)

// Firmware write framing. The devices accept fixed-size output reports; a
// command report carries an ASCII tag and arguments, image payloads follow
// the announce report in raw chunks. The framing is opaque to everything
// outside the session.

const (
	// wireReportSize is the output report payload size; every write is the
	// report id byte followed by exactly this many bytes.
	wireReportSize = 512

	tagBrightness = "LIG"
	tagClear      = "CLE"
	tagImage      = "BAT"
	tagShutdown   = "STP"
)

const (
	surfaceCodeButton byte = 0x00
	surfaceCodeTouch  byte = 0x01
	surfaceCodeAll    byte = 0xff
)

func surfaceCode(s imaging.Surface) (kind, index byte) {
	if s.Kind == imaging.SurfaceTouch {
		return surfaceCodeTouch, byte(s.Index)
	}
	return surfaceCodeButton, byte(s.Index)
}

// commandReport builds a zero-padded command report: report id, the "CRT"
// preamble, the command tag and its arguments.
func commandReport(tag string, args ...byte) []byte {
	report := make([]byte, 1+wireReportSize)
	copy(report[1:], "CRT\x00\x00")
	copy(report[6:], tag)
	copy(report[6+len(tag):], args)
	return report
}

func brightnessReport(level int) []byte {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	return commandReport(tagBrightness, byte(level))
}

func clearReport(s imaging.Surface) []byte {
	kind, index := surfaceCode(s)
	return commandReport(tagClear, kind, index)
}

func clearAllReport() []byte {
	return commandReport(tagClear, surfaceCodeAll)
}

func shutdownReport() []byte {
	return commandReport(tagShutdown)
}

// imageReports frames a native payload as an announce report followed by raw
// chunks.
func imageReports(s imaging.Surface, payload []byte) [][]byte {
	kind, index := surfaceCode(s)
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(payload)))
	announce := commandReport(tagImage, kind, index, size[0], size[1], size[2], size[3])

	reports := [][]byte{announce}
	for off := 0; off < len(payload); off += wireReportSize {
		end := off + wireReportSize
		if end > len(payload) {
			end = len(payload)
		}
		chunk := make([]byte, 1+wireReportSize)
		copy(chunk[1:], payload[off:end])
		reports = append(reports, chunk)
	}
	return reports
}
