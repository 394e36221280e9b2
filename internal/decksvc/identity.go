package decksvc

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/deckbridge/deckd/internal/catalog"
	"github.com/deckbridge/deckd/internal/hidsvc"
)

const maxSerialLen = 32

// DeviceID derives the stable identity of a physical unit: the variant's
// namespace joined with a sanitised serial number. Units without a usable
// serial fall back to vendor/product ids plus the model tag and a fragment of
// the bus path, so two serial-less units on different ports stay distinct.
func DeviceID(d hidsvc.Descriptor, v catalog.Variant) string {
	suffix := sanitizeIdentifier(d.SerialNumber, maxSerialLen)
	if suffix == "" {
		suffix = fallbackSerial(d, v)
	}
	return fmt.Sprintf("%s-%s", v.Namespace, suffix)
}

func fallbackSerial(d hidsvc.Descriptor, v catalog.Variant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%04X%04X", d.VendorID, d.ProductID)
	if tag := sanitizeIdentifier(string(v.Model), 8); tag != "" {
		b.WriteString(tag)
	}
	h := fnv.New32a()
	h.Write([]byte(d.Path))
	fmt.Fprintf(&b, "%08x", h.Sum32())
	return b.String()
}

// sanitizeIdentifier keeps ASCII alphanumerics only, truncating to the last
// maxLen characters. Returns "" when nothing usable remains.
func sanitizeIdentifier(raw string, maxLen int) string {
	var b strings.Builder
	for _, c := range strings.TrimSpace(raw) {
		if c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
			b.WriteRune(c)
		}
	}
	cleaned := b.String()
	if len(cleaned) > maxLen {
		cleaned = cleaned[len(cleaned)-maxLen:]
	}
	return cleaned
}
