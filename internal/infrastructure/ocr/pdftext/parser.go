package pdftext

import (
	"regexp"
	"strings"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
)

// A text layer is exact, so every recovered field carries full confidence.
const textLayerConfidence = 100

var labelAliases = map[string]domain.FieldName{
	"ticket no":     domain.FieldTicketNumber,
	"ticket number": domain.FieldTicketNumber,
	"ticket #":      domain.FieldTicketNumber,
	"ticket":        domain.FieldTicketNumber,
	"gross":         domain.FieldGrossWeight,
	"gross weight":  domain.FieldGrossWeight,
	"tare":          domain.FieldTareWeight,
	"tare weight":   domain.FieldTareWeight,
	"net":           domain.FieldNetWeight,
	"net weight":    domain.FieldNetWeight,
	"location":      domain.FieldLocation,
	"site":          domain.FieldLocation,
	"date":          domain.FieldDate,
	"commodity":     domain.FieldCommodity,
	"product":       domain.FieldCommodity,
}

var labelledLine = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z #.]*?)\s*(?::|\.{2,}|\s{2,})\s*(\S.*?)\s*$`)

// ParseLabelledText pulls "Label: value" lines from a ticket's text layer.
// The first occurrence of a field wins.
func ParseLabelledText(text string) domain.Extraction {
	out := domain.Extraction{Fields: make(map[domain.FieldName]domain.OCRField[string])}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		m := labelledLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name, ok := labelAliases[normalizeLabel(m[1])]
		if !ok {
			continue
		}
		if _, seen := out.Fields[name]; seen {
			continue
		}
		out.Fields[name] = domain.OCRField[string]{Value: m[2], Confidence: textLayerConfidence}
	}
	return out
}

func normalizeLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	label = strings.TrimSuffix(label, ".")
	return strings.Join(strings.Fields(label), " ")
}
