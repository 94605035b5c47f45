package types

import (
	"strings"

	"github.com/thoas/go-funk"
)

// LineID identifies one of the lines of the network
type LineID string

// The lines of the network, in display order
const (
	LineL1  LineID = "l1"
	LineL2  LineID = "l2"
	LineL3  LineID = "l3"
	LineL4  LineID = "l4"
	LineL4A LineID = "l4a"
	LineL5  LineID = "l5"
	LineL6  LineID = "l6"
)

// KnownLines is the fixed, ordered set of lines of the network
var KnownLines = []LineID{LineL1, LineL2, LineL3, LineL4, LineL4A, LineL5, LineL6}

// Line holds the presentation metadata of a network line
type Line struct {
	ID    LineID
	Name  string
	Color int
	Emoji string
}

var lines = map[LineID]*Line{
	LineL1:  {ID: LineL1, Name: "Línea 1", Color: 0xea000a, Emoji: "<:l1:1386445105455566918>"},
	LineL2:  {ID: LineL2, Name: "Línea 2", Color: 0xffaf00, Emoji: "<:l2:1386445134367035485>"},
	LineL3:  {ID: LineL3, Name: "Línea 3", Color: 0x67210a, Emoji: "<:l3:1386445150246670478>"},
	LineL4:  {ID: LineL4, Name: "Línea 4", Color: 0x1f2583, Emoji: "<:l4:1386445164771278990>"},
	LineL4A: {ID: LineL4A, Name: "Línea 4A", Color: 0x0079c1, Emoji: "<:l4a:1386445178838978651>"},
	LineL5:  {ID: LineL5, Name: "Línea 5", Color: 0x00ab65, Emoji: "<:l5:1386445194907353108>"},
	LineL6:  {ID: LineL6, Name: "Línea 6", Color: 0x953994, Emoji: "<:l6:1386445209130242289>"},
}

// GetLine returns the metadata for the line with the given ID, or nil if the
// ID is unknown
func GetLine(id LineID) *Line {
	return lines[id]
}

// ParseLineID parses user or upstream input ("L4A", "4a", "l4a") into a LineID
func ParseLineID(s string) (LineID, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s != "" && !strings.HasPrefix(s, "l") {
		s = "l" + s
	}
	if !IsKnownLine(LineID(s)) {
		return "", false
	}
	return LineID(s), true
}

// IsKnownLine returns whether the ID belongs to the network
func IsKnownLine(id LineID) bool {
	return funk.Contains(KnownLines, id)
}

// Emoji returns the Discord emoji for a line, or the line ID in uppercase when
// the line is unknown
func (id LineID) Emoji() string {
	if l := GetLine(id); l != nil {
		return l.Emoji
	}
	return strings.ToUpper(string(id))
}
