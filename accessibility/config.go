package accessibility

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/metroinfo/metrobot/types"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrHistoryRewrite is returned when saving a document whose change history
// does not extend the stored one
var ErrHistoryRewrite = errors.New("change history is append-only")

// ErrDuplicateElement is returned when adding an element whose ID is taken
var ErrDuplicateElement = errors.New("an element with this ID already exists")

// ErrInvalidStatus is returned when a status does not belong to the category
var ErrInvalidStatus = errors.New("invalid status for category")

// ErrElementNotFound is returned when an element ID does not exist
var ErrElementNotFound = errors.New("element not found")

// ErrUnknownCategory is returned for category names that do not exist
var ErrUnknownCategory = errors.New("unknown element category")

// Element is an elevator, escalator or access of a station
type Element struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	LastUpdated time.Time `json:"lastUpdated"`
	Notes       string    `json:"notes"`
}

// Change is an entry in the change history of a station
type Change struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
}

// StationRef identifies a station of a line
type StationRef struct {
	Name string
	Line types.LineID
}

// Config is the accessibility document of a station
type Config struct {
	Station       string       `json:"station"`
	Line          types.LineID `json:"line"`
	Elevators     []*Element   `json:"elevators"`
	Escalators    []*Element   `json:"escalators"`
	Accesses      []*Element   `json:"accesses"`
	Notes         string       `json:"notes,omitempty"`
	ChangeHistory []*Change    `json:"changeHistory"`
}

// Ref returns the station the document belongs to
func (c *Config) Ref() StationRef {
	return StationRef{Name: c.Station, Line: c.Line}
}

// Elements returns the elements of a category
func (c *Config) Elements(category Category) []*Element {
	switch category {
	case Elevators:
		return c.Elevators
	case Escalators:
		return c.Escalators
	case Accesses:
		return c.Accesses
	}
	return nil
}

// SetElements replaces the elements of a category
func (c *Config) SetElements(category Category, elements []*Element) {
	switch category {
	case Elevators:
		c.Elevators = elements
	case Escalators:
		c.Escalators = elements
	case Accesses:
		c.Accesses = elements
	}
}

// Element returns the element with the given ID, or nil
func (c *Config) Element(category Category, id string) *Element {
	for _, e := range c.Elements(category) {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// fillDefaults completes elements stored without status, timestamp or slices
func (c *Config) fillDefaults(now time.Time) {
	for _, category := range Categories {
		elements := c.Elements(category)
		if elements == nil {
			elements = []*Element{}
		}
		for _, e := range elements {
			if e.Status == "" {
				e.Status = category.Config().Default
			}
			if e.LastUpdated.IsZero() {
				e.LastUpdated = now
			}
		}
		c.SetElements(category, elements)
	}
	if c.ChangeHistory == nil {
		c.ChangeHistory = []*Change{}
	}
}

// OutOfService returns the elevators and escalators that are out of service
func (c *Config) OutOfService() []*Element {
	out := []*Element{}
	for _, category := range []Category{Elevators, Escalators} {
		for _, e := range c.Elements(category) {
			if strings.Contains(strings.ToLower(e.Status), "fuera de servicio") {
				out = append(out, e)
			}
		}
	}
	return out
}

// Summary describes the out of service elevators and escalators of the station
func (c *Config) Summary(now time.Time) string {
	text := "Todos los ascensores y escaleras mecánicas están operativos"
	if out := c.OutOfService(); len(out) > 0 {
		lines := make([]string, len(out))
		for i, e := range out {
			lines[i] = fmt.Sprintf("%s (%s): %s", e.ID, e.Name, e.Status)
		}
		text = strings.Join(lines, "\n")
	}
	return text + "\nÚltima actualización " + now.Format("02/01/2006 15:04")
}

var keyTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeKey lowercases s, strips diacritics, turns whitespace runs into
// dashes and drops anything that is not a lowercase letter, digit or dash
func NormalizeKey(s string) string {
	stripped, _, err := transform.String(keyTransformer, strings.ToLower(s))
	if err != nil {
		stripped = strings.ToLower(s)
	}
	stripped = strings.Join(strings.Fields(stripped), "-")
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, stripped)
}

// DocumentKey returns the storage key of a station's document. Station names
// that already end in their line code are not suffixed again.
func DocumentKey(ref StationRef) string {
	normalized := NormalizeKey(ref.Name)
	line := string(ref.Line)
	if line == "" || strings.HasSuffix(normalized, "-"+line) {
		return "access_" + normalized + ".json"
	}
	return "access_" + normalized + "-" + line + ".json"
}
