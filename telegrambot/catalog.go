package telegrambot

import (
	"strings"

	"github.com/metroinfo/metrobot/accessibility"
	"github.com/metroinfo/metrobot/types"
)

// station is a station of a line, as known from the network status
type station struct {
	Code string
	Name string
	Line types.LineID
}

func (s station) ref() accessibility.StationRef {
	return accessibility.StationRef{Name: s.Name, Line: s.Line}
}

// catalog holds the stations of the network, grouped by line
type catalog struct {
	lines  []types.LineID
	byLine map[types.LineID][]station
}

func newCatalog(network types.Network) *catalog {
	c := &catalog{byLine: make(map[types.LineID][]station)}
	for _, line := range network {
		if len(line.Stations) == 0 {
			continue
		}
		c.lines = append(c.lines, line.ID)
		for _, s := range line.Stations {
			c.byLine[line.ID] = append(c.byLine[line.ID], station{Code: s.Code, Name: s.Name, Line: line.ID})
		}
	}
	return c
}

func (c *catalog) stations(line types.LineID) []station {
	return c.byLine[line]
}

func (c *catalog) byCode(code string) (station, bool) {
	for _, line := range c.lines {
		for _, s := range c.byLine[line] {
			if strings.EqualFold(s.Code, code) {
				return s, true
			}
		}
	}
	return station{}, false
}

// find resolves user input to a station. The input may be a station code, a
// name (accents and case are ignored), or a name followed by a line
// ("Los Héroes L2"). Exact matches are preferred over partial ones.
func (c *catalog) find(query string) []station {
	if s, ok := c.byCode(strings.TrimSpace(query)); ok {
		return []station{s}
	}

	var line types.LineID
	if fields := strings.Fields(query); len(fields) > 1 {
		if id, ok := types.ParseLineID(fields[len(fields)-1]); ok {
			line = id
			query = strings.Join(fields[:len(fields)-1], " ")
		}
	}
	key := accessibility.NormalizeKey(query)
	if key == "" {
		return nil
	}

	exact, partial := []station{}, []station{}
	for _, l := range c.lines {
		if line != "" && l != line {
			continue
		}
		for _, s := range c.byLine[l] {
			name := accessibility.NormalizeKey(s.Name)
			switch {
			case name == key:
				exact = append(exact, s)
			case strings.Contains(name, key):
				partial = append(partial, s)
			}
		}
	}
	if len(exact) > 0 {
		return exact
	}
	return partial
}

// byToken resolves the "<line>.<code>" station references used in callback
// data
func (c *catalog) byToken(token string) (station, bool) {
	line, code, ok := strings.Cut(token, ".")
	if !ok {
		return station{}, false
	}
	for _, s := range c.byLine[types.LineID(line)] {
		if s.Code == code {
			return s, true
		}
	}
	return station{}, false
}
