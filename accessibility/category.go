package accessibility

import (
	"strings"

	"github.com/thoas/go-funk"
)

// Category is a kind of accessibility element of a station
type Category string

// The categories of accessibility elements
const (
	Elevators  Category = "elevators"
	Escalators Category = "escalators"
	Accesses   Category = "accesses"
)

// Categories lists every category, in display order
var Categories = []Category{Elevators, Escalators, Accesses}

// CategoryConfig holds the presentation and validation data of a category
type CategoryConfig struct {
	Emoji  string
	Name   string
	Plural string
	// Statuses are the valid statuses, in display order
	Statuses []string
	Labels   map[string]string
	// Default is assumed for elements stored without a status
	Default string
}

var categoryConfigs = map[Category]*CategoryConfig{
	Elevators: {
		Emoji:    "🛗",
		Name:     "Ascensor",
		Plural:   "ascensores",
		Statuses: []string{"operativa", "en mantención", "fuera de servicio", "restringido"},
		Labels: map[string]string{
			"operativa":         "🟢 Operativo",
			"en mantención":     "🟡 En mantención",
			"fuera de servicio": "🔴 Fuera de servicio",
			"restringido":       "🟡 Restringido",
		},
		Default: "operativa",
	},
	Escalators: {
		Emoji:    "🪜",
		Name:     "Escalera",
		Plural:   "escaleras",
		Statuses: []string{"operativa", "en mantención", "fuera de servicio", "restringido"},
		Labels: map[string]string{
			"operativa":         "🟢 Operativa",
			"en mantención":     "🟡 En mantención",
			"fuera de servicio": "🔴 Fuera de servicio",
			"restringido":       "🟡 Restringida",
		},
		Default: "operativa",
	},
	Accesses: {
		Emoji:    "🚪",
		Name:     "Acceso",
		Plural:   "accesos",
		Statuses: []string{"abierto", "cerrado", "restringido", "horario especial"},
		Labels: map[string]string{
			"abierto":          "🟢 Abierto",
			"cerrado":          "🔴 Cerrado",
			"restringido":      "🟡 Restringido",
			"horario especial": "🟡 Horario especial",
		},
		Default: "abierto",
	},
}

// Config returns the configuration of the category
func (c Category) Config() *CategoryConfig {
	return categoryConfigs[c]
}

// ValidStatus returns whether status belongs to the category's status set
func (c Category) ValidStatus(status string) bool {
	cfg := c.Config()
	return cfg != nil && funk.ContainsString(cfg.Statuses, status)
}

// Label returns the display label for a status of this category
func (c Category) Label(status string) string {
	if cfg := c.Config(); cfg != nil {
		if label, ok := cfg.Labels[status]; ok {
			return label
		}
	}
	return "⚪ " + status
}

var categoryAliases = map[string]Category{
	"elevator":   Elevators,
	"elevators":  Elevators,
	"ascensor":   Elevators,
	"ascensores": Elevators,
	"escalator":  Escalators,
	"escalators": Escalators,
	"escalera":   Escalators,
	"escaleras":  Escalators,
	"access":     Accesses,
	"accesses":   Accesses,
	"acceso":     Accesses,
	"accesos":    Accesses,
}

// ParseCategory parses a category name in English or Spanish, singular or plural
func ParseCategory(s string) (Category, bool) {
	c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(s))]
	return c, ok
}
