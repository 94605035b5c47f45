package discordbot

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

// Discord embed limits
const (
	EmbedLimitTitle       = 256
	EmbedLimitDescription = 4096
	EmbedLimitFieldValue  = 1024
	EmbedLimitFieldName   = 256
	EmbedLimitField       = 25
	EmbedLimitFooter      = 2048
)

// Colors used by the message templates
const (
	ColorYellow = 0xfee75c
	ColorRed    = 0xed4245
	ColorGreen  = 0x57f287
)

// Embed wraps a discordgo.MessageEmbed with a chainable builder
type Embed struct {
	*discordgo.MessageEmbed
}

// NewEmbed returns a new empty Embed
func NewEmbed() *Embed {
	return &Embed{&discordgo.MessageEmbed{}}
}

// SetTitle sets the embed title
func (e *Embed) SetTitle(name string) *Embed {
	e.Title = truncate(name, EmbedLimitTitle)
	return e
}

// SetDescription sets the embed description
func (e *Embed) SetDescription(description string) *Embed {
	e.Description = truncate(description, EmbedLimitDescription)
	return e
}

// AddField adds a field to the embed. Fields past the limit are ignored
func (e *Embed) AddField(name, value string) *Embed {
	return e.addField(name, value, false)
}

// AddInlineField adds an inline field to the embed
func (e *Embed) AddInlineField(name, value string) *Embed {
	return e.addField(name, value, true)
}

func (e *Embed) addField(name, value string, inline bool) *Embed {
	if len(e.Fields) >= EmbedLimitField {
		return e
	}
	e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
		Name:   truncate(name, EmbedLimitFieldName),
		Value:  truncate(value, EmbedLimitFieldValue),
		Inline: inline,
	})
	return e
}

// SetFooter sets the footer text and, optionally, its icon URL
func (e *Embed) SetFooter(args ...string) *Embed {
	if len(args) == 0 {
		return e
	}
	footer := &discordgo.MessageEmbedFooter{Text: truncate(args[0], EmbedLimitFooter)}
	if len(args) > 1 {
		footer.IconURL = args[1]
	}
	e.Footer = footer
	return e
}

// SetThumbnail sets the thumbnail image URL
func (e *Embed) SetThumbnail(url string) *Embed {
	e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: url}
	return e
}

// SetColor sets the color of the embed side bar
func (e *Embed) SetColor(color int) *Embed {
	e.Color = color
	return e
}

// SetTimestamp sets the embed timestamp
func (e *Embed) SetTimestamp(t time.Time) *Embed {
	e.Timestamp = t.Format(time.RFC3339Nano)
	return e
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
