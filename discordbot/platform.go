package discordbot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/metroinfo/metrobot/reconciler"
	"github.com/metroinfo/metrobot/types"
)

// Platform publishes line status messages through a Discord session
type Platform struct {
	session *discordgo.Session
	Now     func() time.Time
}

// NewPlatform returns a Platform using the given session
func NewPlatform(session *discordgo.Session) *Platform {
	return &Platform{
		session: session,
		Now:     time.Now,
	}
}

// ResolveChannel checks that a channel still exists
func (p *Platform) ResolveChannel(ctx context.Context, channelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.session.Channel(channelID)
	return classifyRESTError(err, reconciler.ErrChannelMissing)
}

// ResolveMessage checks that a message still exists
func (p *Platform) ResolveMessage(ctx context.Context, channelID, messageID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.session.ChannelMessage(channelID, messageID)
	return classifyRESTError(err, reconciler.ErrMessageMissing)
}

// SendMessage posts the status of a line and returns the new message ID
func (p *Platform) SendMessage(ctx context.Context, channelID string, status *types.LineStatus) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	message, err := p.session.ChannelMessageSendEmbed(channelID, LineStatusEmbed(status, p.Now()).MessageEmbed)
	if err != nil {
		return "", classifyRESTError(err, reconciler.ErrChannelMissing)
	}
	return message.ID, nil
}

// EditMessage replaces the content of a status message
func (p *Platform) EditMessage(ctx context.Context, channelID, messageID string, status *types.LineStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.session.ChannelMessageEditEmbed(channelID, messageID, LineStatusEmbed(status, p.Now()).MessageEmbed)
	return classifyRESTError(err, reconciler.ErrMessageMissing)
}

// classifyRESTError maps Discord "unknown entity" answers to the reconciler's
// missing errors. Other errors are returned as they are.
func classifyRESTError(err error, missing error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return err
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownChannel:
			return fmt.Errorf("%w: %s", reconciler.ErrChannelMissing, restErr.Message.Message)
		case discordgo.ErrCodeUnknownMessage:
			return fmt.Errorf("%w: %s", reconciler.ErrMessageMissing, restErr.Message.Message)
		}
	}
	if restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", missing, err)
	}
	return err
}
