package discordbot

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/metroinfo/metrobot/reconciler"
	"go.uber.org/zap"
)

// Options configures a Bot
type Options struct {
	Token          string
	Prefix         string
	AdminChannelID string
	// CommandTimeout bounds the work done for a single command or interaction
	CommandTimeout time.Duration
}

// Bot is the Discord side of the service: it owns the session used by the
// status Platform and serves the administrative commands
type Bot struct {
	session         *discordgo.Session
	log             *zap.Logger
	options         Options
	platform        *Platform
	commandLib      *CommandLibrary
	messageHandlers []MessageHandler
	publisher       *reconciler.Publisher
	statuses        StatusReader
	cmdReceiver     CommandReceiver
	botOwnerUserID  string
	startTime       time.Time
}

// New creates a Bot and its session. The session only connects on Start.
func New(options Options, log *zap.Logger) (*Bot, error) {
	if options.CommandTimeout == 0 {
		options.CommandTimeout = 30 * time.Second
	}
	dg, err := discordgo.New("Bot " + options.Token)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
	return &Bot{
		session:  dg,
		log:      log,
		options:  options,
		platform: NewPlatform(dg),
	}, nil
}

// Platform returns the status message Platform backed by this bot's session
func (b *Bot) Platform() *Platform {
	return b.platform
}

// Start registers the handlers and opens the connection to Discord
func (b *Bot) Start(publisher *reconciler.Publisher, statuses StatusReader, receiver CommandReceiver) error {
	b.publisher = publisher
	b.statuses = statuses
	b.cmdReceiver = receiver
	b.startTime = time.Now()

	selfApp, err := b.session.Application("@me")
	if err != nil {
		return err
	}
	if selfApp.Owner != nil {
		b.botOwnerUserID = selfApp.Owner.ID
	}

	b.commandLib = NewCommandLibrary(b.options.Prefix, b.botOwnerUserID).
		WithAdminChannel(b.options.AdminChannelID).
		WithAdminCheck(canManageGuild).
		WithRefusalHandler(b.handleRefused)
	b.registerCommands()
	b.messageHandlers = []MessageHandler{b.commandLib}

	b.session.AddHandler(b.messageCreate)
	b.session.AddHandler(b.interactionCreate)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.log.Info("connected to Discord",
			zap.String("user", r.User.Username),
			zap.Int("guilds", len(r.Guilds)))
	})

	// Open a websocket connection to Discord and begin listening.
	return b.session.Open()
}

// Stop stops the Discord bot
func (b *Bot) Stop() {
	// Cleanly close down the Discord session.
	if b.session != nil {
		b.session.Close()
	}
}

func (b *Bot) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), b.options.CommandTimeout)
}

// This function will be called (due to AddHandler above) every time a new
// message is created on any channel that the autenticated bot has access to.
func (b *Bot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore all messages created by the bot itself
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}

	for _, handler := range b.messageHandlers {
		if handler.HandleMessage(s, m) {
			return
		}
	}
}

func (b *Bot) interactionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent || i.GuildID == "" {
		return
	}
	if !b.memberIsAdmin(s, i) {
		b.respondUpdate(i, ErrorEmbed("No tienes permisos para configurar el bot en este servidor"), nil)
		return
	}
	b.handleComponent(s, i)
}

func (b *Bot) memberIsAdmin(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if i.Member == nil || i.Member.User == nil {
		return false
	}
	if i.Member.User.ID == b.botOwnerUserID {
		return true
	}
	return i.Member.Permissions&(discordgo.PermissionAdministrator|discordgo.PermissionManageServer) != 0
}

// canManageGuild grants AdminPrivilege to members allowed to manage the guild
// where the message was sent
func canManageGuild(s *discordgo.Session, m *discordgo.MessageCreate) bool {
	if s == nil || m.GuildID == "" {
		return false
	}
	perms, err := s.UserChannelPermissions(m.Author.ID, m.ChannelID)
	if err != nil {
		return false
	}
	return perms&(discordgo.PermissionAdministrator|discordgo.PermissionManageServer) != 0
}

func (b *Bot) reply(m *discordgo.MessageCreate, embed *Embed) {
	if _, err := b.session.ChannelMessageSendEmbed(m.ChannelID, embed.MessageEmbed); err != nil {
		b.log.Warn("failed to reply", zap.String("channel", m.ChannelID), zap.Error(err))
	}
}

func (b *Bot) respondUpdate(i *discordgo.InteractionCreate, embed *Embed, components []discordgo.MessageComponent) {
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed.MessageEmbed},
			Components: components,
		},
	})
	if err != nil {
		b.log.Warn("failed to respond to interaction", zap.String("interaction", i.ID), zap.Error(err))
	}
}

func (b *Bot) stats() botStats {
	stats := botStats{
		Uptime:   time.Since(b.startTime),
		Handlers: b.messageHandlers,
	}
	if b.session.State != nil {
		stats.GuildCount = len(b.session.State.Guilds)
	}
	if b.cmdReceiver != nil {
		stats.LastReport = b.cmdReceiver.LastReport()
		stats.DBConnections, stats.WebRequests = b.cmdReceiver.GetStats()
		stats.GitCommit, stats.BuildDate = b.cmdReceiver.GetVersion()
	}
	return stats
}
