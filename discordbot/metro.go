package discordbot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/metroinfo/metrobot/reconciler"
	"github.com/metroinfo/metrobot/types"
	"go.uber.org/zap"
)

func (b *Bot) registerCommands() {
	b.commandLib.Register(NewCommand("metro", b.handleMetroHelp).WithSubcommands(
		NewCommand("canal", b.handleChannel).WithAliases("channel").
			WithRequirePrivilege(AdminPrivilege).InGuildOnly(),
		NewCommand("limpiar", b.handleClear).WithAliases("clear").
			WithRequirePrivilege(AdminPrivilege).InGuildOnly(),
		NewCommand("estado", b.handleLineStatus).WithAliases("status").
			WithUsage("[línea]"),
		NewCommand("sync", b.handleSync).WithRequirePrivilege(RootPrivilege),
	))
	b.commandLib.Register(NewCommand("stats", b.handleStats))
}

func (b *Bot) handleRefused(s *discordgo.Session, m *discordgo.MessageCreate, reason error) {
	switch {
	case errors.Is(reason, ErrGuildOnly):
		b.reply(m, ErrorEmbed("Este comando solo se puede usar en un servidor"))
	case errors.Is(reason, ErrRootRequired):
		b.reply(m, ErrorEmbed("Solo el dueño del bot puede usar este comando"))
	default:
		b.reply(m, ErrorEmbed("Necesitas el permiso de gestionar el servidor para usar este comando"))
	}
}

func (b *Bot) handleMetroHelp(c *CommandContext) {
	help := b.commandLib.Help("metro")
	if len(c.Args) > 0 {
		b.reply(c.Message, ErrorEmbed(fmt.Sprintf("Subcomando desconocido `%s`\n%s", c.Args[0], help)))
		return
	}
	b.reply(c.Message, SimpleEmbed(help, "🚇 Comandos de Metro"))
}

func (b *Bot) handleSync(c *CommandContext) {
	b.cmdReceiver.TriggerReconcile()
	b.reply(c.Message, SimpleEmbed("Se solicitó una sincronización de los mensajes de estado", "🔄 Sincronización"))
}

func (b *Bot) handleChannel(c *CommandContext) {
	if _, err := b.session.ChannelMessageSendComplex(c.Message.ChannelID, channelSelectMessage()); err != nil {
		b.log.Warn("failed to send channel selection", zap.String("channel", c.Message.ChannelID), zap.Error(err))
	}
}

func (b *Bot) handleClear(c *CommandContext) {
	m := c.Message
	n, err := b.publisher.Clear(m.GuildID)
	if err != nil {
		b.log.Error("failed to clear publication records", zap.String("guild", m.GuildID), zap.Error(err))
		b.reply(m, ErrorEmbed("No se pudieron eliminar los mensajes de estado"))
		return
	}
	b.reply(m, SimpleEmbed(fmt.Sprintf("Se dejaron de actualizar %d mensajes de estado", n), "🧹 Mensajes eliminados"))
}

func (b *Bot) handleLineStatus(c *CommandContext) {
	m, args := c.Message, c.Args
	ctx, cancel := b.context()
	defer cancel()

	network, err := b.statuses.Latest(ctx)
	if err != nil {
		b.log.Warn("failed to get network status", zap.Error(err))
		b.reply(m, ErrorEmbed("No se pudo obtener el estado de la red"))
		return
	}

	now := time.Now()
	embeds := []*discordgo.MessageEmbed{}
	if len(args) > 0 {
		id, ok := types.ParseLineID(strings.Join(args, ""))
		status := network.Line(id)
		if !ok || status == nil {
			b.reply(m, ErrorEmbed(fmt.Sprintf("Línea desconocida `%s`", strings.Join(args, " "))))
			return
		}
		embeds = append(embeds, LineStatusEmbed(status, now).MessageEmbed)
	} else {
		for _, status := range network {
			embeds = append(embeds, LineStatusEmbed(status, now).MessageEmbed)
		}
	}

	if _, err := b.session.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{Embeds: embeds}); err != nil {
		b.log.Warn("failed to send line status", zap.String("channel", m.ChannelID), zap.Error(err))
	}
}

func (b *Bot) handleStats(c *CommandContext) {
	b.reply(c.Message, buildBotStatsMessage(b.stats(), time.Now()))
}

func (b *Bot) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	switch {
	case data.CustomID == customIDChannelSelect:
		if len(data.Values) == 0 {
			return
		}
		b.handleChannelSelected(i, data.Values[0])
	case strings.HasPrefix(data.CustomID, customIDOverwriteConfirm+":"):
		b.publish(i, strings.TrimPrefix(data.CustomID, customIDOverwriteConfirm+":"), true)
	case data.CustomID == customIDOverwriteCancel:
		b.respondUpdate(i, SimpleEmbed("No se realizaron cambios", "⚙️ Canal de Actualizaciones (Metro)"), nil)
	}
}

func (b *Bot) handleChannelSelected(i *discordgo.InteractionCreate, channelID string) {
	existing, err := b.publisher.Existing(i.GuildID)
	if err != nil {
		b.log.Error("failed to read publication records", zap.String("guild", i.GuildID), zap.Error(err))
		b.respondUpdate(i, ErrorEmbed("No se pudo leer la configuración actual"), nil)
		return
	}
	if len(existing) > 0 {
		embed, components := overwritePrompt(existing[0].ChannelID, channelID)
		b.respondUpdate(i, embed, components)
		return
	}
	b.publish(i, channelID, false)
}

// publish acknowledges the interaction before sending the status messages and
// edits the outcome into the prompt afterwards
func (b *Bot) publish(i *discordgo.InteractionCreate, channelID string, overwrite bool) {
	b.respondUpdate(i, SimpleEmbed(fmt.Sprintf("Publicando el estado de la red en <#%s>…", channelID), "⏳ Publicando"), nil)

	ctx, cancel := b.context()
	defer cancel()

	records, err := b.publisher.Publish(ctx, i.GuildID, channelID, overwrite)
	var result *Embed
	switch {
	case err == nil:
		result = publishedEmbed(channelID, len(records))
	case errors.Is(err, reconciler.ErrAlreadyPublished), errors.Is(err, types.ErrDuplicateKey):
		result = WarnEmbed("Este servidor ya tiene un canal de actualizaciones. Vuelve a elegir el canal para sobrescribirlo")
	case errors.Is(err, reconciler.ErrChannelMissing):
		result = ErrorEmbed(fmt.Sprintf("No se pudo encontrar el canal con la id %s", channelID))
	default:
		b.log.Error("failed to publish status messages",
			zap.String("guild", i.GuildID),
			zap.String("channel", channelID),
			zap.Error(err))
		result = ErrorEmbed("No se pudo enviar el mensaje, revisa los permisos del bot")
	}

	if i.Message == nil {
		return
	}
	if _, err := b.session.ChannelMessageEditEmbed(i.ChannelID, i.Message.ID, result.MessageEmbed); err != nil {
		b.log.Warn("failed to edit setup message", zap.String("channel", i.ChannelID), zap.Error(err))
	}
}
