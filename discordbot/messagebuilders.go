package discordbot

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hako/durafmt"
	"go.tianon.xyz/progress"

	"github.com/metroinfo/metrobot/reconciler"
	"github.com/metroinfo/metrobot/types"
	"github.com/metroinfo/metrobot/utils"
)

// Component custom IDs of the status channel setup flow
const (
	customIDChannelSelect    = "metro-status:channel-select"
	customIDOverwriteConfirm = "metro-status:overwrite-confirm"
	customIDOverwriteCancel  = "metro-status:overwrite-cancel"
)

const stationsPerField = 10

var lineStatusText = map[types.StatusCode]string{
	types.StatusClosedForSchedule: "🌙 Cierre por horario",
	types.StatusOperating:         "🟩 Operativa",
	types.StatusClosed:            "🟥 Cerrada",
	types.StatusPartialClosure:    "🟨 Cierre parcial",
	types.StatusDelayed:           "⏲️ Demoras en frecuencia",
	types.StatusExtendedRoute:     "➕ Ruta extendida",
}

var stationStatusIcon = map[types.StatusCode]string{
	types.StatusClosedForSchedule: "🌙",
	types.StatusOperating:         "<:operativa:1386520320952897536>",
	types.StatusClosed:            "🟥",
	types.StatusPartialClosure:    "🟨",
	types.StatusDelayed:           "⏲️",
	types.StatusExtendedRoute:     "➕",
}

// SimpleEmbed builds an informative message
func SimpleEmbed(description, title string) *Embed {
	return NewEmbed().
		SetTitle(title).
		SetDescription(description)
}

// WarnEmbed builds a warning message
func WarnEmbed(description string) *Embed {
	return NewEmbed().
		SetTitle("⚠️ Advertencia").
		SetDescription(description).
		SetColor(ColorYellow)
}

// ErrorEmbed builds an error message
func ErrorEmbed(description string) *Embed {
	return NewEmbed().
		SetTitle("❌ Error").
		SetDescription(description).
		SetColor(ColorRed)
}

// LineStatusEmbed renders the status of a line
func LineStatusEmbed(status *types.LineStatus, now time.Time) *Embed {
	embed := NewEmbed().
		SetDescription(fmt.Sprintf("📡 **Estado:** %s\n📝 **Detalles:** %s",
			lineStatusText[status.StatusCode], status.Messages.Primary)).
		SetTimestamp(now)

	if line := types.GetLine(status.ID); line != nil {
		embed.SetTitle(line.Emoji + " " + line.Name).SetColor(line.Color)
	} else {
		embed.SetTitle(strings.ToUpper(string(status.ID)))
	}

	entries := make([]string, len(status.Stations))
	for i, station := range status.Stations {
		entries[i] = stationEntry(status.ID, station)
	}
	for i, chunk := range utils.Chunk(entries, stationsPerField) {
		embed.AddField(fmt.Sprintf("🚆 Estaciones [%d]", i+1), strings.Join(chunk, "\n"))
	}
	return embed
}

// stationEntry renders a station as its status icon and name, with the line
// code in the name replaced by the line icon and transfers appended
func stationEntry(line types.LineID, station *types.StationStatus) string {
	name := strings.Replace(station.Name, strings.ToUpper(string(line)), line.Emoji(), 1)
	entry := stationStatusIcon[station.StatusCode] + " " + name
	if station.Transfer != nil {
		entry += "↔️" + station.Transfer.Emoji()
	}
	return entry
}

func channelSelectMessage() *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{
			SimpleEmbed("Establecer el canal de actualizaciones de estado", "⚙️ Canal de Actualizaciones (Metro)").MessageEmbed,
		},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{
					MenuType:     discordgo.ChannelSelectMenu,
					CustomID:     customIDChannelSelect,
					Placeholder:  "Selecciona un canal de la lista",
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
				},
			}},
		},
	}
}

func overwritePrompt(currentChannelID, newChannelID string) (*Embed, []discordgo.MessageComponent) {
	embed := WarnEmbed(fmt.Sprintf("¿Sobrescribir <#%s> como canal de actualizaciones?", currentChannelID)).
		SetTitle("⚙️ Canal de Actualizaciones (Metro)")
	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Sobrescribir",
				Style:    discordgo.DangerButton,
				CustomID: customIDOverwriteConfirm + ":" + newChannelID,
			},
			discordgo.Button{
				Label:    "Cancelar",
				Style:    discordgo.PrimaryButton,
				CustomID: customIDOverwriteCancel,
			},
		}},
	}
	return embed, components
}

func publishedEmbed(channelID string, count int) *Embed {
	return SimpleEmbed(fmt.Sprintf("Se estableció <#%s> como canal de actualizaciones (%d líneas)", channelID, count),
		"✅ Configuración guardada").SetColor(ColorGreen)
}

func formatUptime(uptime time.Duration) string {
	uptimestr := durafmt.Parse(uptime.Truncate(time.Second)).String()
	uptimestr = strings.Replace(uptimestr, "years", "años", 1)
	uptimestr = strings.Replace(uptimestr, "year", "año", 1)
	uptimestr = strings.Replace(uptimestr, "weeks", "semanas", 1)
	uptimestr = strings.Replace(uptimestr, "week", "semana", 1)
	uptimestr = strings.Replace(uptimestr, "days", "días", 1)
	uptimestr = strings.Replace(uptimestr, "day", "día", 1)
	uptimestr = strings.Replace(uptimestr, "hour", "hora", 1)
	uptimestr = strings.Replace(uptimestr, "minute", "minuto", 1)
	uptimestr = strings.Replace(uptimestr, "second", "segundo", 1)
	return uptimestr
}

// reportSummary describes a reconciliation report, with a bar showing the
// share of status messages that are up to date
func reportSummary(report *reconciler.Report) string {
	if report == nil {
		return "Aún no se ha ejecutado ninguna sincronización"
	}
	if report.Err != nil {
		return fmt.Sprintf("La última sincronización falló (%s): %s",
			report.Start.Format("15:04:05"), report.Err.Error())
	}

	total := len(report.Results)
	upToDate := report.Count(reconciler.Unchanged) + report.Count(reconciler.EditApplied)

	bar := progress.NewBar(nil)
	bar.Min = 0
	bar.Max = int64(total)
	bar.Val = int64(upToDate)
	if total == 0 {
		bar.Max = 1
	}
	bar.Prefix = func(_ *progress.Bar) string {
		return ""
	}
	bar.Suffix = func(_ *progress.Bar) string {
		return ""
	}
	bar.Phases = []string{
		"·",
		"▌",
		"█",
	}

	summary := fmt.Sprintf("`%s` %d/%d mensajes al día\n", bar.TickString(20), upToDate, total)
	for _, outcome := range reconciler.Outcomes {
		if n := report.Count(outcome); n > 0 {
			summary += fmt.Sprintf("%s: %d\n", outcome, n)
		}
	}
	summary += fmt.Sprintf("Duración: %s (%s)", report.Duration.Truncate(time.Millisecond), report.Start.Format("15:04:05"))
	return summary
}

type botStats struct {
	Uptime        time.Duration
	GuildCount    int
	Handlers      []MessageHandler
	LastReport    *reconciler.Report
	DBConnections int
	WebRequests   int
	GitCommit     string
	BuildDate     string
}

func buildBotStatsMessage(stats botStats, now time.Time) *Embed {
	embed := NewEmbed().
		SetTitle("Estadísticas del bot").
		SetDescription(fmt.Sprintf("Funcionando hace %s", formatUptime(stats.Uptime)))

	serversStr := fmt.Sprintf("%d servidor", stats.GuildCount)
	if stats.GuildCount != 1 {
		serversStr += "es"
	}
	embed.AddInlineField("Discord", serversStr)
	embed.AddInlineField("Versión", fmt.Sprintf("`%s` (%s)", stats.GitCommit, stats.BuildDate))

	minutes := stats.Uptime.Minutes()
	if minutes <= 0 {
		minutes = 1
	}
	for _, handler := range stats.Handlers {
		handled := handler.MessagesHandled()
		actedUpon := handler.MessagesActedUpon()

		statsStr := fmt.Sprintf("%d mensajes procesados (%.02f/minuto)\n%d mensajes atendidos (%.02f/minuto)",
			handled,
			float64(handled)/minutes,
			actedUpon,
			float64(actedUpon)/minutes)

		if handled > 0 {
			statsStr += fmt.Sprintf("\n%.02f%% de atención", float64(actedUpon)/float64(handled)*100.0)
		}
		embed.AddField("Uso del procesador de mensajes "+handler.Name(), statsStr)
	}

	embed.AddField("Sincronización de estado", reportSummary(stats.LastReport))
	embed.AddInlineField("Base de datos", fmt.Sprintf("%d conexiones abiertas", stats.DBConnections))
	embed.AddInlineField("Web", fmt.Sprintf("%d pedidos", stats.WebRequests))
	embed.SetTimestamp(now)
	return embed
}
