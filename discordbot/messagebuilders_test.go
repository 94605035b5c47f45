package discordbot

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/metroinfo/metrobot/reconciler"
	"github.com/metroinfo/metrobot/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transfer(id types.LineID) *types.LineID {
	return &id
}

func TestLineStatusEmbed(t *testing.T) {
	now := time.Date(2025, time.June, 18, 12, 0, 0, 0, time.UTC)
	status := &types.LineStatus{
		ID:         types.LineL1,
		StatusCode: types.StatusDelayed,
		Messages:   types.LineMessages{Primary: "Trenes con mayor tiempo de espera"},
		Stations: []*types.StationStatus{
			{Code: "SP", Name: "San Pablo L1", StatusCode: types.StatusOperating, Transfer: transfer(types.LineL5)},
			{Code: "NE", Name: "Neptuno", StatusCode: types.StatusClosed},
			{Code: "PJ", Name: "Pajaritos", StatusCode: types.StatusPartialClosure},
		},
	}

	embed := LineStatusEmbed(status, now)
	assert.Equal(t, "<:l1:1386445105455566918> Línea 1", embed.Title)
	assert.Equal(t, 0xea000a, embed.Color)
	assert.Equal(t, "📡 **Estado:** ⏲️ Demoras en frecuencia\n📝 **Detalles:** Trenes con mayor tiempo de espera", embed.Description)
	assert.Equal(t, now.Format(time.RFC3339Nano), embed.Timestamp)
	require.Len(t, embed.Fields, 1)
	assert.Equal(t, "🚆 Estaciones [1]", embed.Fields[0].Name)
	assert.Equal(t, strings.Join([]string{
		"<:operativa:1386520320952897536> San Pablo <:l1:1386445105455566918>↔️<:l5:1386445194907353108>",
		"🟥 Neptuno",
		"🟨 Pajaritos",
	}, "\n"), embed.Fields[0].Value)
}

func TestLineStatusEmbed_ChunksStations(t *testing.T) {
	status := &types.LineStatus{ID: types.LineL4A, StatusCode: types.StatusOperating}
	for i := 0; i < 23; i++ {
		status.Stations = append(status.Stations, &types.StationStatus{
			Code: fmt.Sprintf("S%d", i), Name: fmt.Sprintf("Estación %d", i), StatusCode: types.StatusClosedForSchedule,
		})
	}

	embed := LineStatusEmbed(status, time.Now())
	require.Len(t, embed.Fields, 3)
	assert.Equal(t, "🚆 Estaciones [3]", embed.Fields[2].Name)
	assert.Len(t, strings.Split(embed.Fields[0].Value, "\n"), 10)
	assert.Len(t, strings.Split(embed.Fields[2].Value, "\n"), 3)
	assert.True(t, strings.HasPrefix(embed.Fields[0].Value, "🌙 Estación 0"))
}

func TestTemplates(t *testing.T) {
	warn := WarnEmbed("cuidado")
	assert.Equal(t, "⚠️ Advertencia", warn.Title)
	assert.Equal(t, ColorYellow, warn.Color)

	e := ErrorEmbed("falló")
	assert.Equal(t, "❌ Error", e.Title)
	assert.Equal(t, "falló", e.Description)

	simple := SimpleEmbed("texto", "título")
	assert.Equal(t, "título", simple.Title)
	assert.Zero(t, simple.Color)
}

func TestEmbedLimits(t *testing.T) {
	embed := NewEmbed().SetTitle(strings.Repeat("a", 300))
	assert.Len(t, []rune(embed.Title), EmbedLimitTitle)
	for i := 0; i < 30; i++ {
		embed.AddField("f", "v")
	}
	assert.Len(t, embed.Fields, EmbedLimitField)
}

func TestOverwritePrompt(t *testing.T) {
	embed, components := overwritePrompt("111", "222")
	assert.Contains(t, embed.Description, "<#111>")
	require.Len(t, components, 1)
	row := components[0].(discordgo.ActionsRow)
	require.Len(t, row.Components, 2)
	confirm := row.Components[0].(discordgo.Button)
	assert.Equal(t, "metro-status:overwrite-confirm:222", confirm.CustomID)
	assert.Equal(t, discordgo.DangerButton, confirm.Style)
	assert.Equal(t, "metro-status:overwrite-cancel", row.Components[1].(discordgo.Button).CustomID)
}

func TestReportSummary(t *testing.T) {
	assert.Contains(t, reportSummary(nil), "Aún no")

	failed := &reconciler.Report{Start: time.Now(), Err: errors.New("timeout")}
	assert.Contains(t, reportSummary(failed), "timeout")

	report := &reconciler.Report{
		Start:    time.Now(),
		Duration: 1500 * time.Millisecond,
		Results: []reconciler.RecordResult{
			{Outcome: reconciler.Unchanged},
			{Outcome: reconciler.EditApplied},
			{Outcome: reconciler.ChannelMissing},
			{Outcome: reconciler.Unchanged},
		},
	}
	summary := reportSummary(report)
	assert.Contains(t, summary, "3/4 mensajes al día")
	assert.Contains(t, summary, "unchanged: 2")
	assert.Contains(t, summary, "channel_missing: 1")
	assert.NotContains(t, summary, "edit_failed")
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "2 días 3 horas", formatUptime(51*time.Hour))
	assert.Equal(t, "1 minuto 5 segundos", formatUptime(65*time.Second))
}
