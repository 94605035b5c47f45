package telegrambot

import (
	"errors"
	"fmt"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/metroinfo/metrobot/accessibility"
	"github.com/metroinfo/metrobot/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCatalog_Find(t *testing.T) {
	cat := newCatalog(testNetwork())

	tests := []struct {
		query    string
		expected []string
	}{
		{"uch", []string{"l1.UCH"}},
		{"Los Héroes", []string{"l1.LH", "l2.LH"}},
		{"los heroes l2", []string{"l2.LH"}},
		{"Toesca", []string{"l2.TOB"}},
		{"pablo", []string{"l1.SP"}},
		{"Baquedano", []string{}},
		{"!!", []string{}},
	}
	for _, test := range tests {
		t.Run(test.query, func(t *testing.T) {
			tokens := []string{}
			for _, s := range cat.find(test.query) {
				tokens = append(tokens, stationToken(s))
			}
			assert.Equal(t, test.expected, tokens)
		})
	}
}

func TestCatalog_ByToken(t *testing.T) {
	cat := newCatalog(testNetwork())

	s, ok := cat.byToken("l2.LH")
	require.True(t, ok)
	assert.Equal(t, "Los Héroes L2", s.Name)
	assert.Equal(t, accessibility.StationRef{Name: "Los Héroes L2", Line: types.LineL2}, s.ref())

	_, ok = cat.byToken("l3.LH")
	assert.False(t, ok)
	_, ok = cat.byToken("LH")
	assert.False(t, ok)
}

func longLine() *catalog {
	stations := []*types.StationStatus{}
	for i := 7; i > 0; i-- {
		stations = append(stations, &types.StationStatus{Code: fmt.Sprintf("S%d", i), Name: fmt.Sprintf("Estación %d", i)})
	}
	return newCatalog(types.Network{{ID: types.LineL4A, Stations: stations}})
}

func TestStationPageView_Pagination(t *testing.T) {
	cat := longLine()

	first := stationPageView(cat, types.LineL4A, 1, listMode)
	assert.Contains(t, first.Text, "Línea 4A")
	assert.Contains(t, first.Text, "Página 1 de 2")
	assert.Equal(t, []string{
		"access_view:l4a.S1", "access_view:l4a.S2", "access_view:l4a.S3", "access_view:l4a.S4", "access_view:l4a.S5",
		"access_list_page:2:l4a",
		"access_list", "access_main",
	}, callbackData(first.Keyboard))

	second := stationPageView(cat, types.LineL4A, 2, editMode)
	assert.Contains(t, second.Text, "Página 2 de 2")
	assert.Equal(t, []string{
		"access_aedit_station:l4a.S6", "access_aedit_station:l4a.S7",
		"access_aedit_page:1:l4a",
		"access_aedit_start", "access_main",
	}, callbackData(second.Keyboard))

	clamped := stationPageView(cat, types.LineL4A, 9, listMode)
	assert.Contains(t, clamped.Text, "Página 2 de 2")

	empty := stationPageView(cat, types.LineL6, 1, listMode)
	assert.Contains(t, empty.Text, "No hay estaciones")
}

func TestStationView_Counts(t *testing.T) {
	s := station{Code: "LH", Name: "Los Héroes L1", Line: types.LineL1}
	cfg := &accessibility.Config{
		Elevators: []*accessibility.Element{
			{ID: "A1", Status: "operativa"},
			{ID: "A2", Status: "fuera de servicio"},
		},
		Accesses: []*accessibility.Element{{ID: "B", Status: "abierto"}},
	}

	v := stationView(s, cfg, time.UTC)
	assert.Contains(t, v.Text, "🛗 <b>Ascensores:</b> 1/2 operativos")
	assert.Contains(t, v.Text, "🪜 <b>Escaleras:</b> No configurados")
	assert.Contains(t, v.Text, "🚪 <b>Accesos:</b> 1/1 abiertos")
	assert.NotContains(t, v.Text, "Último cambio")
}

func TestStatusEmoji(t *testing.T) {
	assert.Equal(t, "🟢", statusEmoji("Operativa"))
	assert.Equal(t, "🔴", statusEmoji("fuera de servicio"))
	assert.Equal(t, "🟡", statusEmoji("horario especial"))
	assert.Equal(t, "⚪", statusEmoji("desconocido"))
}

func TestErrorView(t *testing.T) {
	v := errorView("eliminar elemento", fmt.Errorf("wrapped: %w", accessibility.ErrElementNotFound))
	assert.Equal(t, "❌ Error al eliminar elemento: elemento no encontrado", v.Text)

	v = errorView("leer", errors.New("<timeout>"))
	assert.Equal(t, "❌ Error al leer: &lt;timeout&gt;", v.Text)
}

func TestRouter_DispatchPriority(t *testing.T) {
	r := NewRouter(zap.NewNop())
	calls := []string{}
	r.AddCommand("accesos", func(update tgbotapi.Update) { calls = append(calls, "command") })
	r.AddCallbackQuery(`^access_view:(.+)$`, func(update tgbotapi.Update) { calls = append(calls, "view") })
	r.AddCallbackQuery(`^access_.*$`, func(update tgbotapi.Update) { calls = append(calls, "any") })
	r.SetTextHandler(func(update tgbotapi.Update) { calls = append(calls, "text") })

	assert.True(t, r.Dispatch(commandUpdate(adminID, "/accesos ver x", "/accesos")))
	assert.False(t, r.Dispatch(commandUpdate(adminID, "/start", "/start")))
	assert.True(t, r.Dispatch(callbackUpdate(adminID, "access_view:l1.LH")))
	assert.True(t, r.Dispatch(callbackUpdate(adminID, "access_main")))
	assert.False(t, r.Dispatch(callbackUpdate(adminID, "other")))
	assert.True(t, r.Dispatch(textUpdate(adminID, "hola")))
	assert.False(t, r.Dispatch(tgbotapi.Update{}))

	assert.Equal(t, []string{"command", "view", "any", "text"}, calls)
}
