package telegrambot

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/metroinfo/metrobot/accessibility"
	"github.com/metroinfo/metrobot/types"
	"github.com/metroinfo/metrobot/utils"
	"go.tianon.xyz/progress"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const (
	stationsPerPage      = 5
	stationHistoryLength = 15
	globalHistoryLength  = 20
	dateLayout           = "02/01/2006 15:04"
)

const lockedText = "🔒 No tienes permisos para usar este comando."

// callback data uses the singular English name of a category
var categoryTokens = map[accessibility.Category]string{
	accessibility.Elevators:  "elevator",
	accessibility.Escalators: "escalator",
	accessibility.Accesses:   "access",
}

var categoryTitles = map[accessibility.Category]string{
	accessibility.Elevators:  "Ascensores",
	accessibility.Escalators: "Escaleras",
	accessibility.Accesses:   "Accesos",
}

// fields that can be edited in the advanced editor, in display order
var editableFields = []string{"elevators", "escalators", "accesses", "notes"}

var operationalStatuses = []string{"operativa", "operativo", "abierto", "normal"}

var statusEmojis = map[string]string{
	"operativa":         "🟢",
	"operativo":         "🟢",
	"abierto":           "🟢",
	"normal":            "🟢",
	"fuera de servicio": "🔴",
	"cerrado":           "🔴",
	"suspendido":        "🔴",
	"en mantención":     "🟡",
	"restringido":       "🟡",
	"restringida":       "🟡",
	"alterado":          "🟡",
	"horario especial":  "🟡",
}

func statusEmoji(status string) string {
	if emoji, ok := statusEmojis[strings.ToLower(status)]; ok {
		return emoji
	}
	return "⚪"
}

func escape(s string) string {
	return html.EscapeString(s)
}

func stationToken(s station) string {
	return string(s.Line) + "." + s.Code
}

func lineName(id types.LineID) string {
	if l := types.GetLine(id); l != nil {
		return l.Name
	}
	return strings.ToUpper(string(id))
}

func button(text, data string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, data)
}

func row(buttons ...tgbotapi.InlineKeyboardButton) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(buttons...)
}

func keyboard(rows ...[]tgbotapi.InlineKeyboardButton) *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

// pairs lays buttons out in rows of two
func pairs(buttons []tgbotapi.InlineKeyboardButton) [][]tgbotapi.InlineKeyboardButton {
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, chunk := range utils.Chunk(buttons, 2) {
		rows = append(rows, row(chunk...))
	}
	return rows
}

var (
	mainMenuButton = button("🔙 Menú principal", "access_main")
	homeButton     = button("🏠 Menú principal", "access_main")
	cancelButton   = button("❌ Cancelar", "access_cancel")
)

// view is a message with its inline keyboard
type view struct {
	Text     string
	Keyboard *tgbotapi.InlineKeyboardMarkup
}

func mainMenuView() *view {
	return &view{"🛗 <b>Menú Principal de Gestión de Accesibilidad</b>\n\nSelecciona una acción:",
		keyboard(
			row(button("📋 Listar estaciones", "access_list")),
			row(button("⚙️ Configuración avanzada", "access_aedit_start")),
			row(button("🔄 Reemplazo masivo", "access_replace_start")),
			row(button("📜 Historial global", "access_global_history")),
			row(button("ℹ️ Ayuda", "access_help")),
			row(button("✅ Finalizar", "access_finish")),
		)}
}

func finishedView() *view {
	return &view{Text: "✅ Comando de accesibilidad completado."}
}

// browseMode selects where the station list leads: to the station view or
// to the advanced editor
type browseMode struct {
	title   string
	line    string
	page    string
	station string
	back    string
}

var (
	listMode = browseMode{
		title:   "📋 Líneas con estaciones",
		line:    "access_list_line",
		page:    "access_list_page",
		station: "access_view",
		back:    "access_list",
	}
	editMode = browseMode{
		title:   "⚙️ Configuración avanzada",
		line:    "access_aedit_line",
		page:    "access_aedit_page",
		station: "access_aedit_station",
		back:    "access_aedit_start",
	}
)

func lineListView(cat *catalog, mode browseMode) *view {
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, line := range cat.lines {
		rows = append(rows, row(button(
			fmt.Sprintf("🚇 %s (%d estaciones)", lineName(line), len(cat.stations(line))),
			mode.line+":"+string(line))))
	}
	rows = append(rows, row(mainMenuButton))
	return &view{fmt.Sprintf("<b>%s</b>\n\nSelecciona una línea para ver sus estaciones:", mode.title), keyboard(rows...)}
}

// sortedStations returns the stations of a line in Spanish alphabetical order
func sortedStations(cat *catalog, line types.LineID) []station {
	stations := append([]station{}, cat.stations(line)...)
	collator := collate.New(language.Spanish, collate.IgnoreCase)
	sort.SliceStable(stations, func(i, j int) bool {
		return collator.CompareString(stations[i].Name, stations[j].Name) < 0
	})
	return stations
}

// stationPageView shows one page of the stations of a line. Pages are
// numbered from 1; out of range pages are clamped.
func stationPageView(cat *catalog, line types.LineID, page int, mode browseMode) *view {
	pages := utils.Chunk(sortedStations(cat, line), stationsPerPage)
	if len(pages) == 0 {
		return &view{fmt.Sprintf("No hay estaciones en la %s.", lineName(line)),
			keyboard(row(button("↩️ Volver a líneas", mode.back)), row(mainMenuButton))}
	}
	if page < 1 {
		page = 1
	}
	if page > len(pages) {
		page = len(pages)
	}

	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, s := range pages[page-1] {
		rows = append(rows, row(button(s.Name, mode.station+":"+stationToken(s))))
	}
	nav := []tgbotapi.InlineKeyboardButton{}
	if page > 1 {
		nav = append(nav, button("⬅️ Anterior", fmt.Sprintf("%s:%d:%s", mode.page, page-1, line)))
	}
	if page < len(pages) {
		nav = append(nav, button("Siguiente ➡️", fmt.Sprintf("%s:%d:%s", mode.page, page+1, line)))
	}
	if len(nav) > 0 {
		rows = append(rows, row(nav...))
	}
	rows = append(rows, row(button("↩️ Volver a líneas", mode.back)), row(mainMenuButton))

	return &view{fmt.Sprintf("<b>🚇 %s</b>\nPágina %d de %d", lineName(line), page, len(pages)), keyboard(rows...)}
}

// matchesView lets the user pick among stations matching a search
func matchesView(matches []station) *view {
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, s := range matches {
		rows = append(rows, row(button(fmt.Sprintf("%s (%s)", s.Name, lineName(s.Line)), listMode.station+":"+stationToken(s))))
	}
	rows = append(rows, row(mainMenuButton))
	return &view{"🔍 Se encontraron varias estaciones. Selecciona una:", keyboard(rows...)}
}

func countOperational(elements []*accessibility.Element) int {
	n := 0
	for _, e := range elements {
		for _, status := range operationalStatuses {
			if strings.EqualFold(e.Status, status) {
				n++
				break
			}
		}
	}
	return n
}

// availabilityBar draws the share of operational elements
func availabilityBar(operational, total int) string {
	bar := progress.NewBar(nil)
	bar.Min = 0
	bar.Max = int64(total)
	bar.Val = int64(operational)
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
	return bar.TickString(10)
}

func categoryCount(cfg *accessibility.Config, category accessibility.Category, label, adjective string) string {
	elements := cfg.Elements(category)
	config := category.Config()
	if len(elements) == 0 {
		return fmt.Sprintf("%s <b>%s:</b> No configurados\n", config.Emoji, label)
	}
	operational := countOperational(elements)
	return fmt.Sprintf("%s <b>%s:</b> %d/%d %s\n<code>%s</code>\n",
		config.Emoji, label, operational, len(elements), adjective, availabilityBar(operational, len(elements)))
}

func stationView(s station, cfg *accessibility.Config, loc *time.Location) *view {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>♿ %s - Accesibilidad</b>\n🚇 %s\n\n", escape(s.Name), lineName(s.Line))
	b.WriteString(categoryCount(cfg, accessibility.Elevators, "Ascensores", "operativos"))
	b.WriteString(categoryCount(cfg, accessibility.Escalators, "Escaleras", "operativas"))
	b.WriteString(categoryCount(cfg, accessibility.Accesses, "Accesos", "abiertos"))
	if cfg.Notes != "" {
		fmt.Fprintf(&b, "\n📝 <b>Notas:</b> %s\n", escape(cfg.Notes))
	}
	if n := len(cfg.ChangeHistory); n > 0 {
		last := cfg.ChangeHistory[n-1]
		fmt.Fprintf(&b, "\n<b>Último cambio:</b>\nAcción: %s\nPor: %s\nFecha: %s",
			escape(last.Action), escape(last.User), last.Timestamp.In(loc).Format(dateLayout))
	}

	token := stationToken(s)
	return &view{b.String(), keyboard(
		row(
			button("🛗 Ascensores", "access_status:"+token+":elevator"),
			button("🪜 Escaleras", "access_status:"+token+":escalator"),
			button("🚪 Accesos", "access_status:"+token+":access"),
		),
		row(
			button("📜 Historial", "access_history:"+token),
			button("⚙️ Configurar", "access_config:"+token),
		),
		row(mainMenuButton),
	)}
}

func elementLine(e *accessibility.Element) string {
	return fmt.Sprintf("%s %s (%s)", statusEmoji(e.Status), e.ID, e.Status)
}

func statusMenuView(s station, cfg *accessibility.Config, category accessibility.Category) *view {
	token, cat := stationToken(s), categoryTokens[category]
	config := category.Config()
	elements := cfg.Elements(category)

	text := fmt.Sprintf("<b>%s %s - %s</b>\n\n", config.Emoji, categoryTitles[category], escape(s.Name))
	rows := [][]tgbotapi.InlineKeyboardButton{}
	if len(elements) == 0 {
		text += fmt.Sprintf("No hay %s configurados.", config.Plural)
	} else {
		text += "Selecciona un elemento o cambia el estado de todos:"
		for _, e := range elements {
			rows = append(rows, row(button(elementLine(e),
				fmt.Sprintf("access_status_update:%s:%s:%s", token, cat, e.ID))))
		}
		all := []tgbotapi.InlineKeyboardButton{}
		for _, status := range config.Statuses {
			all = append(all, button("Todos: "+category.Label(status),
				fmt.Sprintf("ac_st_set:%s:%s:all:%s", token, cat, status)))
		}
		rows = append(rows, pairs(all)...)
	}
	rows = append(rows, row(button("🔙 Atrás", "access_view:"+token), homeButton))
	return &view{text, keyboard(rows...)}
}

func elementOptionsView(s station, category accessibility.Category, e *accessibility.Element) *view {
	token, cat := stationToken(s), categoryTokens[category]
	config := category.Config()

	text := fmt.Sprintf("<b>%s</b>\n\nElemento: %s %s (%s)\nEstado actual: %s %s\n\nSelecciona el nuevo estado:",
		escape(s.Name), config.Emoji, escape(e.ID), escape(e.Name), statusEmoji(e.Status), escape(e.Status))
	options := []tgbotapi.InlineKeyboardButton{}
	for _, status := range config.Statuses {
		options = append(options, button(category.Label(status),
			fmt.Sprintf("ac_st_set:%s:%s:%s:%s", token, cat, e.ID, status)))
	}
	rows := pairs(options)
	rows = append(rows, row(button("🔙 Atrás", fmt.Sprintf("access_status:%s:%s", token, cat)), homeButton))
	return &view{text, keyboard(rows...)}
}

func statusUpdatedView(s station, category accessibility.Category, ids []string, status string, cfg *accessibility.Config, now time.Time) *view {
	text := fmt.Sprintf("✅ <b>Estado actualizado</b>\n\nEstación: %s\nElementos afectados: %s\nNuevo estado: %s %s\n\n<i>%s</i>",
		escape(s.Name), escape(strings.Join(ids, ", ")), statusEmoji(status), escape(status), escape(cfg.Summary(now)))
	return &view{text, keyboard(
		row(button("🔄 Actualizar otro", fmt.Sprintf("access_status:%s:%s", stationToken(s), categoryTokens[category]))),
		row(mainMenuButton),
	)}
}

func stationHistoryView(s station, changes []*accessibility.Change, loc *time.Location) *view {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>📜 Historial - %s</b>\n\n", escape(s.Name))
	if len(changes) == 0 {
		b.WriteString("No hay cambios registrados.")
	}
	for _, change := range changes {
		fmt.Fprintf(&b, "📅 %s\n👤 <i>%s</i>\n🔄 %s\n\n",
			change.Timestamp.In(loc).Format(dateLayout), escape(change.User), escape(change.Action))
	}
	return &view{strings.TrimSpace(b.String()), keyboard(row(button("🔙 Atrás", "access_view:"+stationToken(s)), homeButton))}
}

func globalHistoryView(changes []accessibility.StationChange, loc *time.Location) *view {
	var b strings.Builder
	b.WriteString("<b>📜 Historial global de cambios</b>\n\n")
	if len(changes) == 0 {
		b.WriteString("No hay cambios registrados.")
	}
	for _, change := range changes {
		fmt.Fprintf(&b, "🏷️ <b>%s</b> (%s)\n📅 %s\n👤 <i>%s</i>\n🔄 %s\n\n",
			escape(change.Station.Name), lineName(change.Station.Line),
			utils.FormatSpanishDate(change.Timestamp.In(loc), "2 Jan 2006, 15:04"),
			escape(change.User), escape(change.Action))
	}
	return &view{strings.TrimSpace(b.String()), keyboard(row(mainMenuButton))}
}

func configMenuView(s station, cfg *accessibility.Config) *view {
	token := stationToken(s)
	var b strings.Builder
	fmt.Fprintf(&b, "<b>⚙️ Configuración - %s</b>\n\n", escape(s.Name))
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, category := range accessibility.Categories {
		config := category.Config()
		fmt.Fprintf(&b, "%s %s: %d\n", config.Emoji, categoryTitles[category], len(cfg.Elements(category)))
		rows = append(rows, row(button(
			fmt.Sprintf("➕ Añadir %s", strings.ToLower(config.Name)),
			fmt.Sprintf("access_config_add:%s:%s", token, categoryTokens[category]))))
	}
	if cfg.Notes != "" {
		fmt.Fprintf(&b, "📝 Notas: %s\n", escape(cfg.Notes))
	}
	rows = append(rows,
		row(button("➖ Eliminar elemento", "access_config_remove:"+token)),
		row(button("📝 Editar notas", fmt.Sprintf("access_aedit_field:%s:notes", token))),
		row(button("🔙 Atrás", "access_view:"+token), homeButton),
	)
	return &view{b.String(), keyboard(rows...)}
}

func addPromptView(s station, category accessibility.Category, timeout time.Duration) *view {
	config := category.Config()
	text := fmt.Sprintf("<b>➕ Añadir %s - %s</b>\n\n"+
		"Envía los datos con el formato:\n<code>Identificador, Ubicación, Estado</code>\n\n"+
		"Ejemplo:\n<code>A1, Andén norte, %s</code>\n\n"+
		"Estados disponibles: %s\n\n⏳ Tienes %d minutos para responder.",
		strings.ToLower(config.Name), escape(s.Name), config.Default,
		strings.Join(config.Statuses, ", "), int(timeout.Minutes()))
	return &view{text, keyboard(row(cancelButton))}
}

func elementAddedView(s station, category accessibility.Category, e *accessibility.Element) *view {
	text := fmt.Sprintf("✅ <b>Elemento añadido</b>\n\nEstación: %s\nElemento: %s %s (%s)\nEstado: %s %s",
		escape(s.Name), category.Config().Emoji, escape(e.ID), escape(e.Name), statusEmoji(e.Status), escape(e.Status))
	return &view{text, keyboard(row(button("⚙️ Configuración", "access_config:"+stationToken(s))), row(mainMenuButton))}
}

func removeMenuView(s station, cfg *accessibility.Config) *view {
	token := stationToken(s)
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, category := range accessibility.Categories {
		for _, e := range cfg.Elements(category) {
			rows = append(rows, row(button(
				fmt.Sprintf("❌ %s %s (%s)", category.Config().Emoji, e.ID, e.Status),
				fmt.Sprintf("access_remove_confirm:%s:%s:%s", token, categoryTokens[category], e.ID))))
		}
	}
	text := fmt.Sprintf("<b>➖ Eliminar elemento - %s</b>\n\n", escape(s.Name))
	if len(rows) == 0 {
		text += "No hay elementos configurados."
	} else {
		text += "Selecciona el elemento a eliminar:"
	}
	rows = append(rows, row(button("🔙 Atrás", "access_config:"+token), homeButton))
	return &view{text, keyboard(rows...)}
}

func elementRemovedView(s station, category accessibility.Category, e *accessibility.Element) *view {
	text := fmt.Sprintf("✅ <b>Elemento eliminado</b>\n\nEstación: %s\nElemento: %s %s (%s)",
		escape(s.Name), category.Config().Emoji, escape(e.ID), escape(e.Name))
	return &view{text, keyboard(row(button("⚙️ Configuración", "access_config:"+stationToken(s))), row(mainMenuButton))}
}

func fieldTitle(field string) string {
	if category, ok := accessibility.ParseCategory(field); ok {
		return category.Config().Emoji + " " + categoryTitles[category]
	}
	return "📝 Notas"
}

func editFieldsView(s station) *view {
	token := stationToken(s)
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, field := range editableFields {
		rows = append(rows, row(button(fieldTitle(field), fmt.Sprintf("access_aedit_field:%s:%s", token, field))))
	}
	rows = append(rows, row(button("🔙 Atrás", editMode.back), homeButton))
	return &view{fmt.Sprintf("<b>⚙️ Configuración avanzada - %s</b>\n\nSelecciona el campo a editar:", escape(s.Name)), keyboard(rows...)}
}

func editPromptView(s station, field string, cfg *accessibility.Config, timeout time.Duration) *view {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>⚙️ Editar %s - %s</b>\n\n", fieldTitle(field), escape(s.Name))
	if category, ok := accessibility.ParseCategory(field); ok {
		current, err := json.MarshalIndent(cfg.Elements(category), "", "  ")
		if err != nil {
			current = []byte("[]")
		}
		fmt.Fprintf(&b, "Valor actual:\n<pre>%s</pre>\n\n", escape(string(current)))
		b.WriteString("Envía un arreglo JSON que reemplazará todos los elementos. Ejemplo:\n")
		b.WriteString(`<code>[{"id": "A1", "name": "Andén norte", "status": "operativa"}]</code>`)
		fmt.Fprintf(&b, "\n\nEstados disponibles: %s", strings.Join(category.Config().Statuses, ", "))
	} else {
		current := cfg.Notes
		if current == "" {
			current = "(vacío)"
		}
		fmt.Fprintf(&b, "Valor actual: %s\n\nEnvía el nuevo texto de las notas.", escape(current))
	}
	fmt.Fprintf(&b, "\n\n⏳ Tienes %d minutos para responder.", int(timeout.Minutes()))
	return &view{b.String(), keyboard(row(cancelButton))}
}

func fieldUpdatedView(s station, field string) *view {
	text := fmt.Sprintf("✅ <b>Configuración actualizada</b>\n\nEstación: %s\nCampo: %s", escape(s.Name), fieldTitle(field))
	return &view{text, keyboard(row(button("⚙️ Seguir editando", editMode.station+":"+stationToken(s))), row(mainMenuButton))}
}

func replacePromptView(timeout time.Duration) *view {
	text := "<b>🔄 Reemplazo masivo</b>\n\n" +
		"Cambia el estado de todos los elementos que tengan un valor determinado, en todas las estaciones.\n\n" +
		"Envía el reemplazo con el formato:\n<code>valor_buscar → valor_reemplazo [→ ámbito]</code>\n\n" +
		"Ejemplo:\n<code>fuera de servicio → operativa → ascensores</code>\n\n" +
		"Ámbitos: ascensores, escaleras, accesos, todos (por defecto)" +
		fmt.Sprintf("\n\n⏳ Tienes %d minutos para responder.", int(timeout.Minutes()))
	return &view{text, keyboard(row(cancelButton))}
}

func scopeDescription(categories []accessibility.Category) string {
	if len(categories) == len(accessibility.Categories) {
		return "todos"
	}
	names := make([]string, len(categories))
	for i, category := range categories {
		names[i] = category.Config().Plural
	}
	return strings.Join(names, ", ")
}

func replaceResultView(search, replace string, categories []accessibility.Category, result *accessibility.BulkResult) *view {
	text := fmt.Sprintf("✅ <b>Reemplazo completado</b>\n\nBuscado: %s\nReemplazado por: %s\nÁmbito: %s\nEstaciones afectadas: %d\nElementos actualizados: %d",
		escape(search), escape(replace), scopeDescription(categories), result.Stations, result.Elements)
	return &view{text, keyboard(row(mainMenuButton))}
}

func helpView() *view {
	text := "<b>ℹ️ Ayuda - Gestión de Accesibilidad</b>\n\n" +
		"Este módulo permite gestionar el estado de los elementos de accesibilidad en las estaciones.\n\n" +
		"<b>Funcionalidades principales:</b>\n" +
		"- Ver y actualizar estados de ascensores, escaleras y accesos\n" +
		"- Configuración detallada por estación\n" +
		"- Edición avanzada de elementos en formato JSON\n" +
		"- Reemplazo masivo de valores\n" +
		"- Historial completo de cambios\n\n" +
		"<b>Uso desde mensaje:</b>\n" +
		"<code>/accesos ver \"Los Héroes L1\"</code>\n" +
		"<code>/accesos estado \"Los Héroes L1\" ascensor A1 \"fuera de servicio\"</code>\n" +
		"<code>/accesos listar L4A</code>\n" +
		"<code>/accesos historial \"Los Héroes L1\"</code>\n" +
		"<code>/accesos aedit LH notes Acceso por calle Tucapel</code>\n" +
		"<code>/accesos replace \"fuera de servicio\" \"operativa\"</code>\n" +
		"<code>/accesos config \"Los Héroes L1\"</code>\n\n" +
		"También puedes usar los botones para navegar por todas las opciones."
	return &view{text, keyboard(row(button("🔙 Volver", "access_main")))}
}

func errorView(action string, err error) *view {
	return &view{fmt.Sprintf("❌ Error al %s: %s", action, escape(userMessage(err))),
		keyboard(row(button("🔙 Volver", "access_main")))}
}

// userMessage turns the errors users can act on into Spanish
func userMessage(err error) string {
	switch {
	case errors.Is(err, errStationNotFound):
		return "estación no encontrada"
	case errors.Is(err, accessibility.ErrElementNotFound):
		return "elemento no encontrado"
	case errors.Is(err, accessibility.ErrDuplicateElement):
		return "ya existe un elemento con ese identificador"
	case errors.Is(err, accessibility.ErrInvalidStatus):
		return "estado no válido para este tipo de elemento"
	case errors.Is(err, accessibility.ErrUnknownCategory):
		return "tipo de elemento desconocido"
	}
	return err.Error()
}
