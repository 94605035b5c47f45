package telegrambot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	shellquote "github.com/govau/go-shellquote"
	"github.com/metroinfo/metrobot/accessibility"
	"github.com/metroinfo/metrobot/types"
	"go.uber.org/zap"
)

var (
	errStationNotFound = errors.New("station not found")
	errUnknownLine     = errors.New("línea desconocida")
	errUsage           = errors.New("faltan argumentos, consulta /accesos ayuda")
)

const categoryPattern = `(elevator|escalator|access)`

func (b *Bot) registerRoutes() {
	b.command("stationaccess", b.handleCommand)
	b.command("accesos", b.handleCommand)

	b.callback(`^access_main$`, func(c *conversation, _ []string) { b.showMainMenu(c) })
	b.callback(`^access_help$`, func(c *conversation, _ []string) { b.respond(c, helpView()) })
	b.callback(`^access_finish$`, b.finish)
	b.callback(`^access_cancel$`, b.cancel)

	b.callback(`^access_list$`, func(c *conversation, _ []string) { b.showLines(c, listMode) })
	b.callback(`^access_list_line:([a-z0-9]+)$`, func(c *conversation, args []string) { b.showLine(c, args[0], "1", listMode) })
	b.callback(`^access_list_page:(\d+):([a-z0-9]+)$`, func(c *conversation, args []string) { b.showLine(c, args[1], args[0], listMode) })
	b.callback(`^access_view:([^:]+)$`, b.withStation(b.showStation))
	b.callback(`^access_history:([^:]+)$`, b.withStation(b.showStationHistory))
	b.callback(`^access_global_history$`, func(c *conversation, _ []string) { b.showGlobalHistory(c) })

	b.callback(`^access_status:([^:]+):`+categoryPattern+`$`, b.withStation(b.showStatusMenu))
	b.callback(`^access_status_update:([^:]+):`+categoryPattern+`:(.+)$`, b.withStation(b.showElementOptions))
	b.callback(`^ac_st_set:([^:]+):`+categoryPattern+`:([^:]+):(.+)$`, b.withStation(b.setStatusFromCallback))

	b.callback(`^access_config:([^:]+)$`, b.withStation(b.showConfig))
	b.callback(`^access_config_add:([^:]+):`+categoryPattern+`$`, b.withStation(b.startAdd))
	b.callback(`^access_config_remove:([^:]+)$`, b.withStation(b.showRemoveMenu))
	b.callback(`^access_remove_confirm:([^:]+):`+categoryPattern+`:(.+)$`, b.withStation(b.removeElement))

	b.callback(`^access_aedit_start$`, func(c *conversation, _ []string) { b.showLines(c, editMode) })
	b.callback(`^access_aedit_line:([a-z0-9]+)$`, func(c *conversation, args []string) { b.showLine(c, args[0], "1", editMode) })
	b.callback(`^access_aedit_page:(\d+):([a-z0-9]+)$`, func(c *conversation, args []string) { b.showLine(c, args[1], args[0], editMode) })
	b.callback(`^access_aedit_station:([^:]+)$`, b.withStation(func(c *conversation, s station, _ []string) {
		b.respond(c, editFieldsView(s))
	}))
	b.callback(`^access_aedit_field:([^:]+):(elevators|escalators|accesses|notes)$`, b.withStation(func(c *conversation, s station, args []string) {
		b.startEdit(c, s, args[0])
	}))

	b.callback(`^access_replace_start$`, func(c *conversation, _ []string) { b.startReplace(c) })

	b.router.SetTextHandler(b.handleText)
}

// withStation resolves the station token in the first submatch. The handler
// receives the remaining submatches.
func (b *Bot) withStation(handler func(c *conversation, s station, args []string)) func(c *conversation, args []string) {
	return func(c *conversation, args []string) {
		cat, err := b.catalog(c)
		if err != nil {
			b.fail(c, "cargar estaciones", err)
			return
		}
		s, ok := cat.byToken(args[0])
		if !ok {
			b.fail(c, "buscar estación", errStationNotFound)
			return
		}
		handler(c, s, args[1:])
	}
}

func (b *Bot) catalog(c *conversation) (*catalog, error) {
	network, err := b.statuses.Latest(c.ctx)
	if err != nil {
		return nil, err
	}
	return newCatalog(network), nil
}

// categoryFromToken parses the category of callback data. Patterns only let
// valid tokens through.
func categoryFromToken(token string) accessibility.Category {
	category, _ := accessibility.ParseCategory(token)
	return category
}

func (b *Bot) showMainMenu(c *conversation) {
	b.clearSession(c)
	b.respond(c, mainMenuView())
}

func (b *Bot) finish(c *conversation, _ []string) {
	b.clearSession(c)
	b.respond(c, finishedView())
}

func (b *Bot) cancel(c *conversation, _ []string) {
	b.showMainMenu(c)
}

func (b *Bot) showLines(c *conversation, mode browseMode) {
	cat, err := b.catalog(c)
	if err != nil {
		b.fail(c, "listar estaciones", err)
		return
	}
	b.respond(c, lineListView(cat, mode))
}

func (b *Bot) showLine(c *conversation, lineArg, pageArg string, mode browseMode) {
	line, ok := types.ParseLineID(lineArg)
	if !ok {
		b.fail(c, "listar estaciones", errUnknownLine)
		return
	}
	page, err := strconv.Atoi(pageArg)
	if err != nil {
		page = 1
	}
	cat, err := b.catalog(c)
	if err != nil {
		b.fail(c, "listar estaciones", err)
		return
	}
	b.respond(c, stationPageView(cat, line, page, mode))
}

func (b *Bot) showStation(c *conversation, s station, _ []string) {
	cfg, err := b.store.Get(c.ctx, s.ref())
	if err != nil {
		b.fail(c, "mostrar estación", err)
		return
	}
	b.respond(c, stationView(s, cfg, b.options.Location))
}

func (b *Bot) showStationHistory(c *conversation, s station, _ []string) {
	changes, err := b.store.History(c.ctx, s.ref(), stationHistoryLength)
	if err != nil {
		b.fail(c, "mostrar historial", err)
		return
	}
	b.respond(c, stationHistoryView(s, changes, b.options.Location))
}

func (b *Bot) showGlobalHistory(c *conversation) {
	changes, err := b.store.GlobalHistory(c.ctx, globalHistoryLength)
	if err != nil {
		b.fail(c, "mostrar historial global", err)
		return
	}
	b.respond(c, globalHistoryView(changes, b.options.Location))
}

func (b *Bot) showStatusMenu(c *conversation, s station, args []string) {
	cfg, err := b.store.Get(c.ctx, s.ref())
	if err != nil {
		b.fail(c, "mostrar estados", err)
		return
	}
	b.respond(c, statusMenuView(s, cfg, categoryFromToken(args[0])))
}

func (b *Bot) showElementOptions(c *conversation, s station, args []string) {
	category := categoryFromToken(args[0])
	cfg, err := b.store.Get(c.ctx, s.ref())
	if err != nil {
		b.fail(c, "mostrar elemento", err)
		return
	}
	e := cfg.Element(category, args[1])
	if e == nil {
		b.fail(c, "mostrar elemento", accessibility.ErrElementNotFound)
		return
	}
	b.respond(c, elementOptionsView(s, category, e))
}

func (b *Bot) setStatusFromCallback(c *conversation, s station, args []string) {
	b.setStatus(c, s, categoryFromToken(args[0]), args[1], args[2])
}

func (b *Bot) setStatus(c *conversation, s station, category accessibility.Category, scope, status string) {
	updated, err := b.store.SetStatus(c.ctx, s.ref(), category, scope, status, c.userString())
	if err != nil {
		b.fail(c, "actualizar estado", err)
		return
	}
	cfg, err := b.store.Get(c.ctx, s.ref())
	if err != nil {
		b.fail(c, "actualizar estado", err)
		return
	}
	b.respond(c, statusUpdatedView(s, category, updated, status, cfg, b.store.Now().In(b.options.Location)))
}

func (b *Bot) showConfig(c *conversation, s station, _ []string) {
	cfg, err := b.store.Get(c.ctx, s.ref())
	if err != nil {
		b.fail(c, "mostrar configuración", err)
		return
	}
	b.respond(c, configMenuView(s, cfg))
}

func (b *Bot) startAdd(c *conversation, s station, args []string) {
	category := categoryFromToken(args[0])
	b.setSession(c, &editSession{Kind: sessionAddElement, Station: s, Category: category})
	b.respond(c, addPromptView(s, category, b.options.EditTimeout))
}

func (b *Bot) showRemoveMenu(c *conversation, s station, _ []string) {
	cfg, err := b.store.Get(c.ctx, s.ref())
	if err != nil {
		b.fail(c, "mostrar elementos", err)
		return
	}
	b.respond(c, removeMenuView(s, cfg))
}

func (b *Bot) removeElement(c *conversation, s station, args []string) {
	category := categoryFromToken(args[0])
	removed, err := b.store.RemoveElement(c.ctx, s.ref(), category, args[1], c.userString())
	if err != nil {
		b.fail(c, "eliminar elemento", err)
		return
	}
	b.respond(c, elementRemovedView(s, category, removed))
}

func (b *Bot) startEdit(c *conversation, s station, field string) {
	cfg, err := b.store.Get(c.ctx, s.ref())
	if err != nil {
		b.fail(c, "editar configuración", err)
		return
	}
	b.setSession(c, &editSession{Kind: sessionEditField, Station: s, Field: field})
	b.respond(c, editPromptView(s, field, cfg, b.options.EditTimeout))
}

func (b *Bot) startReplace(c *conversation) {
	b.setSession(c, &editSession{Kind: sessionReplace})
	b.respond(c, replacePromptView(b.options.EditTimeout))
}

func (b *Bot) bulkReplace(c *conversation, input string) {
	search, replace, categories, err := accessibility.ParseReplaceInput(input)
	if err != nil {
		b.fail(c, "realizar reemplazo", err)
		return
	}
	result, err := b.store.BulkReplace(c.ctx, search, replace, categories, c.userString())
	if err != nil {
		b.fail(c, "realizar reemplazo", err)
		return
	}
	b.respond(c, replaceResultView(search, replace, categories, result))
}

// handleText receives the input of a multi-step edit. Messages from users
// without an edit in progress are ignored.
func (b *Bot) handleText(update tgbotapi.Update) {
	msg := update.Message
	if !b.isAdmin(msg.From) {
		return
	}
	c, cancel := b.newConversation(msg.Chat.ID, 0, msg.From)
	defer cancel()
	session, ok := b.session(c)
	if !ok {
		return
	}
	input := strings.TrimSpace(msg.Text)
	b.log.Debug("edit session input", zap.String("user", c.userString()), zap.Int("kind", int(session.Kind)))

	switch session.Kind {
	case sessionAddElement:
		element, err := accessibility.ParseElementInput(input)
		if err != nil {
			b.fail(c, "añadir elemento", err)
			return
		}
		if err := b.store.AddElement(c.ctx, session.Station.ref(), session.Category, element, c.userString()); err != nil {
			b.fail(c, "añadir elemento", err)
			return
		}
		b.clearSession(c)
		b.respond(c, elementAddedView(session.Station, session.Category, element))
	case sessionEditField:
		if err := b.applyEdit(c, session.Station, session.Field, input); err != nil {
			b.fail(c, "editar configuración", err)
			return
		}
		b.clearSession(c)
		b.respond(c, fieldUpdatedView(session.Station, session.Field))
	case sessionReplace:
		b.clearSession(c)
		b.bulkReplace(c, input)
	}
}

func (b *Bot) applyEdit(c *conversation, s station, field, input string) error {
	category, ok := accessibility.ParseCategory(field)
	if !ok {
		return b.store.SetNotes(c.ctx, s.ref(), input, c.userString())
	}
	elements, err := accessibility.ParseElementsJSON(input)
	if err != nil {
		return err
	}
	return b.store.ReplaceElements(c.ctx, s.ref(), category, elements, c.userString())
}

// handleCommand serves /accesos and /stationaccess. Without arguments it
// opens the main menu.
func (b *Bot) handleCommand(c *conversation, arguments string) {
	arguments = strings.TrimSpace(arguments)
	if arguments == "" {
		b.showMainMenu(c)
		return
	}
	sub, rest := arguments, ""
	if i := strings.IndexFunc(arguments, unicode.IsSpace); i >= 0 {
		sub, rest = arguments[:i], strings.TrimSpace(arguments[i:])
	}

	switch strings.ToLower(sub) {
	case "ver", "view":
		if s, ok := b.resolveStation(c, rest, "mostrar estación"); ok {
			b.showStation(c, s, nil)
		}
	case "estado", "status":
		b.statusCommand(c, rest)
	case "listar", "list":
		if rest == "" {
			b.showLines(c, listMode)
		} else {
			b.showLine(c, rest, "1", listMode)
		}
	case "historial", "history":
		if rest == "" {
			b.showGlobalHistory(c)
		} else if s, ok := b.resolveStation(c, rest, "mostrar historial"); ok {
			b.showStationHistory(c, s, nil)
		}
	case "aedit":
		b.editCommand(c, rest)
	case "reemplazar", "replace":
		b.replaceCommand(c, rest)
	case "config":
		if s, ok := b.resolveStation(c, rest, "mostrar configuración"); ok {
			b.showConfig(c, s, nil)
		}
	case "ayuda", "help":
		b.respond(c, helpView())
	default:
		help := helpView()
		help.Text = fmt.Sprintf("❓ Subcomando desconocido: <code>%s</code>\n\n%s", escape(sub), help.Text)
		b.respond(c, help)
	}
}

// resolveStation finds the station named by shell-quoted user input. When the
// input is ambiguous the user is asked to pick one.
func (b *Bot) resolveStation(c *conversation, input, action string) (station, bool) {
	words, err := shellquote.Split(input)
	if err != nil {
		b.fail(c, action, err)
		return station{}, false
	}
	if len(words) == 0 {
		b.fail(c, action, errUsage)
		return station{}, false
	}
	cat, err := b.catalog(c)
	if err != nil {
		b.fail(c, action, err)
		return station{}, false
	}
	matches := cat.find(strings.Join(words, " "))
	switch len(matches) {
	case 0:
		b.fail(c, action, errStationNotFound)
		return station{}, false
	case 1:
		return matches[0], true
	}
	b.respond(c, matchesView(matches))
	return station{}, false
}

// statusCommand handles `estado <estación> <tipo> <id|all> <estado>`
func (b *Bot) statusCommand(c *conversation, input string) {
	words, err := shellquote.Split(input)
	if err != nil || len(words) < 4 {
		b.fail(c, "actualizar estado", errUsage)
		return
	}
	category, ok := accessibility.ParseCategory(words[1])
	if !ok {
		b.fail(c, "actualizar estado", accessibility.ErrUnknownCategory)
		return
	}
	scope := words[2]
	if strings.EqualFold(scope, "todos") || strings.EqualFold(scope, "all") {
		scope = "all"
	}
	s, ok := b.resolveStation(c, shellquote.Join(words[0]), "actualizar estado")
	if !ok {
		return
	}
	b.setStatus(c, s, category, scope, strings.Join(words[3:], " "))
}

// editCommand handles `aedit <estación> <campo>`, which opens the editor for
// one field of a station
func (b *Bot) editCommand(c *conversation, input string) {
	words, err := shellquote.Split(input)
	if err != nil || len(words) < 2 {
		b.fail(c, "editar configuración", errUsage)
		return
	}
	field := strings.ToLower(words[len(words)-1])
	if category, ok := accessibility.ParseCategory(field); ok {
		field = string(category)
	} else if field != "notes" && field != "notas" {
		b.fail(c, "editar configuración", accessibility.ErrUnknownCategory)
		return
	} else {
		field = "notes"
	}
	s, ok := b.resolveStation(c, shellquote.Join(words[:len(words)-1]...), "editar configuración")
	if !ok {
		return
	}
	b.startEdit(c, s, field)
}

// replaceCommand handles both `replace buscar → reemplazo [→ ámbito]` and the
// shell-quoted `replace "buscar" "reemplazo" [ámbito]`
func (b *Bot) replaceCommand(c *conversation, input string) {
	if strings.Contains(input, "→") || strings.Contains(input, "->") {
		b.bulkReplace(c, input)
		return
	}
	words, err := shellquote.Split(input)
	if err != nil || len(words) < 2 || len(words) > 3 {
		b.fail(c, "realizar reemplazo", errUsage)
		return
	}
	b.bulkReplace(c, strings.Join(words, " → "))
}
