package telegrambot

import (
	"regexp"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// HandlerFunc handles an update matched by a Router
type HandlerFunc func(update tgbotapi.Update)

type callbackRoute struct {
	pattern *regexp.Regexp
	handler HandlerFunc
}

// Router dispatches incoming updates to registered handlers.
//
// Dispatch priority:
//  1. Command handlers (exact match on command name)
//  2. Callback query handlers (regex match on callback data, in registration order)
//  3. The text handler, for non-command text messages
type Router struct {
	commands  map[string]HandlerFunc
	callbacks []callbackRoute
	text      HandlerFunc
	log       *zap.Logger
}

// NewRouter returns an empty Router
func NewRouter(log *zap.Logger) *Router {
	return &Router{
		commands: make(map[string]HandlerFunc),
		log:      log,
	}
}

// AddCommand registers a handler for a bot command ("accesos" for /accesos)
func (r *Router) AddCommand(name string, handler HandlerFunc) {
	r.commands[name] = handler
}

// AddCallbackQuery registers a handler for callback data matching pattern.
// Panics if the pattern does not compile.
func (r *Router) AddCallbackQuery(pattern string, handler HandlerFunc) {
	r.callbacks = append(r.callbacks, callbackRoute{pattern: regexp.MustCompile(pattern), handler: handler})
}

// SetTextHandler sets the handler for text messages that are not commands
func (r *Router) SetTextHandler(handler HandlerFunc) {
	r.text = handler
}

// Dispatch routes an update to the appropriate handler. Returns true if a
// handler was found and invoked.
func (r *Router) Dispatch(update tgbotapi.Update) bool {
	if update.Message != nil && update.Message.IsCommand() {
		cmd := update.Message.Command()
		if handler, ok := r.commands[cmd]; ok {
			r.log.Debug("matched command", zap.String("command", cmd))
			handler(update)
			return true
		}
		r.log.Debug("command not matched", zap.String("command", cmd))
		return false
	}

	if update.CallbackQuery != nil {
		data := update.CallbackQuery.Data
		for _, route := range r.callbacks {
			if route.pattern.MatchString(data) {
				r.log.Debug("matched callback", zap.String("pattern", route.pattern.String()), zap.String("data", data))
				route.handler(update)
				return true
			}
		}
		r.log.Debug("callback not matched", zap.String("data", data))
		return false
	}

	if update.Message != nil && update.Message.Text != "" && r.text != nil {
		r.text(update)
		return true
	}
	return false
}
