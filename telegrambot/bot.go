package telegrambot

import (
	"context"
	"regexp"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/metroinfo/metrobot/accessibility"
	"github.com/metroinfo/metrobot/types"
	cache "github.com/patrickmn/go-cache"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"
)

// sender is the part of the Bot API used to talk to users
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// StatusReader provides a recent, possibly cached, network status. It is the
// source of the station catalog.
type StatusReader interface {
	Latest(ctx context.Context) (types.Network, error)
}

// Options configures a Bot
type Options struct {
	Token string
	// AdminIDs are the Telegram user IDs allowed to edit accessibility data
	AdminIDs []int64
	// EditTimeout is how long a multi-step edit waits for the user's input
	EditTimeout time.Duration
	// CommandTimeout bounds the work done for a single update
	CommandTimeout time.Duration
	// Location is the time zone used to show dates
	Location *time.Location
}

// Bot serves the station accessibility editor over Telegram
type Bot struct {
	api      *tgbotapi.BotAPI
	sender   sender
	router   *Router
	store    *accessibility.Store
	statuses StatusReader
	options  Options
	sessions *cache.Cache
	log      *zap.Logger
	wg       sync.WaitGroup
}

// New connects to the Bot API and returns a Bot. Updates are only received
// after Start.
func New(options Options, store *accessibility.Store, statuses StatusReader, log *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(options.Token)
	if err != nil {
		return nil, err
	}
	b := newBot(api, options, store, statuses, log)
	b.api = api
	log.Info("authorized on Telegram", zap.String("username", api.Self.UserName))
	return b, nil
}

func newBot(s sender, options Options, store *accessibility.Store, statuses StatusReader, log *zap.Logger) *Bot {
	if options.EditTimeout == 0 {
		options.EditTimeout = 5 * time.Minute
	}
	if options.CommandTimeout == 0 {
		options.CommandTimeout = 30 * time.Second
	}
	if options.Location == nil {
		options.Location = time.Local
	}
	b := &Bot{
		sender:   s,
		router:   NewRouter(log),
		store:    store,
		statuses: statuses,
		options:  options,
		sessions: cache.New(options.EditTimeout, 2*options.EditTimeout),
		log:      log,
	}
	b.registerRoutes()
	return b
}

// Start begins long polling for updates
func (b *Bot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for update := range updates {
			b.HandleUpdate(update)
		}
	}()
}

// Stop stops polling and waits for the update being handled, if any
func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
	b.wg.Wait()
}

// HandleUpdate processes a single update
func (b *Bot) HandleUpdate(update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic while handling update", zap.Int("update", update.UpdateID), zap.Any("panic", r))
		}
	}()
	if !b.router.Dispatch(update) {
		b.log.Debug("update dropped", zap.Int("update", update.UpdateID))
	}
}

func (b *Bot) isAdmin(user *tgbotapi.User) bool {
	return user != nil && funk.ContainsInt64(b.options.AdminIDs, user.ID)
}

// conversation is where the answer to an update goes. Answers to callbacks
// edit the message holding the keyboard; answers to commands are new
// messages.
type conversation struct {
	ctx       context.Context
	chatID    int64
	messageID int
	user      *tgbotapi.User
}

// userString identifies a user in the change history
func (c *conversation) userString() string {
	if c.user == nil {
		return "desconocido"
	}
	return c.user.FirstName + " (" + strconv.FormatInt(c.user.ID, 10) + ")"
}

func (c *conversation) sessionKey() string {
	if c.user == nil {
		return ""
	}
	return strconv.FormatInt(c.user.ID, 10)
}

// command registers a text command restricted to admins. The handler
// receives the unparsed command arguments.
func (b *Bot) command(name string, handler func(c *conversation, arguments string)) {
	b.router.AddCommand(name, func(update tgbotapi.Update) {
		msg := update.Message
		c, cancel := b.newConversation(msg.Chat.ID, 0, msg.From)
		defer cancel()
		if !b.isAdmin(msg.From) {
			b.respond(c, &view{Text: lockedText})
			return
		}
		handler(c, msg.CommandArguments())
	})
}

// callback registers a callback query handler restricted to admins. The
// handler receives the pattern's submatches.
func (b *Bot) callback(pattern string, handler func(c *conversation, args []string)) {
	re := regexp.MustCompile(pattern)
	b.router.AddCallbackQuery(pattern, func(update tgbotapi.Update) {
		query := update.CallbackQuery
		if !b.isAdmin(query.From) {
			b.answerCallback(query.ID, lockedText)
			return
		}
		b.answerCallback(query.ID, "")
		if query.Message == nil {
			return
		}
		c, cancel := b.newConversation(query.Message.Chat.ID, query.Message.MessageID, query.From)
		defer cancel()
		handler(c, re.FindStringSubmatch(query.Data)[1:])
	})
}

func (b *Bot) newConversation(chatID int64, messageID int, user *tgbotapi.User) (*conversation, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), b.options.CommandTimeout)
	return &conversation{
		ctx:       ctx,
		chatID:    chatID,
		messageID: messageID,
		user:      user,
	}, cancel
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.sender.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.log.Warn("failed to answer callback query", zap.Error(err))
	}
}

// respond edits the conversation's message, or sends a new one when the
// conversation did not start from a keyboard
func (b *Bot) respond(c *conversation, v *view) {
	var chattable tgbotapi.Chattable
	if c.messageID != 0 {
		edit := tgbotapi.NewEditMessageText(c.chatID, c.messageID, v.Text)
		edit.ParseMode = tgbotapi.ModeHTML
		edit.ReplyMarkup = v.Keyboard
		chattable = edit
	} else {
		msg := tgbotapi.NewMessage(c.chatID, v.Text)
		msg.ParseMode = tgbotapi.ModeHTML
		if v.Keyboard != nil {
			msg.ReplyMarkup = *v.Keyboard
		}
		chattable = msg
	}
	if _, err := b.sender.Send(chattable); err != nil {
		b.log.Warn("failed to send message", zap.Int64("chat", c.chatID), zap.Error(err))
	}
}

// fail reports an error to the user and drops any edit in progress
func (b *Bot) fail(c *conversation, action string, err error) {
	b.log.Warn("accessibility command failed",
		zap.String("action", action),
		zap.String("user", c.userString()),
		zap.Error(err))
	b.clearSession(c)
	b.respond(c, errorView(action, err))
}
