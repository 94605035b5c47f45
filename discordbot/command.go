package discordbot

import (
	"errors"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	shellquote "github.com/govau/go-shellquote"
)

// Privilege indicates the privilege of a user interacting with the bot, in
// order to restrict access to commands
type Privilege int

const (
	// EveryonePrivilege commands can be used by anyone
	EveryonePrivilege Privilege = iota
	// AdminPrivilege commands can be used by the bot owner, by anyone in the
	// special admin channel or by whoever passes the library's admin check
	AdminPrivilege
	// RootPrivilege commands can only be used by the bot owner
	RootPrivilege
)

// Reasons for refusing to run a command
var (
	ErrGuildOnly     = errors.New("command can only be used in a guild")
	ErrAdminRequired = errors.New("command requires admin privilege")
	ErrRootRequired  = errors.New("command requires the bot owner")
)

// CommandContext is what a CommandHandler gets to work with
type CommandContext struct {
	Session *discordgo.Session
	Message *discordgo.MessageCreate
	// Path holds the names of the command and subcommands that were matched
	Path []string
	// Args holds the arguments following the matched path
	Args []string
}

// CommandHandler is a function capable of handling a bot commmand
type CommandHandler func(c *CommandContext)

// Command represents a bot command. The first argument selects one of the
// Subcommands when it matches its name or one of its aliases; otherwise
// Handler runs with every argument.
type Command struct {
	Name             string
	Aliases          []string
	Usage            string
	RequirePrivilege Privilege
	GuildOnly        bool
	Handler          CommandHandler
	Subcommands      []Command
}

// NewCommand returns a new Command with the specified name and handler
func NewCommand(name string, handler CommandHandler) Command {
	return Command{
		Name:             name,
		RequirePrivilege: EveryonePrivilege,
		Handler:          handler,
	}
}

// WithRequirePrivilege sets the minimum privilege to use a command and returns
// the modified copy
func (c Command) WithRequirePrivilege(privilege Privilege) Command {
	c.RequirePrivilege = privilege
	return c
}

// WithAliases adds alternative names and returns the modified copy
func (c Command) WithAliases(aliases ...string) Command {
	c.Aliases = append(c.Aliases, aliases...)
	return c
}

// WithUsage sets the argument summary shown in the help and returns the
// modified copy
func (c Command) WithUsage(usage string) Command {
	c.Usage = usage
	return c
}

// InGuildOnly restricts the command to guild channels and returns the
// modified copy
func (c Command) InGuildOnly() Command {
	c.GuildOnly = true
	return c
}

// WithSubcommands adds subcommands and returns the modified copy
func (c Command) WithSubcommands(subcommands ...Command) Command {
	c.Subcommands = append(c.Subcommands, subcommands...)
	return c
}

func (c Command) matches(name string) bool {
	if strings.EqualFold(c.Name, name) {
		return true
	}
	for _, alias := range c.Aliases {
		if strings.EqualFold(alias, name) {
			return true
		}
	}
	return false
}

// resolve descends into the subcommands named by args
func (c Command) resolve(args []string) (Command, []string, []string) {
	path := []string{c.Name}
	for len(args) > 0 {
		found := false
		for _, sub := range c.Subcommands {
			if sub.matches(args[0]) {
				c, args, found = sub, args[1:], true
				path = append(path, sub.Name)
				break
			}
		}
		if !found {
			break
		}
	}
	return c, path, args
}

// MessageHandler is something that reacts to chat messages, such as a
// CommandLibrary. HandleMessage returns true when no other handler should see
// the message.
type MessageHandler interface {
	HandleMessage(s *discordgo.Session, m *discordgo.MessageCreate) bool
	MessagesHandled() int
	MessagesActedUpon() int
	Name() string
}

// AdminCheck decides whether the author of a message has administrative rights
type AdminCheck func(s *discordgo.Session, m *discordgo.MessageCreate) bool

// RefusalHandler is called when a matched command can't be used by the
// author of a message
type RefusalHandler func(s *discordgo.Session, m *discordgo.MessageCreate, reason error)

// CommandLibrary handles a set of commands
type CommandLibrary struct {
	mu             sync.Mutex
	commands       []Command
	prefix         string
	adminChannelID string
	botOwnerUserID string
	adminCheck     AdminCheck
	onRefused      RefusalHandler
	handledCount   int
	actedUponCount int
}

// NewCommandLibrary returns a new CommandLibrary with the specified prefix
func NewCommandLibrary(prefix, botOwnerUserID string) *CommandLibrary {
	return &CommandLibrary{
		prefix:         prefix,
		botOwnerUserID: botOwnerUserID,
	}
}

// WithAdminChannel sets the admin channel for this command library (used with
// AdminPrivilege)
func (l *CommandLibrary) WithAdminChannel(channelID string) *CommandLibrary {
	l.adminChannelID = channelID
	return l
}

// WithAdminCheck sets an additional check granting AdminPrivilege
func (l *CommandLibrary) WithAdminCheck(check AdminCheck) *CommandLibrary {
	l.adminCheck = check
	return l
}

// WithRefusalHandler sets the function told about refused commands. Without
// one, refused commands are silently ignored.
func (l *CommandLibrary) WithRefusalHandler(handler RefusalHandler) *CommandLibrary {
	l.onRefused = handler
	return l
}

// Prefix returns the prefix of the CommandLibrary
func (l *CommandLibrary) Prefix() string {
	return l.prefix
}

// Register registers a command in the library, replacing an existing command
// with the same name, if one exists
func (l *CommandLibrary) Register(command Command) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.commands {
		if l.commands[i].Name == command.Name {
			l.commands[i] = command
			return
		}
	}
	l.commands = append(l.commands, command)
}

func (l *CommandLibrary) lookup(name string) (Command, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, command := range l.commands {
		if command.matches(name) {
			return command, true
		}
	}
	return Command{}, false
}

// HandleMessage attempts to handle the provided message; if it fails, it returns false
func (l *CommandLibrary) HandleMessage(s *discordgo.Session, m *discordgo.MessageCreate) bool {
	l.mu.Lock()
	l.handledCount++
	l.mu.Unlock()

	args, err := shellquote.Split(m.Content)
	if err != nil || len(args) == 0 || !strings.HasPrefix(args[0], l.prefix) {
		return false
	}

	top, present := l.lookup(strings.TrimPrefix(args[0], l.prefix))
	if !present {
		return false
	}
	command, path, rest := top.resolve(args[1:])

	if reason := l.refusal(s, m, command); reason != nil {
		if l.onRefused == nil {
			return false
		}
		l.onRefused(s, m, reason)
		return true
	}

	if command.Handler != nil {
		command.Handler(&CommandContext{Session: s, Message: m, Path: path, Args: rest})
	}
	l.mu.Lock()
	l.actedUponCount++
	l.mu.Unlock()
	return true
}

func (l *CommandLibrary) refusal(s *discordgo.Session, m *discordgo.MessageCreate, command Command) error {
	if command.GuildOnly && m.GuildID == "" {
		return ErrGuildOnly
	}
	switch command.RequirePrivilege {
	case AdminPrivilege:
		if !l.isAdmin(s, m) {
			return ErrAdminRequired
		}
	case RootPrivilege:
		if m.Author.ID != l.botOwnerUserID {
			return ErrRootRequired
		}
	}
	return nil
}

// Help lists the usage of a registered command and its subcommands, one per
// line
func (l *CommandLibrary) Help(name string) string {
	command, present := l.lookup(name)
	if !present {
		return ""
	}
	lines := []string{}
	var walk func(c Command, path string)
	walk = func(c Command, path string) {
		if len(c.Subcommands) == 0 || c.Usage != "" {
			line := "`" + path
			if c.Usage != "" {
				line += " " + c.Usage
			}
			lines = append(lines, line+"`")
		}
		for _, sub := range c.Subcommands {
			walk(sub, path+" "+sub.Name)
		}
	}
	walk(command, l.prefix+command.Name)
	return strings.Join(lines, "\n")
}

// MessagesHandled returns the number of messages handled by this CommandLibrary
func (l *CommandLibrary) MessagesHandled() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handledCount
}

// MessagesActedUpon returns the number of messages acted upon by this CommandLibrary
func (l *CommandLibrary) MessagesActedUpon() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.actedUponCount
}

// Name returns the name of this message handler
func (l *CommandLibrary) Name() string {
	prefix := l.prefix
	if len(prefix) == 0 {
		prefix = "sin prefijo"
	}
	return "CommandLibrary (" + prefix + ")"
}

func (l *CommandLibrary) isAdmin(s *discordgo.Session, m *discordgo.MessageCreate) bool {
	switch {
	case m.Author.ID == l.botOwnerUserID:
		return true
	case l.adminChannelID != "" && m.ChannelID == l.adminChannelID:
		return true
	case l.adminCheck != nil:
		return l.adminCheck(s, m)
	}
	return false
}
