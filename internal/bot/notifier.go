// Package bot pushes lifecycle events to a Telegram chat and answers a
// small set of status commands.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"github.com/niwla23/containerpanel/internal/docker"
	"github.com/niwla23/containerpanel/internal/model"
)

// ServerLister provides the bot's read access to servers.
type ServerLister interface {
	List() ([]model.Server, error)
}

// Engine is the subset of the engine adapter the bot needs.
type Engine interface {
	Resolve(ctx context.Context, name string) (docker.Handle, error)
	Running(ctx context.Context, h docker.Handle) (bool, error)
}

// Notifier holds the bot instance and the chat it reports to.
type Notifier struct {
	Bot     *telebot.Bot
	chatID  int64
	servers ServerLister
	engine  Engine
}

// NewNotifier initializes the Telegram bot. chatID is the chat that
// receives lifecycle event messages.
func NewNotifier(token string, chatID string, servers ServerLister, engine Engine) (*Notifier, error) {
	pref := telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := telebot.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}

	n := &Notifier{Bot: b, chatID: id, servers: servers, engine: engine}
	n.setupHandlers()
	return n, nil
}

func (n *Notifier) setupHandlers() {
	n.Bot.Handle("/start", n.handleStart)
	n.Bot.Handle("/servers", n.handleServers)
}

func (n *Notifier) handleStart(c telebot.Context) error {
	return c.Send(fmt.Sprintf("Hello %s! I will report server lifecycle events here. Use /servers for an overview.", c.Sender().FirstName))
}

// handleServers replies with every server and whether it is running.
func (n *Notifier) handleServers(c telebot.Context) error {
	servers, err := n.servers.List()
	if err != nil {
		return c.Send("failed to list servers")
	}
	if len(servers) == 0 {
		return c.Send("no servers configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var sb strings.Builder
	for _, server := range servers {
		state := "stopped"
		if handle, err := n.engine.Resolve(ctx, server.ContainerName()); err == nil {
			if running, err := n.engine.Running(ctx, handle); err == nil && running {
				state = "running"
			}
		}
		fmt.Fprintf(&sb, "%s (%s): %s\n", server.Description, server.Name, state)
	}
	return c.Send(sb.String())
}

// ServerCreated implements lifecycle.Notifier.
func (n *Notifier) ServerCreated(server *model.Server) {
	n.send(fmt.Sprintf("🆕 server %s (%s) created from template %s on port %d",
		server.Description, server.Name, server.Template, server.Port))
}

// PowerActionPerformed implements lifecycle.Notifier.
func (n *Notifier) PowerActionPerformed(server *model.Server, action docker.Action, user *model.User) {
	username := "unknown"
	if user != nil {
		username = user.Username
	}
	n.send(fmt.Sprintf("⚡ %s performed %s on server %s (%s)",
		username, action, server.Description, server.Name))
}

func (n *Notifier) send(message string) {
	go func() {
		if _, err := n.Bot.Send(telebot.ChatID(n.chatID), message); err != nil {
			log.WithError(err).Warn("failed to send telegram notification")
		}
	}()
}

// Start starts the bot poller. Blocks; run in a goroutine.
func (n *Notifier) Start() {
	n.Bot.Start()
}
