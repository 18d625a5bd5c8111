package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/aescanero/dago-node-tags/internal/applications"
	"github.com/aescanero/dago-node-tags/internal/tags"
)

const (
	// messageLimit is the longest message content Discord accepts
	messageLimit = 2000
	// maxBackupSize bounds restored backup files
	maxBackupSize = 8 << 20
)

// Config holds the bot settings
type Config struct {
	Prefix string
	// Owners may manage global tags
	Owners []string
}

// Bot serves tags and applications over a Discord gateway session
type Bot struct {
	session Session
	config  Config
	tags    *tags.Service
	apps    *applications.Manager
	flow    *applications.Flow
	logger  *zap.Logger
	http    *http.Client

	botUserID string
	ctx       context.Context
	cancel    context.CancelFunc

	mu       sync.Mutex
	waiters  map[string]chan string
	applying map[string]bool
	wg       sync.WaitGroup
}

// NewBot creates a new bot. flow may be nil to disable applications.
func NewBot(
	session Session,
	cfg Config,
	service *tags.Service,
	manager *applications.Manager,
	flow *applications.Flow,
	logger *zap.Logger,
) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "!"
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{
		session:  session,
		config:   cfg,
		tags:     service,
		apps:     manager,
		flow:     flow,
		logger:   logger,
		http:     &http.Client{Timeout: 30 * time.Second},
		ctx:      ctx,
		cancel:   cancel,
		waiters:  make(map[string]chan string),
		applying: make(map[string]bool),
	}
}

// Start registers the message handler and opens the gateway connection
func (b *Bot) Start() error {
	b.session.AddHandler(b.handleMessage)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	user, err := b.session.User("@me")
	if err != nil {
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	b.botUserID = user.ID

	b.logger.Info("connected to Discord",
		zap.String("bot_user", user.Username),
		zap.String("prefix", b.config.Prefix),
	)
	return nil
}

// Stop cancels running applications and closes the connection
func (b *Bot) Stop() error {
	b.cancel()
	b.wg.Wait()
	return b.session.Close()
}

// request is one incoming message
type request struct {
	guildID     string
	channelID   string
	messageID   string
	author      *discordgo.User
	member      *discordgo.Member
	attachments []*discordgo.MessageAttachment
	// fromTag marks commands requested by a tag, which cannot run tags
	fromTag bool
	silent  bool
}

// handleMessage processes incoming Discord messages
func (b *Bot) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	if m.GuildID == "" && b.deliver(m.ChannelID, m.Content) {
		return
	}

	if !strings.HasPrefix(m.Content, b.config.Prefix) {
		return
	}

	member := m.Member
	if member != nil {
		member.User = m.Author
	}

	b.dispatch(b.ctx, &request{
		guildID:     m.GuildID,
		channelID:   m.ChannelID,
		messageID:   m.ID,
		author:      m.Author,
		member:      member,
		attachments: m.Attachments,
	}, strings.TrimPrefix(m.Content, b.config.Prefix))
}

// dispatch routes a command line without the prefix
func (b *Bot) dispatch(ctx context.Context, req *request, line string) {
	name, rest := split(line)
	if name == "" {
		return
	}

	switch strings.ToLower(name) {
	case "tag", "tags":
		b.tagCommand(ctx, req, rest)
	case "apps", "application", "applications":
		b.appsCommand(ctx, req, rest)
	case "apply":
		b.apply(req, rest)
	default:
		if !req.fromTag && req.guildID != "" {
			b.invoke(ctx, req, name, rest)
		}
	}
}

// split returns the first word of s and the trimmed remainder
func split(s string) (string, string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexAny(s, " \t\n")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx+1:])
}

// reply sends text to the request channel, split to fit
func (b *Bot) reply(req *request, text string) {
	if req.silent || text == "" {
		return
	}
	for _, chunk := range splitMessage(text, messageLimit) {
		b.send(req.channelID, &discordgo.MessageSend{
			Content:         chunk,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		})
	}
}

// replyError shows the user-facing part of err, logging the rest
func (b *Bot) replyError(req *request, action string, err error) {
	if msg := b.tags.UserMessage(err); msg != "" {
		b.reply(req, msg)
		return
	}
	b.logger.Error("command failed",
		zap.String("command", action),
		zap.String("guild_id", req.guildID),
		zap.Error(err),
	)
	b.reply(req, "Something went wrong while running that command.")
}

func (b *Bot) send(channelID string, msg *discordgo.MessageSend) *discordgo.Message {
	sent, err := b.session.ChannelMessageSendComplex(channelID, msg)
	if err != nil {
		b.logger.Warn("failed to send message",
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
		return nil
	}
	return sent
}

// isOwner reports whether the author may manage global tags
func (b *Bot) isOwner(req *request) bool {
	for _, id := range b.config.Owners {
		if id == req.author.ID {
			return true
		}
	}
	return false
}

// canManage reports whether the author may change guild tags and
// applications
func (b *Bot) canManage(req *request) bool {
	if b.isOwner(req) {
		return true
	}
	if req.guildID == "" {
		return false
	}

	perms, err := b.session.UserChannelPermissions(req.author.ID, req.channelID)
	if err != nil {
		b.logger.Warn("failed to resolve permissions",
			zap.String("user_id", req.author.ID),
			zap.Error(err),
		)
		return false
	}
	return perms&(discordgo.PermissionAdministrator|discordgo.PermissionManageServer) != 0
}

// lookup resolves the channel and guild of a request. Either may be nil
// when the session cannot resolve it.
func (b *Bot) lookup(req *request) (*discordgo.Channel, *discordgo.Guild) {
	var channel *discordgo.Channel
	if ch, err := b.session.Channel(req.channelID); err == nil {
		channel = ch
	}

	var guild *discordgo.Guild
	if req.guildID != "" {
		if g, err := b.session.Guild(req.guildID); err == nil {
			guild = g
		}
	}
	return channel, guild
}

// invoke runs the tag called name and delivers its output
func (b *Bot) invoke(ctx context.Context, req *request, name, args string) {
	channel, guild := b.lookup(req)

	member := req.member
	if member == nil {
		member = &discordgo.Member{User: req.author}
	}

	out, err := b.tags.Invoke(ctx, tags.InvokeRequest{
		GuildID: req.guildID,
		Name:    name,
		Args:    args,
		Seed:    Seed(member, channel, guild),
	})
	if err != nil {
		if !errors.Is(err, tags.ErrTagNotFound) {
			b.replyError(req, "invoke", err)
		}
		return
	}

	if out.Require != nil || out.Blacklist != nil {
		roles, err := b.session.GuildRoles(req.guildID)
		if err != nil {
			b.logger.Warn("failed to load guild roles", zap.String("guild_id", req.guildID), zap.Error(err))
		}
		if ok, response := tags.Check(out, Invoker(member, channel, roles)); !ok {
			b.reply(req, response)
			return
		}
	}

	b.deliverOutput(ctx, req, out)
}

// deliverOutput sends tag output and runs the commands it requested
func (b *Bot) deliverOutput(ctx context.Context, req *request, out *tags.Output) {
	if out.Delete && req.messageID != "" {
		if err := b.session.ChannelMessageDelete(req.channelID, req.messageID); err != nil {
			b.logger.Debug("failed to delete invoking message", zap.Error(err))
		}
	}

	if out.HasMessage() {
		msg := MessageSend(out)
		target := req.channelID

		switch out.Target {
		case "":
		case "dm":
			dm, err := b.session.UserChannelCreate(req.author.ID)
			if err != nil {
				b.logger.Warn("failed to open DM", zap.String("user_id", req.author.ID), zap.Error(err))
				return
			}
			target = dm.ID
		case "reply":
			if !out.Delete && req.messageID != "" {
				msg.Reference = &discordgo.MessageReference{MessageID: req.messageID, ChannelID: req.channelID}
			}
		default:
			ch, err := b.session.Channel(out.Target)
			if err != nil || ch.GuildID == "" || ch.GuildID != req.guildID {
				b.logger.Warn("redirect target is not a channel of this guild, replying in place",
					zap.String("guild_id", req.guildID),
					zap.String("target", out.Target),
				)
				break
			}
			target = ch.ID
		}

		b.send(target, msg)
	}

	for _, command := range out.Commands {
		sub := *req
		sub.fromTag = true
		sub.silent = out.Silent
		b.dispatch(ctx, &sub, command)
	}
}

// fetch downloads an attachment
func (b *Bot) fetch(ctx context.Context, url string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := b.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to download attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download attachment: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBackupSize))
}

// file wraps data as a message attachment
func file(name string, data []byte) *discordgo.File {
	return &discordgo.File{
		Name:        name,
		ContentType: "application/json",
		Reader:      bytes.NewReader(data),
	}
}
