package discord

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

type sentMessage struct {
	channelID string
	msg       *discordgo.MessageSend
}

type fakeSession struct {
	mu       sync.Mutex
	sent     []sentMessage
	deleted  []string
	threads  []string
	perms    map[string]int64
	channels map[string]*discordgo.Channel
	guild    *discordgo.Guild
	roles    []*discordgo.Role
	onSend   func(channelID string, msg *discordgo.MessageSend)
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		perms: make(map[string]int64),
		channels: map[string]*discordgo.Channel{
			"100": {ID: "100", Name: "general", GuildID: "200"},
			"555": {ID: "555", Name: "staff", GuildID: "200"},
			"777": {ID: "777", Name: "elsewhere", GuildID: "999"},
		},
		guild: &discordgo.Guild{ID: "200", Name: "Test Guild", MemberCount: 1234},
	}
}

func (f *fakeSession) AddHandler(interface{}) func() { return func() {} }
func (f *fakeSession) Open() error                   { return nil }
func (f *fakeSession) Close() error                  { return nil }

func (f *fakeSession) User(string, ...discordgo.RequestOption) (*discordgo.User, error) {
	return &discordgo.User{ID: "bot", Username: "tagbot"}, nil
}

func (f *fakeSession) Guild(string, ...discordgo.RequestOption) (*discordgo.Guild, error) {
	return f.guild, nil
}

func (f *fakeSession) GuildRoles(string, ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	return f.roles, nil
}

func (f *fakeSession) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, errors.New("unknown channel")
	}
	return ch, nil
}

func (f *fakeSession) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: "dm-" + recipientID, Type: discordgo.ChannelTypeDM}, nil
}

func (f *fakeSession) UserChannelPermissions(userID, _ string, _ ...discordgo.RequestOption) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perms[userID], nil
}

func (f *fakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{channelID: channelID, msg: data})
	id := fmt.Sprintf("msg-%d", len(f.sent))
	hook := f.onSend
	f.mu.Unlock()

	if hook != nil {
		hook(channelID, data)
	}
	return &discordgo.Message{ID: id, ChannelID: channelID}, nil
}

func (f *fakeSession) ChannelMessageDelete(_, messageID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeSession) MessageThreadStart(_, _ string, name string, _ int, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads = append(f.threads, name)
	return &discordgo.Channel{ID: "thread"}, nil
}

func (f *fakeSession) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeSession) contents() []string {
	var out []string
	for _, s := range f.messages() {
		out = append(out, s.msg.Content)
	}
	return out
}

func (f *fakeSession) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}
