package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/clrstaff/staffbot/internal/config"
	"github.com/clrstaff/staffbot/internal/database"
	"github.com/clrstaff/staffbot/internal/discord"
)

const (
	testGuildID       = "100"
	testPanelID       = "200"
	testInfractionsID = "201"
	testPromotionsID  = "202"
	testSLTRoleID     = "300"
	testALTRoleID     = "301"
	testStaffID       = "400"
	testMemberID      = "500"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		Discord: config.DiscordConfig{
			GuildID:   testGuildID,
			FooterGIF: "https://example.com/banner.gif",
			Channels: config.ChannelsConfig{
				TicketPanel: testPanelID,
				Infractions: testInfractionsID,
				Promotions:  testPromotionsID,
			},
			ProtectedRoles: []config.ProtectedRole{
				{Name: "SLT", ID: testSLTRoleID},
				{Name: "ALT", ID: testALTRoleID},
			},
		},
		AntiPing: config.AntiPingConfig{
			Enabled:        true,
			NoticeTTL:      10 * time.Second,
			NoticeInterval: 5 * time.Second,
			Escalation: config.EscalationConfig{
				Threshold: 3,
				Window:    24 * time.Hour,
				Timeout:   10 * time.Minute,
			},
		},
		Tickets:  config.TicketsConfig{AutoArchiveMinutes: 10080},
		Sessions: config.SessionsConfig{MaxAge: 7 * 24 * time.Hour},
		Messages: config.DefaultMessages,
	}
}

func newTestDeps(t *testing.T) HandlerDeps {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "handlers.db"))
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return HandlerDeps{
		Logger:    logger,
		Config:    testConfig(),
		Store:     database.NewStore(db, logger),
		Now:       func() time.Time { return testNow },
		BotUserID: func() string { return "999" },
	}
}

func restError(status int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: status}}
}

type timeoutCall struct {
	UserID string
	Until  *time.Time
}

type sentMessage struct {
	ChannelID string
	Message   *discordgo.MessageSend
}

// fakeAPI records every call made by handlers. Errors can be injected per method
// name, e.g. errs["GuildMemberDeleteWithReason"].
type fakeAPI struct {
	mu sync.Mutex

	channels map[string]*discordgo.Channel
	members  map[string]*discordgo.Member
	guild    *discordgo.Guild
	errs     map[string]error

	responses    []*discordgo.InteractionResponse
	followups    []*discordgo.WebhookParams
	sent         []sentMessage
	deleted      []string
	edits        map[string]*discordgo.ChannelEdit
	threads      []*discordgo.ThreadStart
	threadAdds   []string
	dms          map[string][]string
	kicks        []string
	bans         map[string]int
	timeouts     []timeoutCall
	overwritten  []*discordgo.ApplicationCommand
	nextThreadID int
	nextMsgID    int
}

var _ discord.API = (*fakeAPI)(nil)

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		channels: map[string]*discordgo.Channel{
			testPanelID:       {ID: testPanelID, GuildID: testGuildID, Type: discordgo.ChannelTypeGuildText},
			testInfractionsID: {ID: testInfractionsID, GuildID: testGuildID, Type: discordgo.ChannelTypeGuildText},
			testPromotionsID:  {ID: testPromotionsID, GuildID: testGuildID, Type: discordgo.ChannelTypeGuildText},
		},
		members: make(map[string]*discordgo.Member),
		guild:   &discordgo.Guild{ID: testGuildID, Name: "CLR", OwnerID: "1"},
		errs:    make(map[string]error),
		edits:   make(map[string]*discordgo.ChannelEdit),
		dms:     make(map[string][]string),
		bans:    make(map[string]int),
	}
}

func (f *fakeAPI) err(method string) error {
	return f.errs[method]
}

func (f *fakeAPI) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	return f.err("InteractionRespond")
}

func (f *fakeAPI) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followups = append(f.followups, data)
	return &discordgo.Message{}, f.err("FollowupMessageCreate")
}

func (f *fakeAPI) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.channels[channelID]; ok {
		return ch, nil
	}
	return nil, restError(http.StatusNotFound)
}

func (f *fakeAPI) ChannelEdit(channelID string, data *discordgo.ChannelEdit, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("ChannelEdit"); err != nil {
		return nil, err
	}
	f.edits[channelID] = data
	return &discordgo.Channel{ID: channelID}, nil
}

func (f *fakeAPI) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("ChannelMessageSendComplex"); err != nil {
		return nil, err
	}
	f.nextMsgID++
	f.sent = append(f.sent, sentMessage{ChannelID: channelID, Message: data})
	if len(channelID) > 3 && channelID[:3] == "dm-" {
		f.dms[channelID[3:]] = append(f.dms[channelID[3:]], data.Content)
	}
	return &discordgo.Message{ID: fmt.Sprintf("msg-%d", f.nextMsgID), ChannelID: channelID}, nil
}

func (f *fakeAPI) ChannelMessageDelete(channelID, messageID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, channelID+"/"+messageID)
	return f.err("ChannelMessageDelete")
}

func (f *fakeAPI) ThreadStartComplex(channelID string, data *discordgo.ThreadStart, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("ThreadStartComplex"); err != nil {
		return nil, err
	}
	f.nextThreadID++
	f.threads = append(f.threads, data)
	th := &discordgo.Channel{
		ID:       fmt.Sprintf("thread-%d", f.nextThreadID),
		GuildID:  testGuildID,
		ParentID: channelID,
		Name:     data.Name,
		Type:     data.Type,
		OwnerID:  "999",
	}
	f.channels[th.ID] = th
	return th, nil
}

func (f *fakeAPI) ThreadMemberAdd(threadID, memberID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threadAdds = append(f.threadAdds, threadID+"/"+memberID)
	return f.err("ThreadMemberAdd")
}

func (f *fakeAPI) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if err := f.err("UserChannelCreate"); err != nil {
		return nil, err
	}
	return &discordgo.Channel{ID: "dm-" + recipientID, Type: discordgo.ChannelTypeDM}, nil
}

func (f *fakeAPI) Guild(guildID string, _ ...discordgo.RequestOption) (*discordgo.Guild, error) {
	if f.guild == nil || f.guild.ID != guildID {
		return nil, restError(http.StatusNotFound)
	}
	return f.guild, nil
}

func (f *fakeAPI) GuildMember(_, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.members[userID]; ok {
		return m, nil
	}
	return nil, restError(http.StatusNotFound)
}

func (f *fakeAPI) GuildMemberDeleteWithReason(_, userID, _ string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("GuildMemberDeleteWithReason"); err != nil {
		return err
	}
	f.kicks = append(f.kicks, userID)
	return nil
}

func (f *fakeAPI) GuildBanCreateWithReason(_, userID, _ string, days int, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("GuildBanCreateWithReason"); err != nil {
		return err
	}
	f.bans[userID] = days
	return nil
}

func (f *fakeAPI) GuildMemberTimeout(_, userID string, until *time.Time, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("GuildMemberTimeout"); err != nil {
		return err
	}
	f.timeouts = append(f.timeouts, timeoutCall{UserID: userID, Until: until})
	return nil
}

func (f *fakeAPI) ApplicationCommandBulkOverwrite(_, _ string, commands []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	f.overwritten = commands
	return commands, nil
}

// lastFollowup returns the content of the most recent followup, or "".
func (f *fakeAPI) lastFollowup() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.followups) == 0 {
		return ""
	}
	return f.followups[len(f.followups)-1].Content
}

// lastResponse returns the content of the most recent immediate response, or "".
func (f *fakeAPI) lastResponse() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.responses) == 0 || f.responses[len(f.responses)-1].Data == nil {
		return ""
	}
	return f.responses[len(f.responses)-1].Data.Content
}

// sentTo returns the messages sent to channelID.
func (f *fakeAPI) sentTo(channelID string) []*discordgo.MessageSend {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*discordgo.MessageSend
	for _, s := range f.sent {
		if s.ChannelID == channelID {
			out = append(out, s.Message)
		}
	}
	return out
}

var errBoom = errors.New("boom")

func staffMember() *discordgo.Member {
	return &discordgo.Member{
		GuildID:     testGuildID,
		User:        &discordgo.User{ID: testStaffID, Username: "Moderator"},
		Permissions: discordgo.PermissionKickMembers,
	}
}

func regularMember(id, username string, roles ...string) *discordgo.Member {
	return &discordgo.Member{
		GuildID: testGuildID,
		User:    &discordgo.User{ID: id, Username: username},
		Roles:   roles,
	}
}

type option struct {
	name  string
	typ   discordgo.ApplicationCommandOptionType
	value any
}

func userOpt(name, id string) option {
	return option{name, discordgo.ApplicationCommandOptionUser, id}
}

func stringOpt(name, value string) option {
	return option{name, discordgo.ApplicationCommandOptionString, value}
}

func intOpt(name string, value int) option {
	return option{name, discordgo.ApplicationCommandOptionInteger, float64(value)}
}

// slashCommand builds a guild slash command invoked by caller. Members passed in
// resolved populate the interaction's resolved data.
func slashCommand(name string, caller *discordgo.Member, opts []option, resolved ...*discordgo.Member) *discordgo.InteractionCreate {
	data := discordgo.ApplicationCommandInteractionData{Name: name}
	for _, o := range opts {
		data.Options = append(data.Options, &discordgo.ApplicationCommandInteractionDataOption{
			Name:  o.name,
			Type:  o.typ,
			Value: o.value,
		})
	}
	if len(resolved) > 0 {
		data.Resolved = &discordgo.ApplicationCommandInteractionDataResolved{
			Users:   make(map[string]*discordgo.User),
			Members: make(map[string]*discordgo.Member),
		}
		for _, m := range resolved {
			data.Resolved.Users[m.User.ID] = m.User
			member := *m
			member.User = nil
			data.Resolved.Members[m.User.ID] = &member
		}
	}
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "interaction-1",
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   testGuildID,
		ChannelID: "700",
		Member:    caller,
		Data:      data,
	}}
}

func buttonPress(customID, channelID string, caller *discordgo.Member) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "interaction-2",
		Type:      discordgo.InteractionMessageComponent,
		GuildID:   testGuildID,
		ChannelID: channelID,
		Member:    caller,
		Data:      discordgo.MessageComponentInteractionData{CustomID: customID},
	}}
}
