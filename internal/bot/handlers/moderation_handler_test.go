package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/clrstaff/staffbot/internal/database"
	"github.com/clrstaff/staffbot/internal/discord"
)

func TestModerationCommands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		command      string
		handler      func(HandlerDeps) discord.HandlerFunc
		opts         []option
		wantFollowup string
		wantKind     database.InfractionKind
		wantTitle    string
		wantDM       string
		check        func(t *testing.T, api *fakeAPI, inf *database.Infraction)
	}{
		{
			name:         "warn",
			command:      "warn",
			handler:      NewWarnHandler,
			opts:         []option{userOpt("member", testMemberID), stringOpt("reason", "spam")},
			wantFollowup: "Warned <@500>.",
			wantKind:     database.InfractionWarn,
			wantTitle:    "⚠️ Warning Issued",
			wantDM:       "You have been **warned** in **CLR**. Reason: spam",
		},
		{
			name:         "kick",
			command:      "kick",
			handler:      NewKickHandler,
			opts:         []option{userOpt("member", testMemberID)},
			wantFollowup: "Kicked <@500>.",
			wantKind:     database.InfractionKick,
			wantTitle:    "👟 Member Kicked",
			wantDM:       "You were **kicked** from **CLR**. Reason: No reason provided",
			check: func(t *testing.T, api *fakeAPI, inf *database.Infraction) {
				if len(api.kicks) != 1 || api.kicks[0] != testMemberID {
					t.Errorf("kicks = %v", api.kicks)
				}
			},
		},
		{
			name:         "ban",
			command:      "ban",
			handler:      NewBanHandler,
			opts:         []option{userOpt("member", testMemberID), stringOpt("reason", "raid"), intOpt("delete_message_days", 3)},
			wantFollowup: "Banned <@500>.",
			wantKind:     database.InfractionBan,
			wantTitle:    "🔨 Member Banned",
			wantDM:       "You were **banned** from **CLR**. Reason: raid",
			check: func(t *testing.T, api *fakeAPI, inf *database.Infraction) {
				if days, ok := api.bans[testMemberID]; !ok || days != 3 {
					t.Errorf("ban days = %d (banned %v), want 3", days, ok)
				}
				if inf.DeleteMessageDays != 3 {
					t.Errorf("recorded delete days = %d, want 3", inf.DeleteMessageDays)
				}
				fields := api.sentTo(testInfractionsID)[0].Embeds[0].Fields
				if len(fields) != 2 || fields[1].Name != "Deleted Message Days" || fields[1].Value != "3" {
					t.Errorf("ban log fields = %+v", fields)
				}
			},
		},
		{
			name:         "timeout",
			command:      "timeout",
			handler:      NewTimeoutHandler,
			opts:         []option{userOpt("member", testMemberID), intOpt("minutes", 30)},
			wantFollowup: "Timed out <@500> for 30 minute(s).",
			wantKind:     database.InfractionTimeout,
			wantTitle:    "⏳ Member Timed Out",
			check: func(t *testing.T, api *fakeAPI, inf *database.Infraction) {
				want := testNow.Add(30 * time.Minute)
				if len(api.timeouts) != 1 || api.timeouts[0].Until == nil || !api.timeouts[0].Until.Equal(want) {
					t.Fatalf("timeouts = %+v, want until %v", api.timeouts, want)
				}
				if inf.DurationMinutes != 30 || !inf.ExpiresAt.Valid || !inf.ExpiresAt.Time.Equal(want) {
					t.Errorf("recorded timeout = %+v", inf)
				}
				fields := api.sentTo(testInfractionsID)[0].Embeds[0].Fields
				if len(fields) != 2 || fields[1].Name != "Until" || fields[1].Value != discord.Timestamp(want, "F") {
					t.Errorf("timeout log fields = %+v", fields)
				}
				if len(api.dms) != 0 {
					t.Errorf("timeout sent DMs: %v", api.dms)
				}
			},
		},
		{
			name:         "cleartimeout",
			command:      "cleartimeout",
			handler:      NewClearTimeoutHandler,
			opts:         []option{userOpt("member", testMemberID)},
			wantFollowup: "Cleared timeout for <@500>.",
			wantKind:     database.InfractionClearTimeout,
			wantTitle:    "✅ Timeout Cleared",
			check: func(t *testing.T, api *fakeAPI, inf *database.Infraction) {
				if len(api.timeouts) != 1 || api.timeouts[0].Until != nil {
					t.Errorf("timeouts = %+v, want one clear", api.timeouts)
				}
				if inf.Reason != "Cleared by Moderator" {
					t.Errorf("reason = %q", inf.Reason)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			deps := newTestDeps(t)
			api := newFakeAPI()
			ctx := context.Background()
			target := regularMember(testMemberID, "Target")

			tc.handler(deps)(ctx, api, slashCommand(tc.command, staffMember(), tc.opts, target))

			if got := api.lastFollowup(); got != tc.wantFollowup {
				t.Errorf("followup = %q, want %q", got, tc.wantFollowup)
			}

			logs := api.sentTo(testInfractionsID)
			if len(logs) != 1 {
				t.Fatalf("infraction logs = %d, want 1", len(logs))
			}
			em := logs[0].Embeds[0]
			if em.Title != tc.wantTitle {
				t.Errorf("log title = %q, want %q", em.Title, tc.wantTitle)
			}
			if em.Image == nil || em.Image.URL != deps.Config.Discord.FooterGIF {
				t.Errorf("log image = %+v, want footer gif", em.Image)
			}
			if em.Author == nil || em.Author.Name != "Moderator" {
				t.Errorf("log author = %+v", em.Author)
			}
			if em.Thumbnail == nil || em.Thumbnail.URL == "" {
				t.Error("log has no target thumbnail")
			}

			if tc.wantDM != "" {
				if dms := api.dms[testMemberID]; len(dms) != 1 || dms[0] != tc.wantDM {
					t.Errorf("DMs = %q, want %q", dms, tc.wantDM)
				}
			}

			infs, err := deps.Store.ListInfractions(ctx, testGuildID, testMemberID, 0)
			if err != nil || len(infs) != 1 {
				t.Fatalf("ListInfractions() = %d, %v; want 1", len(infs), err)
			}
			if infs[0].Kind != tc.wantKind || infs[0].ModeratorID != testStaffID || infs[0].Automated {
				t.Errorf("recorded infraction = %+v", infs[0])
			}
			if tc.check != nil {
				tc.check(t, api, infs[0])
			}
		})
	}
}

func TestModerationForbidden(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		method  string
		handler func(HandlerDeps) discord.HandlerFunc
		opts    []option
		want    string
	}{
		{"kick", "GuildMemberDeleteWithReason", NewKickHandler, nil, "I don't have permission to kick this member."},
		{"ban", "GuildBanCreateWithReason", NewBanHandler, nil, "I don't have permission to ban this member."},
		{"timeout", "GuildMemberTimeout", NewTimeoutHandler, []option{intOpt("minutes", 5)}, "I don't have permission to timeout this member."},
		{"cleartimeout", "GuildMemberTimeout", NewClearTimeoutHandler, nil, "I don't have permission to clear timeout."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			deps := newTestDeps(t)
			api := newFakeAPI()
			api.errs[tc.method] = restError(http.StatusForbidden)
			opts := append([]option{userOpt("member", testMemberID)}, tc.opts...)

			tc.handler(deps)(context.Background(), api, slashCommand(tc.name, staffMember(), opts, regularMember(testMemberID, "Target")))

			if got := api.lastFollowup(); got != tc.want {
				t.Errorf("followup = %q, want %q", got, tc.want)
			}
			if logs := api.sentTo(testInfractionsID); len(logs) != 0 {
				t.Errorf("infraction logged despite failure")
			}
			infs, _ := deps.Store.ListInfractions(context.Background(), testGuildID, testMemberID, 0)
			if len(infs) != 0 {
				t.Errorf("infraction recorded despite failure: %+v", infs)
			}
		})
	}
}

func TestModerationTargetNotMember(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(t)
	api := newFakeAPI()

	NewWarnHandler(deps)(context.Background(), api, slashCommand("warn", staffMember(), []option{userOpt("member", "404")}))

	if got := api.lastFollowup(); got != "That user is not a member of this server." {
		t.Errorf("followup = %q", got)
	}
}

func TestModerationTargetFallsBackToREST(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(t)
	api := newFakeAPI()
	api.members[testMemberID] = regularMember(testMemberID, "Target")

	NewWarnHandler(deps)(context.Background(), api, slashCommand("warn", staffMember(), []option{userOpt("member", testMemberID)}))

	if got := api.lastFollowup(); got != "Warned <@500>." {
		t.Errorf("followup = %q", got)
	}
}

func TestTimeoutRange(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(t)
	for _, minutes := range []int{0, 40321} {
		api := newFakeAPI()
		NewTimeoutHandler(deps)(context.Background(), api, slashCommand("timeout", staffMember(),
			[]option{userOpt("member", testMemberID), intOpt("minutes", minutes)}, regularMember(testMemberID, "Target")))

		if got := api.lastFollowup(); got != "Minutes must be between 1 and 40320." {
			t.Errorf("minutes=%d: followup = %q", minutes, got)
		}
		if len(api.timeouts) != 0 {
			t.Errorf("minutes=%d: member was timed out", minutes)
		}
	}
}

func TestInfractionsCommand(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(t)
	api := newFakeAPI()
	ctx := context.Background()
	target := regularMember(testMemberID, "Target")
	cmd := func() {
		NewInfractionsHandler(deps)(ctx, api, slashCommand("infractions", staffMember(), []option{userOpt("member", testMemberID)}, target))
	}

	cmd()
	if got := api.lastFollowup(); got != "No infractions recorded for <@500>." {
		t.Errorf("empty followup = %q", got)
	}

	NewWarnHandler(deps)(ctx, api, slashCommand("warn", staffMember(), []option{userOpt("member", testMemberID), stringOpt("reason", "first")}, target))
	if err := deps.Store.SaveInfraction(ctx, &database.Infraction{
		GuildID: testGuildID, UserID: testMemberID, ModeratorID: "999", Kind: database.InfractionTimeout,
		Reason: "Automated: repeated protected role pings", DurationMinutes: 10, Automated: true, CreatedAt: testNow.Add(time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	cmd()
	last := api.followups[len(api.followups)-1]
	if len(last.Embeds) != 1 {
		t.Fatalf("followup embeds = %d, want 1", len(last.Embeds))
	}
	desc := last.Embeds[0].Description
	for _, want := range []string{"last 2 infraction(s)", "**Timeout**", "(automated)", "for 10 minute(s)", "**Warning**", "by <@400>", "> first"} {
		if !strings.Contains(desc, want) {
			t.Errorf("description missing %q:\n%s", want, desc)
		}
	}
	if strings.Index(desc, "**Timeout**") > strings.Index(desc, "**Warning**") {
		t.Error("infractions not listed newest first")
	}
}

func TestAuditReasonCountsCharacters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		reason string
		want   int
	}{
		{"short", "spam", 4},
		{"ascii at limit", strings.Repeat("a", 512), 512},
		{"ascii over limit", strings.Repeat("a", 600), 512},
		{"multibyte at limit", strings.Repeat("é", 512), 512},
		{"multibyte over limit", strings.Repeat("日", 700), 512},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := auditReason(tc.reason)
			if n := utf8.RuneCountInString(got); n != tc.want {
				t.Errorf("auditReason() = %d characters, want %d", n, tc.want)
			}
			if !utf8.ValidString(got) {
				t.Error("auditReason() produced invalid UTF-8")
			}
		})
	}
}

func TestFormatInfractionsFitsEmbed(t *testing.T) {
	t.Parallel()

	infractions := make([]*database.Infraction, 0, infractionsPageSize)
	for n := range infractionsPageSize {
		infractions = append(infractions, &database.Infraction{
			ID:              uint(n + 1),
			ModeratorID:     "123456789012345678",
			Kind:            database.InfractionTimeout,
			Reason:          strings.Repeat("é", 512),
			DurationMinutes: 40320,
			CreatedAt:       testNow,
		})
	}

	list, shown := formatInfractions(infractions, maxEmbedDescription-infractionsHeaderCap)
	desc := "Showing the last 10 infraction(s) for <@123456789012345678>.\n\n" + list
	if n := utf8.RuneCountInString(desc); n > maxEmbedDescription {
		t.Errorf("description = %d characters, limit %d", n, maxEmbedDescription)
	}
	if shown != infractionsPageSize {
		t.Errorf("shown = %d, want %d", shown, infractionsPageSize)
	}
	if !strings.Contains(list, "…") {
		t.Error("long reasons were not shortened")
	}

	// A tight budget drops trailing entries instead of overflowing.
	list, shown = formatInfractions(infractions, 500)
	if shown != 1 || utf8.RuneCountInString(list) > 500 {
		t.Errorf("tight budget: shown = %d, length = %d", shown, utf8.RuneCountInString(list))
	}
}
