package handlers

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

// Embed colors.
const (
	colorBlurple = 0x5865F2
	colorOrange  = 0xE67E22
	colorRed     = 0xE74C3C
	colorDarkRed = 0x992D22
	colorGold    = 0xF1C40F
	colorGreen   = 0x2ECC71
)

// embedField is an ordered name/value pair rendered as a full-width field.
type embedField struct {
	Name  string
	Value string
}

// embedOptions describes a "big" embed: large title and description, an optional
// thumbnail, and an optional banner image at the bottom.
type embedOptions struct {
	Title       string
	Description string
	Color       int
	Author      *discordgo.User
	Thumbnail   string
	Fields      []embedField
	Image       string
}

func bigEmbed(opts embedOptions, now time.Time) *discordgo.MessageEmbed {
	em := &discordgo.MessageEmbed{
		Title:       opts.Title,
		Description: opts.Description,
		Color:       opts.Color,
		Timestamp:   now.UTC().Format(time.RFC3339),
	}
	if opts.Author != nil {
		em.Author = &discordgo.MessageEmbedAuthor{
			Name:    userTag(opts.Author),
			IconURL: opts.Author.AvatarURL(""),
		}
	}
	if opts.Thumbnail != "" {
		em.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: opts.Thumbnail}
	}
	for _, f := range opts.Fields {
		em.Fields = append(em.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value})
	}
	if opts.Image != "" {
		em.Image = &discordgo.MessageEmbedImage{URL: opts.Image}
	}
	return em
}

// userTag renders a user the way Discord shows them: the username, with the legacy
// discriminator when the account still has one.
func userTag(u *discordgo.User) string {
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}

func avatarURL(member *discordgo.Member) string {
	if member == nil {
		return ""
	}
	if member.Avatar != "" && member.GuildID != "" {
		return member.AvatarURL("")
	}
	if member.User != nil {
		return member.User.AvatarURL("")
	}
	return ""
}
