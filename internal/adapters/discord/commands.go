package discord

import "github.com/bwmarrin/discordgo"

// 4194304 = MUTE_MEMBERS
const invitePermissions = discordgo.PermissionVoiceMuteMembers

var (
	muteMembersPerm int64 = discordgo.PermissionVoiceMuteMembers
	noDM                  = false
)

var Commands = []*discordgo.ApplicationCommand{
	{
		Name:                     "afkmute",
		Description:              "AFK-mutea a alguien (se desmutea solo cuando vuelve a hacer algo)",
		DefaultMemberPermissions: &muteMembersPerm,
		DMPermission:             &noDM,
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: "El usuario a mutear",
			Required:    true,
		}},
	},
	{
		Name:         "unafkmute",
		Description:  "Sacarte el afk-mute",
		DMPermission: &noDM,
	},
	{
		Name:         "afklist",
		Description:  "Ver quién está afk-muteado en este servidor",
		DMPermission: &noDM,
	},
	{
		Name:        "invite",
		Description: "Link para invitar al bot",
	},
}
