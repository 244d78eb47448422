package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/mcoot/wolfbot/internal/directory"
)

// bits pairs each directory permission with its Discord flag. Pinning is
// covered by manage messages on Discord.
var bits = []struct {
	perm directory.Permission
	flag int64
}{
	{directory.PermView, discordgo.PermissionViewChannel},
	{directory.PermPost, discordgo.PermissionSendMessages},
	{directory.PermReadHistory, discordgo.PermissionReadMessageHistory},
	{directory.PermAttachFiles, discordgo.PermissionAttachFiles},
	{directory.PermEmbedLinks, discordgo.PermissionEmbedLinks},
	{directory.PermExternalEmoji, discordgo.PermissionUseExternalEmojis},
	{directory.PermAddReactions, discordgo.PermissionAddReactions},
	{directory.PermPinMessages, discordgo.PermissionManageMessages},
	{directory.PermCreateThreads, discordgo.PermissionCreatePublicThreads},
	{directory.PermPostInThreads, discordgo.PermissionSendMessagesInThreads},
}

func toBits(p directory.Permission) int64 {
	var out int64
	for _, b := range bits {
		if p.Has(b.perm) {
			out |= b.flag
		}
	}
	return out
}

// fromBits drops Discord flags the engine does not model
func fromBits(flags int64) directory.Permission {
	var out directory.Permission
	for _, b := range bits {
		if flags&b.flag == b.flag {
			out |= b.perm
		}
	}
	return out
}
