package discord

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tbourn/go-alliance-bot/internal/domain"
	"github.com/tbourn/go-alliance-bot/internal/interaction"
	"github.com/tbourn/go-alliance-bot/internal/services"
)

const (
	ignInputID = "ign"

	// maxContentLen is Discord's message content limit.
	maxContentLen = 2000
)

// User-facing replies.
const (
	msgGeneric         = "Something went wrong handling that action."
	msgSlowDown        = "You’re doing that too fast. Try again in a moment."
	msgGuildOnly       = "Use this command in a server."
	msgNotYourButton   = "This button isn’t for you."
	msgInvalidGuild    = "Invalid guild context."
	msgSubmitted       = "✅ Submitted! Your alliance leadership will approve it shortly."
	msgAllianceMissing = "That alliance mapping is missing or disabled."
	msgChannelMissing  = "Approval channel not found / not text-based. Tell an admin to fix it."
	msgDuplicate       = "A submission for you is already being recorded. Try again in a moment."
	msgRequestMissing  = "❌ Request or alliance mapping not found."
	msgNoPermission    = "❌ You don’t have permission to approve this request."
	msgMemberLeft      = "❌ User no longer in server."
	msgNoAlliance      = "❌ Member not found or has no configured alliance role yet."
	msgNoAlliances     = "No alliances configured yet."
)

func promptMessage(t services.CollectionTarget, template string) *discordgo.MessageSend {
	roleName := t.RoleName
	if roleName == "" {
		roleName = "alliance"
	}
	example := services.Render(template, t.Prefix, "YOUR_IGN")
	open := interaction.OpenCollectionForm{CommunityID: t.CommunityID, MemberID: t.MemberID, RoleID: t.RoleID}
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title: "Kingshot verification",
			Description: fmt.Sprintf("You’ve been given the **%s** role.\n\n"+
				"Please submit your **in-game name (IGN)** so we can set your nickname as:\n`%s`", roleName, example),
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Submit IGN", Style: discordgo.PrimaryButton, CustomID: open.Token()},
			}},
		},
	}
}

func collectionModal(f interaction.SubmitCollectionForm, minLen, maxLen int) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: f.Token(),
			Title:    "Enter your Kingshot IGN",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    ignInputID,
						Label:       "In-game name (IGN)",
						Placeholder: "e.g., Nexus",
						Style:       discordgo.TextInputShort,
						Required:    true,
						MinLength:   minLen,
						MaxLength:   maxLen,
					},
				}},
			},
		},
	}
}

func approvalMessage(card services.ApprovalCard) *discordgo.MessageSend {
	approve, reject := interaction.DecisionTokens(card.CommunityID, card.RequestID)
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title: "IGN Approval Request",
			Description: fmt.Sprintf("**User:** <@%s>\n**Alliance role:** <@&%s>\n**Requested IGN:** `%s`\n\n"+
				"If approved, nickname will become:\n`%s`", card.MemberID, card.RoleID, card.IGN, card.Preview),
			Timestamp: card.CreatedAt.UTC().Format(time.RFC3339),
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Approve", Style: discordgo.SuccessButton, CustomID: approve},
				discordgo.Button{Label: "Reject", Style: discordgo.DangerButton, CustomID: reject},
			}},
		},
	}
}

// decidedCard rewrites the approval card in place: the footer names the
// decider and the buttons are removed.
func decidedCard(msg *discordgo.Message, status domain.RequestStatus, actor services.Actor) *discordgo.InteractionResponse {
	embed := &discordgo.MessageEmbed{}
	if msg != nil && len(msg.Embeds) > 0 && msg.Embeds[0] != nil {
		cp := *msg.Embeds[0]
		embed = &cp
	}
	footer := "❌ Rejected by " + actor.Label()
	if status == domain.StatusApproved {
		footer = "✅ Approved by " + actor.Label()
	}
	embed.Footer = &discordgo.MessageEmbedFooter{Text: footer}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: []discordgo.MessageComponent{},
		},
	}
}

func ephemeral(content string) *discordgo.InteractionResponse {
	if len([]rune(content)) > maxContentLen {
		content = string([]rune(content)[:maxContentLen-1]) + "…"
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         content,
			Flags:           discordgo.MessageFlagsEphemeral,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		},
	}
}
