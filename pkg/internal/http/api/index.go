package api

import (
	"git.solsynth.dev/hypernet/relay/pkg/internal/http/exts"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func MapAPIs(app *fiber.App, baseURL string) {
	api := app.Group(baseURL).Name("API")
	{
		quick := api.Group("/quick")
		{
			quick.Post("/reply", quickReply)
		}

		channels := api.Group("/channels").Name("Channels API")
		{
			channels.Get("/me", listAvailableChannel)
			channels.Post("/", createChannel)
			channels.Delete("/:channelId", deleteChannel)

			channels.Post("/:channelId/members", addChannelMember)
			channels.Delete("/:channelId/members/:accountId", removeChannelMember)

			channels.Get("/:channelId/messages", listChannelMessages)
			channels.Post("/:channelId/messages", newChannelMessage)
			channels.Put("/:channelId/read", markChannelRead)
		}

		conversations := api.Group("/conversations").Name("Conversations API")
		{
			conversations.Post("/", createConversation)
			conversations.Get("/:conversationId/messages", listConversationMessages)
			conversations.Post("/:conversationId/messages", newConversationMessage)
			conversations.Put("/:conversationId/read", markConversationRead)
		}

		messages := api.Group("/messages").Name("Messages API")
		{
			messages.Get("/:messageId/replies", listReplies)
			messages.Delete("/:messageId", deleteMessage)
			messages.Get("/:messageId/reactions", listReactions)
			messages.Post("/:messageId/reactions", toggleReaction)
		}

		notes := api.Group("/notes").Name("Notes API")
		{
			notes.Get("/channels/:channelId", getChannelNote)
			notes.Put("/channels/:channelId", putChannelNote)
			notes.Get("/personal/:workspaceId", getPersonalNote)
			notes.Put("/personal/:workspaceId", putPersonalNote)
		}

		api.Get("/whats-new", getWhatsNew)

		api.Use("/ws", func(c *fiber.Ctx) error {
			if err := exts.EnsureAuthenticated(c); err != nil {
				return err
			} else if !websocket.IsWebSocketUpgrade(c) {
				return fiber.ErrUpgradeRequired
			}
			return c.Next()
		})
		api.Get("/ws", websocket.New(unifiedGateway))
	}
}
