package server

import (
	"context"

	"github.com/agoraworks/agora/pkg/assistant"
)

// AssistantChat adapts the agents client to the ChatService surface,
// rewriting citation annotations with the agent's resolved files
// before the reply leaves the server.
type AssistantChat struct {
	client *assistant.Client
}

// NewAssistantChat wraps an agents client.
func NewAssistantChat(client *assistant.Client) *AssistantChat {
	return &AssistantChat{client: client}
}

func (c *AssistantChat) CreateThread(ctx context.Context) (string, error) {
	thread, err := c.client.CreateThread(ctx)
	if err != nil {
		return "", err
	}
	return thread.ID, nil
}

func (c *AssistantChat) Send(ctx context.Context, threadID, agentID, text string) (string, error) {
	msg, err := c.client.SendMessage(ctx, threadID, agentID, text)
	if err != nil {
		return "", err
	}
	files := c.client.ResolveFiles(ctx, agentID)
	return assistant.RewriteCitations(msg.TextValue(), files, msg.TextAnnotations()), nil
}
