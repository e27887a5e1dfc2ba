// Package service runs assistant turns: it drives the model, dispatches
// tool calls, and persists the transcript.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/agent"
	"github.com/taskloop/taskloop/internal/chat/models"
	"github.com/taskloop/taskloop/internal/chat/store"
	"github.com/taskloop/taskloop/internal/common/apperr"
	"github.com/taskloop/taskloop/internal/common/logger"
	"github.com/taskloop/taskloop/internal/llm"
)

const (
	maxMessageLength = 4000
	maxTitleRunes    = 60

	fallbackReply    = "I've completed your request."
	exhaustedReply   = "I've processed your request. Please check your tasks to verify the changes."
	truncatedReply   = "I ran out of time while working on that. Some changes may already be applied; please check your tasks."
	unavailableReply = "I'm currently having trouble reaching my language model. Please try again in a moment."
)

// Service runs chat turns against the tool registry.
type Service struct {
	repo        store.Repository
	client      llm.Client
	registry    *agent.Registry
	maxIters    int
	turnTimeout time.Duration
	logger      *logger.Logger
}

// NewService creates a chat service. maxIters caps the tool-call loop per
// turn; turnTimeout bounds the whole turn including tool execution.
func NewService(repo store.Repository, client llm.Client, registry *agent.Registry, maxIters int, turnTimeout time.Duration, log *logger.Logger) *Service {
	if maxIters <= 0 {
		maxIters = 10
	}
	if turnTimeout <= 0 {
		turnTimeout = 60 * time.Second
	}
	return &Service{
		repo:        repo,
		client:      client,
		registry:    registry,
		maxIters:    maxIters,
		turnTimeout: turnTimeout,
		logger:      log.WithFields(zap.String("component", "chat-service")),
	}
}

// Turn processes one user message and returns the conversation id and the
// assistant's reply. The user message and the final reply are committed
// together; intermediate tool traffic is not persisted.
func (s *Service) Turn(ctx context.Context, userID, displayName, conversationID, message string) (string, string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", "", apperr.Validationf("message must not be empty")
	}
	if utf8.RuneCountInString(message) > maxMessageLength {
		return "", "", apperr.Validationf("message must be at most %d characters", maxMessageLength)
	}

	conv, err := s.loadOrCreateConversation(ctx, userID, conversationID)
	if err != nil {
		return "", "", err
	}

	history, err := s.repo.ListMessages(ctx, conv.ID)
	if err != nil {
		return "", "", err
	}

	turnCtx, cancel := context.WithTimeout(ctx, s.turnTimeout)
	defer cancel()

	reply := s.runTurn(turnCtx, userID, displayName, history, message)

	now := time.Now().UTC()
	title := ""
	if conv.Title == "" {
		title = deriveTitle(message)
	}
	err = s.repo.AppendTurn(ctx, conv.ID,
		&models.Message{Role: models.RoleUser, Content: message, CreatedAt: now},
		&models.Message{Role: models.RoleAssistant, Content: reply, CreatedAt: now.Add(time.Millisecond)},
		title)
	if err != nil {
		return "", "", err
	}
	return conv.ID, reply, nil
}

// runTurn drives the model until it stops calling tools. Failures are
// folded into the reply text; tool side effects that already happened
// stand.
func (s *Service) runTurn(ctx context.Context, userID, displayName string, history []*models.Message, message string) string {
	messages := make([]llm.Message, 0, len(history)+1)
	for _, msg := range history {
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: message})

	req := &llm.Request{
		System:   systemPrompt(displayName, time.Now().UTC()),
		Messages: messages,
		Tools:    agent.Specs(),
	}

	for iteration := 0; iteration < s.maxIters; iteration++ {
		resp, err := s.client.Complete(ctx, req)
		if err != nil {
			s.logger.Error("completion failed",
				zap.Int("iteration", iteration),
				zap.Error(err))
			if apperr.KindOf(err) == apperr.Deadline || errors.Is(err, context.DeadlineExceeded) {
				return truncatedReply
			}
			return unavailableReply
		}

		if len(resp.ToolCalls) == 0 {
			if resp.Content == "" {
				return fallbackReply
			}
			return resp.Content
		}

		req.Messages = append(req.Messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			if !s.registry.Knows(call.Name) {
				s.logger.Warn("model requested unknown tool", zap.String("tool", call.Name))
				return fmt.Sprintf("I tried to use a tool named '%s' that is not available, so I stopped. Please rephrase your request.", call.Name)
			}

			result := s.registry.Execute(ctx, userID, call.Name, json.RawMessage(call.Arguments))
			payload, err := json.Marshal(result)
			if err != nil {
				payload = []byte(`{"success": false, "message": "Failed to serialize result"}`)
			}
			req.Messages = append(req.Messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Content:    string(payload),
			})

			if ctx.Err() != nil {
				return truncatedReply
			}
		}
	}
	return exhaustedReply
}

// ListConversations returns the user's conversations.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	return s.repo.ListConversations(ctx, userID)
}

// GetConversation returns a conversation with its transcript.
func (s *Service) GetConversation(ctx context.Context, userID, id string) (*models.Conversation, []*models.Message, error) {
	conv, err := s.repo.GetConversation(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.repo.ListMessages(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return conv, messages, nil
}

// DeleteConversation removes a conversation and its messages.
func (s *Service) DeleteConversation(ctx context.Context, userID, id string) error {
	return s.repo.DeleteConversation(ctx, userID, id)
}

func (s *Service) loadOrCreateConversation(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	if conversationID != "" {
		return s.repo.GetConversation(ctx, userID, conversationID)
	}

	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func systemPrompt(displayName string, now time.Time) string {
	var b strings.Builder
	b.WriteString("You are a helpful todo assistant with advanced task management capabilities.\n\n")
	fmt.Fprintf(&b, "Today's date is: %s\n", now.Format("Monday, January 2, 2006"))
	if displayName != "" {
		fmt.Fprintf(&b, "You are assisting %s.\n", displayName)
	}
	b.WriteString(`
CRITICAL INSTRUCTIONS - FOLLOW EXACTLY:
1. When a user asks to create a task, IMMEDIATELY call the add_task function. DO NOT ask for clarification.
2. Pass ALL date expressions EXACTLY as the user stated them. The backend parses them automatically.
3. "next Monday", "tomorrow", "next Friday", "in 3 days" - ALL of these work. Just pass them directly.
4. For reminders like "1 hour before", pass "1 hour before" directly to set_reminder.
5. NEVER say "I couldn't parse the date" or ask for a specific date format. ALWAYS try the tool first.

You can help users:
- Create, update, complete, and delete tasks
- Set task priorities (low, medium, high)
- Add and remove tags for categorization
- Set due dates using natural language
- Set reminders for tasks
- Make tasks recurring (daily, weekly, monthly)
- Search and filter tasks

When specific tasks are referenced by name, try to find them using the tools.
Always confirm the action to the user in a friendly manner after the tools succeed.
`)
	return b.String()
}

// deriveTitle truncates the first user message into a conversation title.
func deriveTitle(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	if utf8.RuneCountInString(title) <= maxTitleRunes {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:maxTitleRunes]))
}
