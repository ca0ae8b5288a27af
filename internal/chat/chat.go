// Package chat runs the conversational assistant surface: per-request tool
// dispatch against the claim tools, structured-response extraction, and
// graceful degradation when the model provider is down.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/arbiter/internal/a2ui"
	"github.com/linnemanlabs/arbiter/internal/claim"
	"github.com/linnemanlabs/arbiter/internal/llm"
	"github.com/linnemanlabs/arbiter/internal/session"
	"github.com/linnemanlabs/arbiter/internal/tools"
)

const (
	MaxToolRounds  = 8
	MaxTokens      = 50000
	ResponseTokens = 4096
)

// ErrEmptyMessage means the user sent a blank message.
var ErrEmptyMessage = errors.New("empty message")

// busyText is the degraded reply used when the model provider is
// unavailable. The chat surface never propagates provider outages to the
// caller.
const busyText = "The assistant is handling a lot of requests right now. Please try again in a moment."

// Hooks are optional callbacks for metrics instrumentation.
type Hooks struct {
	OnTurn func(degraded bool, toolCalls int, duration float64)
}

// Service is the business boundary for chat operations.
type Service struct {
	claims    *claim.Service
	store     claim.Store
	sessions  session.Store
	provider  llm.Provider
	converter *a2ui.Converter
	logger    log.Logger
	hooks     Hooks
}

// NewService creates a new chat service.
func NewService(claims *claim.Service, store claim.Store, sessions session.Store, provider llm.Provider, converter *a2ui.Converter, logger log.Logger, hooks Hooks) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		claims:    claims,
		store:     store,
		sessions:  sessions,
		provider:  provider,
		converter: converter,
		logger:    logger,
		hooks:     hooks,
	}
}

// Send handles one user chat message and returns the agent's reply. With a
// claim id the conversation is scoped to that claim (owner only); without
// one it is the user's general chat. Provider outages degrade to a busy
// reply, never an error.
func (s *Service) Send(ctx context.Context, userID int64, claimID *int64, content string) (*claim.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	key, err := s.sessionKey(ctx, userID, claimID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	L := s.logger.With("user_id", userID)
	if claimID != nil {
		L = L.With("claim_id", *claimID)
	}

	if err := s.store.AppendMessage(ctx, &claim.Message{
		ClaimID:   claimID,
		Sender:    claim.SenderUser,
		SenderID:  &userID,
		Content:   content,
		CreatedAt: time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}
	if err := s.appendTurn(ctx, key, "user", content); err != nil {
		return nil, fmt.Errorf("append turn: %w", err)
	}

	turns, err := s.sessions.History(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("replay session %s: %w", key, err)
	}

	registry := tools.ForUser(s.claims, userID)
	narrative, payloads, toolCalls, runErr := s.run(ctx, L, registry, session.Messages(turns))

	degraded := false
	var reply *claim.Message
	switch {
	case runErr == nil:
		cleaned, comps := s.converter.Extract(ctx, narrative, payloads)
		reply = &claim.Message{
			ClaimID:    claimID,
			Sender:     claim.SenderAgent,
			SenderID:   &userID,
			Content:    cleaned,
			Components: comps,
			CreatedAt:  time.Now(),
		}
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		return nil, runErr
	default:
		// busy degradation: rate limits and outages become a calm reply
		L.Warn(ctx, "chat degraded to busy reply", "error", runErr)
		degraded = true
		reply = &claim.Message{
			ClaimID:    claimID,
			Sender:     claim.SenderAgent,
			SenderID:   &userID,
			Content:    busyText,
			Components: []a2ui.Component{busyCard()},
			CreatedAt:  time.Now(),
		}
	}

	if err := s.store.AppendMessage(ctx, reply); err != nil {
		return nil, fmt.Errorf("persist agent message: %w", err)
	}
	if err := s.appendTurn(ctx, key, "assistant", reply.Content); err != nil {
		return nil, fmt.Errorf("append turn: %w", err)
	}

	if s.hooks.OnTurn != nil {
		s.hooks.OnTurn(degraded, toolCalls, time.Since(start).Seconds())
	}
	L.Info(ctx, "chat turn complete",
		"tool_calls", toolCalls,
		"components", len(reply.Components),
		"degraded", degraded,
	)
	return reply, nil
}

// History returns the conversation oldest-first: the claim's chat when
// claimID is set (owner only), otherwise the user's general chat.
func (s *Service) History(ctx context.Context, userID int64, claimID *int64) ([]*claim.Message, error) {
	if claimID != nil {
		if _, err := s.ownedClaim(ctx, userID, *claimID); err != nil {
			return nil, err
		}
		return s.store.ListClaimMessages(ctx, *claimID)
	}
	return s.store.ListUserMessages(ctx, userID)
}

// Clear deletes the conversation and its session context.
func (s *Service) Clear(ctx context.Context, userID int64, claimID *int64) error {
	key, err := s.sessionKey(ctx, userID, claimID)
	if err != nil {
		return err
	}
	if err := s.store.ClearMessages(ctx, claimID, userID); err != nil {
		return err
	}
	return s.sessions.Clear(ctx, key)
}

func (s *Service) sessionKey(ctx context.Context, userID int64, claimID *int64) (string, error) {
	if claimID == nil {
		return session.UserKey(userID), nil
	}
	if _, err := s.ownedClaim(ctx, userID, *claimID); err != nil {
		return "", err
	}
	return session.ClaimKey(*claimID), nil
}

func (s *Service) ownedClaim(ctx context.Context, userID, claimID int64) (*claim.Claim, error) {
	c, err := s.claims.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if c.CreatedByID != userID {
		return nil, fmt.Errorf("claim %d is not yours: %w", claimID, claim.ErrUnauthorized)
	}
	return c, nil
}

func (s *Service) appendTurn(ctx context.Context, key, role, text string) error {
	return s.sessions.Append(ctx, key, &session.Turn{
		Role:      role,
		Content:   []llm.ContentBlock{{Type: "text", Text: text}},
		Timestamp: time.Now(),
	})
}

// run drives the tool_use loop for one chat turn, returning the final
// narrative and the raw tool payloads collected along the way.
func (s *Service) run(ctx context.Context, L log.Logger, registry *tools.Registry, messages []llm.Message) (string, []json.RawMessage, int, error) {
	var narrative string
	var payloads []json.RawMessage
	var totalTokens int
	var toolCalls int

	for {
		if toolCalls >= MaxToolRounds {
			L.Warn(ctx, "chat hit tool call limit", "limit", MaxToolRounds)
			return "I had to stop before finishing. Please try a more specific request.", payloads, toolCalls, nil
		}
		if totalTokens >= MaxTokens {
			L.Warn(ctx, "chat hit token limit", "limit", MaxTokens)
			return "I had to stop before finishing. Please try a more specific request.", payloads, toolCalls, nil
		}

		resp, err := s.provider.Send(ctx, &llm.Request{
			MaxTokens: ResponseTokens,
			System:    chatSystemPrompt,
			Messages:  messages,
			Tools:     registry.ToToolDefs(),
		})
		if err != nil {
			return "", nil, toolCalls, err
		}
		totalTokens += resp.Usage.InputTokens + resp.Usage.OutputTokens

		messages = append(messages, llm.Message{
			Role:    "assistant",
			Content: resp.Content,
		})

		if resp.StopReason == llm.StopEnd {
			for _, block := range resp.Content {
				if block.Type == "text" {
					narrative = block.Text
				}
			}
			return narrative, payloads, toolCalls, nil
		}

		if resp.StopReason != llm.StopToolUse {
			return narrative, payloads, toolCalls, nil
		}

		var toolResults []llm.ContentBlock
		for _, block := range resp.Content {
			if block.Type != "tool_use" {
				continue
			}

			toolCalls++
			L.Info(ctx, "executing tool", "tool", block.Name, "call_number", toolCalls)

			tool, ok := registry.Get(block.Name)
			if !ok {
				toolResults = append(toolResults, llm.ContentBlock{
					Type:      "tool_result",
					ToolUseID: block.ID,
					Content:   fmt.Sprintf("unknown tool: %s", block.Name),
					IsError:   true,
				})
				continue
			}

			output, err := tool.Execute(ctx, block.Input)
			if err != nil {
				L.Error(ctx, err, "tool execution failed", "tool", block.Name)
				toolResults = append(toolResults, llm.ContentBlock{
					Type:      "tool_result",
					ToolUseID: block.ID,
					Content:   fmt.Sprintf("tool error: %v", err),
					IsError:   true,
				})
				continue
			}

			payloads = append(payloads, output)
			toolResults = append(toolResults, llm.ContentBlock{
				Type:      "tool_result",
				ToolUseID: block.ID,
				Content:   string(output),
			})
		}

		messages = append(messages, llm.Message{
			Role:    "user",
			Content: toolResults,
		})
	}
}

func busyCard() a2ui.Component {
	return a2ui.Component{
		Type:        a2ui.TypeStatusCard,
		Title:       "Service Busy",
		Color:       "orange",
		Icon:        "⏳",
		Description: busyText,
	}
}

const chatSystemPrompt = `You are an insurance claims assistant. Help the user file, review,
update, and submit their claims using the available tools. Claim status,
validation, and risk decisions come from the system; never invent them.
When a tool returns data the user should see, include the tool's JSON
payload verbatim in a fenced ` + "```json" + ` block so the client can
render it, and keep your own narrative to one or two sentences.`
