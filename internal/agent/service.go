package agent

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"chatrelay/internal/config"
)

const systemPrompt = `You are a friendly, professional assistant.
Answer accurately and concisely, use Markdown where it helps, provide
complete runnable examples for code questions, and say so honestly when
you are unsure instead of guessing.`

// Service is the eino-backed Runner implementation.
type Service struct {
	chatModel model.ToolCallingChatModel
	agent     *react.Agent
}

// New builds the chat model for the configured provider and, when any
// tools are available, a react agent around it.
func New(cfg *config.Config, provider string) (*Service, error) {
	if provider == "" {
		provider = cfg.BasicConfig.DefaultProvider
	}
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("new gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(context.Background(), &gemini.Config{
			Client: client,
			Model:  provCfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(context.Background(), &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}

	s := &Service{chatModel: chatModel}
	if tools := InitToolsChain(); len(tools) > 0 {
		s.agent, err = react.NewAgent(context.Background(), &react.AgentConfig{
			ToolCallingModel: chatModel,
			ToolsConfig: compose.ToolsNodeConfig{
				Tools: tools,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("init react agent: %w", err)
		}
	}
	return s, nil
}

// Run executes one turn without streaming.
func (s *Service) Run(ctx context.Context, prompt string, history [][]byte) (*TurnResult, error) {
	messages, err := s.buildMessages(prompt, history)
	if err != nil {
		return nil, err
	}

	var reply *schema.Message
	if s.agent != nil {
		reply, err = s.agent.Generate(ctx, messages)
	} else {
		reply, err = s.chatModel.Generate(ctx, messages)
	}
	if err != nil {
		return nil, fmt.Errorf("generate response: %w", err)
	}
	return s.finishTurn(prompt, reply.Content)
}

// RunStream executes one turn, reporting the cumulative text after every
// received chunk. The final snapshot is the turn's full response.
func (s *Service) RunStream(ctx context.Context, prompt string, history [][]byte, snapshot func(string) error) (*TurnResult, error) {
	messages, err := s.buildMessages(prompt, history)
	if err != nil {
		return nil, err
	}

	var streamReader *schema.StreamReader[*schema.Message]
	if s.agent != nil {
		streamReader, err = s.agent.Stream(ctx, messages)
	} else {
		streamReader, err = s.chatModel.Stream(ctx, messages)
	}
	if err != nil {
		return nil, fmt.Errorf("open response stream: %w", err)
	}
	defer streamReader.Close()

	var full string
	for {
		chunk, err := streamReader.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("receive stream chunk: %w", err)
		}
		if chunk.Content == "" {
			continue
		}
		full += chunk.Content
		if snapshot != nil {
			if err := snapshot(full); err != nil {
				return nil, err
			}
		}
	}
	return s.finishTurn(prompt, full)
}

func (s *Service) buildMessages(prompt string, history [][]byte) ([]*schema.Message, error) {
	if prompt == "" {
		return nil, errors.New("prompt is required")
	}
	prior, err := DecodeHistory(history)
	if err != nil {
		return nil, err
	}
	messages := make([]*schema.Message, 0, len(prior)+2)
	messages = append(messages, schema.SystemMessage(systemPrompt))
	messages = append(messages, prior...)
	messages = append(messages, schema.UserMessage(prompt))
	return messages, nil
}

func (s *Service) finishTurn(prompt, output string) (*TurnResult, error) {
	batch, err := EncodeTurn(prompt, output)
	if err != nil {
		return nil, err
	}
	return &TurnResult{Output: output, NewMessages: batch}, nil
}
