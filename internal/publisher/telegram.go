package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"

	"github.com/mimiza/smm/internal/domain"
	"github.com/mimiza/smm/internal/logger"
)

// telegramAPI is the slice of the Telego bot surface the adapter uses.
// Tests substitute a fake.
type telegramAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendPhoto(ctx context.Context, params *telego.SendPhotoParams) (*telego.Message, error)
	GetChat(ctx context.Context, params *telego.GetChatParams) (*telego.ChatFullInfo, error)
	GetChatMemberCount(ctx context.Context, params *telego.GetChatMemberCountParams) (*int, error)
}

// Telegram publishes through the Telegram Bot API. Each agent carries its
// own bot token, so a bot client is created per send.
type Telegram struct {
	log    *logger.Logger
	newBot func(token string) (telegramAPI, error)
}

// NewTelegram creates the Telegram adapter.
func NewTelegram(log *logger.Logger) *Telegram {
	if log == nil {
		log = logger.Discard()
	}
	return &Telegram{
		log: log,
		newBot: func(token string) (telegramAPI, error) {
			return telego.NewBot(token)
		},
	}
}

// Send posts text or a photo with caption to the agent's chat. Comments
// thread onto the predecessor message via reply parameters.
func (t *Telegram) Send(ctx context.Context, req Request) (*Result, error) {
	if req.Agent == nil || req.Agent.Credentials.Token == "" {
		return nil, errors.New("telegram: agent token missing")
	}

	bot, err := t.newBot(req.Agent.Credentials.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}

	chatID := parseChatID(req.Agent.ChatID())

	var reply *telego.ReplyParameters
	if req.Kind == domain.KindPostComment && req.PredecessorExternalID != "" {
		if messageID, err := strconv.Atoi(req.PredecessorExternalID); err == nil {
			reply = &telego.ReplyParameters{MessageID: messageID}
		}
	}

	payload, _ := json.Marshal(map[string]any{
		"chat_id":  req.Agent.ChatID(),
		"text":     req.Text,
		"image":    req.Image,
		"reply_to": req.PredecessorExternalID,
	})

	var message *telego.Message
	if req.Image != "" {
		message, err = bot.SendPhoto(ctx, &telego.SendPhotoParams{
			ChatID:          chatID,
			Photo:           telego.InputFile{URL: req.Image},
			Caption:         req.Text,
			ReplyParameters: reply,
		})
	} else {
		message, err = bot.SendMessage(ctx, &telego.SendMessageParams{
			ChatID:          chatID,
			Text:            req.Text,
			ReplyParameters: reply,
		})
	}

	if err != nil {
		var apiErr *telegoapi.Error
		if errors.As(err, &apiErr) {
			// The provider answered; record its verdict, not a transport fault.
			return &Result{
				OK:         false,
				StatusCode: apiErr.ErrorCode,
				Payload:    string(payload),
				Response:   apiErr.Description,
			}, nil
		}
		return nil, fmt.Errorf("telegram: send: %w", err)
	}

	response, _ := json.Marshal(message)
	return &Result{
		OK:         true,
		StatusCode: 200,
		ExternalID: strconv.Itoa(message.MessageID),
		Payload:    string(payload),
		Response:   string(response),
	}, nil
}

// RefreshProfile syncs the chat title, description and member count onto
// the agent. The caller persists the updated agent.
func (t *Telegram) RefreshProfile(ctx context.Context, agent *domain.Agent) error {
	if agent.Credentials.Token == "" {
		return errors.New("telegram: agent token missing")
	}

	bot, err := t.newBot(agent.Credentials.Token)
	if err != nil {
		return fmt.Errorf("telegram: create bot: %w", err)
	}

	chatID := parseChatID(agent.ChatID())

	chat, err := bot.GetChat(ctx, &telego.GetChatParams{ChatID: chatID})
	if err != nil {
		return fmt.Errorf("telegram: get chat: %w", err)
	}

	agent.UID = strconv.FormatInt(chat.ID, 10)
	agent.DisplayName = chat.Title
	agent.Description = chat.Description
	if chat.Username != "" {
		agent.Alias = "@" + chat.Username
	}

	count, err := bot.GetChatMemberCount(ctx, &telego.GetChatMemberCountParams{ChatID: chatID})
	if err != nil {
		return fmt.Errorf("telegram: get member count: %w", err)
	}
	if count != nil {
		agent.AudienceSize = *count
	}

	t.log.Debug("telegram profile refreshed",
		logger.Field{Key: "agent", Value: agent.ID},
		logger.Field{Key: "audience", Value: agent.AudienceSize},
	)
	return nil
}

// parseChatID maps an agent chat identifier onto Telego's ChatID: numeric
// UIDs address by ID, "@" aliases by username.
func parseChatID(raw string) telego.ChatID {
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return telego.ChatID{ID: id}
	}
	return telego.ChatID{Username: raw}
}
