// Package discord — тонкий адаптер над discordgo: роли участников и
// уведомления в каналы. Все вызовы идут с собственным таймаутом, чтобы
// зависший запрос к API не останавливал свип.
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// Client оборачивает сессию discordgo.
type Client struct {
	session     *discordgo.Session
	callTimeout time.Duration
}

// NewClient открывает сессию бота.
func NewClient(token string, callTimeoutSeconds int) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания сессии Discord: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	return &Client{
		session:     session,
		callTimeout: time.Duration(callTimeoutSeconds) * time.Second,
	}, nil
}

// Open подключает шлюз.
func (c *Client) Open() error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("ошибка подключения к шлюзу Discord: %w", err)
	}
	return nil
}

// Close закрывает сессию.
func (c *Client) Close() error {
	return c.session.Close()
}

// Session отдаёт низкоуровневую сессию для регистрации обработчиков.
func (c *Client) Session() *discordgo.Session {
	return c.session
}

// GrantRole выдаёт роль участнику.
func (c *Client) GrantRole(ctx context.Context, guildID, userID, roleID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	err := c.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ошибка выдачи роли %s: %w", roleID, err)
	}
	return nil
}

// RevokeRole снимает роль с участника.
func (c *Client) RevokeRole(ctx context.Context, guildID, userID, roleID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	err := c.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ошибка снятия роли %s: %w", roleID, err)
	}
	return nil
}

// Notify отправляет текстовое сообщение в канал.
func (c *Client) Notify(ctx context.Context, channelID, message string) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	_, err := c.session.ChannelMessageSend(channelID, message, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ошибка отправки уведомления: %w", err)
	}
	return nil
}

// NotifyUser открывает ЛС с пользователем и отправляет сообщение.
func (c *Client) NotifyUser(ctx context.Context, userID, message string) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	channel, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ошибка открытия ЛС: %w", err)
	}
	if _, err := c.session.ChannelMessageSend(channel.ID, message, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("ошибка отправки ЛС: %w", err)
	}
	return nil
}

// LogFailure единообразно логирует внешний сбой, который не должен
// прерывать бизнес-операцию.
func LogFailure(err error, guildID, operation string) {
	log.WithError(err).WithFields(log.Fields{
		"guild":     guildID,
		"operation": operation,
	}).Warn("Внешний вызов Discord не удался")
}
