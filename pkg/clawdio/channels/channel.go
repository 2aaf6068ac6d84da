// Package channels defines the interfaces and types for Clawdio chat
// transports. Each transport (Telegram, Discord) implements the Channel
// interface to deliver replies, and pushes incoming messages into a Handler
// supplied by the bot.
package channels

import (
	"context"
	"fmt"
	"time"
)

// Channel defines the interface that every chat transport must implement.
type Channel interface {
	// Name returns the transport identifier (e.g. "telegram", "discord").
	Name() string

	// Connect establishes the connection to the messaging platform and
	// starts delivering incoming messages to the registered Handler.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection. In-flight dispatches
	// are allowed to finish before Disconnect returns.
	Disconnect() error

	// Send delivers a text message to the specified chat. Payloads larger
	// than the platform limit are split into ordered chunks.
	Send(ctx context.Context, chatID string, message *OutgoingMessage) error

	// IsConnected returns true if the transport is connected.
	IsConnected() bool

	// Health returns the transport health status.
	Health() HealthStatus
}

// PresenceChannel extends Channel with typing indicators.
type PresenceChannel interface {
	Channel

	// SendTyping sends a "typing..." indicator to the chat.
	SendTyping(ctx context.Context, chatID string) error
}

// Handler processes a single incoming message. The transport guarantees that
// messages from the same sender are handed over in arrival order and that a
// message's dispatch has fully returned before its position in the stream is
// acknowledged to the platform.
type Handler interface {
	HandleMessage(ctx context.Context, msg *IncomingMessage)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg *IncomingMessage)

// HandleMessage calls f(ctx, msg).
func (f HandlerFunc) HandleMessage(ctx context.Context, msg *IncomingMessage) {
	f(ctx, msg)
}

// IncomingMessage represents a message received from any transport.
type IncomingMessage struct {
	// ID is the unique message identifier in the source transport.
	ID string

	// Channel identifies the source transport (e.g. "telegram").
	Channel string

	// From is the sender identifier on the platform.
	From string

	// FromName is the sender display name (if available).
	FromName string

	// ChatID is the conversation identifier replies are sent to.
	ChatID string

	// Content is the text content of the message.
	Content string

	// Timestamp is when the message was sent.
	Timestamp time.Time
}

// OutgoingMessage represents a message to be sent through a transport.
type OutgoingMessage struct {
	// Content is the text content of the message.
	Content string

	// ReplyTo contains the ID of the message to reply to.
	ReplyTo string
}

// HealthStatus represents the health state of a transport.
type HealthStatus struct {
	Connected     bool
	LastMessageAt time.Time
	ErrorCount    int
}

// Errors.
var (
	ErrChannelDisconnected = fmt.Errorf("channel is not connected")
	ErrSendFailed          = fmt.Errorf("failed to send message")
)
