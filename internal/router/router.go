package router

import (
	"context"
	"strings"
	"time"

	"github.com/nidhogg/minuku/internal/command"
	"github.com/nidhogg/minuku/internal/gateway"
	"github.com/nidhogg/minuku/internal/record"
	"go.uber.org/zap"
)

// TypeAnnotation is the record type free-text replies are stored as.
const TypeAnnotation record.Type = "annotation"

// Sender delivers replies to a platform channel.
type Sender interface {
	Send(ctx context.Context, msg *gateway.OutboundMessage) error
}

// Annotator stores free-text replies as records.
type Annotator interface {
	Report(ctx context.Context, data map[string]any, at time.Time) (*record.Generic, error)
}

// MessageRouter routes inbound chat messages. Slash commands go to the
// command registry; anything else is stored as an annotation when an
// Annotator is set.
type MessageRouter struct {
	gw        Sender
	commands  *command.Registry
	annotator Annotator
	timeout   time.Duration
	logger    *zap.Logger
}

// New creates a new MessageRouter. annotator may be nil.
func New(gw Sender, commands *command.Registry, annotator Annotator, logger *zap.Logger) *MessageRouter {
	return &MessageRouter{
		gw:        gw,
		commands:  commands,
		annotator: annotator,
		timeout:   30 * time.Second,
		logger:    logger,
	}
}

// Handle routes an inbound message. Signature matches gateway.MessageHandler.
func (mr *MessageRouter) Handle(msg *gateway.InboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), mr.timeout)
	defer cancel()

	mr.logger.Info("routing message",
		zap.String("platform", msg.Platform),
		zap.String("channel", msg.ChannelID),
		zap.String("user", msg.UserName),
	)

	if command.IsCommand(msg.Content) {
		cc := &command.CommandContext{
			Platform:  msg.Platform,
			ChannelID: msg.ChannelID,
			UserID:    msg.UserID,
			UserName:  msg.UserName,
		}
		result, err := mr.commands.Dispatch(ctx, msg.Content, cc)
		if err != nil {
			mr.logger.Warn("command dispatch error", zap.Error(err))
			mr.sendReply(ctx, msg, "Command error: "+err.Error())
			return
		}
		mr.sendReply(ctx, msg, result.Content, result.Records...)
		return
	}

	text := strings.TrimSpace(msg.Content)
	if mr.annotator == nil || text == "" {
		mr.sendReply(ctx, msg, "Type /help for available commands.")
		return
	}

	note, err := mr.annotator.Report(ctx, map[string]any{
		"text":     text,
		"platform": msg.Platform,
		"user_id":  msg.UserID,
	}, msg.Timestamp)
	if err != nil {
		mr.logger.Warn("annotation failed", zap.Error(err))
		mr.sendReply(ctx, msg, "Could not save your note: "+err.Error())
		return
	}
	mr.sendReply(ctx, msg, "Thanks, noted.", note)
}

// sendReply sends a text reply, with the records it concerns, back to the
// originating platform/channel.
func (mr *MessageRouter) sendReply(ctx context.Context, orig *gateway.InboundMessage, text string, recs ...record.Record) {
	var envs []record.Envelope
	if len(recs) > 0 {
		envs = record.WrapAll(recs)
	}
	err := mr.gw.Send(ctx, &gateway.OutboundMessage{
		Platform:  orig.Platform,
		ChannelID: orig.ChannelID,
		Content:   text,
		ReplyTo:   orig.ReplyTo,
		Records:   envs,
	})
	if err != nil {
		mr.logger.Error("send reply failed", zap.Error(err))
	}
}
