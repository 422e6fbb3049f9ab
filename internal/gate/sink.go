package gate

import (
	"context"

	"motionbot/internal/transport"
)

// TransportSink sends gate notifications through a chat transport to one target.
type TransportSink struct {
	Sender transport.Sender
	To     transport.ChatTarget
}

func (s TransportSink) SendText(ctx context.Context, text string) error {
	_, err := s.Sender.SendText(ctx, s.To, text, nil)
	return err
}

func (s TransportSink) SendPhoto(ctx context.Context, path, caption string) error {
	_, err := s.Sender.SendPhoto(ctx, s.To, path, caption)
	return err
}
