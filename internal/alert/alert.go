// Package alert raises stock alerts. A Dispatcher plays a local sound cue and
// sends a remote text message; both are best-effort and fail independently.
package alert

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Credentials address the remote messaging bot.
type Credentials struct {
	BotToken string
	ChatID   string
}

// Complete reports whether both the token and the chat are set.
func (c Credentials) Complete() bool {
	return c.BotToken != "" && c.ChatID != ""
}

// Player plays the local alert cue.
type Player interface {
	Play(ctx context.Context) error
}

// Messenger delivers text to a remote chat.
type Messenger interface {
	Send(ctx context.Context, creds Credentials, text string) error
}

// Outcome records what each branch of an alert did. Callers log it and move
// on; neither failure is ever retried within the same alert.
type Outcome struct {
	SoundErr       error
	MessageErr     error
	MessageSkipped bool
}

// Delivered reports whether the remote message went out.
func (o Outcome) Delivered() bool {
	return !o.MessageSkipped && o.MessageErr == nil
}

// Dispatcher runs the sound and message branches concurrently.
type Dispatcher struct {
	player    Player
	messenger Messenger
	logger    *zap.Logger
}

// NewDispatcher wires a player and a messenger. Either may be nil, which
// disables that branch.
func NewDispatcher(player Player, messenger Messenger, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{player: player, messenger: messenger, logger: logger}
}

// Notify plays the cue and sends message. It never fails; errors are logged
// and reported in the Outcome.
func (d *Dispatcher) Notify(ctx context.Context, message string, creds Credentials) Outcome {
	var (
		out Outcome
		wg  sync.WaitGroup
	)
	if d.player != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.player.Play(ctx); err != nil {
				out.SoundErr = err
				d.logger.Warn("sound error", zap.Error(err))
			}
		}()
	}
	switch {
	case d.messenger == nil:
		out.MessageSkipped = true
	case !creds.Complete():
		out.MessageSkipped = true
		d.logger.Warn("telegram message skipped (missing BOT_API or CHAT_ID)")
	default:
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.messenger.Send(ctx, creds, message); err != nil {
				out.MessageErr = err
				d.logger.Error("failed to send telegram message", zap.Error(err))
				return
			}
			d.logger.Info("telegram message sent")
		}()
	}
	wg.Wait()
	return out
}
