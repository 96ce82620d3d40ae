// Package sound plays the alert cue through whatever command-line audio
// player the host provides.
package sound

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"go.uber.org/zap"
)

// DefaultPlayers are tried in order until one is on PATH.
var DefaultPlayers = []Command{
	{Name: "afplay"},
	{Name: "paplay"},
	{Name: "aplay", Args: []string{"-q"}},
	{Name: "ffplay", Args: []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}},
	{Name: "mpg123", Args: []string{"-q"}},
}

// ErrNoPlayer is returned when no candidate player exists on the host.
var ErrNoPlayer = errors.New("no audio player found")

// Command is an audio player binary and the flags placed before the file.
type Command struct {
	Name string
	Args []string
}

// Config controls CommandPlayer.
type Config struct {
	// Asset is the sound file; ResolveAsset turns it into a path.
	Asset        string
	ResolveAsset func(name string) (string, error)
	Candidates   []Command
	Logger       *zap.Logger
}

// CommandPlayer spawns an external player per alert. Setup happens on first
// successful use so a host without audio only fails the sound branch.
type CommandPlayer struct {
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex
	ready bool
	path  string
	cmd   Command

	lookPath func(string) (string, error)
	start    func(ctx context.Context, name string, args ...string) (wait func() error, err error)
}

// NewCommandPlayer returns a player with defaults applied.
func NewCommandPlayer(cfg Config) *CommandPlayer {
	if len(cfg.Candidates) == 0 {
		cfg.Candidates = DefaultPlayers
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandPlayer{
		cfg:      cfg,
		logger:   logger,
		lookPath: exec.LookPath,
		start:    startCommand,
	}
}

func startCommand(_ context.Context, name string, args ...string) (func() error, error) {
	// Not bound to the caller's context: the cue outlives the alert call.
	cmd := exec.Command(name, args...) //nolint:gosec // player and asset come from operator config
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd.Wait, nil
}

// init resolves the asset and picks a player. Only success is cached, so
// a missing asset or player is retried on the next alert.
func (p *CommandPlayer) init() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready {
		return nil
	}
	path := p.cfg.Asset
	if p.cfg.ResolveAsset != nil {
		resolved, err := p.cfg.ResolveAsset(p.cfg.Asset)
		if err != nil {
			return fmt.Errorf("resolve sound asset: %w", err)
		}
		path = resolved
	}
	for _, c := range p.cfg.Candidates {
		if _, err := p.lookPath(c.Name); err == nil {
			p.path = path
			p.cmd = c
			p.ready = true
			p.logger.Debug("sound player selected", zap.String("player", c.Name), zap.String("asset", path))
			return nil
		}
	}
	return ErrNoPlayer
}

// Play starts the cue and returns without waiting for it to finish.
func (p *CommandPlayer) Play(ctx context.Context) error {
	if err := p.init(); err != nil {
		return err
	}
	p.mu.Lock()
	cmd, path := p.cmd, p.path
	p.mu.Unlock()

	args := append(append([]string(nil), cmd.Args...), path)
	wait, err := p.start(ctx, cmd.Name, args...)
	if err != nil {
		return fmt.Errorf("start %s: %w", cmd.Name, err)
	}
	go func() {
		if err := wait(); err != nil {
			p.logger.Debug("sound player exited", zap.String("player", cmd.Name), zap.Error(err))
		}
	}()
	return nil
}
