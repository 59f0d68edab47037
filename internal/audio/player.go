package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/rs/zerolog/log"
)

// Media is what a Player is asked to render: a clip in memory or a remote URL.
type Media struct {
	Clip *Clip
	URL  string
}

// Player starts audio output.
type Player interface {
	Start(ctx context.Context, media Media) (Playback, error)
}

// Playback is one running output. Done yields exactly one value when the
// output ends, whether it finished, failed or was stopped.
type Playback interface {
	Stop() error
	Done() <-chan error
}

// ExecPlayer plays audio through whichever command-line player is installed.
type ExecPlayer struct {
	// Command forces a specific player binary. Empty means autodetect.
	Command string
	TempDir string
}

// Start writes the clip to a temporary file and launches the player on it.
// The file is removed once the player exits.
func (p *ExecPlayer) Start(ctx context.Context, media Media) (Playback, error) {
	var (
		target string
		tmp    string
	)
	switch {
	case media.Clip != nil:
		f, err := os.CreateTemp(p.TempDir, "banter-*."+media.Clip.Extension())
		if err != nil {
			return nil, fmt.Errorf("failed to create temp file: %w", err)
		}
		if _, err := f.Write(media.Clip.Data); err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
			return nil, fmt.Errorf("failed to write audio data: %w", err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(f.Name())
			return nil, fmt.Errorf("failed to close temp file: %w", err)
		}
		target, tmp = f.Name(), f.Name()
	case media.URL != "":
		target = media.URL
	default:
		return nil, errors.New("nothing to play")
	}

	name, args, err := p.command(media, target)
	if err != nil {
		removeQuietly(tmp)
		return nil, err
	}

	// the process outlives the caller's request, so it is not tied to ctx
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		removeQuietly(tmp)
		return nil, fmt.Errorf("failed to play audio: %w", err)
	}
	log.Debug().Str("player", name).Str("target", target).Msg("Started audio player")

	pb := &execPlayback{cmd: cmd, done: make(chan error, 1)}
	go func() {
		err := cmd.Wait()
		removeQuietly(tmp)
		pb.done <- err
		close(pb.done)
	}()
	return pb, nil
}

func (p *ExecPlayer) command(media Media, target string) (string, []string, error) {
	if p.Command != "" {
		return p.Command, playerArgs(p.Command, target), nil
	}

	candidates := []string{"afplay", "aplay", "paplay", "ffplay"}
	switch {
	case media.URL != "":
		candidates = []string{"ffplay"}
	case media.Clip.MIMEType == MIMEMPEG:
		// aplay and paplay only understand PCM containers
		candidates = []string{"afplay", "ffplay", "mpg123"}
	}
	for _, c := range candidates {
		if isCommandAvailable(c) {
			return c, playerArgs(c, target), nil
		}
	}
	return "", nil, fmt.Errorf("no audio player found")
}

func playerArgs(player, target string) []string {
	switch player {
	case "ffplay":
		return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", target}
	case "mpg123":
		return []string{"-q", target}
	}
	return []string{target}
}

type execPlayback struct {
	cmd  *exec.Cmd
	done chan error
	once sync.Once
}

func (p *execPlayback) Stop() error {
	var err error
	p.once.Do(func() {
		if p.cmd.Process == nil {
			return
		}
		err = p.cmd.Process.Kill()
		if errors.Is(err, os.ErrProcessDone) {
			err = nil
		}
	})
	return err
}

func (p *execPlayback) Done() <-chan error {
	return p.done
}

func isCommandAvailable(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}

func removeQuietly(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Debug().Err(err).Str("path", path).Msg("Failed to remove temp audio file")
	}
}
