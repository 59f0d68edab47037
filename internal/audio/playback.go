package audio

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Unit identifies what is playing: a message index or the whole conversation.
type Unit string

// ConversationUnit is the unit for the full conversation track.
const ConversationUnit Unit = "conversation"

// MessageUnit returns the unit for the message at index i.
func MessageUnit(i int) Unit {
	return Unit(strconv.Itoa(i))
}

// Source is what the caller wants played. Exactly one of Handle, Base64 or
// Clip should be set. Handle may be a blob handle or an http(s) URL.
type Source struct {
	Handle   string
	Base64   string
	MIMEType string
	Clip     *Clip
}

// PlaybackManager owns the single active playback.
type PlaybackManager struct {
	mu     sync.Mutex
	player Player
	blobs  *BlobStore

	active Playback
	unit   Unit
	owned  string
	seq    uint64
	// ended is closed when the active playback stops
	ended chan struct{}
}

// NewPlaybackManager creates a manager rendering through player. Blob
// handles are looked up in blobs.
func NewPlaybackManager(player Player, blobs *BlobStore) *PlaybackManager {
	return &PlaybackManager{player: player, blobs: blobs}
}

// Play starts unit. If unit is already playing it is stopped instead.
// Starting a different unit stops the current one first. If the player
// refuses to start, the manager is left stopped and the error is returned.
func (m *PlaybackManager) Play(ctx context.Context, unit Unit, src Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.unit == unit {
		m.stopLocked()
		return nil
	}
	m.stopLocked()

	media, owned, err := m.resolve(src)
	if err != nil {
		log.Warn().Err(err).Str("unit", string(unit)).Msg("Cannot resolve audio source")
		return err
	}

	pb, err := m.player.Start(ctx, media)
	if err != nil {
		if owned != "" {
			m.blobs.Revoke(owned)
		}
		log.Warn().Err(err).Str("unit", string(unit)).Msg("Playback failed to start")
		return fmt.Errorf("failed to start playback: %w", err)
	}

	m.seq++
	m.active, m.unit, m.owned = pb, unit, owned
	m.ended = make(chan struct{})
	go m.watch(m.seq, pb)

	log.Debug().Str("unit", string(unit)).Msg("Playback started")
	return nil
}

// Stop halts the active playback, if any, and releases any blob created for it.
func (m *PlaybackManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// Wait blocks until nothing is playing. If ctx ends first the playback is
// stopped and the context error returned.
func (m *PlaybackManager) Wait(ctx context.Context) error {
	m.mu.Lock()
	ended := m.ended
	m.mu.Unlock()
	if ended == nil {
		return nil
	}
	select {
	case <-ended:
		return nil
	case <-ctx.Done():
		m.Stop()
		return ctx.Err()
	}
}

// IsPlaying reports whether unit is the active unit.
func (m *PlaybackManager) IsPlaying(unit Unit) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil && m.unit == unit
}

// Active returns the active unit.
func (m *PlaybackManager) Active() (Unit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unit, m.active != nil
}

func (m *PlaybackManager) watch(seq uint64, pb Playback) {
	err := <-pb.Done()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seq != seq || m.active != pb {
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("unit", string(m.unit)).Msg("Playback ended with error")
	} else {
		log.Debug().Str("unit", string(m.unit)).Msg("Playback finished")
	}
	m.stopLocked()
}

func (m *PlaybackManager) stopLocked() {
	if m.active != nil {
		if err := m.active.Stop(); err != nil {
			log.Debug().Err(err).Msg("Failed to stop player")
		}
	}
	if m.owned != "" {
		m.blobs.Revoke(m.owned)
	}
	if m.ended != nil {
		close(m.ended)
	}
	m.active, m.unit, m.owned, m.ended = nil, "", "", nil
}

func (m *PlaybackManager) resolve(src Source) (Media, string, error) {
	switch {
	case src.Clip != nil:
		return Media{Clip: src.Clip}, m.blobs.Create(src.Clip), nil
	case src.Base64 != "":
		data, err := DecodeBase64(src.Base64)
		if err != nil {
			return Media{}, "", err
		}
		clip := NewClip(data, src.MIMEType)
		return Media{Clip: clip}, m.blobs.Create(clip), nil
	case IsBlobHandle(src.Handle):
		clip, ok := m.blobs.Open(src.Handle)
		if !ok {
			return Media{}, "", fmt.Errorf("audio handle %s has been released", src.Handle)
		}
		return Media{Clip: clip}, "", nil
	case strings.HasPrefix(src.Handle, "http://"), strings.HasPrefix(src.Handle, "https://"):
		return Media{URL: src.Handle}, "", nil
	}
	return Media{}, "", errors.New("empty audio source")
}
