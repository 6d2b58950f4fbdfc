package main

import (
	"time"

	"github.com/Seednode/retropong/pong"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"
)

const sampleRate = beep.SampleRate(44100)

type tone struct {
	freq     float64
	duration time.Duration
}

var (
	paddleTone = tone{freq: 440, duration: 40 * time.Millisecond}
	wallTone   = tone{freq: 220, duration: 30 * time.Millisecond}
	pointTone  = tone{freq: 660, duration: 120 * time.Millisecond}
	winTone    = tone{freq: 880, duration: 400 * time.Millisecond}
)

// sounds plays short sine blips. Without an audio device it stays silent.
type sounds struct {
	enabled bool
}

func newSounds() (*sounds, error) {
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		return &sounds{}, err
	}
	return &sounds{enabled: true}, nil
}

func (s *sounds) play(t tone) {
	if s == nil || !s.enabled {
		return
	}

	sine, err := generators.SineTone(sampleRate, t.freq)
	if err != nil {
		return
	}

	speaker.Play(beep.Take(sampleRate.N(t.duration), sine))
}

func (s *sounds) contact(c pong.Contact) {
	switch {
	case c.Has(pong.ContactLeft), c.Has(pong.ContactRight):
		s.play(paddleTone)
	case c.Has(pong.ContactWall):
		s.play(wallTone)
	}
}

func (s *sounds) close() {
	if s != nil && s.enabled {
		speaker.Close()
	}
}
