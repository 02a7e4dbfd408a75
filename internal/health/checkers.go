package health

import (
	"context"
	"errors"

	"github.com/teangalab/beal/pkg/speech"
)

// Pinger is the slice of the store surface readiness cares about.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker reports whether the entity store is reachable.
func StoreChecker(p Pinger) Checker {
	return Checker{
		Name:  "database",
		Probe: p.Ping,
	}
}

// SpeechChecker reports whether the speech provider endpoint responds.
func SpeechChecker(g speech.Gateway) Checker {
	return Checker{
		Name: "speech",
		Probe: func(ctx context.Context) error {
			if !g.Probe(ctx) {
				return errors.New("speech provider unreachable")
			}
			return nil
		},
	}
}
