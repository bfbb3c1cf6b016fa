package main

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxloop-go/voxloop/pkg/core/tools"
)

// demoToolSet wires a few tools the model can call during conversation.
func demoToolSet(logger zerolog.Logger) *tools.Set {
	notes := &noteStore{}

	type timeArgs struct{}
	type timeResult struct {
		Time string `json:"time"`
	}

	type rollArgs struct {
		Sides int `json:"sides,omitempty"`
	}
	type rollResult struct {
		Sides int `json:"sides"`
		Value int `json:"value"`
	}

	type saveNoteArgs struct {
		Text string `json:"text"`
	}
	type saveNoteResult struct {
		Saved int `json:"saved"`
	}

	type listNotesArgs struct{}
	type listNotesResult struct {
		Notes []string `json:"notes"`
	}

	set := tools.NewSet()
	set.Add(tools.MakeTool("get_time", "Get the current local time.",
		func(context.Context, timeArgs) (timeResult, error) {
			return timeResult{Time: time.Now().Format(time.RFC1123)}, nil
		}))
	set.Add(tools.MakeTool("roll_dice", "Roll a die. Defaults to six sides.",
		func(_ context.Context, args rollArgs) (rollResult, error) {
			sides := args.Sides
			if sides < 2 {
				sides = 6
			}
			return rollResult{Sides: sides, Value: rand.Intn(sides) + 1}, nil
		}))
	set.Add(tools.MakeTool("save_note", "Remember a short note for this session.",
		func(_ context.Context, args saveNoteArgs) (saveNoteResult, error) {
			return saveNoteResult{Saved: notes.add(args.Text)}, nil
		}))
	set.Add(tools.MakeTool("list_notes", "List the notes saved this session.",
		func(context.Context, listNotesArgs) (listNotesResult, error) {
			return listNotesResult{Notes: notes.all()}, nil
		}))

	logger.Debug().Int("tools", set.Len()).Msg("demo tool set ready")
	return set
}

type noteStore struct {
	mu    sync.Mutex
	notes []string
}

func (s *noteStore) add(text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, text)
	return len(s.notes)
}

func (s *noteStore) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.notes))
	copy(out, s.notes)
	return out
}
