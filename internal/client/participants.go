package client

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"

	"mapsketch/internal/models"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Participant is one collaborator's identity
type Participant struct {
	ID    string
	Name  string
	Color string
}

// Info converts to the wire representation
func (p Participant) Info() models.UserInfo {
	return models.UserInfo{ID: p.ID, Name: p.Name, Color: p.Color}
}

// NewIdentity creates the local participant; the id is generated once per client
func NewIdentity(name string) Participant {
	return Participant{ID: uuid.NewString(), Name: name, Color: ColorForName(name)}
}

// ColorForName maps a display name to a stable #rrggbb color
func ColorForName(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	hue := float64(h.Sum32() % 360)
	r, g, b := hslToRGB(hue, 0.65, 0.45)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func hslToRGB(h, s, l float64) (uint8, uint8, uint8) {
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	to := func(v float64) uint8 { return uint8(math.Round((v + m) * 255)) }
	return to(r), to(g), to(b)
}

// Participants tracks self and the remote peers observed on the wire
type Participants struct {
	self    Participant
	remotes map[string]Participant
}

// NewParticipants creates a registry containing only self
func NewParticipants(self Participant) *Participants {
	return &Participants{self: self, remotes: make(map[string]Participant)}
}

func (p *Participants) Self() Participant {
	return p.self
}

// Observe adds or refreshes a remote participant from a message's user field.
// An empty color is derived from the name. Self is never stored as a remote.
func (p *Participants) Observe(u models.UserInfo) (Participant, bool) {
	if u.ID == "" {
		return Participant{}, false
	}
	if u.ID == p.self.ID {
		return p.self, false
	}

	color := u.Color
	if color == "" {
		color = ColorForName(u.Name)
	}
	_, known := p.remotes[u.ID]
	participant := Participant{ID: u.ID, Name: u.Name, Color: color}
	p.remotes[u.ID] = participant
	return participant, !known
}

func (p *Participants) Get(id string) (Participant, bool) {
	if id == p.self.ID {
		return p.self, true
	}
	participant, ok := p.remotes[id]
	return participant, ok
}

// Remotes lists remote peers sorted by name, then id
func (p *Participants) Remotes() []Participant {
	out := lo.Values(p.remotes)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Clear drops every remote and returns who was dropped
func (p *Participants) Clear() []Participant {
	dropped := p.Remotes()
	p.remotes = make(map[string]Participant)
	return dropped
}
