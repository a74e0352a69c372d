package auction

import (
	"fmt"
	"net/url"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/vanguard/go/internal/models"
	"github.com/mcdev12/vanguard/go/internal/shuffle"
	"github.com/mcdev12/vanguard/go/internal/timer"
)

// Roster is the canonical set of students and vanguards an auction is
// built from.
type Roster struct {
	Students  []models.Student  `yaml:"students"`
	Vanguards []models.Vanguard `yaml:"vanguards"`
}

// DefaultVanguards are the four houses used when a roster names none.
func DefaultVanguards() []models.Vanguard {
	return []models.Vanguard{
		{ID: "v1", Name: "Terra", ColorTag: "emerald", Budget: 100, Leader: "Pal Pathak"},
		{ID: "v2", Name: "Aqua", ColorTag: "blue", Budget: 100, Leader: "Jonty Patel"},
		{ID: "v3", Name: "Aero", ColorTag: "amber", Budget: 100, Leader: "Devanshi Vadiya"},
		{ID: "v4", Name: "Ignis", ColorTag: "rose", Budget: 100, Leader: "Ankit Kumar"},
	}
}

// DefaultRoster is a placeholder roster for demos and tests.
func DefaultRoster() Roster {
	students := make([]models.Student, 0, 24)
	for i := 1; i <= 24; i++ {
		code := fmt.Sprintf("U%04d", i)
		students = append(students, models.Student{
			ID:             code,
			Name:           fmt.Sprintf("Student %02d", i),
			IdentifierCode: code,
		})
	}
	r := Roster{Students: students, Vanguards: DefaultVanguards()}
	r.fillDefaults()
	return r
}

// LoadRoster reads a YAML roster file.
func LoadRoster(path string) (Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Roster{}, fmt.Errorf("read roster: %w", err)
	}
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Roster{}, fmt.Errorf("parse roster: %w", err)
	}
	if len(r.Vanguards) == 0 {
		r.Vanguards = DefaultVanguards()
	}
	r.fillDefaults()
	if err := r.Validate(); err != nil {
		return Roster{}, err
	}
	return r, nil
}

func (r *Roster) fillDefaults() {
	for i := range r.Students {
		s := &r.Students[i]
		if s.IdentifierCode == "" {
			s.IdentifierCode = s.ID
		}
		if s.ImageURL == "" {
			s.ImageURL = "https://placehold.co/400x400?text=" + url.PathEscape(s.Name)
		}
	}
}

// Validate checks ids are present and unique and budgets are sane.
func (r Roster) Validate() error {
	seen := make(map[string]bool, len(r.Students))
	for _, s := range r.Students {
		if s.ID == "" || s.Name == "" {
			return fmt.Errorf("roster: student needs id and name")
		}
		if seen[s.ID] {
			return fmt.Errorf("roster: duplicate student id %q", s.ID)
		}
		seen[s.ID] = true
	}
	vseen := make(map[string]bool, len(r.Vanguards))
	for _, v := range r.Vanguards {
		if v.ID == "" || v.Name == "" {
			return fmt.Errorf("roster: vanguard needs id and name")
		}
		if vseen[v.ID] {
			return fmt.Errorf("roster: duplicate vanguard id %q", v.ID)
		}
		if v.Budget < 0 {
			return fmt.Errorf("roster: vanguard %q has negative budget", v.ID)
		}
		vseen[v.ID] = true
	}
	return nil
}

// NewState builds a fresh auction from the roster with the queue in
// seeded order. UpdatedAt is stamped on save.
func NewState(r Roster, seed string) *models.AuctionState {
	ids := make([]string, 0, len(r.Students))
	students := make(map[string]models.Student, len(r.Students))
	for _, s := range r.Students {
		s.MarkAvailable()
		students[s.ID] = s
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)

	vanguards := make(map[string]models.Vanguard, len(r.Vanguards))
	for _, v := range r.Vanguards {
		v.Spent = 0
		v.Squad = []models.Student{}
		vanguards[v.ID] = v
	}

	return &models.AuctionState{
		Version:     models.SchemaVersion,
		ShuffleSeed: seed,
		Queue:       shuffle.Shuffle(ids, seed),
		Students:    students,
		Vanguards:   vanguards,
		Timer:       timer.Idle(),
	}
}
