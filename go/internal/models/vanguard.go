package models

// Vanguard is a bidding team. Budget is a fixed ceiling; Spent always
// equals the sum of sale prices across Squad.
type Vanguard struct {
	ID       string    `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	ColorTag string    `json:"colorTag" yaml:"colorTag"`
	Budget   int       `json:"budget" yaml:"budget"`
	Spent    int       `json:"spent" yaml:"-"`
	Squad    []Student `json:"squad" yaml:"-"`
	Leader   string    `json:"leader,omitempty" yaml:"leader,omitempty"`
}

// Remaining is the purse still available for bidding.
func (v Vanguard) Remaining() int {
	return v.Budget - v.Spent
}

// AddToSquad charges the vanguard and appends a snapshot of the student.
func (v *Vanguard) AddToSquad(s Student, price int) {
	v.Spent += price
	v.Squad = append(v.Squad, s.clone())
}

// RemoveFromSquad refunds price and drops the student from the squad.
func (v *Vanguard) RemoveFromSquad(studentID string, price int) {
	v.Spent -= price
	squad := make([]Student, 0, len(v.Squad))
	for _, member := range v.Squad {
		if member.ID != studentID {
			squad = append(squad, member)
		}
	}
	v.Squad = squad
}

func (v Vanguard) clone() Vanguard {
	c := v
	c.Squad = make([]Student, len(v.Squad))
	for i, s := range v.Squad {
		c.Squad[i] = s.clone()
	}
	return c
}
