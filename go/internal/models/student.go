package models

// StudentStatus is the lifecycle state of a student in the auction.
type StudentStatus string

const (
	StudentStatusAvailable StudentStatus = "available"
	StudentStatusSold      StudentStatus = "sold"
	StudentStatusUnsold    StudentStatus = "unsold"
)

// Student is a single lot in the auction. SoldTo and SoldPrice are set
// only while Status is StudentStatusSold.
type Student struct {
	ID             string        `json:"id" yaml:"id"`
	Name           string        `json:"name" yaml:"name"`
	IdentifierCode string        `json:"identifierCode" yaml:"identifierCode"`
	ImageURL       string        `json:"imageUrl,omitempty" yaml:"imageUrl,omitempty"`
	Status         StudentStatus `json:"status" yaml:"-"`
	SoldTo         *string       `json:"soldTo,omitempty" yaml:"-"`
	SoldPrice      *int          `json:"soldPrice,omitempty" yaml:"-"`
}

// MarkSold moves the student to sold with the given buyer and price.
func (s *Student) MarkSold(vanguardID string, price int) {
	s.Status = StudentStatusSold
	s.SoldTo = &vanguardID
	s.SoldPrice = &price
}

// MarkAvailable clears any sale and makes the student biddable again.
func (s *Student) MarkAvailable() {
	s.Status = StudentStatusAvailable
	s.SoldTo = nil
	s.SoldPrice = nil
}

// MarkUnsold records that nobody bid on the student.
func (s *Student) MarkUnsold() {
	s.Status = StudentStatusUnsold
	s.SoldTo = nil
	s.SoldPrice = nil
}

// Price returns the sale price, or 0 when the student is not sold.
func (s Student) Price() int {
	if s.SoldPrice == nil {
		return 0
	}
	return *s.SoldPrice
}

// Buyer returns the id of the owning vanguard, or "" when not sold.
func (s Student) Buyer() string {
	if s.SoldTo == nil {
		return ""
	}
	return *s.SoldTo
}

func (s Student) clone() Student {
	c := s
	if s.SoldTo != nil {
		to := *s.SoldTo
		c.SoldTo = &to
	}
	if s.SoldPrice != nil {
		p := *s.SoldPrice
		c.SoldPrice = &p
	}
	return c
}
