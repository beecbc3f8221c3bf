package economy

import "github.com/google/uuid"

// Company owns facilities and a money balance. Facilities reference the
// company by id only; the slice here is the owning side.
type Company struct {
	ID         string
	Name       string
	Balance    float64
	Facilities []*Facility
}

// NewCompany creates a company with a starting balance.
func NewCompany(name string, balance float64) *Company {
	return &Company{ID: uuid.NewString(), Name: name, Balance: balance}
}

// CanAfford reports whether the balance covers a cost.
func (c *Company) CanAfford(cost float64) bool { return c.Balance >= cost }

// Facility returns the owned facility with the given id, or nil.
func (c *Company) Facility(id string) *Facility {
	for _, f := range c.Facilities {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// RemoveFacility drops a facility from the owned set.
func (c *Company) RemoveFacility(id string) {
	for i, f := range c.Facilities {
		if f.ID == id {
			c.Facilities = append(c.Facilities[:i], c.Facilities[i+1:]...)
			return
		}
	}
}

// OfficeIn returns the company's office in a country, or nil. The invariant
// is at most one office per (company, country).
func (c *Company) OfficeIn(country string) *Facility {
	for _, f := range c.Facilities {
		if f.Kind == KindOffice && f.City.Country == country {
			return f
		}
	}
	return nil
}

// WageBill is the company's total per-tick wage cost.
func (c *Company) WageBill() float64 {
	var total float64
	for _, f := range c.Facilities {
		total += f.Wage()
	}
	return total
}
