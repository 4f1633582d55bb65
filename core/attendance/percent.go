package attendance

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Percent is a percentage rounded half-up to 2 decimal places.
// It is serialized as a string with exactly 2 decimals, e.g. "66.67".
type Percent struct {
	decimal.Decimal
}

// NewPercent returns present/total*100, or 0 when total is 0.
func NewPercent(present, total int) Percent {
	if total <= 0 {
		return Percent{decimal.Zero}
	}
	ratio := decimal.NewFromInt(int64(present)).Mul(hundred).Div(decimal.NewFromInt(int64(total)))
	return Percent{ratio.Round(2)}
}

func PercentFromFloat(f float64) Percent {
	return Percent{decimal.NewFromFloat(f).Round(2)}
}

func ParsePercent(s string) (Percent, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Percent{}, errors.Wrapf(err, "parsing percent %q", s)
	}
	return Percent{d.Round(2)}, nil
}

// AveragePercent returns the mean of ps, 0 when empty.
func AveragePercent(ps []Percent) Percent {
	if len(ps) == 0 {
		return Percent{decimal.Zero}
	}
	sum := decimal.Zero
	for _, p := range ps {
		sum = sum.Add(p.Decimal)
	}
	return Percent{sum.Div(decimal.NewFromInt(int64(len(ps)))).Round(2)}
}

func (p Percent) String() string {
	return p.StringFixed(2)
}

func (p Percent) Below(threshold float64) bool {
	return p.LessThan(decimal.NewFromFloat(threshold))
}

func (p Percent) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// UnmarshalJSON accepts both quoted and bare numbers and rounds them to 2 decimals.
func (p *Percent) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*p = Percent{decimal.Zero}
		return nil
	}
	parsed, err := ParsePercent(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Scan rounds the stored value to 2 decimals.
func (p *Percent) Scan(value interface{}) error {
	var d decimal.Decimal
	if err := d.Scan(value); err != nil {
		return err
	}
	p.Decimal = d.Round(2)
	return nil
}
