package conversion

import "github.com/amirasaad/unitconv/pkg/units"

// ConvertRequest is the body of POST /api/convert. Units are matched by long
// or short name, case-sensitively.
type ConvertRequest struct {
	Value *float64 `json:"value" validate:"required"`
	From  string   `json:"from" validate:"required"`
	To    string   `json:"to" validate:"required"`
}

// ConvertResponse carries the converted value and its rendering.
type ConvertResponse struct {
	Value   float64 `json:"value"`
	Unit    string  `json:"unit"`
	Display string  `json:"display"`
}

// UnitResponse describes one supported unit.
type UnitResponse struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Family string `json:"family"`
	Base   bool   `json:"base"`
}

func toUnitResponse(u units.Unit) UnitResponse {
	return UnitResponse{
		Name:   u.LongName(),
		Symbol: u.ShortName(),
		Family: u.Family().String(),
		Base:   u.IsBase(),
	}
}
