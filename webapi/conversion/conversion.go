// Package conversion exposes unit listing and value conversion over HTTP.
package conversion

import (
	"github.com/amirasaad/unitconv/pkg/units"
	"github.com/amirasaad/unitconv/webapi/common"
	"github.com/gofiber/fiber/v2"
)

// Routes registers the conversion endpoints.
func Routes(app *fiber.App, rates units.RateSource) {
	group := app.Group("/api")
	group.Get("/units", ListUnits())
	group.Post("/convert", Convert(rates))
}

// ListUnits returns every supported unit grouped by family order.
func ListUnits() fiber.Handler {
	return func(c *fiber.Ctx) error {
		all := units.AllUnits()
		out := make([]UnitResponse, 0, len(all))
		for _, u := range all {
			out = append(out, toUnitResponse(u))
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Units fetched successfully", out)
	}
}

// Convert converts a value between two units of the same family. Currency
// conversions may trigger a rate refresh.
func Convert(rates units.RateSource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[ConvertRequest](c)
		if err != nil {
			return nil
		}
		from, err := units.Parse(input.From)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid unit", err)
		}
		to, err := units.Parse(input.To)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid unit", err)
		}

		result, err := units.NewValue(*input.Value, from).ConvertTo(c.UserContext(), to, rates)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Conversion failed", err)
		}
		magnitude, _ := result.Magnitude()
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Value converted successfully", ConvertResponse{
			Value:   magnitude,
			Unit:    result.Unit().ShortName(),
			Display: result.String(),
		})
	}
}
