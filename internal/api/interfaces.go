// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/kilonova-lab/specconv/internal/catalog"
	"github.com/kilonova-lab/specconv/internal/models"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SpectrumHandler handles inspection and conversion of uploaded spectra
type SpectrumHandler interface {
	HandleInspect(c echo.Context) error
	HandleConvert(c echo.Context) error
	HandleListConversions(c echo.Context) error
}

// Converter converts in-memory spectrum files. Implemented by
// *convert.Converter; declared here so handlers can be tested in isolation.
type Converter interface {
	ConvertBytes(ctx context.Context, runID, name string, data []byte, outDir string) models.ConversionResult
	Format() string
}

// Ledger lists recorded conversions.
type Ledger interface {
	List(ctx context.Context, limit int) ([]catalog.Entry, error)
}

// Publisher receives conversion events for connected clients.
type Publisher interface {
	Publish(msgType string, payload any)
}
