// handlers_spectrum.go - Spectrum inspection and conversion handlers
package api

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/kilonova-lab/specconv/internal/models"
	"github.com/kilonova-lab/specconv/internal/parser"
)

const (
	defaultConversionLimit = 50
	maxConversionLimit     = 1000
)

// SpectrumHandlerImpl implements the SpectrumHandler interface
type SpectrumHandlerImpl struct {
	converter Converter
	ledger    Ledger
	events    Publisher
	outputDir string
	policy    parser.WavelengthPolicy
}

// NewSpectrumHandler creates a spectrum handler. ledger and events may be nil.
func NewSpectrumHandler(converter Converter, ledger Ledger, events Publisher, outputDir string, policy parser.WavelengthPolicy) SpectrumHandler {
	return &SpectrumHandlerImpl{
		converter: converter,
		ledger:    ledger,
		events:    events,
		outputDir: outputDir,
		policy:    policy,
	}
}

// inspectResponse summarises a parsed spectrum without its flux values.
type inspectResponse struct {
	Source          string            `json:"source"`
	Metadata        models.Metadata   `json:"metadata"`
	Shape           [3]int            `json:"shape"`
	Time            []float64         `json:"time"`
	WavelengthRange [2]float64        `json:"wavelengthRange"`
	Angles          []models.BinEdges `json:"angles"`
	Warnings        []string          `json:"warnings,omitempty"`
}

// HandleInspect parses an uploaded file and returns its summary
func (h *SpectrumHandlerImpl) HandleInspect(c echo.Context) error {
	name, data, err := readUpload(c)
	if err != nil {
		return err
	}

	spec, err := parser.ParseBytes(name, data, parser.Options{WavelengthPolicy: h.policy})
	if err != nil {
		return NewConversionError("failed to parse spectrum", err)
	}

	t, n, m := spec.Dims()
	resp := inspectResponse{
		Source:   spec.Source,
		Metadata: spec.Metadata,
		Shape:    [3]int{t, n, m},
		Time:     spec.Time,
		Angles:   spec.Angles,
		Warnings: spec.Warnings,
	}
	if n > 0 {
		resp.WavelengthRange = [2]float64{spec.Wavelengths[0].Low, spec.Wavelengths[n-1].High}
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleConvert converts an uploaded file into the configured output directory
func (h *SpectrumHandlerImpl) HandleConvert(c echo.Context) error {
	name, data, err := readUpload(c)
	if err != nil {
		return err
	}

	res := h.converter.ConvertBytes(c.Request().Context(), "", name, data, h.outputDir)
	if h.events != nil {
		h.events.Publish(MsgTypeConversion, res)
	}
	if res.Failed() {
		return newKindError(res.ErrorKind, "conversion failed", res.Error)
	}
	return c.JSON(http.StatusCreated, res)
}

// HandleListConversions returns recent ledger entries
func (h *SpectrumHandlerImpl) HandleListConversions(c echo.Context) error {
	if h.ledger == nil {
		return NewServiceUnavailableError("conversion catalog is disabled")
	}

	limit := defaultConversionLimit
	if raw := c.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return NewValidationError("limit")
		}
		limit = min(v, maxConversionLimit)
	}

	entries, err := h.ledger.List(c.Request().Context(), limit)
	if err != nil {
		return NewInternalError("failed to list conversions", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// readUpload returns the multipart "file" field. Only the base name is kept
// since it carries the metadata.
func readUpload(c echo.Context) (string, []byte, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return "", nil, NewBadRequestError("missing multipart field \"file\"", err)
	}
	f, err := fh.Open()
	if err != nil {
		return "", nil, NewBadRequestError("failed to open uploaded file", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, NewBadRequestError(fmt.Sprintf("failed to read %s", fh.Filename), err)
	}
	return filepath.Base(fh.Filename), data, nil
}
