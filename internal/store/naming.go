package store

import (
	"fmt"

	"github.com/kilonova-lab/specconv/internal/models"
)

// outputNameFormat is the fixed output filename template.
const outputNameFormat = "kn_top%d_wind%d_md%.3f_vd%.3f_mw%.3f_vw%.3f"

// OutputName formats the output filename for a spectrum's metadata. ext is
// appended verbatim.
func OutputName(meta models.Metadata, ext string) string {
	return fmt.Sprintf(outputNameFormat,
		int(meta.Topology), int(meta.Wind),
		meta.MassDynamical, meta.VelocityDynamical,
		meta.MassWind, meta.VelocityWind) + ext
}
