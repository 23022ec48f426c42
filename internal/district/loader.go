package district

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"

	"github.com/Althuwaynee/iraqairquality/internal/validation"
)

// Shapefile attribute columns for GADM level-2 boundaries.
const (
	FieldDistrictID   = "ID_2"
	FieldDistrictName = "NAME_2"
	FieldProvinceID   = "ID_1"
	FieldProvinceName = "NAME_1"
)

// ShapefileOptions controls LoadShapefile.
type ShapefileOptions struct {
	// BBox drops districts whose centroid lies outside it. Zero value keeps all.
	BBox BBox
}

// LoadShapefile reads district polygons and attributes from a shapefile.
// Centroids are computed from the polygons.
func LoadShapefile(path string, opts ShapefileOptions) ([]District, error) {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("opening district shapefile: %w", err)
	}
	defer dec.Close()

	filter := opts.BBox != (BBox{})

	var districts []District
	for row := 0; ; row++ {
		g, fields, more := dec.DecodeRowFields(FieldDistrictID, FieldDistrictName, FieldProvinceID, FieldProvinceName)
		if !more {
			break
		}

		poly, ok := g.(geom.Polygonal)
		if !ok {
			return nil, validation.NewSchemaError(path, fmt.Sprintf("row %d", row), "district shapes must be polygons")
		}

		id := strings.TrimSpace(fields[FieldDistrictID])
		if id == "" {
			return nil, validation.NewSchemaError(path, FieldDistrictID, fmt.Sprintf("row %d has no district id", row))
		}

		c := poly.Centroid()
		if filter && !opts.BBox.ContainsPoint(c.Y, c.X) {
			continue
		}

		districts = append(districts, District{
			ID:           id,
			Name:         strings.TrimSpace(fields[FieldDistrictName]),
			ProvinceID:   strings.TrimSpace(fields[FieldProvinceID]),
			ProvinceName: strings.TrimSpace(fields[FieldProvinceName]),
			Lat:          c.Y,
			Lon:          c.X,
			Boundary:     poly,
		})
	}

	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("decoding district shapefile: %w", err)
	}

	return districts, nil
}

// catalogFile is the JSON district catalog layout.
type catalogFile struct {
	Districts []District `json:"districts"`
}

// LoadJSON reads a district catalog of the form {"districts": [...]}.
// Unknown fields and wrong types are rejected with a *validation.SchemaError.
func LoadJSON(r io.Reader, source string) ([]District, error) {
	var catalog catalogFile
	if err := validation.DecodeStrict(r, &catalog, source); err != nil {
		return nil, err
	}
	if catalog.Districts == nil {
		return nil, validation.NewSchemaError(source, "districts", "missing")
	}
	return catalog.Districts, nil
}

// Load builds a registry from a .shp or .json file.
func Load(path string) (*Registry, error) {
	var (
		districts []District
		err       error
	)

	switch {
	case strings.HasSuffix(strings.ToLower(path), ".shp"):
		districts, err = LoadShapefile(path, ShapefileOptions{BBox: IraqBBox})
	default:
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("opening district catalog: %w", openErr)
		}
		defer f.Close()
		districts, err = LoadJSON(f, path)
	}
	if err != nil {
		return nil, err
	}

	return New(districts)
}
