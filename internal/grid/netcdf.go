package grid

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ctessum/cdf"

	"github.com/Althuwaynee/iraqairquality/internal/district"
)

// DustVariables are the variable names probed, in order, when no variable
// is configured. CAMS files use SCONC_DUST in kg/m³.
var DustVariables = []string{"SCONC_DUST", "dust", "DUST", "PM10_DUST", "dust_concentration", "DUST_UGM3"}

var (
	latNames  = []string{"lat", "latitude", "LAT", "LATITUDE"}
	lonNames  = []string{"lon", "longitude", "LON", "LONGITUDE"}
	timeNames = []string{"time", "TIME", "valid_time"}
)

// ErrNoDustVariable is returned when none of the dust variables is present.
var ErrNoDustVariable = errors.New("netcdf: no dust variable found")

// NetCDFOptions controls ReadNetCDF.
type NetCDFOptions struct {
	// Variable overrides the probed dust variable names.
	Variable string

	// BBox keeps only cells inside it. Zero value keeps all cells.
	BBox district.BBox

	// FileTime stamps files that carry no time dimension.
	FileTime time.Time
}

// ReadNetCDF decodes a NetCDF classic file into frames, one per time step.
// Values in kg/m³ are converted to µg/m³, negatives are clipped to zero and
// fill values are dropped.
func ReadNetCDF(path string, opts NetCDFOptions) ([]Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening netcdf: %w", err)
	}
	defer fh.Close()

	f, err := cdf.Open(fh)
	if err != nil {
		return nil, fmt.Errorf("reading netcdf header %s: %w", path, err)
	}

	varName := opts.Variable
	if varName == "" {
		varName = firstPresent(f.Header.Variables(), DustVariables)
	}
	if varName == "" {
		return nil, fmt.Errorf("%w in %s", ErrNoDustVariable, path)
	}

	dims := f.Header.Dimensions(varName)
	lengths := f.Header.Lengths(varName)
	if len(dims) != len(lengths) {
		return nil, fmt.Errorf("netcdf %s: inconsistent shape for %s", path, varName)
	}

	latDim := indexOfAny(dims, latNames)
	lonDim := indexOfAny(dims, lonNames)
	if latDim < 0 || lonDim < 0 {
		return nil, fmt.Errorf("netcdf %s: %s has no lat/lon dimensions %v", path, varName, dims)
	}
	timeDim := indexOfAny(dims, timeNames)

	lats, err := readFloats(f, dims[latDim])
	if err != nil {
		return nil, err
	}
	lons, err := readFloats(f, dims[lonDim])
	if err != nil {
		return nil, err
	}

	var times []time.Time
	if timeDim >= 0 {
		times, err = readTimes(f, dims[timeDim])
		if err != nil {
			return nil, err
		}
	} else {
		ft := opts.FileTime
		if ft.IsZero() {
			ft = time.Now().UTC().Truncate(time.Hour)
		}
		times = []time.Time{ft.UTC()}
	}

	values, err := readFloats(f, varName)
	if err != nil {
		return nil, err
	}

	scale := 1.0
	if units, ok := f.Header.GetAttribute(varName, "units").(string); ok && strings.Contains(strings.ToLower(units), "kg") {
		scale = 1e9
	}
	fill, hasFill := fillValue(f, varName)

	strides := make([]int, len(lengths))
	stride := 1
	for i := len(lengths) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= lengths[i]
	}
	if len(values) < stride {
		return nil, fmt.Errorf("netcdf %s: %s holds %d values, want %d", path, varName, len(values), stride)
	}

	filter := opts.BBox != (district.BBox{})
	frames := make([]Frame, 0, len(times))
	for ti, t := range times {
		frame := Frame{Time: t}
		for yi, lat := range lats {
			for xi, rawLon := range lons {
				lon := normalizeLon(rawLon)
				if filter && !opts.BBox.ContainsPoint(lat, lon) {
					continue
				}
				idx := yi*strides[latDim] + xi*strides[lonDim]
				if timeDim >= 0 {
					idx += ti * strides[timeDim]
				}
				v := values[idx]
				if math.IsNaN(v) || (hasFill && v == fill) {
					continue
				}
				v *= scale
				if v < 0 {
					v = 0
				}
				frame.Cells = append(frame.Cells, Cell{Lat: lat, Lon: lon, Value: v})
			}
		}
		frames = append(frames, frame)
	}

	sort.Slice(frames, func(i, j int) bool { return frames[i].Time.Before(frames[j].Time) })
	return frames, nil
}

func readFloats(f *cdf.File, name string) ([]float64, error) {
	r := f.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("reading netcdf variable %s: %w", name, err)
	}
	out, ok := toFloat64s(buf)
	if !ok {
		return nil, fmt.Errorf("netcdf variable %s: unsupported type %T", name, buf)
	}
	return out, nil
}

func readTimes(f *cdf.File, name string) ([]time.Time, error) {
	raw, err := readFloats(f, name)
	if err != nil {
		return nil, err
	}
	units, _ := f.Header.GetAttribute(name, "units").(string)
	step, epoch, err := ParseTimeUnits(units)
	if err != nil {
		return nil, fmt.Errorf("netcdf variable %s: %w", name, err)
	}

	out := make([]time.Time, len(raw))
	for i, v := range raw {
		out[i] = epoch.Add(time.Duration(v * float64(step))).UTC().Round(time.Minute)
	}
	return out, nil
}

// ParseTimeUnits parses CF time units such as "hours since 2025-10-17 00:00:00".
func ParseTimeUnits(units string) (time.Duration, time.Time, error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return 0, time.Time{}, fmt.Errorf("unsupported time units %q", units)
	}

	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "seconds", "second", "s":
		step = time.Second
	case "minutes", "minute":
		step = time.Minute
	case "hours", "hour", "h":
		step = time.Hour
	case "days", "day":
		step = 24 * time.Hour
	default:
		return 0, time.Time{}, fmt.Errorf("unsupported time step in %q", units)
	}

	ref := strings.TrimSpace(parts[1])
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.0",
		"2006-01-02 15:04",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if epoch, err := time.Parse(layout, ref); err == nil {
			return step, epoch.UTC(), nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("unsupported reference time in %q", units)
}

func fillValue(f *cdf.File, name string) (float64, bool) {
	for _, attr := range []string{"_FillValue", "missing_value"} {
		vals, ok := toFloat64s(f.Header.GetAttribute(name, attr))
		if ok && len(vals) > 0 {
			return vals[0], true
		}
	}
	return 0, false
}

func toFloat64s(v interface{}) ([]float64, bool) {
	switch vals := v.(type) {
	case []float64:
		return vals, true
	case []float32:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, true
	case []int32:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, true
	case []int16:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, true
	case []int8:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, true
	case []uint8:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, true
	case string:
		x, err := strconv.ParseFloat(strings.TrimSpace(vals), 64)
		if err != nil {
			return nil, false
		}
		return []float64{x}, true
	default:
		return nil, false
	}
}

func firstPresent(have, want []string) string {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	for _, w := range want {
		if set[w] {
			return w
		}
	}
	return ""
}

func indexOfAny(dims, names []string) int {
	for i, d := range dims {
		for _, n := range names {
			if d == n {
				return i
			}
		}
	}
	return -1
}

// normalizeLon maps 0..360 longitudes onto -180..180.
func normalizeLon(lon float64) float64 {
	if lon > 180 {
		return lon - 360
	}
	return lon
}
