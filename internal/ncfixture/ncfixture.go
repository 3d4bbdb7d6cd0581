// Package ncfixture writes small ensemble NetCDF files for tests.
package ncfixture

import (
	"fmt"

	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/dataset"
	"github.com/zequihg50/IPCC-Atlas-Datalab/internal/nc4"
)

// Ensemble describes the generated file: a tas(member, time, lat, lon)
// field plus coordinates, bounds, a 2D orog field and GCM/RCM metadata.
type Ensemble struct {
	Members, Times, Lats, Lons int

	// FillValue and MissingValue are the tas sentinels. One element of the
	// second member is set to each of them.
	FillValue    float32
	MissingValue float32

	// OmitMember drops the member dimension and member_id.
	OmitMember bool
	// Height2m adds a scalar height2m variable.
	Height2m bool
	// BoundsDim names the second dimension of the bounds variables.
	// Empty means "bnds".
	BoundsDim string
}

// Default is a 2 member, 2 step, 3x4 grid ensemble.
func Default() Ensemble {
	return Ensemble{Members: 2, Times: 2, Lats: 3, Lons: 4, FillValue: -9999, MissingValue: -8888}
}

// Tas is the generated value of tas[m, t, y, x] before sentinels are placed.
func Tas(m, t, y, x int) float32 {
	return float32(m*1000 + t*100 + y*10 + x)
}

// FillAt and MissingAt are the tas positions holding the sentinels.
var (
	FillAt    = [4]int{1, 0, 0, 0}
	MissingAt = [4]int{1, 1, 2, 3}
)

type variable struct {
	name   string
	dtype  dataset.DType
	dims   []string
	fill   interface{}
	attrs  []interface{}
	values interface{}
}

// Write creates the file at path in NetCDF classic format.
func Write(path string, e Ensemble) (err error) {
	w, err := nc4.CreateClassic(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()

	global := []interface{}{
		"Conventions", "CF-1.8",
		"title", "test ensemble",
		"project", "IPCC-AR6",
		"tracking_id", "hdl:0000",
		"geospatial_lat_min", []float64{-90},
		"frequency", "mon",
	}
	if err := putAttributes(w, "", global); err != nil {
		return err
	}

	memberDim, bnds := "member", e.BoundsDim
	if e.OmitMember {
		memberDim = "realization"
	}
	if bnds == "" {
		bnds = "bnds"
	}
	for _, d := range []struct {
		name string
		n    int
	}{{memberDim, e.Members}, {"time", e.Times}, {"lat", e.Lats}, {"lon", e.Lons}, {bnds, 2}} {
		if err := w.AddDimension(d.name, d.n); err != nil {
			return err
		}
	}

	if !e.OmitMember {
		members := make([]string, e.Members)
		institutions := make([]string, e.Members)
		for i := range members {
			members[i] = fmt.Sprintf("r%di1p1", i+1)
			institutions[i] = fmt.Sprintf("inst-%d", i)
		}
		if err := writeStrings(w, "member_id", memberDim, members, "long_name", "ensemble member"); err != nil {
			return err
		}
		if err := writeStrings(w, "gcm_institution", memberDim, institutions); err != nil {
			return err
		}
	}

	times := make([]float64, e.Times)
	timeBnds := make([]float64, 0, 2*e.Times)
	for i := range times {
		times[i] = 15 + 30*float64(i)
		timeBnds = append(timeBnds, 30*float64(i), 30*float64(i+1))
	}
	lats := make([]float32, e.Lats)
	latBnds := make([]float32, 0, 2*e.Lats)
	for i := range lats {
		lats[i] = -45 + 30*float32(i)
		latBnds = append(latBnds, lats[i]-15, lats[i]+15)
	}
	lons := make([]float32, e.Lons)
	lonBnds := make([]float32, 0, 2*e.Lons)
	for i := range lons {
		lons[i] = 45 * float32(i)
		lonBnds = append(lonBnds, lons[i]-22.5, lons[i]+22.5)
	}
	orog := make([]float32, 0, e.Lats*e.Lons)
	for y := 0; y < e.Lats; y++ {
		for x := 0; x < e.Lons; x++ {
			orog = append(orog, float32(y*e.Lons+x))
		}
	}

	vars := []variable{
		{"time", dataset.Float64, []string{"time"}, float64(-1), []interface{}{"units", "days since 2000-01-01"}, times},
		{"lat", dataset.Float32, []string{"lat"}, nil, []interface{}{"units", "degrees_north", "_CoordinateAxisType", "Lat"}, lats},
		{"lon", dataset.Float32, []string{"lon"}, nil, []interface{}{"units", "degrees_east"}, lons},
		{"time_bnds", dataset.Float64, []string{"time", bnds}, nil, nil, timeBnds},
		{"lat_bnds", dataset.Float32, []string{"lat", bnds}, nil, nil, latBnds},
		{"lon_bnds", dataset.Float32, []string{"lon", bnds}, nil, nil, lonBnds},
		{"orog", dataset.Float32, []string{"lat", "lon"}, float32(-1), []interface{}{"units", "m"}, orog},
	}
	if e.Height2m {
		vars = append(vars, variable{"height2m", dataset.Float64, nil, nil, []interface{}{"units", "m"}, []float64{2}})
	}
	vars = append(vars, variable{
		"tas", dataset.Float32, []string{memberDim, "time", "lat", "lon"}, e.FillValue,
		[]interface{}{"standard_name", "air_temperature", "units", "K", "missing_value", []float32{e.MissingValue}},
		tas(e),
	})

	for _, v := range vars {
		if err := w.AddVariable(v.name, v.dtype, v.dims, dataset.Storage{Fill: v.fill}); err != nil {
			return err
		}
		if err := putAttributes(w, v.name, v.attrs); err != nil {
			return err
		}
	}
	for _, v := range vars {
		if err := w.Write(v.name, v.values); err != nil {
			return err
		}
	}
	return nil
}

func tas(e Ensemble) []float32 {
	values := make([]float32, 0, e.Members*e.Times*e.Lats*e.Lons)
	for m := 0; m < e.Members; m++ {
		for t := 0; t < e.Times; t++ {
			for y := 0; y < e.Lats; y++ {
				for x := 0; x < e.Lons; x++ {
					values = append(values, Tas(m, t, y, x))
				}
			}
		}
	}
	at := func(i [4]int) int {
		return ((i[0]*e.Times+i[1])*e.Lats+i[2])*e.Lons + i[3]
	}
	if e.Members > MissingAt[0] && e.Times > MissingAt[1] && e.Lats > MissingAt[2] && e.Lons > MissingAt[3] {
		values[at(FillAt)] = e.FillValue
		values[at(MissingAt)] = e.MissingValue
	}
	return values
}

func writeStrings(w *nc4.Writer, name, dim string, values []string, attrs ...interface{}) error {
	strlen := 1
	for _, s := range values {
		strlen = max(strlen, len(s))
	}
	if err := w.AddCharVariable(name, []string{dim}, strlen); err != nil {
		return err
	}
	if err := putAttributes(w, name, attrs); err != nil {
		return err
	}
	return w.Write(name, values)
}

func putAttributes(w *nc4.Writer, varName string, kv []interface{}) error {
	for i := 0; i+1 < len(kv); i += 2 {
		if err := w.PutAttribute(varName, kv[i].(string), kv[i+1]); err != nil {
			return err
		}
	}
	return nil
}
