// Package store persists autotuning survey results and archived dedispersed
// output to TileDB arrays: struct-tag-driven attribute schemas, a
// Zstandard filter pipeline, and a Julian-date stamp on every write.
package store

import (
	"errors"
	"reflect"
	"time"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/soniakeys/meeus/v3/julian"
	stgpsr "github.com/yuin/stagparser"

	dedisp "github.com/TRASAL/dedisp"
)

var (
	ErrCreateAttribute = errors.New("error creating tiledb attribute")
	ErrSchemaDtype     = errors.New("dtype tag not found or not recognised")
)

// SurveyRecord is one row of the autotuning survey: the timing, throughput
// and legality measured for a device/DM-count pair. The configuration that
// was measured is not stored in the record.
type SurveyRecord struct {
	DeviceName   string  `tiledb:"dtype=string,ftype=dim"`
	NrDMs        uint64  `tiledb:"dtype=uint64,ftype=dim"`
	JulianDay    float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	MilliSeconds float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	GFLOPS       float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Legal        uint8   `tiledb:"dtype=uint8,ftype=attr" filters:"zstd(level=16)"`
}

// ArchiveRecord is one row of the dedispersed-output archive: a synthesized
// beam/DM trial's dedispersed samples for a single batch.
type ArchiveRecord struct {
	SynthesizedBeam uint64    `tiledb:"dtype=uint64,ftype=dim"`
	DM              uint64    `tiledb:"dtype=uint64,ftype=dim"`
	BatchIndex      uint64    `tiledb:"dtype=uint64,ftype=dim"`
	JulianDay       float64   `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Samples         []float32 `tiledb:"dtype=float32,ftype=attr,var" filters:"bysh,zstd(level=19)"`
}

// ArrayOpen opens a tiledb array for the given mode.
func ArrayOpen(ctx *tiledb.Context, uri string, mode tiledb.QueryType) (*tiledb.Array, error) {
	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return nil, err
	}
	if err := array.Open(mode); err != nil {
		array.Free()
		return nil, err
	}
	return array, nil
}

// ZstdFilter initialises a Zstandard compression filter at the given level.
func ZstdFilter(ctx *tiledb.Context, level int32) (*tiledb.Filter, error) {
	filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_ZSTD)
	if err != nil {
		return nil, err
	}
	if err := filt.SetOption(tiledb.TILEDB_COMPRESSION_LEVEL, level); err != nil {
		filt.Free()
		return nil, err
	}
	return filt, nil
}

// AddFilters sequentially appends filters to a filter pipeline list.
func AddFilters(list *tiledb.FilterList, filters ...*tiledb.Filter) error {
	for _, f := range filters {
		if err := list.AddFilter(f); err != nil {
			return err
		}
	}
	return nil
}

// julianStamp converts a wall-clock time to a Julian day number via
// meeus/v3/julian, stamping survey/archive rows at write time.
func julianStamp(t time.Time) float64 {
	t = t.UTC()
	y, m, d := t.Date()
	frac := (float64(t.Hour())*3600 + float64(t.Minute())*60 + float64(t.Second())) / 86400.0
	return julian.CalendarGregorianToJD(y, int(m), float64(d)+frac)
}

// dtypeOf maps a `tiledb:"dtype=..."` tag value to a tiledb.Datatype, the
// subset that the survey/archive schemas exercise.
func dtypeOf(name string) (tiledb.Datatype, bool) {
	switch name {
	case "uint8":
		return tiledb.TILEDB_UINT8, true
	case "uint64":
		return tiledb.TILEDB_UINT64, true
	case "float32":
		return tiledb.TILEDB_FLOAT32, true
	case "float64":
		return tiledb.TILEDB_FLOAT64, true
	case "string":
		return tiledb.TILEDB_STRING_UTF8, true
	}
	return 0, false
}

// createAttr creates one tiledb attribute from its struct tags, attaching a
// Zstandard (or byteshuffle+Zstandard, for "var" fields tagged "bysh")
// filter pipeline derived from the `tiledb`/`filters` struct tags.
func createAttr(ctx *tiledb.Context, schema *tiledb.ArraySchema, fieldName string, tdbDefs []stgpsr.Definition, filtDefs []stgpsr.Definition) error {
	var dtypeName string
	var isVar bool
	for _, d := range tdbDefs {
		switch d.Name() {
		case "dtype":
			v, _ := d.Attribute("dtype")
			dtypeName, _ = v.(string)
		case "var":
			isVar = true
		}
	}
	dtype, ok := dtypeOf(dtypeName)
	if !ok {
		return errors.Join(ErrSchemaDtype, errors.New(dtypeName))
	}

	filterList, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return errors.Join(ErrCreateAttribute, err)
	}
	defer filterList.Free()

	for _, fd := range filtDefs {
		switch fd.Name() {
		case "zstd":
			levelAttr, _ := fd.Attribute("level")
			level, _ := levelAttr.(int64)
			filt, err := ZstdFilter(ctx, int32(level))
			if err != nil {
				return errors.Join(ErrCreateAttribute, err)
			}
			defer filt.Free()
			if err := filterList.AddFilter(filt); err != nil {
				return errors.Join(ErrCreateAttribute, err)
			}
		case "bysh":
			filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_BYTESHUFFLE)
			if err != nil {
				return errors.Join(ErrCreateAttribute, err)
			}
			defer filt.Free()
			if err := filterList.AddFilter(filt); err != nil {
				return errors.Join(ErrCreateAttribute, err)
			}
		}
	}

	attr, err := tiledb.NewAttribute(ctx, fieldName, dtype)
	if err != nil {
		return errors.Join(ErrCreateAttribute, err)
	}
	defer attr.Free()

	if isVar {
		if err := attr.SetCellValNum(tiledb.TILEDB_VAR_NUM); err != nil {
			return errors.Join(ErrCreateAttribute, err)
		}
	}
	if err := attr.SetFilterList(filterList); err != nil {
		return errors.Join(ErrCreateAttribute, err)
	}
	return schema.AddAttributes(attr)
}

// schemaAttrs walks every exported field of t, adding a tiledb attribute for
// every field tagged ftype=attr (skipping ftype=dim fields, which the caller
// adds to the domain separately).
func schemaAttrs(ctx *tiledb.Context, schema *tiledb.ArraySchema, t any) error {
	tdbDefs, err := stgpsr.ParseStruct(t, "tiledb")
	if err != nil {
		return errors.Join(ErrCreateAttribute, err)
	}
	filtDefs, _ := stgpsr.ParseStruct(t, "filters")

	typ := reflect.TypeOf(t).Elem()
	for i := 0; i < typ.NumField(); i++ {
		name := typ.Field(i).Name
		defs := tdbDefs[name]
		ftype := ""
		for _, d := range defs {
			if d.Name() == "ftype" {
				v, _ := d.Attribute("ftype")
				ftype, _ = v.(string)
			}
		}
		if ftype != "attr" {
			continue
		}
		if err := createAttr(ctx, schema, name, defs, filtDefs[name]); err != nil {
			return err
		}
	}
	return nil
}

// NewSurveySchema builds the dense array schema for the autotuning survey:
// dimensions (device_name bucketed by a fixed label space is infeasible for
// TileDB dense domains, so the survey array is indexed purely by nr_dms;
// device is folded into the array URI instead, one array per device).
func NewSurveySchema(ctx *tiledb.Context, maxDMs uint64) (*tiledb.ArraySchema, error) {
	domain, err := tiledb.NewDomain(ctx)
	if err != nil {
		return nil, err
	}
	defer domain.Free()

	dim, err := tiledb.NewDimension(ctx, "nr_dms", tiledb.TILEDB_UINT64, []uint64{0, maxDMs}, maxDMs+1)
	if err != nil {
		return nil, err
	}
	defer dim.Free()
	if err := domain.AddDimensions(dim); err != nil {
		return nil, err
	}

	schema, err := tiledb.NewArraySchema(ctx, tiledb.TILEDB_DENSE)
	if err != nil {
		return nil, err
	}
	if err := schema.SetDomain(domain); err != nil {
		return nil, errors.Join(ErrCreateAttribute, err)
	}
	if err := schema.SetCellOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreateAttribute, err)
	}
	if err := schema.SetTileOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreateAttribute, err)
	}

	if err := schemaAttrs(ctx, schema, &SurveyRecord{}); err != nil {
		return nil, err
	}
	return schema, nil
}

// CreateSurveyArray creates an empty survey array on disk (or object store)
// at uri, sized for DM counts in [0, maxDMs].
func CreateSurveyArray(ctx *tiledb.Context, uri string, maxDMs uint64) error {
	schema, err := NewSurveySchema(ctx, maxDMs)
	if err != nil {
		return errors.Join(dedisp.ErrCreateSurveyTdb, err)
	}
	defer schema.Free()

	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return errors.Join(dedisp.ErrCreateSurveyTdb, err)
	}
	defer array.Free()

	if err := array.Create(schema); err != nil {
		return errors.Join(dedisp.ErrCreateSurveyTdb, err)
	}
	return nil
}

// NewArchiveSchema builds the dense array schema for the dedispersed-output
// archive: dimensions (synthesized_beam, dm, batch_index).
func NewArchiveSchema(ctx *tiledb.Context, maxBeam, maxDM, maxBatch uint64) (*tiledb.ArraySchema, error) {
	domain, err := tiledb.NewDomain(ctx)
	if err != nil {
		return nil, err
	}
	defer domain.Free()

	beamDim, err := tiledb.NewDimension(ctx, "synthesized_beam", tiledb.TILEDB_UINT64, []uint64{0, maxBeam}, maxBeam+1)
	if err != nil {
		return nil, err
	}
	defer beamDim.Free()
	dmDim, err := tiledb.NewDimension(ctx, "dm", tiledb.TILEDB_UINT64, []uint64{0, maxDM}, maxDM+1)
	if err != nil {
		return nil, err
	}
	defer dmDim.Free()
	batchDim, err := tiledb.NewDimension(ctx, "batch_index", tiledb.TILEDB_UINT64, []uint64{0, maxBatch}, maxBatch+1)
	if err != nil {
		return nil, err
	}
	defer batchDim.Free()

	if err := domain.AddDimensions(beamDim, dmDim, batchDim); err != nil {
		return nil, err
	}

	schema, err := tiledb.NewArraySchema(ctx, tiledb.TILEDB_DENSE)
	if err != nil {
		return nil, err
	}
	if err := schema.SetDomain(domain); err != nil {
		return nil, errors.Join(ErrCreateAttribute, err)
	}
	if err := schema.SetCellOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreateAttribute, err)
	}
	if err := schema.SetTileOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreateAttribute, err)
	}

	if err := schemaAttrs(ctx, schema, &ArchiveRecord{}); err != nil {
		return nil, err
	}
	return schema, nil
}

// CreateArchiveArray creates an empty dedispersed-output archive array on
// disk (or object store) at uri, sized for the given beam/DM/batch extents.
func CreateArchiveArray(ctx *tiledb.Context, uri string, maxBeam, maxDM, maxBatch uint64) error {
	schema, err := NewArchiveSchema(ctx, maxBeam, maxDM, maxBatch)
	if err != nil {
		return errors.Join(dedisp.ErrCreateArchiveTdb, err)
	}
	defer schema.Free()

	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return errors.Join(dedisp.ErrCreateArchiveTdb, err)
	}
	defer array.Free()

	if err := array.Create(schema); err != nil {
		return errors.Join(dedisp.ErrCreateArchiveTdb, err)
	}
	return nil
}

// WriteArchive writes one synthesized-beam/DM/batch cell's dedispersed
// samples to the archive, stamping the row with the current Julian day.
func WriteArchive(ctx *tiledb.Context, uri string, beam, dm, batch uint64, samples []float32, at time.Time) error {
	array, err := ArrayOpen(ctx, uri, tiledb.TILEDB_WRITE)
	if err != nil {
		return errors.Join(dedisp.ErrWriteArchiveTdb, err)
	}
	defer array.Close()
	defer array.Free()

	query, err := tiledb.NewQuery(ctx, array)
	if err != nil {
		return errors.Join(dedisp.ErrWriteArchiveTdb, err)
	}
	defer query.Free()

	if err := query.SetLayout(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return errors.Join(dedisp.ErrWriteArchiveTdb, err)
	}
	subarray, err := array.NewSubarray()
	if err != nil {
		return errors.Join(dedisp.ErrWriteArchiveTdb, err)
	}
	defer subarray.Free()
	for _, r := range []struct {
		name string
		v    uint64
	}{{"synthesized_beam", beam}, {"dm", dm}, {"batch_index", batch}} {
		if err := subarray.AddRangeByName(r.name, r.v, r.v); err != nil {
			return errors.Join(dedisp.ErrWriteArchiveTdb, err)
		}
	}
	if err := query.SetSubarray(subarray); err != nil {
		return errors.Join(dedisp.ErrWriteArchiveTdb, err)
	}

	jd := []float64{julianStamp(at)}
	samplesBuf := samples
	offsets := []uint64{0}

	if _, err := query.SetDataBuffer("JulianDay", jd); err != nil {
		return errors.Join(dedisp.ErrWriteArchiveTdb, err)
	}
	if _, err := query.SetDataBuffer("Samples", samplesBuf); err != nil {
		return errors.Join(dedisp.ErrWriteArchiveTdb, err)
	}
	if _, err := query.SetOffsetsBuffer("Samples", offsets); err != nil {
		return errors.Join(dedisp.ErrWriteArchiveTdb, err)
	}

	if err := query.Submit(); err != nil {
		return errors.Join(dedisp.ErrWriteArchiveTdb, err)
	}
	return query.Finalize()
}

// WriteSurvey writes one measurement row per candidate to the dense nr_dms
// slot, stamping every row with the current Julian day.
func WriteSurvey(ctx *tiledb.Context, uri string, nrDMs uint64, ms, gflops float64, legal bool, at time.Time) error {
	array, err := ArrayOpen(ctx, uri, tiledb.TILEDB_WRITE)
	if err != nil {
		return errors.Join(dedisp.ErrWriteSurveyTdb, err)
	}
	defer array.Close()
	defer array.Free()

	query, err := tiledb.NewQuery(ctx, array)
	if err != nil {
		return errors.Join(dedisp.ErrWriteSurveyTdb, err)
	}
	defer query.Free()

	if err := query.SetLayout(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return errors.Join(dedisp.ErrWriteSurveyTdb, err)
	}
	subarray, err := array.NewSubarray()
	if err != nil {
		return errors.Join(dedisp.ErrWriteSurveyTdb, err)
	}
	defer subarray.Free()
	if err := subarray.AddRangeByName("nr_dms", nrDMs, nrDMs); err != nil {
		return errors.Join(dedisp.ErrWriteSurveyTdb, err)
	}
	if err := query.SetSubarray(subarray); err != nil {
		return errors.Join(dedisp.ErrWriteSurveyTdb, err)
	}

	jd := []float64{julianStamp(at)}
	msBuf := []float64{ms}
	gflopsBuf := []float64{gflops}
	legalFlag := uint8(0)
	if legal {
		legalFlag = 1
	}
	legalBuf := []uint8{legalFlag}

	if _, err := query.SetDataBuffer("JulianDay", jd); err != nil {
		return errors.Join(dedisp.ErrWriteSurveyTdb, err)
	}
	if _, err := query.SetDataBuffer("MilliSeconds", msBuf); err != nil {
		return errors.Join(dedisp.ErrWriteSurveyTdb, err)
	}
	if _, err := query.SetDataBuffer("GFLOPS", gflopsBuf); err != nil {
		return errors.Join(dedisp.ErrWriteSurveyTdb, err)
	}
	if _, err := query.SetDataBuffer("Legal", legalBuf); err != nil {
		return errors.Join(dedisp.ErrWriteSurveyTdb, err)
	}

	if err := query.Submit(); err != nil {
		return errors.Join(dedisp.ErrWriteSurveyTdb, err)
	}
	return query.Finalize()
}
