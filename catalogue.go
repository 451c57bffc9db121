package dedisp

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode"

	stgpsr "github.com/yuin/stagparser"
)

// CatalogueEntry is one row of the tuning catalogue: a device name,
// the DM count it was tuned for, and the winning configuration. Field order
// on disk is driven by the `dedisp:"col=N"` tag on TuningPointConfig fields
// rather than hard-coded, the way schema.go derives TileDB attribute layout
// from struct tags.
type CatalogueEntry struct {
	DeviceName string
	NrDMs int
	Config TuningPointConfig
}

// catalogueColumn pairs a configuration field's name with its on-disk
// column index, parsed from the field's tag via stagparser.
type catalogueColumn struct {
	name string
	index int
}

// configColumns derives the on-disk column order for TuningPointConfig's
// fields from their `dedisp:"col=N"` tags.
func configColumns() []catalogueColumn {
	defs, _ := stgpsr.ParseStruct(&TuningPointConfig{}, "dedisp")

	cols := make([]catalogueColumn, 0, len(defs))
	for field, fieldDefs := range defs {
		for _, d := range fieldDefs {
			if d.Name() != "col" {
				continue
			}
			raw, _ := d.Attribute("col")
			n, err := strconv.Atoi(fmt.Sprint(raw))
			if err != nil {
				continue
			}
			cols = append(cols, catalogueColumn{name: field, index: n})
		}
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].index < cols[j].index })
	return cols
}

func boolToFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func flagToBool(s string) (bool, error) {
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, ErrCatalogueLine
	}
}

// encodeConfigFields renders a TuningPointConfig's fields, in tag-declared
// order, as the space-separated tail of a catalogue line: split_batches
// local_mem unroll threads_d0 threads_d1 threads_d2 items_d0 items_d1 items_d2.
func encodeConfigFields(c TuningPointConfig) []string {
	cols := configColumns()
	v := reflect.ValueOf(c)
	out := make([]string, 0, len(cols))
	for _, col := range cols {
		field := v.FieldByName(col.name)
		switch field.Kind() {
		case reflect.Bool:
			out = append(out, boolToFlag(field.Bool()))
		default:
			out = append(out, strconv.FormatInt(field.Int(), 10))
		}
	}
	return out
}

func decodeConfigFields(fields []string) (TuningPointConfig, error) {
	cols := configColumns()
	if len(fields) != len(cols) {
		return TuningPointConfig{}, ErrCatalogueLine
	}

	var c TuningPointConfig
	v := reflect.ValueOf(&c).Elem()
	for i, col := range cols {
		field := v.FieldByName(col.name)
		switch field.Kind() {
		case reflect.Bool:
			b, err := flagToBool(fields[i])
			if err != nil {
				return TuningPointConfig{}, err
			}
			field.SetBool(b)
		default:
			n, err := strconv.ParseInt(fields[i], 10, 64)
			if err != nil {
				return TuningPointConfig{}, errors.Join(ErrCatalogueLine, err)
			}
			field.SetInt(n)
		}
	}
	return c, nil
}

// Catalogue is the in-memory form of the tuning-catalogue file:
// device_name -> nr_dms -> configuration. Duplicate keys within a device
// overwrite the prior value, both in memory and on disk.
type Catalogue map[string]map[int]TuningPointConfig

// NewCatalogue returns an empty catalogue.
func NewCatalogue() Catalogue {
	return make(Catalogue)
}

// Put inserts or overwrites the winning configuration for (device, nrDMs).
func (c Catalogue) Put(device string, nrDMs int, cfg TuningPointConfig) {
	if c[device] == nil {
		c[device] = make(map[int]TuningPointConfig)
	}
	c[device][nrDMs] = cfg
}

// Lookup returns the configuration persisted for (device, nrDMs).
func (c Catalogue) Lookup(device string, nrDMs int) (TuningPointConfig, bool) {
	byDMs, ok := c[device]
	if !ok {
		return TuningPointConfig{}, false
	}
	cfg, ok := byDMs[nrDMs]
	return cfg, ok
}

// LoadCatalogue reads a line-oriented tuning-catalogue file. It
// skips empty lines and lines whose first character is not alphabetic. A
// missing file is reported as ErrCatalogueFileNotFound.
func LoadCatalogue(path string) (Catalogue, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.Join(ErrCatalogueFileNotFound, err)
		}
		return nil, err
	}
	defer f.Close()

	cat := NewCatalogue()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !unicode.IsLetter(rune(line[0])) {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, ErrCatalogueLine
		}

		device := fields[0]
		nrDMs, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, errors.Join(ErrCatalogueLine, err)
		}
		cfg, err := decodeConfigFields(fields[2:])
		if err != nil {
			return nil, err
		}

		cat.Put(device, nrDMs, cfg)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return cat, nil
}

// SaveCatalogue writes the catalogue as the line-oriented text format
// LoadCatalogue reads, one line per (device, nrDMs) entry.
func SaveCatalogue(path string, cat Catalogue) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	devices := make([]string, 0, len(cat))
	for d := range cat {
		devices = append(devices, d)
	}
	sort.Strings(devices)

	for _, device := range devices {
		byDMs := cat[device]
		dms := make([]int, 0, len(byDMs))
		for n := range byDMs {
			dms = append(dms, n)
		}
		sort.Ints(dms)

		for _, n := range dms {
			fields := append([]string{device, strconv.Itoa(n)}, encodeConfigFields(byDMs[n])...)
			if _, err := fmt.Fprintln(w, strings.Join(fields, " ")); err != nil {
				return err
			}
		}
	}

	return w.Flush()
}
