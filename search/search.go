// Package search finds tuning catalogues under a directory tree or object
// store, using a recursive TileDB VFS trawl, and reads the zapped-channels
// list and beam-mapping table from the local paths it is given; those two
// files are not searched for.
package search

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	tiledb "github.com/TileDB-Inc/TileDB-Go"

	dedisp "github.com/TRASAL/dedisp"
)

// trawl recursively walks uri (local path or object-store URI) via the
// TileDB VFS, collecting every entry whose basename matches pattern.
func trawl(vfs *tiledb.VFS, pattern string, uri string, items []string) ([]string, error) {
	dirs, files, err := vfs.List(uri)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		match, err := filepath.Match(pattern, filepath.Base(file))
		if err != nil {
			return nil, err
		}
		if match {
			items = append(items, file)
		}
	}

	for _, dir := range dirs {
		items, err = trawl(vfs, pattern, dir, items)
		if err != nil {
			return nil, err
		}
	}

	return items, nil
}

// FindCatalogues recursively finds every "*.catalogue" file under uri, using
// the TileDB VFS so object stores (in addition to local filesystems) can be
// searched with a config.
func FindCatalogues(ctx *tiledb.Context, config *tiledb.Config, uri string) ([]string, error) {
	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		return nil, err
	}
	defer vfs.Free()

	return trawl(vfs, "*.catalogue", uri, make([]string, 0))
}

// ReadZappedChannels reads a zapped-channels list: one integer channel index
// per line, blank lines ignored.
func ReadZappedChannels(path string, nrChannels int) (dedisp.ZapMask, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mask := dedisp.NewZapMask(nrChannels)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		channel, err := strconv.Atoi(line)
		if err != nil {
			return nil, errors.Join(dedisp.ErrCatalogueLine, err)
		}
		if channel < 0 || channel >= nrChannels {
			return nil, dedisp.ErrBeamMappingOutOfRange
		}
		mask.Zap(channel)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return mask, nil
}

// ReadBeamMapping reads a beam-mapping table: one line per synthesized beam,
// each line a whitespace-separated list of width receiver-beam indices
// (width is NrChannels for direct mode, NrSubbands for step two).
func ReadBeamMapping(path string, width, nrBeams int) (dedisp.BeamMapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return dedisp.BeamMapping{}, err
	}
	defer f.Close()

	table := make([]int, 0, width)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != width {
			return dedisp.BeamMapping{}, dedisp.ErrBeamMappingOutOfRange
		}
		for _, field := range fields {
			beam, err := strconv.Atoi(field)
			if err != nil {
				return dedisp.BeamMapping{}, errors.Join(dedisp.ErrCatalogueLine, err)
			}
			table = append(table, beam)
		}
	}
	if err := scanner.Err(); err != nil {
		return dedisp.BeamMapping{}, err
	}

	return dedisp.NewBeamMapping(table, width, nrBeams)
}
