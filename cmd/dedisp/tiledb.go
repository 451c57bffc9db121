package main

import (
	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// loadTileDBConfig returns a generic config if no path is supplied.
func loadTileDBConfig(configURI string) (*tiledb.Config, error) {
	if configURI == "" {
		return tiledb.NewConfig()
	}
	return tiledb.LoadConfig(configURI)
}

func newTileDBContext(config *tiledb.Config) (*tiledb.Context, error) {
	return tiledb.NewContext(config)
}
