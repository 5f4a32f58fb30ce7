//go:build !(cgo && sqlite3_cgo)

package db

// Pure-Go (wasm) sqlite. Used unless built with `-tags sqlite3_cgo` and cgo enabled.
import (
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const (
	driverID   = "ncruces/go-sqlite3"
	driverName = "sqlite3"
)
