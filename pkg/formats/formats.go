// Package formats provides parsers for binary map file formats.
package formats

// Note: BSP (Quake III "IBSP") geometry lumps are implemented in bsp.go
// Note: entity lump tokenizing is implemented in bsp_entities.go
