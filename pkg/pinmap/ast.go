package pinmap

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// File is a parsed wiring file.
type File struct {
	Statements []*Statement `@@*`
}

// Statement is one declaration of a wiring file.
type Statement struct {
	Pos lexer.Position

	Chip    *ChipDecl    `  @@`
	Bus     *BusDecl     `| @@`
	Control *ControlDecl `| @@`
}

// ChipDecl names the part the wiring is for.
// Example: chip "AT28C256"
type ChipDecl struct {
	Name string `"chip" @String`
}

// BusDecl wires a group of lines, lowest bit first.
// Example: address A0..A14 = GPIO5, GPIO6, ...
type BusDecl struct {
	Kind  string   `@("address" | "data")`
	First string   `@Ident`
	Last  string   `Range @Ident Assign`
	Lines []string `@(Ident | Int) ( Comma @(Ident | Int) )*`
}

// ControlDecl wires one active-low control line.
// Example: we = GPIO24
type ControlDecl struct {
	Signal string `@("ce" | "oe" | "we") Assign`
	Line   string `@(Ident | Int)`
}
