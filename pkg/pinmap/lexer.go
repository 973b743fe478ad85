package pinmap

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// Lexer tokenizes wiring files. Keywords are plain identifiers matched
// case-insensitively by the grammar, so a GPIO line may share a keyword's
// name ("ce = CE"). Line names are identifiers or bare numbers as accepted
// by gpioreg.ByName.
var Lexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Whitespace", Pattern: `[\s]+`},

	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`},
	{Name: "Range", Pattern: `\.\.`},
	{Name: "Assign", Pattern: `=`},
	{Name: "Comma", Pattern: `,`},

	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Int", Pattern: `[0-9]+`},
})
