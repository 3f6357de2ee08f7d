package expr

import (
	"strconv"
	"strings"

	"go-workflow/internal/model"
)

// Node is an expression AST node.
type Node interface {
	Pos() int
	String() string
}

// Ident is a bare name; at the root of a path it names a scope namespace.
type Ident struct {
	Name   string
	Offset int
}

// Literal is a string, number, boolean or null constant.
type Literal struct {
	Value  model.Value
	Offset int
}

// Attr is X.Name.
type Attr struct {
	X      Node
	Name   string
	Offset int
}

// Index is X[Key].
type Index struct {
	X      Node
	Key    Node
	Offset int
}

// Call is Recv.Name(Args...).
type Call struct {
	Recv   Node
	Name   string
	Args   []Node
	Offset int
}

func (n *Ident) Pos() int   { return n.Offset }
func (n *Literal) Pos() int { return n.Offset }
func (n *Attr) Pos() int    { return n.Offset }
func (n *Index) Pos() int   { return n.Offset }
func (n *Call) Pos() int    { return n.Offset }

func (n *Ident) String() string { return n.Name }

func (n *Literal) String() string {
	if n.Value.IsString() {
		return strconv.Quote(n.Value.Str())
	}
	if n.Value.IsNull() {
		return "null"
	}
	return n.Value.Text()
}

func (n *Attr) String() string  { return n.X.String() + "." + n.Name }
func (n *Index) String() string { return n.X.String() + "[" + n.Key.String() + "]" }

func (n *Call) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return n.Recv.String() + "." + n.Name + "(" + strings.Join(args, ", ") + ")"
}
