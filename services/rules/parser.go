package rules

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/mdthewzrd/wzrd-algo-sub001/services/timeframe"
)

// CmpOp is a comparison operator.
type CmpOp int

const (
	OpGT CmpOp = iota
	OpLT
	OpGE
	OpLE
	OpEQ
)

func (op CmpOp) String() string {
	return [...]string{">", "<", ">=", "<=", "=="}[op]
}

// Strict reports whether the operator is a strict inequality, the shape that
// participates in crossover rules.
func (op CmpOp) Strict() bool { return op == OpGT || op == OpLT }

// Node is one node of the parsed condition tree.
type Node interface {
	eval(ctx *evalCtx) bool
}

// CmpNode compares two operands.
type CmpNode struct {
	Left  Operand
	Op    CmpOp
	Right Operand
}

// AndNode is a conjunction, OrNode a disjunction.
type AndNode struct{ Left, Right Node }
type OrNode struct{ Left, Right Node }

// Rule is a compiled condition expression.
type Rule struct {
	Expr      string
	Root      Node
	HasPrev   bool
	HasStrict bool
}

// Crossover reports whether the expression encodes the crossover idiom: a
// strict inequality paired with previous_* references.
func (r *Rule) Crossover() bool { return r.HasPrev && r.HasStrict }

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokOp
	tokAnd
	tokOr
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	op   CmpOp
}

type parser struct {
	toks []token
	pos  int
	plan *timeframe.Plan
	rule *Rule
}

// Parse compiles an expression against a feature plan. Every column the
// expression references is registered on the plan, so the aligner knows what
// to materialize. Parsing happens once at load time; evaluation never
// re-reads the expression text.
func Parse(expr string, plan *timeframe.Plan) (*Rule, error) {
	toks, err := lex(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, plan: plan, rule: &Rule{Expr: expr}}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, errors.Errorf("unexpected trailing input %q in expression %q", p.peek().text, expr)
	}
	p.rule.Root = root
	return p.rule, nil
}

func lex(expr string) ([]token, error) {
	var toks []token
	i := 0
	runes := []rune(expr)
	for i < len(runes) {
		c := runes[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "("})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")"})
			i++
		case c == '>' || c == '<' || c == '=':
			op, width, err := lexOp(runes, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokOp, text: op.String(), op: op})
			i += width
		case unicode.IsDigit(c) || c == '.' || (c == '-' && i+1 < len(runes) && (unicode.IsDigit(runes[i+1]) || runes[i+1] == '.')):
			j := i + 1
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: string(runes[i:j])})
			i = j
		case unicode.IsLetter(c) || c == '_':
			j := i + 1
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			word := string(runes[i:j])
			switch strings.ToUpper(word) {
			case "AND":
				toks = append(toks, token{kind: tokAnd, text: word})
			case "OR":
				toks = append(toks, token{kind: tokOr, text: word})
			default:
				toks = append(toks, token{kind: tokIdent, text: word})
			}
			i = j
		default:
			return nil, errors.Errorf("unexpected character %q in expression %q", string(c), expr)
		}
	}
	toks = append(toks, token{kind: tokEOF})
	return toks, nil
}

func lexOp(runes []rune, i int) (CmpOp, int, error) {
	two := ""
	if i+1 < len(runes) {
		two = string(runes[i : i+2])
	}
	switch two {
	case ">=":
		return OpGE, 2, nil
	case "<=":
		return OpLE, 2, nil
	case "==":
		return OpEQ, 2, nil
	}
	switch runes[i] {
	case '>':
		return OpGT, 1, nil
	case '<':
		return OpLT, 1, nil
	}
	return 0, 0, errors.Errorf("unexpected %q; use ==", string(runes[i]))
}

func (p *parser) peek() token { return p.toks[p.pos] }
func (p *parser) next() token { t := p.toks[p.pos]; p.pos++; return t }

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = OrNode{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseCmp()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseCmp()
		if err != nil {
			return nil, err
		}
		left = AndNode{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseCmp() (Node, error) {
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, errors.Errorf("missing ) in expression %q", p.rule.Expr)
		}
		p.next()
		return inner, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokOp {
		return nil, errors.Errorf("expected comparison operator after %q in expression %q", left.Column, p.rule.Expr)
	}
	op := p.next().op
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if op.Strict() {
		p.rule.HasStrict = true
	}
	return CmpNode{Left: left, Op: op, Right: right}, nil
}

func (p *parser) parseOperand() (Operand, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return Operand{}, errors.Errorf("bad numeric literal %q", t.text)
		}
		return Operand{Literal: v, IsLiteral: true}, nil
	case tokIdent:
		o, err := parseToken(t.text, p.plan)
		if err != nil {
			return Operand{}, err
		}
		if o.Prev {
			p.rule.HasPrev = true
		}
		return o, nil
	default:
		return Operand{}, errors.Errorf("expected operand, got %q in expression %q", t.text, p.rule.Expr)
	}
}
