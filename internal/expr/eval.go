package expr

import (
	"fmt"
	"math"
)

// Program is a compiled expression. It is immutable and safe for
// concurrent use.
type Program struct {
	src  string
	root evalFn
}

type evalFn func() float64

// Source returns the text the program was compiled from.
func (p *Program) Source() string { return p.src }

// Eval runs the program. Non-finite results are reported as 0.
func (p *Program) Eval() float64 {
	v := p.root()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Compile parses src into a Program.
//
// Precedence, lowest first:
//
//	or ||
//	and &&
//	not
//	== != < > <= >=
//	+ -
//	* / %
//	unary !
//	^ (right associative)
//	unary - +
func Compile(src string) (*Program, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	if p.peek().kind == tokEOF {
		return nil, &SyntaxError{Expr: src, Pos: 0, Message: "empty expression"}
	}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, &SyntaxError{Expr: src, Pos: t.pos, Message: fmt.Sprintf("unexpected %q", t.text)}
	}
	return &Program{src: src, root: root}, nil
}

// Evaluate compiles and runs src.
func Evaluate(src string) (float64, error) {
	prog, err := Compile(src)
	if err != nil {
		return 0, err
	}
	return prog.Eval(), nil
}

// Eval is Evaluate with every failure mapped to 0.
func Eval(src string) float64 {
	v, err := Evaluate(src)
	if err != nil {
		return 0
	}
	return v
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(texts ...string) (string, bool) {
	t := p.peek()
	if t.kind != tokOp {
		return "", false
	}
	for _, s := range texts {
		if t.text == s {
			return s, true
		}
	}
	return "", false
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Expr: p.src, Pos: t.pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) parseOr() (evalFn, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.isOp("or", "||"); !ok {
			return left, nil
		}
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l := left
		left = func() float64 { return truth(l() != 0 || right() != 0) }
	}
}

func (p *parser) parseAnd() (evalFn, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.isOp("and", "&&"); !ok {
			return left, nil
		}
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l := left
		left = func() float64 { return truth(l() != 0 && right() != 0) }
	}
}

func (p *parser) parseNot() (evalFn, error) {
	if _, ok := p.isOp("not"); ok {
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return func() float64 { return truth(operand() == 0) }, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (evalFn, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.isOp("==", "!=", "<", ">", "<=", ">=")
		if !ok {
			return left, nil
		}
		p.next()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		l := left
		switch op {
		case "==":
			left = func() float64 { return truth(l() == right()) }
		case "!=":
			left = func() float64 { return truth(l() != right()) }
		case "<":
			left = func() float64 { return truth(l() < right()) }
		case ">":
			left = func() float64 { return truth(l() > right()) }
		case "<=":
			left = func() float64 { return truth(l() <= right()) }
		case ">=":
			left = func() float64 { return truth(l() >= right()) }
		}
	}
}

func (p *parser) parseAdditive() (evalFn, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.isOp("+", "-")
		if !ok {
			return left, nil
		}
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		l := left
		if op == "+" {
			left = func() float64 { return l() + right() }
		} else {
			left = func() float64 { return l() - right() }
		}
	}
}

func (p *parser) parseMultiplicative() (evalFn, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.isOp("*", "/", "%")
		if !ok {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l := left
		switch op {
		case "*":
			left = func() float64 { return l() * right() }
		case "/":
			left = func() float64 { return safeDiv(l(), right()) }
		case "%":
			left = func() float64 { return safeMod(l(), right()) }
		}
	}
}

func (p *parser) parseUnary() (evalFn, error) {
	if _, ok := p.isOp("!"); !ok {
		return p.parsePower()
	}
	p.next()
	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return func() float64 { return truth(operand() == 0) }, nil
}

func (p *parser) parsePower() (evalFn, error) {
	base, err := p.parseSigned()
	if err != nil {
		return nil, err
	}
	if _, ok := p.isOp("^"); !ok {
		return base, nil
	}
	p.next()
	exp, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return func() float64 { return math.Pow(base(), exp()) }, nil
}

// parseSigned binds sign prefixes tighter than ^, so -3^2 is 9. Substituted
// negative values square the way they read.
func (p *parser) parseSigned() (evalFn, error) {
	op, ok := p.isOp("-", "+")
	if !ok {
		if _, bang := p.isOp("!"); bang {
			return p.parseUnary()
		}
		return p.parsePrimary()
	}
	p.next()
	operand, err := p.parseSigned()
	if err != nil {
		return nil, err
	}
	if op == "-" {
		return func() float64 { return -operand() }, nil
	}
	return operand, nil
}

func (p *parser) parsePrimary() (evalFn, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		v := t.num
		return func() float64 { return v }, nil

	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.errorf(closing, "expected ')'")
		}
		return inner, nil

	case tokIdent:
		if p.peek().kind == tokLParen {
			return p.parseCall(t)
		}
		v, ok := constants[t.text]
		if !ok {
			return nil, p.errorf(t, "unknown name %q", t.text)
		}
		return func() float64 { return v }, nil

	case tokEOF:
		return nil, p.errorf(t, "unexpected end of expression")
	default:
		return nil, p.errorf(t, "unexpected %q", t.text)
	}
}

func (p *parser) parseCall(name token) (evalFn, error) {
	fn, ok := functions[name.text]
	if !ok {
		return nil, p.errorf(name, "unknown function %q", name.text)
	}
	p.next() // (

	var args []evalFn
	if p.peek().kind != tokRParen {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if closing := p.next(); closing.kind != tokRParen {
		return nil, p.errorf(closing, "expected ')' after arguments to %s", name.text)
	}
	if len(args) < fn.minArgs || (fn.maxArgs >= 0 && len(args) > fn.maxArgs) {
		return nil, p.errorf(name, "%s: wrong number of arguments (%d)", name.text, len(args))
	}

	call := fn.call
	return func() float64 {
		vals := make([]float64, len(args))
		for i, a := range args {
			vals[i] = a()
		}
		return call(vals)
	}, nil
}

func truth(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func safeMod(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return math.Mod(a, b)
}
