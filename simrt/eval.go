package simrt

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/embedrt/gcbind"
	"github.com/embedrt/gcbind/errors"
)

// EvalText parses and evaluates source text, returning an unrooted reference
// to the result. A raised exception is returned as a foreign_exception
// error; it never unwinds.
func (r *Runtime) EvalText(src string) (gcbind.Raw, error) {
	p := &parser{src: src}
	p.next()

	var result any
	for {
		if p.tok.kind == tokEOF {
			break
		}
		v, err := p.statement()
		if err != nil {
			return gcbind.RawNull, err
		}
		result = v
		if p.tok.kind == tokSemi {
			p.next()
			continue
		}
		if p.tok.kind != tokEOF {
			return gcbind.RawNull, raise("ParseError: unexpected %q", p.tok.text)
		}
	}

	if result == nil {
		return gcbind.RawNull, nil
	}
	return r.Alloc(result)
}

func raise(format string, args ...any) error {
	return errors.ForeignException(fmt.Sprintf(format, args...))
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp   // + - * /
	tokLPar // (
	tokRPar // )
	tokComma
	tokSemi
)

type token struct {
	kind tokKind
	text string
}

type parser struct {
	src string
	pos int
	tok token
}

func (p *parser) next() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n' || p.src[p.pos] == '\r') {
		p.pos++
	}
	if p.pos >= len(p.src) {
		p.tok = token{kind: tokEOF}
		return
	}

	c := p.src[p.pos]
	switch {
	case c >= '0' && c <= '9':
		start := p.pos
		for p.pos < len(p.src) && (isDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
			p.pos++
		}
		p.tok = token{kind: tokNumber, text: p.src[start:p.pos]}
	case c == '"':
		p.pos++
		var b strings.Builder
		for p.pos < len(p.src) && p.src[p.pos] != '"' {
			if p.src[p.pos] == '\\' && p.pos+1 < len(p.src) {
				p.pos++
			}
			b.WriteByte(p.src[p.pos])
			p.pos++
		}
		if p.pos < len(p.src) {
			p.pos++ // closing quote
		}
		p.tok = token{kind: tokString, text: b.String()}
	case isIdentStart(rune(c)):
		start := p.pos
		for p.pos < len(p.src) && isIdentPart(rune(p.src[p.pos])) {
			p.pos++
		}
		p.tok = token{kind: tokIdent, text: p.src[start:p.pos]}
	case c == '+' || c == '-' || c == '*' || c == '/':
		p.pos++
		p.tok = token{kind: tokOp, text: string(c)}
	case c == '(':
		p.pos++
		p.tok = token{kind: tokLPar, text: "("}
	case c == ')':
		p.pos++
		p.tok = token{kind: tokRPar, text: ")"}
	case c == ',':
		p.pos++
		p.tok = token{kind: tokComma, text: ","}
	case c == ';':
		p.pos++
		p.tok = token{kind: tokSemi, text: ";"}
	default:
		p.pos++
		p.tok = token{kind: tokIdent, text: string(c)}
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c rune) bool { return unicode.IsLetter(c) || c == '_' }

func isIdentPart(c rune) bool { return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '!' }

// statement handles module imports specially; everything else is an
// expression.
func (p *parser) statement() (any, error) {
	if p.tok.kind == tokIdent && p.tok.text == "using" {
		p.next()
		if p.tok.kind != tokIdent {
			return nil, raise("ParseError: expected module name after using")
		}
		p.next()
		return nil, nil
	}
	return p.expr()
}

func (p *parser) expr() (any, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "+" || p.tok.text == "-") {
		op := p.tok.text
		p.next()
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left, err = apply(op, left, right)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *parser) term() (any, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "*" || p.tok.text == "/") {
		op := p.tok.text
		p.next()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left, err = apply(op, left, right)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *parser) unary() (any, error) {
	if p.tok.kind == tokOp && p.tok.text == "-" {
		p.next()
		v, err := p.unary()
		if err != nil {
			return nil, err
		}
		switch n := v.(type) {
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		default:
			return nil, raise("MethodError: no method matching -(::%T)", v)
		}
	}
	return p.primary()
}

func (p *parser) primary() (any, error) {
	switch p.tok.kind {
	case tokNumber:
		text := p.tok.text
		p.next()
		if strings.Contains(text, ".") {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, raise("ParseError: malformed number %q", text)
			}
			return f, nil
		}
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, raise("ParseError: malformed number %q", text)
		}
		return n, nil

	case tokString:
		s := p.tok.text
		p.next()
		return s, nil

	case tokLPar:
		p.next()
		v, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRPar {
			return nil, raise("ParseError: expected closing parenthesis")
		}
		p.next()
		return v, nil

	case tokIdent:
		name := p.tok.text
		p.next()
		if p.tok.kind == tokLPar {
			return p.call(name)
		}
		switch name {
		case "nothing":
			return nil, nil
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return nil, raise("UndefVarError: `%s` not defined", name)
		}

	default:
		return nil, raise("ParseError: unexpected %q", p.tok.text)
	}
}

func (p *parser) call(name string) (any, error) {
	p.next() // consume (
	var args []any
	if p.tok.kind != tokRPar {
		for {
			v, err := p.expr()
			if err != nil {
				return nil, err
			}
			args = append(args, v)
			if p.tok.kind != tokComma {
				break
			}
			p.next()
		}
	}
	if p.tok.kind != tokRPar {
		return nil, raise("ParseError: expected closing parenthesis in call to %s", name)
	}
	p.next()

	switch name {
	case "error":
		msg := "error"
		if len(args) == 1 {
			if s, ok := args[0].(string); ok {
				msg = s
			} else {
				msg = fmt.Sprint(args[0])
			}
		}
		return nil, raise("ErrorException: %s", msg)
	case "string":
		var b strings.Builder
		for _, a := range args {
			b.WriteString(fmt.Sprint(a))
		}
		return b.String(), nil
	case "abs":
		if len(args) != 1 {
			return nil, raise("MethodError: abs expects one argument")
		}
		switch n := args[0].(type) {
		case int64:
			if n < 0 {
				return -n, nil
			}
			return n, nil
		case float64:
			if n < 0 {
				return -n, nil
			}
			return n, nil
		}
		return nil, raise("MethodError: no method matching abs(::%T)", args[0])
	default:
		return nil, raise("UndefVarError: `%s` not defined", name)
	}
}

func apply(op string, left, right any) (any, error) {
	// String concatenation.
	if ls, ok := left.(string); ok {
		rs, ok := right.(string)
		if !ok || op != "+" {
			return nil, raise("MethodError: no method matching %s(::String, ::%T)", op, right)
		}
		return ls + rs, nil
	}

	lf, lIsFloat, err := numeric(left, op)
	if err != nil {
		return nil, err
	}
	rf, rIsFloat, err := numeric(right, op)
	if err != nil {
		return nil, err
	}

	// Division always produces a float; everything else stays integral
	// unless a float is involved.
	if op == "/" {
		if rf == 0 {
			return nil, raise("DivideError: division by zero")
		}
		return lf / rf, nil
	}

	if lIsFloat || rIsFloat {
		switch op {
		case "+":
			return lf + rf, nil
		case "-":
			return lf - rf, nil
		case "*":
			return lf * rf, nil
		}
	}

	li, ri := int64(lf), int64(rf)
	switch op {
	case "+":
		return li + ri, nil
	case "-":
		return li - ri, nil
	case "*":
		return li * ri, nil
	}
	return nil, raise("ParseError: unknown operator %q", op)
}

func numeric(v any, op string) (float64, bool, error) {
	switch n := v.(type) {
	case int64:
		return float64(n), false, nil
	case float64:
		return n, true, nil
	default:
		return 0, false, raise("MethodError: no method matching %s(::%T)", op, v)
	}
}
