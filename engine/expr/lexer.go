package expr

import (
	"strings"
	"unicode"
)

type TokenType int

const (
	TokEOF TokenType = iota
	TokIdent
	TokDollarIdent
	TokDot
	TokDotSpaced
	TokArrow
	TokFatArrow
	TokLBracket
	TokRBracket
	TokString
	TokNumber
	TokLParen
	TokRParen
	TokComma
	TokSemicolon
	TokQuestion
	TokColon
	TokOp
	TokAssign
	TokError
	TokOther
)

var tokenNames = map[TokenType]string{
	TokEOF:         "end of expression",
	TokIdent:       "identifier",
	TokDollarIdent: "variable",
	TokDot:         "'.'",
	TokDotSpaced:   "'.'",
	TokArrow:       "'->'",
	TokFatArrow:    "'=>'",
	TokLBracket:    "'['",
	TokRBracket:    "']'",
	TokString:      "string",
	TokNumber:      "number",
	TokLParen:      "'('",
	TokRParen:      "')'",
	TokComma:       "','",
	TokSemicolon:   "';'",
	TokQuestion:    "'?'",
	TokColon:       "':'",
	TokOp:          "operator",
	TokAssign:      "assignment",
	TokError:       "error",
	TokOther:       "character",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return "token"
}

type Token struct {
	Typ TokenType
	Val string
	Pos int // rune offset of the first character
}

type Lexer struct {
	input []rune
	pos   int
}

func NewLexer(s string) *Lexer {
	return &Lexer{input: []rune(s), pos: 0}
}

func (l *Lexer) next() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r := l.input[l.pos]
	l.pos++
	return r
}

func (l *Lexer) peek() rune {
	return l.peekAt(0)
}

func (l *Lexer) peekAt(off int) rune {
	if l.pos+off >= len(l.input) {
		return 0
	}
	return l.input[l.pos+off]
}

func (l *Lexer) emitToken(typ TokenType, val string, start int) Token {
	return Token{Typ: typ, Val: val, Pos: start}
}

// three- and two-character operators, longest first
var multiOps = []string{"===", "!==", "==", "!=", "<=", ">=", "&&", "||", "??", "?:", "++", "--", "->", "=>", "+=", "-=", "*=", "/=", ".="}

func (l *Lexer) NextToken() Token {
	hadSpace := false
	for {
		ch := l.peek()
		if ch == 0 {
			return l.emitToken(TokEOF, "", l.pos)
		}
		if unicode.IsSpace(ch) {
			hadSpace = true
			l.next()
			continue
		}
		start := l.pos
		for _, op := range multiOps {
			if l.hasPrefix(op) {
				l.pos += len(op)
				switch op {
				case "->":
					return l.emitToken(TokArrow, op, start)
				case "=>":
					return l.emitToken(TokFatArrow, op, start)
				case "+=", "-=", "*=", "/=", ".=":
					return l.emitToken(TokAssign, op, start)
				}
				return l.emitToken(TokOp, op, start)
			}
		}
		switch ch {
		case '(':
			l.next()
			return l.emitToken(TokLParen, "(", start)
		case ')':
			l.next()
			return l.emitToken(TokRParen, ")", start)
		case '.':
			// a dot preceded by whitespace is the concatenation operator
			l.next()
			if hadSpace {
				return l.emitToken(TokDotSpaced, ".", start)
			}
			return l.emitToken(TokDot, ".", start)
		case '[':
			l.next()
			return l.emitToken(TokLBracket, "[", start)
		case ']':
			l.next()
			return l.emitToken(TokRBracket, "]", start)
		case ',':
			l.next()
			return l.emitToken(TokComma, ",", start)
		case ';':
			l.next()
			return l.emitToken(TokSemicolon, ";", start)
		case '?':
			l.next()
			return l.emitToken(TokQuestion, "?", start)
		case ':':
			l.next()
			return l.emitToken(TokColon, ":", start)
		case '=':
			l.next()
			return l.emitToken(TokAssign, "=", start)
		case '$':
			l.next()
			var buf []rune
			for isIdentRune(l.peek()) {
				buf = append(buf, l.next())
			}
			if len(buf) == 0 {
				return l.emitToken(TokError, "expected variable name after '$'", start)
			}
			return l.emitToken(TokDollarIdent, string(buf), start)
		case '"', '\'':
			q := l.next()
			var buf []rune
			for {
				r := l.next()
				if r == 0 {
					return l.emitToken(TokError, "unterminated string literal", start)
				}
				if r == '\\' {
					nxt := l.next()
					switch nxt {
					case 'n':
						buf = append(buf, '\n')
					case 't':
						buf = append(buf, '\t')
					case 'r':
						buf = append(buf, '\r')
					case '\\', '\'', '"', '$':
						buf = append(buf, nxt)
					case 0:
						return l.emitToken(TokError, "unterminated string literal", start)
					default:
						buf = append(buf, r, nxt)
					}
					continue
				}
				if r == q {
					break
				}
				buf = append(buf, r)
			}
			return l.emitToken(TokString, string(buf), start)
		default:
			if unicode.IsDigit(ch) {
				var buf []rune
				for unicode.IsDigit(l.peek()) {
					buf = append(buf, l.next())
				}
				if l.peek() == '.' && unicode.IsDigit(l.peekAt(1)) {
					buf = append(buf, l.next())
					for unicode.IsDigit(l.peek()) {
						buf = append(buf, l.next())
					}
				}
				return l.emitToken(TokNumber, string(buf), start)
			}
			if unicode.IsLetter(ch) || ch == '_' {
				var buf []rune
				for isIdentRune(l.peek()) {
					buf = append(buf, l.next())
				}
				return l.emitToken(TokIdent, string(buf), start)
			}
			if strings.ContainsRune("+-*/%<>!", ch) {
				l.next()
				return l.emitToken(TokOp, string(ch), start)
			}
			l.next()
			return l.emitToken(TokOther, string(ch), start)
		}
	}
}

func (l *Lexer) hasPrefix(s string) bool {
	rs := []rune(s)
	if l.pos+len(rs) > len(l.input) {
		return false
	}
	for i, r := range rs {
		if l.input[l.pos+i] != r {
			return false
		}
	}
	return true
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
