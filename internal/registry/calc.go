package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// EvaluateExpressionTool returns a dataset-independent arithmetic tool. It
// accepts +, -, *, /, parentheses and decimal literals.
func EvaluateExpressionTool() Tool {
	return Tool{
		Name:        "evaluate_expression",
		Description: "Evaluate an arithmetic expression and return the numeric result.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "Arithmetic expression, e.g. (2 + 3) * 4",
				},
			},
			"required": []string{"expression"},
		},
		Invoke: func(_ context.Context, args map[string]any) (string, error) {
			expression, _ := args["expression"].(string)
			value, err := evaluateExpression(expression)
			if err != nil {
				return Envelope(false, nil, err.Error()), nil
			}
			return Envelope(true, value, ""), nil
		},
	}
}

type exprParser struct {
	input []rune
	pos   int
}

func evaluateExpression(input string) (float64, error) {
	parser := &exprParser{input: []rune(strings.TrimSpace(input))}
	if len(parser.input) == 0 {
		return 0, fmt.Errorf("expression is empty")
	}
	value, err := parser.parseSum()
	if err != nil {
		return 0, err
	}
	parser.skipSpaces()
	if parser.pos != len(parser.input) {
		return 0, fmt.Errorf("unexpected character %q at position %d", parser.input[parser.pos], parser.pos)
	}
	return value, nil
}

func (p *exprParser) parseSum() (float64, error) {
	value, err := p.parseProduct()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		switch {
		case p.peek() == '+':
			p.pos++
			right, err := p.parseProduct()
			if err != nil {
				return 0, err
			}
			value += right
		case p.peek() == '-':
			p.pos++
			right, err := p.parseProduct()
			if err != nil {
				return 0, err
			}
			value -= right
		default:
			return value, nil
		}
	}
}

func (p *exprParser) parseProduct() (float64, error) {
	value, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		switch {
		case p.peek() == '*':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			value *= right
		case p.peek() == '/':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			value /= right
		default:
			return value, nil
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	p.skipSpaces()
	switch {
	case p.peek() == '(':
		p.pos++
		value, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		p.skipSpaces()
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return value, nil
	case p.peek() == '-':
		p.pos++
		value, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		return -value, nil
	default:
		return p.parseNumber()
	}
}

func (p *exprParser) parseNumber() (float64, error) {
	p.skipSpaces()
	start := p.pos
	for p.pos < len(p.input) && (unicode.IsDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		if p.pos < len(p.input) {
			return 0, fmt.Errorf("unexpected character %q at position %d", p.input[p.pos], p.pos)
		}
		return 0, fmt.Errorf("unexpected end of expression")
	}
	value, err := strconv.ParseFloat(string(p.input[start:p.pos]), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", string(p.input[start:p.pos]))
	}
	return value, nil
}

func (p *exprParser) peek() rune {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && unicode.IsSpace(p.input[p.pos]) {
		p.pos++
	}
}
