// Package template implements the placeholder renderer used for message
// bodies. Templates substitute {{ name }} expressions, optionally passed
// through filters ({{ amount | currency('$', 2) }}), with strict-undefined
// semantics: referencing a variable that was not supplied is an error.
package template

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
)

// Render substitutes every {{ ... }} placeholder in text using vars.
// Placeholder syntax: an identifier optionally followed by a pipeline of
// filters, e.g. {{ name }}, {{ total | currency }}, or
// {{ day | format_date('%d/%m/%Y') }}. Literal text passes through
// untouched; substituted values are HTML-escaped, which suits HTML
// contexts such as email bodies.
func Render(text string, vars map[string]interface{}) (string, error) {
	return render(text, vars, true)
}

// RenderPlain is Render without output escaping, for plain-text contexts
// (sms, push, webhook payloads) where entity encoding would corrupt the
// message.
func RenderPlain(text string, vars map[string]interface{}) (string, error) {
	return render(text, vars, false)
}

func render(text string, vars map[string]interface{}, escape bool) (string, error) {
	var b strings.Builder
	rest := text
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:open])
		rest = rest[open+2:]

		closing := strings.Index(rest, "}}")
		if closing < 0 {
			return "", fmt.Errorf("unterminated placeholder")
		}
		expr := rest[:closing]
		rest = rest[closing+2:]

		value, err := evalExpr(expr, vars)
		if err != nil {
			return "", err
		}
		if escape {
			value = html.EscapeString(value)
		}
		b.WriteString(value)
	}
}

// ValidateRequired checks that every required variable name is present in
// vars. Missing names are reported in declaration order.
func ValidateRequired(required []string, vars map[string]interface{}) error {
	var missing []string
	for _, name := range required {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("Missing required template variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Expression evaluation
// ---------------------------------------------------------------------------

func evalExpr(expr string, vars map[string]interface{}) (string, error) {
	parts := splitPipeline(expr)
	name := strings.TrimSpace(parts[0])
	if !isIdentifier(name) {
		return "", fmt.Errorf("invalid placeholder expression: %s", strings.TrimSpace(expr))
	}
	value, ok := vars[name]
	if !ok {
		return "", fmt.Errorf("'%s' is undefined", name)
	}

	for _, part := range parts[1:] {
		filtered, err := applyFilter(strings.TrimSpace(part), value)
		if err != nil {
			return "", err
		}
		value = filtered
	}
	return stringify(value), nil
}

// splitPipeline splits on '|' outside quotes and parentheses.
func splitPipeline(expr string) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == '|' && depth == 0:
			parts = append(parts, expr[start:i])
			start = i + 1
		}
	}
	parts = append(parts, expr[start:])
	return parts
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		alpha := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if i == 0 && !alpha {
			return false
		}
		if !alpha && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Filters
// ---------------------------------------------------------------------------

func applyFilter(call string, value interface{}) (interface{}, error) {
	name := call
	var rawArgs string
	if open := strings.IndexByte(call, '('); open >= 0 {
		if !strings.HasSuffix(call, ")") {
			return nil, fmt.Errorf("malformed filter call: %s", call)
		}
		name = strings.TrimSpace(call[:open])
		rawArgs = call[open+1 : len(call)-1]
	}

	args, kwargs, err := parseArgs(rawArgs)
	if err != nil {
		return nil, fmt.Errorf("malformed filter call: %s", call)
	}

	switch name {
	case "currency":
		return currencyFilter(value, args, kwargs)
	case "format_date":
		return formatDateFilter(value, args, kwargs)
	default:
		return nil, fmt.Errorf("unknown filter: %s", name)
	}
}

// parseArgs splits a filter argument list into positional values and
// key=value pairs. Literals are quoted strings, numbers, and booleans.
func parseArgs(raw string) ([]interface{}, map[string]interface{}, error) {
	args := []interface{}{}
	kwargs := map[string]interface{}{}
	if strings.TrimSpace(raw) == "" {
		return args, kwargs, nil
	}

	var tokens []string
	var quote byte
	start := 0
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ',':
			tokens = append(tokens, raw[start:i])
			start = i + 1
		}
	}
	if quote != 0 {
		return nil, nil, fmt.Errorf("unterminated string literal")
	}
	tokens = append(tokens, raw[start:])

	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return nil, nil, fmt.Errorf("empty argument")
		}
		if eq := strings.IndexByte(tok, '='); eq > 0 && !strings.ContainsAny(tok[:eq], "'\"") {
			key := strings.TrimSpace(tok[:eq])
			val, err := parseLiteral(strings.TrimSpace(tok[eq+1:]))
			if err != nil {
				return nil, nil, err
			}
			kwargs[key] = val
			continue
		}
		val, err := parseLiteral(tok)
		if err != nil {
			return nil, nil, err
		}
		args = append(args, val)
	}
	return args, kwargs, nil
}

func parseLiteral(tok string) (interface{}, error) {
	if len(tok) >= 2 {
		if (tok[0] == '\'' && tok[len(tok)-1] == '\'') || (tok[0] == '"' && tok[len(tok)-1] == '"') {
			return tok[1 : len(tok)-1], nil
		}
	}
	switch tok {
	case "true", "True":
		return true, nil
	case "false", "False":
		return false, nil
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return f, nil
	}
	return nil, fmt.Errorf("invalid literal: %s", tok)
}

// currencyFilter formats a numeric value as {symbol}{amount} with thousands
// grouping and a fixed number of decimal places. Non-numeric values render
// as symbol + string form.
func currencyFilter(value interface{}, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	symbol := "$"
	places := 2
	if len(args) > 0 {
		symbol = stringify(args[0])
	}
	if len(args) > 1 {
		if f, ok := args[1].(float64); ok {
			places = int(f)
		}
	}
	if v, ok := kwargs["symbol"]; ok {
		symbol = stringify(v)
	}
	if v, ok := kwargs["places"]; ok {
		if f, ok := v.(float64); ok {
			places = int(f)
		}
	}

	amount, ok := toFloat(value)
	if !ok {
		return symbol + stringify(value), nil
	}
	return symbol + groupThousands(strconv.FormatFloat(amount, 'f', places, 64)), nil
}

// formatDateFilter renders time values through a strftime-style format
// string. Non-time values fall back to their string form.
func formatDateFilter(value interface{}, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	format := "%Y-%m-%d"
	if len(args) > 0 {
		format = stringify(args[0])
	}
	if v, ok := kwargs["fmt"]; ok {
		format = stringify(v)
	}

	switch t := value.(type) {
	case time.Time:
		return t.Format(strftimeLayout(format)), nil
	case *time.Time:
		if t != nil {
			return t.Format(strftimeLayout(format)), nil
		}
	}
	return stringify(value), nil
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// groupThousands inserts commas into the integer part of a fixed-point
// decimal string, preserving sign and fraction.
func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign = "-"
		s = s[1:]
	}
	intPart := s
	frac := ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart = s[:dot]
		frac = s[dot:]
	}
	if len(intPart) <= 3 {
		return sign + intPart + frac
	}
	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	return sign + b.String() + frac
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%v", v)
	}
}
