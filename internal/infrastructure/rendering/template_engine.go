// Package rendering turns tenant message templates into the text sent to
// customers. Placeholders are written as {key} or {{key}}.
package rendering

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Vars is the variable set a template is rendered with
type Vars map[string]any

// Render substitutes {key} and {{key}} placeholders from vars. Placeholders
// with no matching variable are kept verbatim so a typo in a tenant template
// stays visible instead of silently vanishing.
func Render(template string, vars Vars) string {
	if !strings.Contains(template, "{") {
		return template
	}

	var b strings.Builder
	b.Grow(len(template))

	i := 0
	for i < len(template) {
		open := strings.IndexByte(template[i:], '{')
		if open < 0 {
			b.WriteString(template[i:])
			break
		}
		open += i
		b.WriteString(template[i:open])

		// {{key}}
		if strings.HasPrefix(template[open:], "{{") {
			if end := strings.Index(template[open+2:], "}}"); end >= 0 {
				key := template[open+2 : open+2+end]
				if v, ok := lookup(vars, key); ok {
					b.WriteString(v)
					i = open + 2 + end + 2
					continue
				}
			}
		}

		// {key}
		if end := strings.IndexByte(template[open+1:], '}'); end >= 0 {
			key := template[open+1 : open+1+end]
			if v, ok := lookup(vars, key); ok {
				b.WriteString(v)
				i = open + 1 + end + 1
				continue
			}
		}

		b.WriteByte('{')
		i = open + 1
	}
	return b.String()
}

func lookup(vars Vars, key string) (string, bool) {
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, "{} \n") {
		return "", false
	}
	v, ok := vars[key]
	if !ok {
		return "", false
	}
	return Stringify(v), true
}

// Stringify converts a template value to text.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case decimal.Decimal:
		return val.StringFixed(2)
	case *decimal.Decimal:
		if val == nil {
			return ""
		}
		return val.StringFixed(2)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format("2006-01-02 15:04")
	case fmt.Stringer:
		return val.String()
	case error:
		return val.Error()
	default:
		return fmt.Sprintf("%v", val)
	}
}
