package template

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/aymerick/raymond"
	"github.com/dustin/go-humanize"
)

// helpersOnce guards the process-wide raymond helper registry, which panics
// on duplicate registration
var helpersOnce sync.Once

// Engine renders Handlebars templates
type Engine struct {
	cache map[string]*raymond.Template
	mu    sync.RWMutex
}

// NewEngine creates a new template engine
func NewEngine() *Engine {
	helpersOnce.Do(registerHelpers)

	return &Engine{
		cache: make(map[string]*raymond.Template),
	}
}

// Render renders a template with the given data
func (e *Engine) Render(templateStr string, data interface{}) (string, error) {
	tmpl, err := e.getTemplate(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to compile template: %w", err)
	}

	result, err := tmpl.Exec(data)
	if err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}

	return result, nil
}

// getTemplate gets a compiled template from cache or compiles it
func (e *Engine) getTemplate(templateStr string) (*raymond.Template, error) {
	// Check cache first (read lock)
	e.mu.RLock()
	if tmpl, ok := e.cache[templateStr]; ok {
		e.mu.RUnlock()
		return tmpl, nil
	}
	e.mu.RUnlock()

	// Compile the template (write lock)
	e.mu.Lock()
	defer e.mu.Unlock()

	// Check again in case another goroutine compiled it
	if tmpl, ok := e.cache[templateStr]; ok {
		return tmpl, nil
	}

	tmpl, err := raymond.Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	e.cache[templateStr] = tmpl

	return tmpl, nil
}

// ValidateTemplate validates a template without rendering it
func (e *Engine) ValidateTemplate(templateStr string) error {
	_, err := raymond.Parse(templateStr)
	return err
}

// registerHelpers registers custom Handlebars helpers
func registerHelpers() {
	raymond.RegisterHelper("uppercase", func(str string) string {
		return strings.ToUpper(str)
	})

	raymond.RegisterHelper("lowercase", func(str string) string {
		return strings.ToLower(str)
	})

	raymond.RegisterHelper("trim", func(str string) string {
		return strings.TrimSpace(str)
	})

	// default helper - return default value if first arg is empty
	raymond.RegisterHelper("default", func(value interface{}, defaultValue interface{}) interface{} {
		if value == nil || value == "" {
			return defaultValue
		}
		return value
	})

	raymond.RegisterHelper("eq", func(a, b interface{}) bool {
		return a == b
	})

	raymond.RegisterHelper("ne", func(a, b interface{}) bool {
		return a != b
	})

	// comma helper - thousands separators, 10000 -> "10,000"
	raymond.RegisterHelper("comma", func(value interface{}) string {
		n, ok := toInt64(value)
		if !ok {
			return fmt.Sprint(value)
		}
		return humanize.Comma(n)
	})

	// plural helper - {{plural count "use" "uses"}}
	raymond.RegisterHelper("plural", func(value interface{}, singular, plural string) string {
		if n, ok := toInt64(value); ok && n == 1 {
			return singular
		}
		return plural
	})

	raymond.RegisterHelper("join", func(arr []string, sep string) string {
		return strings.Join(arr, sep)
	})

	raymond.RegisterHelper("len", func(value interface{}) int {
		v := reflect.ValueOf(value)
		switch v.Kind() {
		case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
			return v.Len()
		default:
			return 0
		}
	})
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
