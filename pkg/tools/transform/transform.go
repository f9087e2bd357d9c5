// Package transform provides a tool that reshapes variables through a
// Go text/template expression.
package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/barela/flowdeck/pkg/protocol"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) ID() string {
	return "transform"
}

func (*Factory) Name() string {
	return "Transform"
}

func (*Factory) Description() string {
	return "Transforms the execution variables using a template expression."
}

func (f *Factory) Create(config map[string]any) (protocol.Tool, error) {
	return NewTool(config)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Template expression evaluated against the execution variables.",
				"examples": []string{
					"{{ .name }}",
					"{\"full_name\": \"{{ .first }} {{ .last }}\"}",
					"{{ now }}",
				},
			},
		},
		"required": []string{"expression"},
	}
}

type Tool struct {
	expression string
}

func NewTool(config map[string]any) (*Tool, error) {
	expression, _ := config["expression"].(string)

	return &Tool{expression: expression}, nil
}

func (t *Tool) Run(_ context.Context, variables map[string]any) (any, error) {
	return Render(t.expression, variables)
}

// Render evaluates a template expression against data and coerces the output
// back into a typed value when it looks like JSON, a number, or a boolean.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("transform").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}
