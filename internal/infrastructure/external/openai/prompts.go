package openai

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/invoice-pipeline/pkg/utils"
)

//go:embed default_prompts.yaml
var defaultPrompts []byte

// PromptConfig holds the critique prompt and its model parameters
type PromptConfig struct {
	Critique struct {
		Temperature  float32 `yaml:"temperature"`
		MaxTokens    int     `yaml:"max_tokens"`
		System       string  `yaml:"system"`
		UserTemplate string  `yaml:"user_template"`
	} `yaml:"critique"`
}

// LoadPrompts loads prompt configuration from a YAML file. An empty path
// yields the built-in prompts.
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	data := defaultPrompts
	if promptsPath != "" {
		var err error
		data, err = os.ReadFile(promptsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompts file: %w", err)
		}
	}

	var prompts PromptConfig
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}
	if prompts.Critique.System == "" || prompts.Critique.UserTemplate == "" {
		return nil, fmt.Errorf("prompts file has no critique system or user_template")
	}
	if _, err := parseTemplate(prompts.Critique.UserTemplate); err != nil {
		return nil, err
	}
	return &prompts, nil
}

var templateFuncs = template.FuncMap{
	"money": utils.FormatMoney,
	"deref": func(v *float64) float64 {
		if v == nil {
			return 0
		}
		return *v
	},
}

func parseTemplate(templateStr string) (*template.Template, error) {
	tmpl, err := template.New("prompt").Funcs(templateFuncs).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return tmpl, nil
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := parseTemplate(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}
