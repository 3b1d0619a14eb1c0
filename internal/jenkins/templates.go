package jenkins

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

// DefaultTemplate is the built-in freestyle shell job.
const DefaultTemplate = "freestyle-shell"

// JobTemplate describes a freestyle job with one shell build step. Commands
// may reference {{.JobName}}.
type JobTemplate struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Commands    []string `yaml:"commands" json:"commands"`
}

type catalogueFile struct {
	Templates []JobTemplate `yaml:"templates"`
}

// Catalogue holds the job templates available to EnsureJob. Thread-safe.
type Catalogue struct {
	mu        sync.RWMutex
	templates map[string]JobTemplate
}

var freestyleShell = JobTemplate{
	Name:        DefaultTemplate,
	Description: "Auto-generated job for {{.JobName}}",
	Commands: []string{
		`echo "Hello from {{.JobName}}!"`,
		`echo "Build started at $(date)"`,
		`echo "Build completed successfully"`,
	},
}

// DefaultCatalogue returns a catalogue with only the built-in template.
func DefaultCatalogue() *Catalogue {
	return &Catalogue{templates: map[string]JobTemplate{DefaultTemplate: freestyleShell}}
}

// LoadCatalogue reads a YAML template file on top of the built-in template:
//
//	templates:
//	  - name: pytest
//	    description: Run the test suite
//	    commands: ["pip install -r requirements.txt", "pytest -q"]
func LoadCatalogue(path string) (*Catalogue, error) {
	cat := DefaultCatalogue()
	if path == "" {
		return cat, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse templates %s: %w", path, err)
	}
	for _, t := range file.Templates {
		if err := cat.Add(t); err != nil {
			return nil, fmt.Errorf("templates %s: %w", path, err)
		}
	}
	return cat, nil
}

// Add registers a template, replacing any with the same name.
func (c *Catalogue) Add(t JobTemplate) error {
	if t.Name == "" {
		return fmt.Errorf("template without name")
	}
	if len(t.Commands) == 0 {
		return fmt.Errorf("template %q has no commands", t.Name)
	}
	c.mu.Lock()
	c.templates[t.Name] = t
	c.mu.Unlock()
	return nil
}

// Names returns the template names, sorted.
func (c *Catalogue) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.templates))
	for n := range c.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a template is registered. An empty name is the default.
func (c *Catalogue) Has(name string) bool {
	if name == "" {
		name = DefaultTemplate
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.templates[name]
	return ok
}

var projectXML = template.Must(template.New("project").Funcs(template.FuncMap{"xml": escapeXML}).Parse(
	`<?xml version='1.1' encoding='UTF-8'?>
<project>
  <description>{{xml .Description}}</description>
  <keepDependencies>false</keepDependencies>
  <canRoam>true</canRoam>
  <disabled>false</disabled>
  <builders>
    <hudson.tasks.Shell>
      <command>{{xml .Command}}</command>
    </hudson.tasks.Shell>
  </builders>
</project>
`))

// Render produces the config.xml for a new job named jobName.
func (c *Catalogue) Render(name, jobName string) (string, error) {
	if name == "" {
		name = DefaultTemplate
	}
	c.mu.RLock()
	t, ok := c.templates[name]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown job template %q", name)
	}

	data := struct{ JobName string }{jobName}
	desc, err := expand(t.Description, data)
	if err != nil {
		return "", fmt.Errorf("template %q description: %w", name, err)
	}
	commands := make([]string, len(t.Commands))
	for i, cmd := range t.Commands {
		if commands[i], err = expand(cmd, data); err != nil {
			return "", fmt.Errorf("template %q command %d: %w", name, i, err)
		}
	}

	var buf bytes.Buffer
	err = projectXML.Execute(&buf, struct{ Description, Command string }{desc, strings.Join(commands, "\n")})
	if err != nil {
		return "", fmt.Errorf("render template %q: %w", name, err)
	}
	return buf.String(), nil
}

func expand(text string, data any) (string, error) {
	t, err := template.New("").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
