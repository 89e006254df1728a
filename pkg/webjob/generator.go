// Package webjob packages Azure WebJob ZIP archives that automate
// scheduled document uploads for an agent.
package webjob

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"text/template"
	"time"

	"github.com/klauspost/compress/zip"
)

// Config describes one WebJob package.
type Config struct {
	JobName       string `json:"job_name"`
	AgentID       string `json:"agent_id"`
	ContainerName string `json:"container_name"`
	IndexName     string `json:"index_name"`
	WatchFolder   string `json:"watch_folder"`

	// Scheduled jobs carry a CRON expression in settings.job;
	// continuous jobs run under the WebJobs runtime directly.
	Scheduled bool   `json:"scheduled"`
	Schedule  string `json:"schedule,omitempty"`
}

// Validate checks the fields the scripts depend on.
func (c *Config) Validate() error {
	if c.JobName == "" {
		return errors.New("job name is required")
	}
	if c.AgentID == "" {
		return errors.New("agent id is required")
	}
	if c.ContainerName == "" {
		return errors.New("container name is required")
	}
	if c.Scheduled && c.Schedule == "" {
		return errors.New("scheduled jobs require a cron expression")
	}
	return nil
}

// Generator renders WebJob packages.
type Generator struct {
	templates *template.Template
}

// NewGenerator parses the embedded script templates.
func NewGenerator() (*Generator, error) {
	tmpl, err := template.New("webjob").Parse(scriptTemplates)
	if err != nil {
		return nil, fmt.Errorf("parsing webjob templates: %w", err)
	}
	return &Generator{templates: tmpl}, nil
}

// memberOrder fixes the archive layout so repeated generations of the
// same config are byte-comparable.
var memberOrder = []string{
	"run.py",
	"run.sh",
	"run.cmd",
	"requirements.txt",
	"config.json",
	"README.md",
}

// Package renders the WebJob ZIP for cfg. Scheduled jobs additionally
// carry a settings.job member with the cron expression.
func (g *Generator) Package(cfg Config) ([]byte, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid webjob config: %w", err)
	}

	members := make(map[string][]byte, len(memberOrder)+1)
	for _, name := range memberOrder {
		if name == "config.json" {
			content, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("encoding config.json: %w", err)
			}
			members[name] = append(content, '\n')
			continue
		}
		var buf bytes.Buffer
		if err := g.templates.ExecuteTemplate(&buf, name, cfg); err != nil {
			return nil, fmt.Errorf("rendering %s: %w", name, err)
		}
		members[name] = buf.Bytes()
	}

	order := memberOrder
	if cfg.Scheduled {
		settings, err := json.Marshal(map[string]string{"schedule": cfg.Schedule})
		if err != nil {
			return nil, fmt.Errorf("encoding settings.job: %w", err)
		}
		members["settings.job"] = append(settings, '\n')
		order = append(append([]string{}, memberOrder...), "settings.job")
	}

	var out bytes.Buffer
	w := zip.NewWriter(&out)
	stamp := time.Now().UTC()
	for _, name := range order {
		f, err := w.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: stamp,
		})
		if err != nil {
			return nil, fmt.Errorf("adding %s to archive: %w", name, err)
		}
		if _, err := f.Write(members[name]); err != nil {
			return nil, fmt.Errorf("writing %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	return out.Bytes(), nil
}
