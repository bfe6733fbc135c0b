// Package logs tells where logs of instances are.
package logs

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/opst/knitfleet/pkg/domain"
)

// Resolver populates log locations of instances.
type Resolver interface {
	// PopulateLogURLs sets LogFile of the instance, in place.
	//
	// runID is the run whose logs are wanted. Negative runID means the run of the instance.
	PopulateLogURLs(entity *domain.Entity, instance *domain.Instance, runID int) error
}

// Values available in templates.
type Values struct {
	EntityType string
	EntityName string

	// nominal time of the instance
	Instance string

	Cluster string
	RunID   int
}

// TemplateResolver builds log locations from a text/template.
//
// example:
//
//	https://logs.example.com/{{ .EntityType }}/{{ .EntityName }}/{{ .Instance }}/{{ .RunID }}
type TemplateResolver struct {
	tmpl *template.Template
}

func NewTemplateResolver(text string) (*TemplateResolver, error) {
	tmpl, err := template.New("log-url").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("log url template: %s", err))
	}
	return &TemplateResolver{tmpl: tmpl}, nil
}

func (r *TemplateResolver) PopulateLogURLs(entity *domain.Entity, instance *domain.Instance, runID int) error {
	if runID < 0 {
		runID = instance.RunID
	}
	b := new(strings.Builder)
	if err := r.tmpl.Execute(b, Values{
		EntityType: string(entity.Type),
		EntityName: entity.Name,
		Instance:   instance.Instance,
		Cluster:    instance.Cluster,
		RunID:      runID,
	}); err != nil {
		return err
	}
	instance.LogFile = b.String()
	return nil
}

// Nop leaves instances as they are.
type Nop struct{}

func (Nop) PopulateLogURLs(*domain.Entity, *domain.Instance, int) error {
	return nil
}

// ByColo chooses Resolver by colo. Colos without resolver are Nop.
type ByColo map[string]Resolver

func (b ByColo) For(colo string) Resolver {
	if r, ok := b[colo]; ok && r != nil {
		return r
	}
	return Nop{}
}
