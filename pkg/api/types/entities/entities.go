package entities

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/utils/rfctime"
	"gopkg.in/yaml.v3"
)

type Validity struct {
	Cluster string          `json:"cluster" yaml:"cluster"`
	Start   rfctime.RFC3339 `json:"start" yaml:"start"`
	End     rfctime.RFC3339 `json:"end" yaml:"end"`
}

type Workflow struct {
	Image   string            `json:"image" yaml:"image"`
	Command []string          `json:"command,omitempty" yaml:"command,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Document is the external form of entity definitions.
//
// example:
//
//	type: process
//	name: aggregate
//	frequency: hours(1)
//	clusters:
//	  - cluster: cluster-a
//	    start: 2020-01-01T00:00Z
//	    end: 2021-01-01T00:00Z
//	tags: [owner=alice]
//	pipelines: [etl]
//	workflow:
//	  image: example.com/aggregate:1.0
//	  command: [aggregate, --hourly]
type Document struct {
	Type      string     `json:"type" yaml:"type"`
	Name      string     `json:"name" yaml:"name"`
	Frequency string     `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	Clusters  []Validity `json:"clusters,omitempty" yaml:"clusters,omitempty"`
	Tags      []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	Pipelines []string   `json:"pipelines,omitempty" yaml:"pipelines,omitempty"`

	// only for cluster.
	Colo string `json:"colo,omitempty" yaml:"colo,omitempty"`

	Workflow *Workflow `json:"workflow,omitempty" yaml:"workflow,omitempty"`
}

// Decode reads a document in YAML (or JSON, which is YAML).
func Decode(r io.Reader) (Document, error) {
	doc := Document{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return doc, domain.NewEmptyParameterError("entity document")
		}
		return doc, domain.NewValidationError(fmt.Sprintf("malformed entity document: %s", err))
	}
	return doc, nil
}

// Encode writes doc in YAML.
func (doc Document) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := yaml.NewEncoder(buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Entity converts doc into a validated entity.
func (doc Document) Entity() (*domain.Entity, error) {
	et, err := domain.AsEntityType(doc.Type)
	if err != nil {
		return nil, err
	}
	e := &domain.Entity{
		Type:      et,
		Name:      doc.Name,
		Tags:      doc.Tags,
		Pipelines: doc.Pipelines,
		Colo:      doc.Colo,
	}
	if doc.Frequency != "" {
		f, err := domain.ParseFrequency(doc.Frequency)
		if err != nil {
			return nil, err
		}
		e.Frequency = f
	}
	for _, c := range doc.Clusters {
		e.Clusters = append(e.Clusters, domain.ClusterValidity{
			Name: c.Cluster, Start: c.Start.Time().UTC(), End: c.End.Time().UTC(),
		})
	}
	if w := doc.Workflow; w != nil {
		e.Workflow = &domain.WorkflowSpec{Image: w.Image, Command: w.Command, Env: w.Env}
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func Compose(e *domain.Entity) Document {
	doc := Document{
		Type:      string(e.Type),
		Name:      e.Name,
		Tags:      e.Tags,
		Pipelines: e.Pipelines,
		Colo:      e.Colo,
	}
	if e.Frequency.Unit != "" {
		doc.Frequency = e.Frequency.String()
	}
	for _, c := range e.Clusters {
		doc.Clusters = append(doc.Clusters, Validity{
			Cluster: c.Name, Start: rfctime.RFC3339(c.Start), End: rfctime.RFC3339(c.End),
		})
	}
	if w := e.Workflow; w != nil {
		doc.Workflow = &Workflow{Image: w.Image, Command: w.Command, Env: w.Env}
	}
	return doc
}
