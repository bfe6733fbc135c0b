package instances

import (
	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/utils/rfctime"
)

type Instance struct {
	Instance      string            `json:"instance"`
	Cluster       string            `json:"cluster,omitempty"`
	SourceCluster string            `json:"sourceCluster,omitempty"`
	Status        string            `json:"status,omitempty"`
	StartTime     *rfctime.RFC3339  `json:"startTime,omitempty"`
	EndTime       *rfctime.RFC3339  `json:"endTime,omitempty"`
	RunID         int               `json:"runId"`
	Details       string            `json:"details,omitempty"`
	LogFile       string            `json:"logFile,omitempty"`
	Params        map[string]string `json:"params,omitempty"`
}

func ComposeInstance(i domain.Instance) Instance {
	return Instance{
		Instance:      i.Instance,
		Cluster:       i.Cluster,
		SourceCluster: i.SourceCluster,
		Status:        string(i.Status),
		StartTime:     rfctime.Ref(i.StartTime),
		EndTime:       rfctime.Ref(i.EndTime),
		RunID:         i.RunID,
		Details:       i.Details,
		LogFile:       i.LogFile,
		Params:        i.Params,
	}
}

func composeInstances(is []domain.Instance) []Instance {
	ret := make([]Instance, 0, len(is))
	for _, i := range is {
		ret = append(ret, ComposeInstance(i))
	}
	return ret
}

type Result struct {
	Message   string     `json:"message"`
	Instances []Instance `json:"instances"`
}

func ComposeResult(r domain.InstancesResult) Result {
	return Result{Message: r.Message, Instances: composeInstances(r.Instances)}
}

type Summary struct {
	Cluster string           `json:"cluster"`
	Counts  map[string]int64 `json:"counts"`
}

type SummaryResult struct {
	Message   string    `json:"message"`
	Summaries []Summary `json:"summaries"`
}

func ComposeSummaryResult(r domain.InstancesSummaryResult) SummaryResult {
	ret := SummaryResult{Message: r.Message, Summaries: make([]Summary, 0, len(r.Summaries))}
	for _, s := range r.Summaries {
		counts := map[string]int64{}
		for status, n := range s.Counts {
			counts[string(status)] = n
		}
		ret.Summaries = append(ret.Summaries, Summary{Cluster: s.Cluster, Counts: counts})
	}
	return ret
}

type APIResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func ComposeAPIResult(r domain.APIResult) APIResult {
	return APIResult{Status: string(r.Status), Message: r.Message}
}

type EntitySummary struct {
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Status    string     `json:"status"`
	Tags      []string   `json:"tags"`
	Pipelines []string   `json:"pipelines"`
	Instances []Instance `json:"instances"`
}

type EntitySummaryResult struct {
	Message  string          `json:"message"`
	Entities []EntitySummary `json:"entities"`
}

func ComposeEntitySummaryResult(r domain.EntitySummaryResult) EntitySummaryResult {
	ret := EntitySummaryResult{Message: r.Message, Entities: make([]EntitySummary, 0, len(r.Entities))}
	for _, e := range r.Entities {
		ret.Entities = append(ret.Entities, EntitySummary{
			Name:      e.Name,
			Type:      string(e.Type),
			Status:    string(e.Status),
			Tags:      nonNil(e.Tags),
			Pipelines: nonNil(e.Pipelines),
			Instances: composeInstances(e.Instances),
		})
	}
	return ret
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
