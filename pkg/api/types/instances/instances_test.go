package instances_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/opst/knitfleet/pkg/api/types/instances"
	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/utils/try"
)

func TestComposeResult(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	r := domain.InstancesResult{
		Message: "ok",
		Instances: []domain.Instance{
			{Instance: "2020-01-01T00:00Z", Cluster: "c", Status: domain.StatusRunning, StartTime: &start, RunID: 1},
		},
	}

	actual := string(try.To(json.Marshal(instances.ComposeResult(r))).OrFatal(t))
	expected := `{"message":"ok","instances":[{"instance":"2020-01-01T00:00Z","cluster":"c","status":"RUNNING","startTime":"2020-01-01T00:00:00+00:00","runId":1}]}`
	if actual != expected {
		t.Errorf("actual = %s\nexpected = %s", actual, expected)
	}

	t.Run("no instances are an empty list", func(t *testing.T) {
		actual := string(try.To(json.Marshal(instances.ComposeResult(domain.InstancesResult{}))).OrFatal(t))
		if actual != `{"message":"","instances":[]}` {
			t.Errorf("actual = %s", actual)
		}
	})
}

func TestComposeEntitySummaryResult(t *testing.T) {
	r := domain.EntitySummaryResult{
		Message:  "Entity Summary Result",
		Entities: []domain.EntitySummary{{Name: "clicks", Type: domain.Feed, Status: domain.EntityRunning}},
	}
	actual := string(try.To(json.Marshal(instances.ComposeEntitySummaryResult(r))).OrFatal(t))
	expected := `{"message":"Entity Summary Result","entities":[{"name":"clicks","type":"feed","status":"RUNNING","tags":[],"pipelines":[],"instances":[]}]}`
	if actual != expected {
		t.Errorf("actual = %s\nexpected = %s", actual, expected)
	}
}

func TestComposeSummaryResult(t *testing.T) {
	r := domain.InstancesSummaryResult{
		Message: "ok",
		Summaries: []domain.InstanceSummary{
			{Cluster: "c", Counts: map[domain.WorkflowStatus]int64{domain.StatusSucceeded: 3}},
		},
	}
	actual := string(try.To(json.Marshal(instances.ComposeSummaryResult(r))).OrFatal(t))
	if actual != `{"message":"ok","summaries":[{"cluster":"c","counts":{"SUCCEEDED":3}}]}` {
		t.Errorf("actual = %s", actual)
	}
}
