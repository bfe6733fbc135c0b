package k8s

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/lifecycle"
)

const (
	LabelEntityType = "knitfleet.opst.io/entity-type"
	LabelEntityName = "knitfleet.opst.io/entity-name"
	LabelLifecycle  = "knitfleet.opst.io/lifecycle"

	// label values are truncated. Annotations keep the full name.
	AnnotationEntityName  = "knitfleet.opst.io/entity-name"
	AnnotationNominalTime = "knitfleet.opst.io/nominal-time"
	AnnotationRunID       = "knitfleet.opst.io/run-id"

	// set by the CronJob controller on jobs it creates.
	annotationScheduledTimestamp = "batch.kubernetes.io/cronjob-scheduled-timestamp"

	// container running the workflow.
	MainContainer = "main"

	EnvEntityName = "KNITFLEET_ENTITY_NAME"
	EnvEntityType = "KNITFLEET_ENTITY_TYPE"
)

// labels put by the job controller. They are bound to a job and should not be copied.
var controllerLabels = []string{
	"controller-uid", "job-name",
	"batch.kubernetes.io/controller-uid", "batch.kubernetes.io/job-name",
}

var reNonAcceptableInName = regexp.MustCompile("[^-a-z0-9]+")
var reNonAcceptableInLabelValue = regexp.MustCompile("[^-._a-zA-Z0-9]+")

const (
	// CronJob names are limited to leave room for suffixes of job names.
	cronJobNameMaxLen = 52
	labelValueMaxLen  = 63
	jobNameMaxLen     = 63
)

// CronJobName is the name of the CronJob of the entity.
//
// It is a DNS label made from type and name, with a hash of them as suffix.
func CronJobName(e *domain.Entity) string {
	h := fnv.New32a()
	h.Write([]byte(e.Key().String()))
	suffix := fmt.Sprintf("-%08x", h.Sum32())

	base := reNonAcceptableInName.ReplaceAllString(strings.ToLower(fmt.Sprintf("%s-%s", e.Type, e.Name)), "-")
	if room := cronJobNameMaxLen - len(suffix); room < len(base) {
		base = base[:room]
	}
	return strings.Trim(base, "-") + suffix
}

func labelValue(s string) string {
	v := reNonAcceptableInLabelValue.ReplaceAllString(s, "-")
	if labelValueMaxLen < len(v) {
		v = v[:labelValueMaxLen]
	}
	return strings.Trim(v, "-._")
}

func selectorFor(e *domain.Entity) LabelSelector {
	return LabelSelector{
		LabelEntityType: labelValue(string(e.Type)),
		LabelEntityName: labelValue(e.Name),
	}
}

// CronSchedule converts a frequency into a cron expression.
func CronSchedule(f domain.Frequency) (string, error) {
	n := f.Multiplier
	upper := map[domain.TimeUnit]int{
		domain.Minutes: 59, domain.Hours: 23, domain.Days: 31, domain.Months: 12,
	}
	if u, ok := upper[f.Unit]; !ok || n <= 0 || u < n {
		return "", domain.NewValidationError(fmt.Sprintf("frequency %s cannot be scheduled", f))
	}
	switch f.Unit {
	case domain.Minutes:
		return fmt.Sprintf("*/%d * * * *", n), nil
	case domain.Hours:
		return fmt.Sprintf("0 */%d * * *", n), nil
	case domain.Days:
		return fmt.Sprintf("0 0 */%d * *", n), nil
	default: // months
		return fmt.Sprintf("0 0 1 */%d *", n), nil
	}
}

func envOf(m map[string]string) []kubecore.EnvVar {
	env := make([]kubecore.EnvVar, 0, len(m))
	for k, v := range m {
		env = append(env, kubecore.EnvVar{Name: k, Value: v})
	}
	slices.SortFunc(env, func(a, b kubecore.EnvVar) int { return strings.Compare(a.Name, b.Name) })
	return env
}

// CronJobOf builds the CronJob scheduling instances of the entity.
func CronJobOf(e *domain.Entity) (*kubebatch.CronJob, error) {
	if e.Workflow == nil || e.Workflow.Image == "" {
		return nil, domain.NewValidationError(fmt.Sprintf("%s(%s) has no workflow to run", e.Name, e.Type))
	}
	schedule, err := CronSchedule(e.Frequency)
	if err != nil {
		return nil, err
	}

	labels := map[string]string(selectorFor(e))
	if lcs := lifecycle.DefaultFor(e.Type); 0 < len(lcs) {
		labels[LabelLifecycle] = string(lcs[0])
	}
	annotations := map[string]string{AnnotationEntityName: e.Name}

	env := envOf(e.Workflow.Env)
	env = append(env,
		kubecore.EnvVar{Name: EnvEntityName, Value: e.Name},
		kubecore.EnvVar{Name: EnvEntityType, Value: string(e.Type)},
	)

	utc := "Etc/UTC"
	suspend := false
	backoff := int32(0)
	return &kubebatch.CronJob{
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name:        CronJobName(e),
			Labels:      labels,
			Annotations: annotations,
		},
		Spec: kubebatch.CronJobSpec{
			Schedule:          schedule,
			TimeZone:          &utc,
			Suspend:           &suspend,
			ConcurrencyPolicy: kubebatch.AllowConcurrent,
			JobTemplate: kubebatch.JobTemplateSpec{
				ObjectMeta: kubeapimeta.ObjectMeta{
					Labels:      labels,
					Annotations: annotations,
				},
				Spec: kubebatch.JobSpec{
					BackoffLimit: &backoff,
					Template: kubecore.PodTemplateSpec{
						ObjectMeta: kubeapimeta.ObjectMeta{Labels: labels},
						Spec: kubecore.PodSpec{
							RestartPolicy: kubecore.RestartPolicyNever,
							Containers: []kubecore.Container{
								{
									Name:    MainContainer,
									Image:   e.Workflow.Image,
									Command: e.Workflow.Command,
									Env:     env,
								},
							},
						},
					},
				},
			},
		},
	}, nil
}

// nominalTime of the job: when it is scheduled for.
func nominalTime(job *kubebatch.Job) time.Time {
	for _, key := range []string{AnnotationNominalTime, annotationScheduledTimestamp} {
		if v, ok := job.Annotations[key]; ok {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t.UTC()
			}
		}
	}
	return job.CreationTimestamp.Time.UTC()
}

func runID(job *kubebatch.Job) int {
	n, err := strconv.Atoi(job.Annotations[AnnotationRunID])
	if err != nil {
		return 0
	}
	return n
}

func condition(job *kubebatch.Job, t kubebatch.JobConditionType) (kubebatch.JobCondition, bool) {
	for _, c := range job.Status.Conditions {
		if c.Type == t && c.Status == kubecore.ConditionTrue {
			return c, true
		}
	}
	return kubebatch.JobCondition{}, false
}

// StatusOf maps the state of the job to a workflow status.
//
// Finished jobs are SUCCEEDED, TIMEDOUT (failed by deadline) or FAILED.
// Otherwise, suspended jobs are SUSPENDED, jobs with active pods are RUNNING, and others are WAITING.
func StatusOf(job *kubebatch.Job) (domain.WorkflowStatus, string) {
	if c, ok := condition(job, kubebatch.JobComplete); ok {
		return domain.StatusSucceeded, c.Message
	}
	if c, ok := condition(job, kubebatch.JobFailed); ok {
		if c.Reason == "DeadlineExceeded" {
			return domain.StatusTimedOut, c.Message
		}
		return domain.StatusFailed, c.Message
	}
	if s := job.Spec.Suspend; s != nil && *s {
		return domain.StatusSuspended, ""
	}
	if _, ok := condition(job, kubebatch.JobSuspended); ok {
		return domain.StatusSuspended, ""
	}
	if 0 < job.Status.Active {
		return domain.StatusRunning, ""
	}
	return domain.StatusWaiting, ""
}

func finished(s domain.WorkflowStatus) bool {
	switch s {
	case domain.StatusSucceeded, domain.StatusFailed, domain.StatusTimedOut:
		return true
	}
	return false
}

func endTime(job *kubebatch.Job) *time.Time {
	if ct := job.Status.CompletionTime; ct != nil {
		t := ct.Time.UTC()
		return &t
	}
	if c, ok := condition(job, kubebatch.JobFailed); ok {
		t := c.LastTransitionTime.Time.UTC()
		return &t
	}
	return nil
}

// rerunOf builds a job running the same workflow as old again, with next run id.
//
// props are passed to the main container as environment variables.
func rerunOf(old *kubebatch.Job, props domain.Properties) *kubebatch.Job {
	next := runID(old) + 1

	labels := map[string]string{}
	for k, v := range old.Labels {
		if !slices.Contains(controllerLabels, k) {
			labels[k] = v
		}
	}
	annotations := map[string]string{}
	for k, v := range old.Annotations {
		annotations[k] = v
	}
	annotations[AnnotationNominalTime] = nominalTime(old).Format(time.RFC3339)
	annotations[AnnotationRunID] = strconv.Itoa(next)

	spec := old.Spec.DeepCopy()
	spec.Selector = nil
	spec.ManualSelector = nil
	spec.Suspend = nil
	podLabels := map[string]string{}
	for k, v := range spec.Template.Labels {
		if !slices.Contains(controllerLabels, k) {
			podLabels[k] = v
		}
	}
	spec.Template.Labels = podLabels

	if 0 < len(props) {
		for i := range spec.Template.Spec.Containers {
			c := &spec.Template.Spec.Containers[i]
			if c.Name != MainContainer {
				continue
			}
			c.Env = slices.DeleteFunc(c.Env, func(e kubecore.EnvVar) bool {
				_, ok := props[e.Name]
				return ok
			})
			c.Env = append(c.Env, envOf(props)...)
		}
	}

	return &kubebatch.Job{
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name:        rerunName(old.Name, next),
			Namespace:   old.Namespace,
			Labels:      labels,
			Annotations: annotations,
		},
		Spec: *spec,
	}
}

var reRerunSuffix = regexp.MustCompile(`-r\d+$`)

func rerunName(name string, runID int) string {
	base := reRerunSuffix.ReplaceAllString(name, "")
	suffix := fmt.Sprintf("-r%d", runID)
	if room := jobNameMaxLen - len(suffix); room < len(base) {
		base = strings.TrimRight(base[:room], "-")
	}
	return base + suffix
}

func paramsOf(job *kubebatch.Job) map[string]string {
	params := map[string]string{}
	for _, c := range job.Spec.Template.Spec.Containers {
		if c.Name != MainContainer {
			continue
		}
		for _, e := range c.Env {
			if e.ValueFrom == nil {
				params[e.Name] = e.Value
			}
		}
	}
	return params
}
