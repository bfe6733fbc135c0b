// Package k8s is the execution backend on Kubernetes.
//
// An entity is scheduled as a CronJob, and its instances are the Jobs spawned from the CronJob.
// The nominal time of an instance is when the job is scheduled for.
package k8s

import (
	"context"
	"fmt"
	"time"

	kubebatch "k8s.io/api/batch/v1"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"

	"github.com/opst/knitfleet/pkg/backend"
	"github.com/opst/knitfleet/pkg/domain"
	xe "github.com/opst/knitfleet/pkg/errors"
)

type Backend struct {
	client    K8sClient
	namespace string

	// name of cluster reported in instances.
	cluster string
}

var _ backend.Interface = &Backend{}

func New(client K8sClient, namespace string, cluster string) *Backend {
	return &Backend{client: client, namespace: namespace, cluster: cluster}
}

func (b *Backend) Schedule(ctx context.Context, entity *domain.Entity) error {
	cj, err := CronJobOf(entity)
	if err != nil {
		return err
	}
	if _, err := b.client.CreateCronJob(ctx, b.namespace, cj); kubeerr.IsAlreadyExists(err) {
		return fmt.Errorf("%w: %s(%s) is scheduled already", domain.ErrConflict, entity.Name, entity.Type)
	} else if err != nil {
		return xe.Wrap(err)
	}
	return nil
}

func (b *Backend) Suspend(ctx context.Context, entity *domain.Entity) error {
	return b.setSuspend(ctx, entity, true)
}

func (b *Backend) Resume(ctx context.Context, entity *domain.Entity) error {
	return b.setSuspend(ctx, entity, false)
}

func (b *Backend) setSuspend(ctx context.Context, entity *domain.Entity, suspend bool) error {
	cj, err := b.client.GetCronJob(ctx, b.namespace, CronJobName(entity))
	if kubeerr.IsNotFound(err) {
		return domain.NewNotScheduledError(entity.Name, entity.Type)
	} else if err != nil {
		return xe.Wrap(err)
	}
	cj.Spec.Suspend = &suspend
	if _, err := b.client.UpdateCronJob(ctx, b.namespace, cj); err != nil {
		return xe.Wrap(err)
	}
	return nil
}

func (b *Backend) cronJob(ctx context.Context, entity *domain.Entity) (*kubebatch.CronJob, error) {
	cj, err := b.client.GetCronJob(ctx, b.namespace, CronJobName(entity))
	if kubeerr.IsNotFound(err) {
		return nil, nil
	} else if err != nil {
		return nil, xe.Wrap(err)
	}
	return cj, nil
}

// IsActive tells the CronJob of the entity exists.
func (b *Backend) IsActive(ctx context.Context, entity *domain.Entity) (bool, error) {
	cj, err := b.cronJob(ctx, entity)
	if err != nil {
		return false, err
	}
	return cj != nil, nil
}

func (b *Backend) IsSuspended(ctx context.Context, entity *domain.Entity) (bool, error) {
	cj, err := b.cronJob(ctx, entity)
	if err != nil || cj == nil {
		return false, err
	}
	return cj.Spec.Suspend != nil && *cj.Spec.Suspend, nil
}

// jobs of the entity in lifecycles, ordered by nominal time.
//
// When lifecycles is empty, jobs in any lifecycle are returned.
func (b *Backend) jobs(ctx context.Context, entity *domain.Entity, lifecycles []domain.LifeCycle) ([]kubebatch.Job, error) {
	found, err := b.client.FindJobs(ctx, b.namespace, selectorFor(entity))
	if err != nil {
		return nil, xe.Wrap(err)
	}
	jobs := []kubebatch.Job{}
	for _, j := range found {
		if j.Annotations[AnnotationEntityName] != entity.Name {
			continue
		}
		if 0 < len(lifecycles) && !containsLifecycle(lifecycles, j.Labels[LabelLifecycle]) {
			continue
		}
		jobs = append(jobs, j)
	}
	sortJobs(jobs)
	return jobs, nil
}

func containsLifecycle(lcs []domain.LifeCycle, label string) bool {
	for _, lc := range lcs {
		if string(lc) == label {
			return true
		}
	}
	return false
}

func (b *Backend) jobsIn(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, lifecycles []domain.LifeCycle) ([]kubebatch.Job, error) {
	jobs, err := b.jobs(ctx, entity, lifecycles)
	if err != nil {
		return nil, err
	}
	ret := jobs[:0]
	for _, j := range jobs {
		if window.Contains(nominalTime(&j)) {
			ret = append(ret, j)
		}
	}
	return ret, nil
}

func (b *Backend) instanceOf(job *kubebatch.Job) domain.Instance {
	status, details := StatusOf(job)
	i := domain.Instance{
		Instance: domain.FormatDate(nominalTime(job)),
		Cluster:  b.cluster,
		Status:   status,
		RunID:    runID(job),
		Details:  details,
		EndTime:  endTime(job),
	}
	if st := job.Status.StartTime; st != nil {
		t := st.Time.UTC()
		i.StartTime = &t
	}
	return i
}

func (b *Backend) result(instances []domain.Instance) domain.InstancesResult {
	return domain.InstancesResult{
		Message:   fmt.Sprintf("%d instance(s) on %s", len(instances), b.cluster),
		Instances: instances,
	}
}

func (b *Backend) GetRunningInstances(ctx context.Context, entity *domain.Entity, lifecycles []domain.LifeCycle) (domain.InstancesResult, error) {
	jobs, err := b.jobs(ctx, entity, lifecycles)
	if err != nil {
		return domain.InstancesResult{}, err
	}
	instances := []domain.Instance{}
	for _, j := range jobs {
		if i := b.instanceOf(&j); i.Status == domain.StatusRunning {
			instances = append(instances, i)
		}
	}
	return b.result(instances), nil
}

func (b *Backend) GetStatus(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, lifecycles []domain.LifeCycle) (domain.InstancesResult, error) {
	jobs, err := b.jobsIn(ctx, entity, window, lifecycles)
	if err != nil {
		return domain.InstancesResult{}, err
	}
	instances := make([]domain.Instance, 0, len(jobs))
	for _, j := range jobs {
		instances = append(instances, b.instanceOf(&j))
	}
	return b.result(instances), nil
}

func (b *Backend) GetSummary(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, lifecycles []domain.LifeCycle) (domain.InstancesSummaryResult, error) {
	jobs, err := b.jobsIn(ctx, entity, window, lifecycles)
	if err != nil {
		return domain.InstancesSummaryResult{}, err
	}
	counts := map[domain.WorkflowStatus]int64{}
	for _, j := range jobs {
		s, _ := StatusOf(&j)
		counts[s] += 1
	}
	return domain.InstancesSummaryResult{
		Message:   fmt.Sprintf("%d instance(s) on %s", len(jobs), b.cluster),
		Summaries: []domain.InstanceSummary{{Cluster: b.cluster, Counts: counts}},
	}, nil
}

func (b *Backend) GetInstanceParams(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, lifecycles []domain.LifeCycle) (domain.InstancesResult, error) {
	jobs, err := b.jobsIn(ctx, entity, window, lifecycles)
	if err != nil {
		return domain.InstancesResult{}, err
	}
	instances := make([]domain.Instance, 0, len(jobs))
	for _, j := range jobs {
		i := b.instanceOf(&j)
		i.Params = paramsOf(&j)
		instances = append(instances, i)
	}
	return b.result(instances), nil
}

// act applies f to jobs in the window whose status is accepted by target.
//
// It stops at the first failure.
func (b *Backend) act(
	ctx context.Context, entity *domain.Entity, window domain.TimeWindow, lifecycles []domain.LifeCycle,
	target func(domain.WorkflowStatus) bool,
	f func(*kubebatch.Job) (domain.Instance, error),
) (domain.InstancesResult, error) {
	jobs, err := b.jobsIn(ctx, entity, window, lifecycles)
	if err != nil {
		return domain.InstancesResult{}, err
	}
	instances := []domain.Instance{}
	for _, j := range jobs {
		if s, _ := StatusOf(&j); !target(s) {
			continue
		}
		i, err := f(&j)
		if err != nil {
			return domain.InstancesResult{}, err
		}
		instances = append(instances, i)
	}
	return b.result(instances), nil
}

// KillInstances deletes unfinished jobs. props are not used.
func (b *Backend) KillInstances(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, _ domain.Properties, lifecycles []domain.LifeCycle) (domain.InstancesResult, error) {
	return b.act(
		ctx, entity, window, lifecycles,
		func(s domain.WorkflowStatus) bool { return !finished(s) },
		func(job *kubebatch.Job) (domain.Instance, error) {
			if err := b.client.DeleteJob(ctx, b.namespace, job.Name); err != nil && !kubeerr.IsNotFound(err) {
				return domain.Instance{}, xe.Wrap(err)
			}
			i := b.instanceOf(job)
			i.Status = domain.StatusKilled
			now := time.Now().UTC()
			i.EndTime = &now
			return i, nil
		},
	)
}

// SuspendInstances suspends waiting or running jobs. props are not used.
func (b *Backend) SuspendInstances(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, _ domain.Properties, lifecycles []domain.LifeCycle) (domain.InstancesResult, error) {
	return b.act(
		ctx, entity, window, lifecycles,
		func(s domain.WorkflowStatus) bool { return s == domain.StatusWaiting || s == domain.StatusRunning },
		func(job *kubebatch.Job) (domain.Instance, error) {
			return b.setJobSuspend(ctx, job, true, domain.StatusSuspended)
		},
	)
}

// ResumeInstances resumes suspended jobs. Resumed jobs are WAITING until their pods start. props are not used.
func (b *Backend) ResumeInstances(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, _ domain.Properties, lifecycles []domain.LifeCycle) (domain.InstancesResult, error) {
	return b.act(
		ctx, entity, window, lifecycles,
		func(s domain.WorkflowStatus) bool { return s == domain.StatusSuspended },
		func(job *kubebatch.Job) (domain.Instance, error) {
			return b.setJobSuspend(ctx, job, false, domain.StatusWaiting)
		},
	)
}

func (b *Backend) setJobSuspend(ctx context.Context, job *kubebatch.Job, suspend bool, reported domain.WorkflowStatus) (domain.Instance, error) {
	job = job.DeepCopy()
	job.Spec.Suspend = &suspend
	updated, err := b.client.UpdateJob(ctx, b.namespace, job)
	if err != nil {
		return domain.Instance{}, xe.Wrap(err)
	}
	i := b.instanceOf(updated)
	i.Status = reported
	return i, nil
}

// ReRunInstances replaces finished jobs with new ones having the next run id.
//
// props are passed to the workflow as environment variables.
func (b *Backend) ReRunInstances(ctx context.Context, entity *domain.Entity, window domain.TimeWindow, props domain.Properties, lifecycles []domain.LifeCycle) (domain.InstancesResult, error) {
	return b.act(
		ctx, entity, window, lifecycles, finished,
		func(job *kubebatch.Job) (domain.Instance, error) {
			created, err := b.client.CreateJob(ctx, b.namespace, rerunOf(job, props))
			if err != nil {
				return domain.Instance{}, xe.Wrap(err)
			}
			if err := b.client.DeleteJob(ctx, b.namespace, job.Name); err != nil && !kubeerr.IsNotFound(err) {
				return domain.Instance{}, xe.Wrap(err)
			}
			return b.instanceOf(created), nil
		},
	)
}
