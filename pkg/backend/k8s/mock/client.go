package mock

import (
	"context"
	"errors"

	k8s "github.com/opst/knitfleet/pkg/backend/k8s"
	kubebatch "k8s.io/api/batch/v1"
)

type MockClient struct {
	Impl struct {
		GetCronJob    func(ctx context.Context, namespace string, name string) (*kubebatch.CronJob, error)
		CreateCronJob func(ctx context.Context, namespace string, cj *kubebatch.CronJob) (*kubebatch.CronJob, error)
		UpdateCronJob func(ctx context.Context, namespace string, cj *kubebatch.CronJob) (*kubebatch.CronJob, error)

		FindJobs  func(ctx context.Context, namespace string, ls k8s.LabelSelector) ([]kubebatch.Job, error)
		CreateJob func(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error)
		UpdateJob func(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error)
		DeleteJob func(ctx context.Context, namespace string, name string) error
	}
	Called struct {
		GetCronJob    uint64
		CreateCronJob uint64
		UpdateCronJob uint64

		FindJobs  uint64
		CreateJob uint64
		UpdateJob uint64
		DeleteJob uint64
	}
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

// MockClient implements k8s.K8sClient
var _ k8s.K8sClient = &MockClient{}

func (m *MockClient) GetCronJob(ctx context.Context, namespace string, name string) (*kubebatch.CronJob, error) {
	m.Called.GetCronJob += 1
	if m.Impl.GetCronJob == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.GetCronJob(ctx, namespace, name)
}
func (m *MockClient) CreateCronJob(ctx context.Context, namespace string, cj *kubebatch.CronJob) (*kubebatch.CronJob, error) {
	m.Called.CreateCronJob += 1
	if m.Impl.CreateCronJob == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.CreateCronJob(ctx, namespace, cj)
}
func (m *MockClient) UpdateCronJob(ctx context.Context, namespace string, cj *kubebatch.CronJob) (*kubebatch.CronJob, error) {
	m.Called.UpdateCronJob += 1
	if m.Impl.UpdateCronJob == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.UpdateCronJob(ctx, namespace, cj)
}
func (m *MockClient) FindJobs(ctx context.Context, namespace string, ls k8s.LabelSelector) ([]kubebatch.Job, error) {
	m.Called.FindJobs += 1
	if m.Impl.FindJobs == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.FindJobs(ctx, namespace, ls)
}
func (m *MockClient) CreateJob(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error) {
	m.Called.CreateJob += 1
	if m.Impl.CreateJob == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.CreateJob(ctx, namespace, job)
}
func (m *MockClient) UpdateJob(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error) {
	m.Called.UpdateJob += 1
	if m.Impl.UpdateJob == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.UpdateJob(ctx, namespace, job)
}
func (m *MockClient) DeleteJob(ctx context.Context, namespace string, name string) error {
	m.Called.DeleteJob += 1
	if m.Impl.DeleteJob == nil {
		return errors.New("[MOCK] not implemented")
	}
	return m.Impl.DeleteJob(ctx, namespace, name)
}
