package k8s

import (
	"context"
	"os"
	"path/filepath"
	"slices"

	kubebatch "k8s.io/api/batch/v1"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	kubelabels "k8s.io/apimachinery/pkg/labels"
	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"

	xe "github.com/opst/knitfleet/pkg/errors"
)

// subset of k8s.Clientset
type K8sClient interface {
	GetCronJob(ctx context.Context, namespace string, name string) (*kubebatch.CronJob, error)
	CreateCronJob(ctx context.Context, namespace string, cj *kubebatch.CronJob) (*kubebatch.CronJob, error)
	UpdateCronJob(ctx context.Context, namespace string, cj *kubebatch.CronJob) (*kubebatch.CronJob, error)

	FindJobs(ctx context.Context, namespace string, labels LabelSelector) ([]kubebatch.Job, error)
	CreateJob(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error)
	UpdateJob(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error)
	DeleteJob(ctx context.Context, namespace string, name string) error
}

// Labels to be matched exactly.
type LabelSelector map[string]string

// convert to string value in form of query string.
//
// Keys are sorted, so the same selector makes the same string.
func (ls LabelSelector) QueryString() string {
	return kubelabels.SelectorFromSet(kubelabels.Set(ls)).String()
}

// Matches tells the labels satisfy the selector.
func (ls LabelSelector) Matches(labels map[string]string) bool {
	return kubelabels.SelectorFromSet(kubelabels.Set(ls)).Matches(kubelabels.Set(labels))
}

// A wrapper for the type k8s.Clientset; because it does not prefer method chain-style invocations of that type.
type k8sClient struct {
	client k8s.Interface
}

// type check: k8sClient implements K8sClient
var _ K8sClient = &k8sClient{}

func (k *k8sClient) GetCronJob(ctx context.Context, namespace string, name string) (*kubebatch.CronJob, error) {
	return k.client.BatchV1().CronJobs(namespace).Get(ctx, name, kubeapimeta.GetOptions{})
}

func (k *k8sClient) CreateCronJob(ctx context.Context, namespace string, cj *kubebatch.CronJob) (*kubebatch.CronJob, error) {
	return k.client.BatchV1().CronJobs(namespace).Create(ctx, cj, kubeapimeta.CreateOptions{})
}

func (k *k8sClient) UpdateCronJob(ctx context.Context, namespace string, cj *kubebatch.CronJob) (*kubebatch.CronJob, error) {
	return k.client.BatchV1().CronJobs(namespace).Update(ctx, cj, kubeapimeta.UpdateOptions{})
}

func (k *k8sClient) FindJobs(ctx context.Context, namespace string, labels LabelSelector) ([]kubebatch.Job, error) {
	resp, err := k.client.BatchV1().Jobs(namespace).List(ctx, kubeapimeta.ListOptions{
		LabelSelector: labels.QueryString(),
	})
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (k *k8sClient) CreateJob(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error) {
	return k.client.BatchV1().Jobs(namespace).Create(ctx, job, kubeapimeta.CreateOptions{})
}

func (k *k8sClient) UpdateJob(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error) {
	return k.client.BatchV1().Jobs(namespace).Update(ctx, job, kubeapimeta.UpdateOptions{})
}

func (k *k8sClient) DeleteJob(ctx context.Context, namespace string, name string) error {
	background := kubeapimeta.DeletePropagationBackground
	zero := int64(0)
	return k.client.BatchV1().Jobs(namespace).Delete(ctx, name, kubeapimeta.DeleteOptions{
		GracePeriodSeconds: &zero,
		PropagationPolicy:  &background,
	})
}

func WrapK8sClient(c k8s.Interface) K8sClient {
	return &k8sClient{client: c}
}

// Connect builds a clientset.
//
// kubeconfig file is searched from (in order of priority)
//
// - the kubeconfig argument
//
// - environmental variable `KUBECONFIG`
//
// - `~/.kube/config`
//
// When no files are found from above, it tries to use in-cluster config.
func Connect(kubeconfig string, kubecontext string) (*k8s.Clientset, error) {
	candidates := []string{kubeconfig, os.Getenv("KUBECONFIG")}
	if home := homedir.HomeDir(); home != "" {
		candidates = append(candidates, filepath.Join(home, ".kube", "config"))
	}

	found := ""
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if stat, err := os.Stat(c); err == nil && !stat.IsDir() {
			found = c
			break
		}
	}

	var config *rest.Config
	var err error
	if found == "" {
		// fallback: try in-cluster
		config, err = rest.InClusterConfig()
	} else {
		config, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			&clientcmd.ClientConfigLoadingRules{ExplicitPath: found},
			&clientcmd.ConfigOverrides{CurrentContext: kubecontext},
		).ClientConfig()
	}
	if err != nil {
		return nil, xe.Wrap(err)
	}

	clientset, err := k8s.NewForConfig(config)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return clientset, nil
}

// sortJobs orders jobs by nominal time, then by run id.
func sortJobs(jobs []kubebatch.Job) {
	slices.SortStableFunc(jobs, func(a, b kubebatch.Job) int {
		if c := nominalTime(&a).Compare(nominalTime(&b)); c != 0 {
			return c
		}
		return runID(&a) - runID(&b)
	})
}
