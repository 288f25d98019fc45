package secretsvault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// KubernetesProvider reads secrets from a single Kubernetes Secret resource,
// one data key per logical secret.
type KubernetesProvider struct {
	client     kubernetes.Interface
	namespace  string
	secretName string
}

// NewKubernetesProvider builds a provider over cfg's namespace/secret name,
// trying in-cluster config first and falling back to a kubeconfig file.
func NewKubernetesProvider(cfg *Config) (*KubernetesProvider, error) {
	if cfg.K8sSecretName == "" {
		return nil, fmt.Errorf("secretsvault: K8sSecretName is required")
	}

	restConfig, err := buildKubernetesConfig(cfg)
	if err != nil {
		return nil, err
	}

	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("secretsvault: create kubernetes client: %w", err)
	}

	namespace := cfg.K8sNamespace
	if namespace == "" {
		if data, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace"); err == nil {
			namespace = string(data)
		} else {
			namespace = "default"
		}
	}

	return &KubernetesProvider{client: client, namespace: namespace, secretName: cfg.K8sSecretName}, nil
}

func buildKubernetesConfig(cfg *Config) (*rest.Config, error) {
	if cfg.K8sInCluster {
		if config, err := rest.InClusterConfig(); err == nil {
			return config, nil
		}
	}

	kubeconfigPath := cfg.K8sKubeconfig
	if kubeconfigPath == "" {
		home, _ := os.UserHomeDir()
		kubeconfigPath = filepath.Join(home, ".kube", "config")
	}
	config, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("secretsvault: build kubernetes config: %w", err)
	}
	return config, nil
}

func (p *KubernetesProvider) Name() string { return "kubernetes" }

func (p *KubernetesProvider) Get(ctx context.Context, key string) (string, error) {
	secret, err := p.client.CoreV1().Secrets(p.namespace).Get(ctx, p.secretName, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("secretsvault: get kubernetes secret: %w", err)
	}
	data, ok := secret.Data[key]
	if !ok {
		return "", ErrSecretNotFound
	}
	return string(data), nil
}

func (p *KubernetesProvider) List(ctx context.Context) ([]string, error) {
	secret, err := p.client.CoreV1().Secrets(p.namespace).Get(ctx, p.secretName, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("secretsvault: get kubernetes secret: %w", err)
	}
	keys := make([]string, 0, len(secret.Data))
	for key := range secret.Data {
		keys = append(keys, key)
	}
	return keys, nil
}

func (p *KubernetesProvider) Close() error { return nil }

func (p *KubernetesProvider) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := p.client.CoreV1().Secrets(p.namespace).Get(ctx, p.secretName, metav1.GetOptions{})
	if err != nil {
		return apierrors.IsNotFound(err)
	}
	return true
}

var _ Provider = (*KubernetesProvider)(nil)
