package provisioner

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/courselab/courselab/pkg/config"
	"github.com/courselab/courselab/pkg/eventbus"
)

const (
	LabelVMID      = "courselab.io/vm-id"
	LabelTeamID    = "courselab.io/team-id"
	labelManagedBy = "app.kubernetes.io/managed-by"
)

func NewKubernetesClient(cfg *config.KubernetesConfig) (kubernetes.Interface, error) {
	var (
		restConfig *rest.Config
		err        error
	)
	if cfg.InCluster {
		restConfig, err = rest.InClusterConfig()
	} else {
		restConfig, err = clientcmd.BuildConfigFromFlags("", cfg.KubeConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build kubernetes config: %w", err)
	}
	return kubernetes.NewForConfig(restConfig)
}

// Provisioner realizes admission decisions on the cluster: an
// activated machine gets a sandbox pod sized to its spec, a
// deactivated or deleted machine loses it.
type Provisioner struct {
	client    kubernetes.Interface
	namespace string
	image     string
	logger    *zap.Logger
}

func New(client kubernetes.Interface, cfg *config.KubernetesConfig, logger *zap.Logger) *Provisioner {
	return &Provisioner{
		client:    client,
		namespace: cfg.Namespace,
		image:     cfg.VMImage,
		logger:    logger,
	}
}

// Run consumes VM events from the bus until the context is cancelled.
func (p *Provisioner) Run(ctx context.Context, bus *eventbus.Bus) error {
	p.logger.Info("provisioner started", zap.String("namespace", p.namespace))

	for event := range bus.Subscribe(ctx, eventbus.ChannelVM) {
		var vm eventbus.VMEvent
		if err := json.Unmarshal(event.Data, &vm); err != nil {
			p.logger.Error("malformed vm event", zap.Error(err))
			continue
		}
		if err := p.handle(ctx, event.Type, vm); err != nil {
			p.logger.Error("failed to reconcile vm",
				zap.Error(err),
				zap.String("vm_id", vm.VMID),
				zap.String("event", event.Type))
		}
	}

	return ctx.Err()
}

func (p *Provisioner) handle(ctx context.Context, eventType string, vm eventbus.VMEvent) error {
	switch eventType {
	case eventbus.EventVMCreated:
		// Machines are born inactive; nothing to schedule yet.
		return nil
	case eventbus.EventVMUpdated:
		if vm.Active {
			return p.EnsurePod(ctx, vm)
		}
		return p.DeletePod(ctx, vm.VMID)
	case eventbus.EventVMDeleted:
		return p.DeletePod(ctx, vm.VMID)
	default:
		return nil
	}
}

// EnsurePod creates the sandbox pod for an active machine. Already
// existing pods are left alone, so replayed events are harmless.
func (p *Provisioner) EnsurePod(ctx context.Context, vm eventbus.VMEvent) error {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      PodName(vm.VMID),
			Namespace: p.namespace,
			Labels: map[string]string{
				labelManagedBy: "courselab",
				LabelVMID:      vm.VMID,
				LabelTeamID:    vm.TeamID,
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{
				{
					Name:  "sandbox",
					Image: p.image,
					Resources: corev1.ResourceRequirements{
						Limits: corev1.ResourceList{
							corev1.ResourceCPU:              resource.MustParse(strconv.Itoa(vm.CPU)),
							corev1.ResourceMemory:           resource.MustParse(fmt.Sprintf("%dMi", vm.RAMMB)),
							corev1.ResourceEphemeralStorage: resource.MustParse(fmt.Sprintf("%dMi", vm.DiskMB)),
						},
					},
				},
			},
		},
	}

	_, err := p.client.CoreV1().Pods(p.namespace).Create(ctx, pod, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	if err != nil {
		return err
	}

	p.logger.Info("sandbox pod created",
		zap.String("vm_id", vm.VMID),
		zap.String("pod", pod.Name))
	return nil
}

func (p *Provisioner) DeletePod(ctx context.Context, vmID string) error {
	err := p.client.CoreV1().Pods(p.namespace).Delete(ctx, PodName(vmID), metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	p.logger.Info("sandbox pod deleted", zap.String("vm_id", vmID))
	return nil
}

func PodName(vmID string) string {
	return "vm-" + vmID
}
