package provisioner

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"
)

// Watcher follows sandbox pods through the informer cache and logs
// phase transitions, so operators can line pod state up with the
// admission audit trail.
type Watcher struct {
	client    kubernetes.Interface
	namespace string
	logger    *zap.Logger
}

func NewWatcher(client kubernetes.Interface, namespace string, logger *zap.Logger) *Watcher {
	return &Watcher{client: client, namespace: namespace, logger: logger}
}

func (w *Watcher) Run(ctx context.Context) error {
	factory := informers.NewSharedInformerFactoryWithOptions(
		w.client,
		30*time.Second,
		informers.WithNamespace(w.namespace),
		informers.WithTweakListOptions(func(opts *metav1.ListOptions) {
			opts.LabelSelector = LabelVMID
		}),
	)

	informer := factory.Core().V1().Pods().Informer()
	_, err := informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		UpdateFunc: func(oldObj, newObj interface{}) {
			oldPod, okOld := oldObj.(*corev1.Pod)
			newPod, okNew := newObj.(*corev1.Pod)
			if !okOld || !okNew || oldPod.Status.Phase == newPod.Status.Phase {
				return
			}
			w.logger.Info("sandbox pod phase changed",
				zap.String("vm_id", newPod.Labels[LabelVMID]),
				zap.String("pod", newPod.Name),
				zap.String("from", string(oldPod.Status.Phase)),
				zap.String("to", string(newPod.Status.Phase)))
		},
		DeleteFunc: func(obj interface{}) {
			pod, ok := obj.(*corev1.Pod)
			if !ok {
				return
			}
			w.logger.Info("sandbox pod removed",
				zap.String("vm_id", pod.Labels[LabelVMID]),
				zap.String("pod", pod.Name))
		},
	})
	if err != nil {
		return err
	}

	factory.Start(ctx.Done())
	if !cache.WaitForCacheSync(ctx.Done(), informer.HasSynced) {
		return errors.New("failed to sync pod informer cache")
	}

	w.logger.Info("pod watcher started", zap.String("namespace", w.namespace))
	<-ctx.Done()
	return ctx.Err()
}
