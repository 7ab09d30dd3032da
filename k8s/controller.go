// Package k8s provides a Kubernetes controller that publishes Flow CRs to a quill catalog store.
package k8s

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/klejdi94/quill/core"
	v1 "github.com/klejdi94/quill/k8s/api/v1"
	"github.com/klejdi94/quill/registry"
	"github.com/klejdi94/quill/template"
)

// Finalizer removes the flow from the store before the CR goes away.
const Finalizer = "quill.klejdi94.github.com/store"

// FlowReconciler reconciles Flow CRs by writing them to a catalog store.
type FlowReconciler struct {
	client.Client
	Scheme *runtime.Scheme
	Store  registry.Store
	Engine *template.Engine
	Now    func() time.Time
}

// Reconcile validates the Flow CR, writes it to the store and updates status.
// Deleted CRs are removed from the store. Invalid definitions are reported in
// status and not retried until the object changes.
func (r *FlowReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)
	cr := &v1.Flow{}
	if err := r.Get(ctx, req.NamespacedName, cr); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}
	name := cr.FlowName()

	if !cr.DeletionTimestamp.IsZero() {
		if !controllerutil.ContainsFinalizer(cr, Finalizer) {
			return ctrl.Result{}, nil
		}
		if err := r.Store.Delete(ctx, name); err != nil && !errors.Is(err, core.ErrFlowNotFound) {
			logger.Error(err, "failed to remove flow from store", "flow", name)
			return ctrl.Result{}, err
		}
		controllerutil.RemoveFinalizer(cr, Finalizer)
		return ctrl.Result{}, r.Update(ctx, cr)
	}

	if controllerutil.AddFinalizer(cr, Finalizer) {
		if err := r.Update(ctx, cr); err != nil {
			return ctrl.Result{}, err
		}
	}

	flow := cr.Spec.Flow.Copy()
	flow.Name = name
	if err := r.check(flow); err != nil {
		logger.Info("invalid flow definition", "flow", name, "error", err.Error())
		return ctrl.Result{}, r.setStatus(ctx, cr, false, err.Error())
	}
	if err := r.Store.Put(ctx, flow); err != nil {
		logger.Error(err, "failed to store flow", "flow", name)
		_ = r.setStatus(ctx, cr, false, err.Error())
		return ctrl.Result{}, err
	}
	if err := r.setStatus(ctx, cr, true, ""); err != nil {
		return ctrl.Result{}, err
	}
	logger.Info("synced flow to store", "flow", name, "generation", cr.Generation)
	return ctrl.Result{}, nil
}

func (r *FlowReconciler) check(flow *core.Flow) error {
	if err := flow.Check(); err != nil {
		return err
	}
	eng := r.Engine
	if eng == nil {
		eng = template.NewEngine()
	}
	return eng.Compile(flow)
}

func (r *FlowReconciler) setStatus(ctx context.Context, cr *v1.Flow, synced bool, msg string) error {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	cr.Status.Synced = synced
	cr.Status.FlowName = cr.FlowName()
	cr.Status.ObservedGeneration = cr.Generation
	cr.Status.Message = msg
	if synced {
		cr.Status.LastSyncTime = now().UTC().Format(time.RFC3339)
	}
	return r.Status().Update(ctx, cr)
}

// SetupWithManager registers the reconciler with the manager.
func (r *FlowReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&v1.Flow{}).
		Complete(r)
}

// NewScheme returns a scheme with quill types registered.
func NewScheme() (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	if err := v1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("add quill scheme: %w", err)
	}
	return scheme, nil
}
