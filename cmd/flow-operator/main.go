// Command flow-operator runs a Kubernetes controller that publishes Flow CRs to a quill catalog store.
package main

import (
	"context"
	"flag"
	"os"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/klejdi94/quill/config"
	"github.com/klejdi94/quill/internal/app"
	"github.com/klejdi94/quill/k8s"
	v1 "github.com/klejdi94/quill/k8s/api/v1"
	"github.com/klejdi94/quill/registry"
)

func main() {
	configPath := flag.String("config", os.Getenv("QUILL_CONFIG"), "Path to YAML config; the first configured catalog store receives the flows")
	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()
	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
	setupLog := ctrl.Log.WithName("setup")

	cfg, err := config.Load(*configPath)
	if err != nil {
		setupLog.Error(err, "load config")
		os.Exit(1)
	}

	var closers app.Closers
	defer func() { _ = closers.Close() }()
	stores, err := app.Stores(context.Background(), cfg.Catalog, &closers)
	if err != nil {
		setupLog.Error(err, "open catalog store")
		os.Exit(1)
	}
	var store registry.Store = registry.NewMemoryStore()
	if len(stores) > 0 {
		store = stores[0]
	} else {
		setupLog.Info("no catalog store configured, keeping flows in memory")
	}

	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(v1.AddToScheme(scheme))

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{Scheme: scheme})
	if err != nil {
		setupLog.Error(err, "create manager")
		os.Exit(1)
	}
	reconciler := &k8s.FlowReconciler{
		Client: mgr.GetClient(),
		Scheme: mgr.GetScheme(),
		Store:  store,
	}
	if err = reconciler.SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "setup controller")
		os.Exit(1)
	}
	if err = mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "run manager")
		os.Exit(1)
	}
}
