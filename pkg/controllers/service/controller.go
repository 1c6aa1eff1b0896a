/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package service reconciles LoadBalancer services: it selects or requests an
// exit node, publishes the reachable address and manages the tunnel client
// workload.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"reflect"
	"time"

	"github.com/awslabs/operatorpkg/env"
	"github.com/samber/lo"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/sets"
	controllerruntime "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	v1 "github.com/fyralabs/chisel-operator/pkg/apis/v1"
	"github.com/fyralabs/chisel-operator/pkg/cloud/pwgen"
	"github.com/fyralabs/chisel-operator/pkg/deployment"
	"github.com/fyralabs/chisel-operator/pkg/metrics"
)

const (
	requeueInterval = 5 * time.Second
	syncInterval    = time.Hour

	// listTimeout is passed through as the server-side timeout on list calls.
	listTimeout = int64(30)
)

// ErrNoAvailableExitNodes is returned when selection finds no free node. The
// reconcile requeues; an exit node appearing later converges the service.
var ErrNoAvailableExitNodes = errors.New("there are no exit nodes available to assign")

// Controller reconciles LoadBalancer services.
type Controller struct {
	kubeClient   client.Client
	guard        *selectionGuard
	requireClass bool
}

func NewController(kubeClient client.Client) *Controller {
	return &Controller{
		kubeClient:   kubeClient,
		guard:        newSelectionGuard(),
		requireClass: env.WithDefaultBool("REQUIRE_OPERATOR_CLASS", false),
	}
}

func (c *Controller) Register(_ context.Context, m manager.Manager) error {
	return controllerruntime.NewControllerManagedBy(m).
		Named("service").
		For(&corev1.Service{}).
		Watches(&v1.ExitNode{}, handler.EnqueueRequestsFromMapFunc(c.mapExitNode)).
		Complete(c)
}

func (c *Controller) Reconcile(ctx context.Context, req reconcile.Request) (reconcile.Result, error) {
	svc := &corev1.Service{}
	if err := c.kubeClient.Get(ctx, req.NamespacedName, svc); err != nil {
		return reconcile.Result{}, client.IgnoreNotFound(err)
	}
	if !c.eligible(svc) {
		return reconcile.Result{}, nil
	}
	logger := log.FromContext(ctx).WithValues("service", req.NamespacedName)
	ctx = log.IntoContext(ctx, logger)

	if !svc.DeletionTimestamp.IsZero() {
		return c.finalize(ctx, svc)
	}
	if controllerutil.AddFinalizer(svc, v1.ServiceFinalizer) {
		if err := c.kubeClient.Update(ctx, svc); err != nil {
			return reconcile.Result{}, fmt.Errorf("adding finalizer, %w", err)
		}
	}

	node, err := c.selectExitNode(ctx, svc)
	if err != nil {
		if errors.Is(err, ErrNoAvailableExitNodes) {
			metrics.ServiceBindings.WithLabelValues("unavailable").Inc()
			logger.Info("no exit nodes available, waiting for one to appear")
			return reconcile.Result{RequeueAfter: requeueInterval}, nil
		}
		metrics.ServiceBindings.WithLabelValues("error").Inc()
		logger.Error(err, "selecting exit node")
		return reconcile.Result{RequeueAfter: requeueInterval}, nil
	}
	if node.Managed() && node.Status == nil {
		logger.Info("waiting for exit node to be provisioned", "exit-node", node.Name)
		return reconcile.Result{RequeueAfter: requeueInterval}, nil
	}

	if err := c.publishIngress(ctx, svc, node); err != nil {
		return reconcile.Result{}, err
	}
	if err := c.upsertTunnelWorkload(ctx, svc, node); err != nil {
		if errors.Is(err, deployment.ErrNoPortsSet) || errors.Is(err, deployment.ErrNoClusterIP) {
			logger.Error(err, "service is under-specified")
			return reconcile.Result{RequeueAfter: requeueInterval}, nil
		}
		return reconcile.Result{}, err
	}
	metrics.ServiceBindings.WithLabelValues("bound").Inc()
	return reconcile.Result{RequeueAfter: syncInterval}, nil
}

// eligible applies the LoadBalancer preconditions. Services carrying an
// unrelated loadBalancerClass belong to another implementation.
func (c *Controller) eligible(svc *corev1.Service) bool {
	if svc.Spec.Type != corev1.ServiceTypeLoadBalancer {
		return false
	}
	class := lo.FromPtr(svc.Spec.LoadBalancerClass)
	if c.requireClass {
		return class == v1.LoadBalancerClass
	}
	return class == "" || class == v1.LoadBalancerClass
}

// selectExitNode implements the binding discipline: reuse by published
// ingress, explicit node selection, provisioner-backed creation, then the
// free pool under the selection guard.
func (c *Controller) selectExitNode(ctx context.Context, svc *corev1.Service) (*v1.ExitNode, error) {
	if host := ingressHost(svc); host != "" {
		node, err := c.nodeByHost(ctx, host)
		if err != nil {
			return nil, err
		}
		if node != nil {
			return node, nil
		}
	}

	if value := svc.Labels[v1.ExitNodeNameLabel]; value != "" {
		ref := v1.ParseProvisionerRef(svc.Namespace, value)
		node := &v1.ExitNode{}
		if err := c.kubeClient.Get(ctx, ref, node); err != nil {
			return nil, fmt.Errorf("getting selected exit node %s, %w", ref, err)
		}
		return node, nil
	}

	if _, ok := svc.Annotations[v1.ExitNodeProvisionerAnnotation]; ok {
		return c.ensureProvisionedNode(ctx, svc)
	}

	// Free pool. All I/O happens before the guard is taken; the lock only
	// covers candidate filtering and the reservation write.
	nodes := &v1.ExitNodeList{}
	if err := c.kubeClient.List(ctx, nodes, listOptions()); err != nil {
		return nil, fmt.Errorf("listing exit nodes, %w", err)
	}
	bound, err := c.boundHosts(ctx, svc)
	if err != nil {
		return nil, err
	}

	if !c.guard.TryLock() {
		return nil, ErrNoAvailableExitNodes
	}
	defer c.guard.Unlock()
	for i := range nodes.Items {
		node := &nodes.Items[i]
		if node.Managed() && node.Status == nil {
			continue
		}
		host := node.EffectiveHost()
		if host == "" || bound.Has(host) || c.guard.Reserved(host) {
			continue
		}
		c.guard.Reserve(host)
		return node, nil
	}
	return nil, ErrNoAvailableExitNodes
}

// ensureProvisionedNode creates (or reuses) the managed exit node a service
// requested through its provisioner annotation, together with its auth
// Secret. The node owns the Secret; the service owns the node.
func (c *Controller) ensureProvisionedNode(ctx context.Context, svc *corev1.Service) (*v1.ExitNode, error) {
	provisionerRef := v1.ParseProvisionerRef(svc.Namespace, svc.Annotations[v1.ExitNodeProvisionerAnnotation])
	name := lo.CoalesceOrEmpty(
		svc.Annotations[v1.ExitNodeNameLabel],
		fmt.Sprintf("service-%s", svc.Name),
	)

	existing := &v1.ExitNode{}
	err := c.kubeClient.Get(ctx, types.NamespacedName{Namespace: svc.Namespace, Name: name}, existing)
	if err == nil {
		return existing, nil
	}
	if !apierrors.IsNotFound(err) {
		return nil, fmt.Errorf("getting exit node %s, %w", name, err)
	}

	secretName := fmt.Sprintf("%s-auth", name)
	node := &v1.ExitNode{
		TypeMeta: metav1.TypeMeta{
			APIVersion: v1.SchemeGroupVersion.String(),
			Kind:       "ExitNode",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: svc.Namespace,
			Annotations: map[string]string{
				v1.ExitNodeProvisionerAnnotation: provisionerRef.String(),
			},
			OwnerReferences: []metav1.OwnerReference{{
				APIVersion:         "v1",
				Kind:               "Service",
				Name:               svc.Name,
				UID:                svc.UID,
				Controller:         lo.ToPtr(true),
				BlockOwnerDeletion: lo.ToPtr(true),
			}},
		},
		Spec: v1.ExitNodeSpec{
			Host:         "",
			Port:         v1.DefaultChiselPort,
			DefaultRoute: true,
			Auth:         lo.ToPtr(secretName),
		},
	}
	if err := c.kubeClient.Patch(ctx, node, client.Apply, client.FieldOwner(v1.FieldManager), client.ForceOwnership); err != nil {
		return nil, fmt.Errorf("applying exit node, %w", err)
	}
	if err := c.kubeClient.Get(ctx, client.ObjectKeyFromObject(node), node); err != nil {
		return nil, fmt.Errorf("re-fetching exit node, %w", err)
	}

	password := pwgen.Generate(pwgen.DefaultLength)
	secret := &corev1.Secret{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "v1",
			Kind:       "Secret",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      secretName,
			Namespace: svc.Namespace,
			OwnerReferences: []metav1.OwnerReference{{
				APIVersion:         v1.SchemeGroupVersion.String(),
				Kind:               "ExitNode",
				Name:               node.Name,
				UID:                node.UID,
				Controller:         lo.ToPtr(true),
				BlockOwnerDeletion: lo.ToPtr(true),
			}},
		},
		StringData: map[string]string{
			v1.AuthKey: fmt.Sprintf("%s:%s", pwgen.DefaultUsername, password),
		},
	}
	if err := c.kubeClient.Patch(ctx, secret, client.Apply, client.FieldOwner(v1.FieldManager), client.ForceOwnership); err != nil {
		return nil, fmt.Errorf("applying auth secret, %w", err)
	}
	log.FromContext(ctx).Info("created managed exit node for service", "exit-node", node.Name, "provisioner", provisionerRef)
	return node, nil
}

// publishIngress reflects the node's effective host on the service status,
// as an IP when it parses as one and a hostname otherwise. Unchanged status
// is left alone.
func (c *Controller) publishIngress(ctx context.Context, svc *corev1.Service, node *v1.ExitNode) error {
	host := node.EffectiveHost()
	desired := corev1.LoadBalancerIngress{Hostname: host}
	if net.ParseIP(host) != nil {
		desired = corev1.LoadBalancerIngress{IP: host}
	}
	if len(svc.Status.LoadBalancer.Ingress) == 1 && reflect.DeepEqual(svc.Status.LoadBalancer.Ingress[0], desired) {
		return nil
	}
	stored := svc.DeepCopy()
	svc.Status.LoadBalancer.Ingress = []corev1.LoadBalancerIngress{desired}
	if err := c.kubeClient.Status().Patch(ctx, svc, client.MergeFrom(stored)); err != nil {
		return fmt.Errorf("patching service status, %w", err)
	}
	log.FromContext(ctx).Info("published load balancer ingress", "host", host, "exit-node", node.Name)
	return nil
}

// upsertTunnelWorkload applies the chisel client Deployment, skipping the
// write when the live object already matches.
func (c *Controller) upsertTunnelWorkload(ctx context.Context, svc *corev1.Service, node *v1.ExitNode) error {
	desired, err := deployment.New(svc, node)
	if err != nil {
		return err
	}
	existing := &appsv1.Deployment{}
	err = c.kubeClient.Get(ctx, client.ObjectKeyFromObject(desired), existing)
	if err == nil && workloadMatches(existing, desired) {
		return nil
	}
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("getting tunnel deployment, %w", err)
	}
	if err := c.kubeClient.Patch(ctx, desired, client.Apply, client.FieldOwner(v1.FieldManager), client.ForceOwnership); err != nil {
		return fmt.Errorf("applying tunnel deployment, %w", err)
	}
	log.FromContext(ctx).Info("applied tunnel client deployment", "deployment", desired.Name, "namespace", desired.Namespace)
	return nil
}

func workloadMatches(existing, desired *appsv1.Deployment) bool {
	if len(existing.Spec.Template.Spec.Containers) != 1 {
		return false
	}
	have, want := existing.Spec.Template.Spec.Containers[0], desired.Spec.Template.Spec.Containers[0]
	return have.Image == want.Image &&
		reflect.DeepEqual(have.Args, want.Args) &&
		reflect.DeepEqual(have.Env, want.Env) &&
		reflect.DeepEqual(existing.Spec.Selector, desired.Spec.Selector) &&
		reflect.DeepEqual(existing.OwnerReferences, desired.OwnerReferences)
}

// finalize deletes the tunnel workload before letting the service go. The
// Deployment is owned by the exit node, which may outlive the service, so
// the cleanup is explicit rather than left to cascade.
func (c *Controller) finalize(ctx context.Context, svc *corev1.Service) (reconcile.Result, error) {
	if !controllerutil.ContainsFinalizer(svc, v1.ServiceFinalizer) {
		return reconcile.Result{}, nil
	}
	namespaces := sets.New(svc.Namespace)
	if host := ingressHost(svc); host != "" {
		node, err := c.nodeByHost(ctx, host)
		if err != nil {
			return reconcile.Result{}, err
		}
		if node != nil {
			namespaces.Insert(node.Namespace)
		}
	}
	for namespace := range namespaces {
		workload := &appsv1.Deployment{
			ObjectMeta: metav1.ObjectMeta{
				Name:      fmt.Sprintf("chisel-%s", svc.Name),
				Namespace: namespace,
			},
		}
		if err := c.kubeClient.Delete(ctx, workload); client.IgnoreNotFound(err) != nil {
			return reconcile.Result{}, fmt.Errorf("deleting tunnel deployment, %w", err)
		}
	}
	controllerutil.RemoveFinalizer(svc, v1.ServiceFinalizer)
	if err := c.kubeClient.Update(ctx, svc); err != nil {
		return reconcile.Result{}, fmt.Errorf("removing finalizer, %w", err)
	}
	log.FromContext(ctx).Info("cleaned up tunnel workload for deleted service")
	return reconcile.Result{}, nil
}

// nodeByHost finds the realized exit node whose effective host equals host.
func (c *Controller) nodeByHost(ctx context.Context, host string) (*v1.ExitNode, error) {
	nodes := &v1.ExitNodeList{}
	if err := c.kubeClient.List(ctx, nodes, listOptions()); err != nil {
		return nil, fmt.Errorf("listing exit nodes, %w", err)
	}
	for i := range nodes.Items {
		node := &nodes.Items[i]
		if node.Status != nil && node.EffectiveHost() == host {
			return node, nil
		}
	}
	return nil, nil
}

// boundHosts collects the ingress addresses already published on other
// LoadBalancer services, so their nodes are not handed out twice.
func (c *Controller) boundHosts(ctx context.Context, current *corev1.Service) (sets.Set[string], error) {
	services := &corev1.ServiceList{}
	if err := c.kubeClient.List(ctx, services, listOptions()); err != nil {
		return nil, fmt.Errorf("listing services, %w", err)
	}
	bound := sets.New[string]()
	for i := range services.Items {
		svc := &services.Items[i]
		if svc.Namespace == current.Namespace && svc.Name == current.Name {
			continue
		}
		if host := ingressHost(svc); host != "" {
			bound.Insert(host)
		}
	}
	return bound, nil
}

// mapExitNode fans an ExitNode event out to the services it can affect:
// services that requested it, explicitly selected it, already bind it, or
// are still waiting for any node. Coarse over-triggering is acceptable.
func (c *Controller) mapExitNode(ctx context.Context, obj client.Object) []reconcile.Request {
	node, ok := obj.(*v1.ExitNode)
	if !ok {
		return nil
	}
	nodeRef, _ := node.ProvisionerRef()
	host := node.EffectiveHost()

	services := &corev1.ServiceList{}
	if err := c.kubeClient.List(ctx, services, listOptions()); err != nil {
		log.FromContext(ctx).Error(err, "listing services for exit node mapping")
		return nil
	}
	return lo.FilterMap(services.Items, func(svc corev1.Service, _ int) (reconcile.Request, bool) {
		if !c.eligible(&svc) {
			return reconcile.Request{}, false
		}
		interested := false
		if value, ok := svc.Annotations[v1.ExitNodeProvisionerAnnotation]; ok {
			interested = v1.ParseProvisionerRef(svc.Namespace, value) == nodeRef
		}
		if value := lo.CoalesceOrEmpty(svc.Labels[v1.ExitNodeNameLabel], svc.Annotations[v1.ExitNodeNameLabel]); value != "" {
			ref := v1.ParseProvisionerRef(svc.Namespace, value)
			interested = interested || (ref.Namespace == node.Namespace && ref.Name == node.Name)
		}
		switch published := ingressHost(&svc); published {
		case "":
			// Still unbound; a new node may unblock it.
			interested = true
		case host:
			interested = true
		}
		return reconcile.Request{NamespacedName: client.ObjectKeyFromObject(&svc)}, interested
	})
}

func ingressHost(svc *corev1.Service) string {
	if len(svc.Status.LoadBalancer.Ingress) == 0 {
		return ""
	}
	ingress := svc.Status.LoadBalancer.Ingress[0]
	return lo.CoalesceOrEmpty(ingress.IP, ingress.Hostname)
}

func listOptions() client.ListOption {
	return &client.ListOptions{Raw: &metav1.ListOptions{TimeoutSeconds: lo.ToPtr(listTimeout)}}
}
