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

// Package exitnode reconciles ExitNode resources: it synthesizes status for
// unmanaged nodes and drives the cloud VM lifecycle for managed ones.
package exitnode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	controllerruntime "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	v1 "github.com/fyralabs/chisel-operator/pkg/apis/v1"
	"github.com/fyralabs/chisel-operator/pkg/cloud"
	"github.com/fyralabs/chisel-operator/pkg/cloud/pwgen"
	"github.com/fyralabs/chisel-operator/pkg/metrics"
)

const (
	// requeueInterval is the retry delay for transient failures.
	requeueInterval = 5 * time.Second
	// syncInterval re-reconciles healthy nodes to refresh their public IP.
	syncInterval = time.Hour
)

// Controller reconciles ExitNodes.
type Controller struct {
	kubeClient client.Client

	// provisionerFor is swapped out in tests.
	provisionerFor func(*v1.ExitNodeProvisioner) (cloud.Provisioner, error)
}

func NewController(kubeClient client.Client) *Controller {
	return &Controller{
		kubeClient:     kubeClient,
		provisionerFor: cloud.ForProvisioner,
	}
}

func (c *Controller) Register(_ context.Context, m manager.Manager) error {
	return controllerruntime.NewControllerManagedBy(m).
		Named("exitnode").
		For(&v1.ExitNode{}).
		Watches(&corev1.Service{}, handler.EnqueueRequestsFromMapFunc(c.mapService)).
		Complete(c)
}

func (c *Controller) Reconcile(ctx context.Context, req reconcile.Request) (reconcile.Result, error) {
	node := &v1.ExitNode{}
	if err := c.kubeClient.Get(ctx, req.NamespacedName, node); err != nil {
		return reconcile.Result{}, client.IgnoreNotFound(err)
	}
	ctx = log.IntoContext(ctx, log.FromContext(ctx).WithValues("exit-node", req.NamespacedName))

	if !node.DeletionTimestamp.IsZero() {
		return c.finalize(ctx, node)
	}
	if !node.Managed() {
		return c.reconcileUnmanaged(ctx, node)
	}
	return c.reconcileManaged(ctx, node)
}

// reconcileUnmanaged copies the declared host into status so selection and
// publication treat user-operated nodes uniformly. No cloud calls happen.
func (c *Controller) reconcileUnmanaged(ctx context.Context, node *v1.ExitNode) (reconcile.Result, error) {
	if node.Status != nil {
		return reconcile.Result{RequeueAfter: syncInterval}, nil
	}
	stored := node.DeepCopy()
	node.Status = &v1.ExitNodeStatus{
		Provider: v1.ProviderUnmanaged,
		Name:     node.Name,
		Ip:       node.Spec.Host,
	}
	if err := c.kubeClient.Status().Patch(ctx, node, client.MergeFrom(stored)); err != nil {
		return reconcile.Result{}, fmt.Errorf("patching exit node status, %w", err)
	}
	log.FromContext(ctx).Info("synthesized status for unmanaged exit node", "ip", node.Status.Ip)
	return reconcile.Result{RequeueAfter: syncInterval}, nil
}

func (c *Controller) reconcileManaged(ctx context.Context, node *v1.ExitNode) (reconcile.Result, error) {
	logger := log.FromContext(ctx)
	if controllerutil.AddFinalizer(node, v1.ExitNodeFinalizer) {
		if err := c.kubeClient.Update(ctx, node); err != nil {
			return reconcile.Result{}, fmt.Errorf("adding finalizer, %w", err)
		}
	}

	ref, _ := node.ProvisionerRef()
	qualified := fmt.Sprintf("%s/%s", ref.Namespace, ref.Name)

	password, err := c.tunnelPassword(ctx, node)
	if err != nil {
		logger.Error(err, "cannot resolve tunnel password for managed exit node")
		return reconcile.Result{RequeueAfter: requeueInterval}, nil
	}

	// A stale provider tag means the node moved between provisioners. The old
	// VM is destroyed with the old provisioner's credentials before the new
	// provisioner takes over.
	if node.Status != nil && node.Status.Provider != qualified {
		if node.Status.Provider != v1.ProviderUnmanaged {
			if err := c.destroyPrevious(ctx, node); err != nil {
				logger.Error(err, "destroying exit node on previous provisioner", "previous", node.Status.Provider)
				return reconcile.Result{RequeueAfter: requeueInterval}, nil
			}
			metrics.CloudOperations.WithLabelValues("delete", "success").Inc()
		}
		stored := node.DeepCopy()
		node.Status = nil
		if err := c.kubeClient.Status().Patch(ctx, node, client.MergeFrom(stored)); err != nil {
			return reconcile.Result{}, fmt.Errorf("clearing exit node status, %w", err)
		}
		logger.Info("cleared status after provisioner change", "provisioner", qualified)
	}

	_, provisioner, credentials, err := c.resolve(ctx, ref)
	if err != nil {
		logger.Error(err, "resolving provisioner", "provisioner", qualified)
		return reconcile.Result{RequeueAfter: requeueInterval}, nil
	}

	operation := "update"
	if node.Status == nil {
		operation = "create"
	}
	var status *v1.ExitNodeStatus
	if node.Status == nil {
		status, err = provisioner.Create(ctx, credentials, node, password)
	} else {
		status, err = provisioner.Update(ctx, credentials, node, password)
	}
	if err != nil {
		metrics.CloudOperations.WithLabelValues(operation, "error").Inc()
		logger.Error(err, "provisioning exit node", "provisioner", qualified, "operation", operation)
		return reconcile.Result{RequeueAfter: requeueInterval}, nil
	}
	metrics.CloudOperations.WithLabelValues(operation, "success").Inc()

	stored := node.DeepCopy()
	node.Status = status
	if err := c.kubeClient.Status().Patch(ctx, node, client.MergeFrom(stored)); err != nil {
		return reconcile.Result{}, fmt.Errorf("patching exit node status, %w", err)
	}
	logger.Info("reconciled managed exit node", "ip", status.Ip, "id", lo.FromPtr(status.Id))
	return reconcile.Result{RequeueAfter: syncInterval}, nil
}

func (c *Controller) finalize(ctx context.Context, node *v1.ExitNode) (reconcile.Result, error) {
	if !controllerutil.ContainsFinalizer(node, v1.ExitNodeFinalizer) {
		return reconcile.Result{}, nil
	}
	logger := log.FromContext(ctx)
	if node.Managed() {
		ref, _ := node.ProvisionerRef()
		_, provisioner, credentials, err := c.resolve(ctx, ref)
		switch {
		case err == nil:
			if err := provisioner.Delete(ctx, credentials, node); err != nil {
				logger.Error(err, "deleting cloud resources for exit node")
				return reconcile.Result{RequeueAfter: requeueInterval}, nil
			}
			metrics.CloudOperations.WithLabelValues("delete", "success").Inc()
		case isResolutionGone(err):
			// The provisioner or its credentials are already gone; there is
			// nothing left we can use to tear the VM down.
			logger.Error(err, "provisioner unavailable during finalization, skipping cloud teardown")
		default:
			return reconcile.Result{}, err
		}
	}
	controllerutil.RemoveFinalizer(node, v1.ExitNodeFinalizer)
	if err := c.kubeClient.Update(ctx, node); err != nil {
		return reconcile.Result{}, fmt.Errorf("removing finalizer, %w", err)
	}
	return reconcile.Result{}, nil
}

// resolve loads the provisioner resource, its adapter and its credentials.
func (c *Controller) resolve(ctx context.Context, ref types.NamespacedName) (*v1.ExitNodeProvisioner, cloud.Provisioner, *corev1.Secret, error) {
	resource := &v1.ExitNodeProvisioner{}
	if err := c.kubeClient.Get(ctx, ref, resource); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil, nil, fmt.Errorf("%w: %s", cloud.ErrProvisionerNotFound, ref)
		}
		return nil, nil, nil, fmt.Errorf("getting provisioner, %w", err)
	}
	provisioner, err := c.provisionerFor(resource)
	if err != nil {
		return nil, nil, nil, err
	}
	secretName, err := resource.AuthSecretName()
	if err != nil {
		return nil, nil, nil, err
	}
	credentials := &corev1.Secret{}
	if err := c.kubeClient.Get(ctx, types.NamespacedName{Namespace: resource.Namespace, Name: secretName}, credentials); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil, nil, fmt.Errorf("%w: %s/%s", cloud.ErrProvisionerSecretNotFound, resource.Namespace, secretName)
		}
		return nil, nil, nil, fmt.Errorf("getting provisioner credentials, %w", err)
	}
	return resource, provisioner, credentials, nil
}

// tunnelPassword reads the node's auth Secret and strips the "chisel:" user
// prefix from the stored auth string.
func (c *Controller) tunnelPassword(ctx context.Context, node *v1.ExitNode) (string, error) {
	if node.Spec.Auth == nil || *node.Spec.Auth == "" {
		return "", cloud.ErrNoPasswordSet
	}
	secret := &corev1.Secret{}
	if err := c.kubeClient.Get(ctx, types.NamespacedName{Namespace: node.Namespace, Name: *node.Spec.Auth}, secret); err != nil {
		if apierrors.IsNotFound(err) {
			return "", fmt.Errorf("%w: %s/%s", cloud.ErrNoPasswordSet, node.Namespace, *node.Spec.Auth)
		}
		return "", fmt.Errorf("getting auth secret, %w", err)
	}
	raw, ok := secret.Data[v1.AuthKey]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", cloud.ErrAuthFieldNotSet, node.Namespace, *node.Spec.Auth)
	}
	return strings.TrimPrefix(string(raw), pwgen.DefaultUsername+":"), nil
}

// destroyPrevious tears down the VM recorded in status using the provisioner
// the status still points at.
func (c *Controller) destroyPrevious(ctx context.Context, node *v1.ExitNode) error {
	oldRef := v1.ParseProvisionerRef(node.Namespace, node.Status.Provider)
	_, provisioner, credentials, err := c.resolve(ctx, oldRef)
	if err != nil {
		return err
	}
	return provisioner.Delete(ctx, credentials, node)
}

// mapService fans a Service event out to the exit nodes it can affect: nodes
// it requested through the provisioner annotation. The mapping is coarse by
// design; an extra reconcile is harmless.
func (c *Controller) mapService(ctx context.Context, obj client.Object) []reconcile.Request {
	svc, ok := obj.(*corev1.Service)
	if !ok {
		return nil
	}
	annotation, ok := svc.Annotations[v1.ExitNodeProvisionerAnnotation]
	if !ok {
		return nil
	}
	ref := v1.ParseProvisionerRef(svc.Namespace, annotation)

	nodes := &v1.ExitNodeList{}
	if err := c.kubeClient.List(ctx, nodes, client.InNamespace(svc.Namespace)); err != nil {
		log.FromContext(ctx).Error(err, "listing exit nodes for service mapping")
		return nil
	}
	return lo.FilterMap(nodes.Items, func(node v1.ExitNode, _ int) (reconcile.Request, bool) {
		nodeRef, managed := node.ProvisionerRef()
		if !managed || nodeRef != ref {
			return reconcile.Request{}, false
		}
		return reconcile.Request{NamespacedName: client.ObjectKeyFromObject(&node)}, true
	})
}

func isResolutionGone(err error) bool {
	return errors.Is(err, cloud.ErrProvisionerNotFound) || errors.Is(err, cloud.ErrProvisionerSecretNotFound)
}
