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

// Package linode provisions exit nodes as Linode instances.
package linode

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/awslabs/operatorpkg/serrors"
	"github.com/linode/linodego"
	"github.com/samber/lo"
	"golang.org/x/oauth2"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/log"

	v1 "github.com/fyralabs/chisel-operator/pkg/apis/v1"
	"github.com/fyralabs/chisel-operator/pkg/cloud/cloudinit"
)

const (
	defaultType = "g6-nanode-1"
	imageID     = "linode/ubuntu22.04"

	tokenKey = "LINODE_TOKEN"

	pollInterval = 5 * time.Second
)

// InstancesAPI is the instance surface this adapter consumes, satisfied by
// linodego.Client.
type InstancesAPI interface {
	CreateInstance(context.Context, linodego.InstanceCreateOptions) (*linodego.Instance, error)
	GetInstance(context.Context, int) (*linodego.Instance, error)
	DeleteInstance(context.Context, int) error
}

// Provisioner drives Linode instances backing managed exit nodes.
type Provisioner struct {
	spec v1.LinodeProvisioner

	// newClient is swapped out in tests.
	newClient func(token string) InstancesAPI
}

func NewProvisioner(spec v1.LinodeProvisioner) *Provisioner {
	return &Provisioner{
		spec: spec,
		newClient: func(token string) InstancesAPI {
			client := linodego.NewClient(&http.Client{
				Transport: &oauth2.Transport{
					Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
				},
			})
			return &client
		},
	}
}

func (p *Provisioner) Create(ctx context.Context, auth *corev1.Secret, node *v1.ExitNode, password string) (*v1.ExitNodeStatus, error) {
	token, err := token(auth)
	if err != nil {
		return nil, err
	}
	qualified, name, err := instanceLabel(node)
	if err != nil {
		return nil, err
	}
	api := p.newClient(token)

	// Linode wants user data base64-encoded.
	userData := base64.StdEncoding.EncodeToString([]byte(cloudinit.Generate(password, node.Spec.Port)))

	instance, err := api.CreateInstance(ctx, linodego.InstanceCreateOptions{
		Region:   p.spec.Region,
		Type:     lo.CoalesceOrEmpty(p.spec.Size, defaultType),
		Image:    imageID,
		Label:    name,
		RootPass: password,
		Tags:     []string{fmt.Sprintf("chisel-operator-provisioner:%s", qualified)},
		Metadata: &linodego.InstanceMetadataOptions{UserData: userData},
		Booted:   lo.ToPtr(true),
	})
	if err != nil {
		return nil, serrors.Wrap(fmt.Errorf("creating instance, %w", err), "exit-node", node.Name)
	}
	log.FromContext(ctx).Info("created instance", "instance-id", instance.ID, "label", instance.Label)

	ip, err := p.awaitPublicIP(ctx, api, instance.ID)
	if err != nil {
		return nil, err
	}
	return &v1.ExitNodeStatus{
		Provider: qualified,
		Name:     instance.Label,
		Ip:       ip,
		Id:       lo.ToPtr(strconv.Itoa(instance.ID)),
	}, nil
}

func (p *Provisioner) Update(ctx context.Context, auth *corev1.Secret, node *v1.ExitNode, password string) (*v1.ExitNodeStatus, error) {
	if node.Status == nil || node.Status.Id == nil {
		log.FromContext(ctx).Info("no instance recorded for exit node, creating a new one", "exit-node", node.Name)
		return p.Create(ctx, auth, node, password)
	}
	token, err := token(auth)
	if err != nil {
		return nil, err
	}
	instanceID, err := strconv.Atoi(*node.Status.Id)
	if err != nil {
		return nil, serrors.Wrap(fmt.Errorf("parsing instance id, %w", err), "id", *node.Status.Id)
	}
	api := p.newClient(token)
	instance, err := api.GetInstance(ctx, instanceID)
	if err != nil {
		if isNotFound(err) {
			log.FromContext(ctx).Info("instance is gone, recreating", "instance-id", instanceID)
			return p.Create(ctx, auth, node, password)
		}
		return nil, serrors.Wrap(fmt.Errorf("getting instance, %w", err), "instance-id", instanceID)
	}
	status := *node.Status
	if len(instance.IPv4) > 0 {
		status.Ip = instance.IPv4[0].String()
	}
	return &status, nil
}

func (p *Provisioner) Delete(ctx context.Context, auth *corev1.Secret, node *v1.ExitNode) error {
	if node.Status == nil || node.Status.Id == nil {
		return nil
	}
	token, err := token(auth)
	if err != nil {
		return err
	}
	instanceID, err := strconv.Atoi(*node.Status.Id)
	if err != nil {
		return serrors.Wrap(fmt.Errorf("parsing instance id, %w", err), "id", *node.Status.Id)
	}
	log.FromContext(ctx).Info("deleting instance", "instance-id", instanceID)
	if err := p.newClient(token).DeleteInstance(ctx, instanceID); err != nil && !isNotFound(err) {
		return serrors.Wrap(fmt.Errorf("deleting instance, %w", err), "instance-id", instanceID)
	}
	return nil
}

func (p *Provisioner) awaitPublicIP(ctx context.Context, api InstancesAPI, instanceID int) (string, error) {
	for {
		instance, err := api.GetInstance(ctx, instanceID)
		if err != nil {
			return "", serrors.Wrap(fmt.Errorf("getting instance, %w", err), "instance-id", instanceID)
		}
		if len(instance.IPv4) > 0 {
			return instance.IPv4[0].String(), nil
		}
		log.FromContext(ctx).Info("waiting for instance to get IP address", "instance-id", instanceID)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func token(auth *corev1.Secret) (string, error) {
	token, ok := auth.Data[tokenKey]
	if !ok {
		return "", serrors.Wrap(fmt.Errorf("credentials secret is missing key"), "secret", auth.Name, "key", tokenKey)
	}
	return string(token), nil
}

func isNotFound(err error) bool {
	var apiErr *linodego.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

func instanceLabel(node *v1.ExitNode) (qualified string, name string, err error) {
	ref, ok := node.ProvisionerRef()
	if !ok {
		return "", "", serrors.Wrap(fmt.Errorf("no provisioner annotation on exit node"), "exit-node", node.Name)
	}
	return fmt.Sprintf("%s/%s", ref.Namespace, ref.Name), fmt.Sprintf("%s-%s", ref.Name, node.Name), nil
}
