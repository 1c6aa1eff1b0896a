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

// Package digitalocean provisions exit nodes as DigitalOcean droplets.
package digitalocean

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/awslabs/operatorpkg/serrors"
	"github.com/digitalocean/godo"
	"github.com/samber/lo"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/log"

	v1 "github.com/fyralabs/chisel-operator/pkg/apis/v1"
	"github.com/fyralabs/chisel-operator/pkg/cloud/cloudinit"
)

const (
	dropletSize  = "s-1vcpu-1gb"
	dropletImage = "ubuntu-23-04-x64"

	tokenKey = "DIGITALOCEAN_TOKEN"

	pollInterval = 5 * time.Second
)

// DropletsAPI is the droplet surface this adapter consumes, satisfied by
// godo.DropletsService.
type DropletsAPI interface {
	Create(context.Context, *godo.DropletCreateRequest) (*godo.Droplet, *godo.Response, error)
	Get(context.Context, int) (*godo.Droplet, *godo.Response, error)
	Delete(context.Context, int) (*godo.Response, error)
}

// Provisioner drives droplets backing managed exit nodes.
type Provisioner struct {
	spec v1.DigitalOceanProvisioner

	// newClient is swapped out in tests.
	newClient func(token string) DropletsAPI
}

func NewProvisioner(spec v1.DigitalOceanProvisioner) *Provisioner {
	return &Provisioner{
		spec: spec,
		newClient: func(token string) DropletsAPI {
			return godo.NewFromToken(token).Droplets
		},
	}
}

func (p *Provisioner) Create(ctx context.Context, auth *corev1.Secret, node *v1.ExitNode, password string) (*v1.ExitNodeStatus, error) {
	token, err := token(auth)
	if err != nil {
		return nil, err
	}
	qualified, name, err := dropletName(node)
	if err != nil {
		return nil, err
	}
	api := p.newClient(token)

	request := &godo.DropletCreateRequest{
		Name:   name,
		Region: p.spec.Region,
		Size:   dropletSize,
		Image:  godo.DropletCreateImage{Slug: dropletImage},
		// DigitalOcean takes user data verbatim, no base64.
		UserData: cloudinit.Generate(password, node.Spec.Port),
		SSHKeys: lo.Map(p.spec.SSHFingerprints, func(fingerprint string, _ int) godo.DropletCreateSSHKey {
			return godo.DropletCreateSSHKey{Fingerprint: fingerprint}
		}),
		Tags: []string{fmt.Sprintf("chisel-operator-provisioner:%s", qualified)},
	}
	droplet, _, err := api.Create(ctx, request)
	if err != nil {
		return nil, serrors.Wrap(fmt.Errorf("creating droplet, %w", err), "exit-node", node.Name)
	}

	ip, err := p.awaitPublicIP(ctx, api, droplet.ID)
	if err != nil {
		return nil, err
	}
	return &v1.ExitNodeStatus{
		Provider: qualified,
		Name:     name,
		Ip:       ip,
		Id:       lo.ToPtr(strconv.Itoa(droplet.ID)),
	}, nil
}

func (p *Provisioner) Update(ctx context.Context, auth *corev1.Secret, node *v1.ExitNode, password string) (*v1.ExitNodeStatus, error) {
	if node.Status == nil || node.Status.Id == nil {
		log.FromContext(ctx).Info("no droplet recorded for exit node, creating a new one", "exit-node", node.Name)
		return p.Create(ctx, auth, node, password)
	}
	token, err := token(auth)
	if err != nil {
		return nil, err
	}
	dropletID, err := strconv.Atoi(*node.Status.Id)
	if err != nil {
		return nil, serrors.Wrap(fmt.Errorf("parsing droplet id, %w", err), "id", *node.Status.Id)
	}
	api := p.newClient(token)
	droplet, _, err := api.Get(ctx, dropletID)
	if err != nil {
		if isNotFound(err) {
			log.FromContext(ctx).Info("droplet is gone, recreating", "droplet-id", dropletID)
			return p.Create(ctx, auth, node, password)
		}
		return nil, serrors.Wrap(fmt.Errorf("getting droplet, %w", err), "droplet-id", dropletID)
	}
	status := *node.Status
	if ip, err := droplet.PublicIPv4(); err == nil && ip != "" {
		status.Ip = ip
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
	dropletID, err := strconv.Atoi(*node.Status.Id)
	if err != nil {
		return serrors.Wrap(fmt.Errorf("parsing droplet id, %w", err), "id", *node.Status.Id)
	}
	log.FromContext(ctx).Info("deleting droplet", "droplet-id", dropletID)
	if _, err := p.newClient(token).Delete(ctx, dropletID); err != nil && !isNotFound(err) {
		return serrors.Wrap(fmt.Errorf("deleting droplet, %w", err), "droplet-id", dropletID)
	}
	return nil
}

func (p *Provisioner) awaitPublicIP(ctx context.Context, api DropletsAPI, dropletID int) (string, error) {
	for {
		droplet, _, err := api.Get(ctx, dropletID)
		if err != nil {
			return "", serrors.Wrap(fmt.Errorf("getting droplet, %w", err), "droplet-id", dropletID)
		}
		if ip, err := droplet.PublicIPv4(); err == nil && ip != "" {
			return ip, nil
		}
		log.FromContext(ctx).Info("waiting for droplet to get IP address", "droplet-id", dropletID)
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
	var errResponse *godo.ErrorResponse
	return errors.As(err, &errResponse) && errResponse.Response != nil && errResponse.Response.StatusCode == http.StatusNotFound
}

func dropletName(node *v1.ExitNode) (qualified string, name string, err error) {
	ref, ok := node.ProvisionerRef()
	if !ok {
		return "", "", serrors.Wrap(fmt.Errorf("no provisioner annotation on exit node"), "exit-node", node.Name)
	}
	return fmt.Sprintf("%s/%s", ref.Namespace, ref.Name), fmt.Sprintf("%s-%s", ref.Name, node.Name), nil
}
