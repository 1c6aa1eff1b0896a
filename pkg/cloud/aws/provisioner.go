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

// Package aws provisions exit nodes as EC2 instances.
package aws

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/smithy-go"
	"github.com/awslabs/operatorpkg/serrors"
	"github.com/patrickmn/go-cache"
	"github.com/samber/lo"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/log"

	v1 "github.com/fyralabs/chisel-operator/pkg/apis/v1"
	"github.com/fyralabs/chisel-operator/pkg/cloud/cloudinit"
)

const (
	defaultSize = "t2.micro"

	// Canonical's rolling Ubuntu LTS AMI pointer.
	ubuntuAMISSMKey = "/aws/service/canonical/ubuntu/server/24.04/stable/current/amd64/hvm/ebs-gp2/ami-id"

	accessKeyIDKey     = "AWS_ACCESS_KEY_ID"
	secretAccessKeyKey = "AWS_SECRET_ACCESS_KEY"

	provisionerTagKey = "chisel-operator-provisioner"

	pollInterval  = 5 * time.Second
	amiCacheTTL   = time.Hour
	amiCacheSweep = 10 * time.Minute
)

// EC2API is the EC2 surface this adapter consumes.
type EC2API interface {
	RunInstances(context.Context, *ec2.RunInstancesInput, ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	DescribeInstances(context.Context, *ec2.DescribeInstancesInput, ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	TerminateInstances(context.Context, *ec2.TerminateInstancesInput, ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
}

// SSMAPI is the SSM surface this adapter consumes.
type SSMAPI interface {
	GetParameter(context.Context, *ssm.GetParameterInput, ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Provisioner launches, refreshes and terminates EC2 instances backing
// managed exit nodes.
type Provisioner struct {
	spec     v1.AWSProvisioner
	amiCache *cache.Cache

	// newClients is swapped out in tests.
	newClients func(ctx context.Context, auth *corev1.Secret, region string) (EC2API, SSMAPI, error)
}

func NewProvisioner(spec v1.AWSProvisioner) *Provisioner {
	return &Provisioner{
		spec:       spec,
		amiCache:   cache.New(amiCacheTTL, amiCacheSweep),
		newClients: newClients,
	}
}

func newClients(ctx context.Context, auth *corev1.Secret, region string) (EC2API, SSMAPI, error) {
	accessKeyID, ok := auth.Data[accessKeyIDKey]
	if !ok {
		return nil, nil, serrors.Wrap(fmt.Errorf("credentials secret is missing key"), "secret", auth.Name, "key", accessKeyIDKey)
	}
	secretAccessKey, ok := auth.Data[secretAccessKeyKey]
	if !ok {
		return nil, nil, serrors.Wrap(fmt.Errorf("credentials secret is missing key"), "secret", auth.Name, "key", secretAccessKeyKey)
	}
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(string(accessKeyID), string(secretAccessKey), "")),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("loading aws config, %w", err)
	}
	return ec2.NewFromConfig(cfg), ssm.NewFromConfig(cfg), nil
}

func (p *Provisioner) Create(ctx context.Context, auth *corev1.Secret, node *v1.ExitNode, password string) (*v1.ExitNodeStatus, error) {
	qualified, name, err := instanceName(node)
	if err != nil {
		return nil, err
	}
	ec2api, ssmapi, err := p.newClients(ctx, auth, p.spec.Region)
	if err != nil {
		return nil, err
	}
	ami, err := p.resolveAMI(ctx, ssmapi)
	if err != nil {
		return nil, err
	}

	userData := base64.StdEncoding.EncodeToString([]byte(cloudinit.Generate(password, node.Spec.Port)))

	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(ami),
		InstanceType: ec2types.InstanceType(lo.CoalesceOrEmpty(p.spec.Size, defaultSize)),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		UserData:     aws.String(userData),
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeInstance,
			Tags: []ec2types.Tag{
				{Key: aws.String("Name"), Value: aws.String(name)},
				{Key: aws.String(provisionerTagKey), Value: aws.String(qualified)},
			},
		}},
	}
	if p.spec.SecurityGroup != nil {
		input.SecurityGroupIds = []string{*p.spec.SecurityGroup}
	}

	out, err := ec2api.RunInstances(ctx, input)
	if err != nil {
		return nil, serrors.Wrap(fmt.Errorf("launching instance, %w", err), "exit-node", node.Name)
	}
	instanceID := lo.FromPtr(out.Instances[0].InstanceId)

	ip, err := p.awaitPublicIP(ctx, ec2api, instanceID)
	if err != nil {
		return nil, err
	}
	return &v1.ExitNodeStatus{
		Provider: qualified,
		Name:     name,
		Ip:       ip,
		Id:       aws.String(instanceID),
	}, nil
}

func (p *Provisioner) Update(ctx context.Context, auth *corev1.Secret, node *v1.ExitNode, password string) (*v1.ExitNodeStatus, error) {
	if node.Status == nil || node.Status.Id == nil {
		log.FromContext(ctx).Info("no instance recorded for exit node, creating a new one", "exit-node", node.Name)
		return p.Create(ctx, auth, node, password)
	}
	ec2api, _, err := p.newClients(ctx, auth, p.spec.Region)
	if err != nil {
		return nil, err
	}
	out, err := ec2api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{*node.Status.Id}})
	if err != nil {
		if isNotFound(err) {
			log.FromContext(ctx).Info("instance is gone, recreating", "instance-id", *node.Status.Id)
			return p.Create(ctx, auth, node, password)
		}
		return nil, serrors.Wrap(fmt.Errorf("describing instance, %w", err), "instance-id", *node.Status.Id)
	}
	status := *node.Status
	if instance, ok := firstInstance(out); ok && instance.PublicIpAddress != nil {
		status.Ip = *instance.PublicIpAddress
	}
	return &status, nil
}

func (p *Provisioner) Delete(ctx context.Context, auth *corev1.Secret, node *v1.ExitNode) error {
	if node.Status == nil || node.Status.Id == nil {
		return nil
	}
	ec2api, _, err := p.newClients(ctx, auth, p.spec.Region)
	if err != nil {
		return err
	}
	if _, err := ec2api.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{*node.Status.Id}}); err != nil && !isNotFound(err) {
		return serrors.Wrap(fmt.Errorf("terminating instance, %w", err), "instance-id", *node.Status.Id)
	}
	return nil
}

func (p *Provisioner) resolveAMI(ctx context.Context, ssmapi SSMAPI) (string, error) {
	if ami, ok := p.amiCache.Get(ubuntuAMISSMKey); ok {
		return ami.(string), nil
	}
	out, err := ssmapi.GetParameter(ctx, &ssm.GetParameterInput{Name: aws.String(ubuntuAMISSMKey)})
	if err != nil {
		return "", fmt.Errorf("getting ssm parameter, %w", err)
	}
	ami := lo.FromPtr(out.Parameter.Value)
	p.amiCache.SetDefault(ubuntuAMISSMKey, ami)
	log.FromContext(ctx).V(1).Info("discovered AMI", "ami", ami, "query", ubuntuAMISSMKey)
	return ami, nil
}

// awaitPublicIP polls until the instance reports a public IPv4. There is no
// attempt ceiling; the reconcile context bounds total time.
func (p *Provisioner) awaitPublicIP(ctx context.Context, ec2api EC2API, instanceID string) (string, error) {
	for {
		out, err := ec2api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}})
		if err != nil {
			return "", serrors.Wrap(fmt.Errorf("describing instance, %w", err), "instance-id", instanceID)
		}
		if instance, ok := firstInstance(out); ok && instance.PublicIpAddress != nil {
			return *instance.PublicIpAddress, nil
		}
		log.FromContext(ctx).Info("waiting for instance to get IP address", "instance-id", instanceID)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func firstInstance(out *ec2.DescribeInstancesOutput) (ec2types.Instance, bool) {
	for _, reservation := range out.Reservations {
		for _, instance := range reservation.Instances {
			return instance, true
		}
	}
	return ec2types.Instance{}, false
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "InvalidInstanceID.NotFound" || code == "InvalidInstanceID.Malformed"
	}
	return false
}

// instanceName derives the qualified provisioner reference and the VM display
// name "<provisionerName>-<exitNodeName>" from the node's annotation.
func instanceName(node *v1.ExitNode) (qualified string, name string, err error) {
	ref, ok := node.ProvisionerRef()
	if !ok {
		return "", "", serrors.Wrap(fmt.Errorf("no provisioner annotation on exit node"), "exit-node", node.Name)
	}
	return fmt.Sprintf("%s/%s", ref.Namespace, ref.Name), fmt.Sprintf("%s-%s", ref.Name, node.Name), nil
}
