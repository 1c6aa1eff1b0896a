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

package aws

import (
	"context"
	"encoding/base64"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/smithy-go"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	v1 "github.com/fyralabs/chisel-operator/pkg/apis/v1"
)

type fakeEC2 struct {
	runInputs        []*ec2.RunInstancesInput
	terminatedIDs    []string
	publicIP         *string
	describeNotFound bool
}

func (f *fakeEC2) RunInstances(_ context.Context, input *ec2.RunInstancesInput, _ ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	f.runInputs = append(f.runInputs, input)
	return &ec2.RunInstancesOutput{
		Instances: []ec2types.Instance{{InstanceId: aws.String("i-0123456789abcdef0")}},
	}, nil
}

func (f *fakeEC2) DescribeInstances(_ context.Context, input *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if f.describeNotFound {
		return nil, &smithy.GenericAPIError{Code: "InvalidInstanceID.NotFound", Message: "does not exist"}
	}
	return &ec2.DescribeInstancesOutput{
		Reservations: []ec2types.Reservation{{
			Instances: []ec2types.Instance{{
				InstanceId:      aws.String(input.InstanceIds[0]),
				PublicIpAddress: f.publicIP,
			}},
		}},
	}, nil
}

func (f *fakeEC2) TerminateInstances(_ context.Context, input *ec2.TerminateInstancesInput, _ ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	if f.describeNotFound {
		return nil, &smithy.GenericAPIError{Code: "InvalidInstanceID.NotFound", Message: "does not exist"}
	}
	f.terminatedIDs = append(f.terminatedIDs, input.InstanceIds...)
	return &ec2.TerminateInstancesOutput{}, nil
}

type fakeSSM struct {
	calls int
}

func (f *fakeSSM) GetParameter(_ context.Context, _ *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls++
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{Value: aws.String("ami-0abcdef1234567890")},
	}, nil
}

var _ = Describe("Provisioner", func() {
	var (
		ctx         context.Context
		provisioner *Provisioner
		ec2api      *fakeEC2
		ssmapi      *fakeSSM
		credentials *corev1.Secret
		node        *v1.ExitNode
	)

	BeforeEach(func() {
		ctx = context.Background()
		ec2api = &fakeEC2{publicIP: aws.String("198.51.100.4")}
		ssmapi = &fakeSSM{}
		provisioner = NewProvisioner(v1.AWSProvisioner{Auth: "aws-creds", Region: "us-east-1"})
		provisioner.newClients = func(context.Context, *corev1.Secret, string) (EC2API, SSMAPI, error) {
			return ec2api, ssmapi, nil
		}
		credentials = &corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Name: "aws-creds", Namespace: "default"},
			Data: map[string][]byte{
				"AWS_ACCESS_KEY_ID":     []byte("AKIA000"),
				"AWS_SECRET_ACCESS_KEY": []byte("secret"),
			},
		}
		node = &v1.ExitNode{
			ObjectMeta: metav1.ObjectMeta{
				Name:        "en1",
				Namespace:   "default",
				Annotations: map[string]string{v1.ExitNodeProvisionerAnnotation: "default/aws1"},
			},
			Spec: v1.ExitNodeSpec{Port: 9090},
		}
	})

	Describe("Create", func() {
		It("should launch a tagged instance seeded with the tunnel server", func() {
			status, err := provisioner.Create(ctx, credentials, node, "hunter2")
			Expect(err).ToNot(HaveOccurred())

			Expect(status.Provider).To(Equal("default/aws1"))
			Expect(status.Name).To(Equal("aws1-en1"))
			Expect(status.Ip).To(Equal("198.51.100.4"))
			Expect(status.Id).To(HaveValue(Equal("i-0123456789abcdef0")))

			input := ec2api.runInputs[0]
			Expect(string(input.InstanceType)).To(Equal("t2.micro"))
			Expect(input.ImageId).To(HaveValue(Equal("ami-0abcdef1234567890")))
			Expect(input.SecurityGroupIds).To(BeEmpty())

			userData, decodeErr := base64.StdEncoding.DecodeString(*input.UserData)
			Expect(decodeErr).ToNot(HaveOccurred())
			Expect(string(userData)).To(ContainSubstring("AUTH=chisel:hunter2"))
			Expect(string(userData)).To(ContainSubstring("--port=9090"))

			tags := input.TagSpecifications[0].Tags
			Expect(tags).To(ContainElement(ec2types.Tag{Key: aws.String("Name"), Value: aws.String("aws1-en1")}))
			Expect(tags).To(ContainElement(ec2types.Tag{Key: aws.String("chisel-operator-provisioner"), Value: aws.String("default/aws1")}))
		})

		It("should honor size and security group overrides", func() {
			provisioner.spec.Size = "t3.small"
			provisioner.spec.SecurityGroup = lo.ToPtr("sg-tunnel")

			_, err := provisioner.Create(ctx, credentials, node, "pw")
			Expect(err).ToNot(HaveOccurred())
			input := ec2api.runInputs[0]
			Expect(string(input.InstanceType)).To(Equal("t3.small"))
			Expect(input.SecurityGroupIds).To(Equal([]string{"sg-tunnel"}))
		})

		It("should cache the resolved AMI", func() {
			_, err := provisioner.Create(ctx, credentials, node, "pw")
			Expect(err).ToNot(HaveOccurred())
			_, err = provisioner.Create(ctx, credentials, node, "pw")
			Expect(err).ToNot(HaveOccurred())
			Expect(ssmapi.calls).To(Equal(1))
		})

		It("should fail without a provisioner annotation", func() {
			node.Annotations = nil
			_, err := provisioner.Create(ctx, credentials, node, "pw")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Update", func() {
		It("should refresh the public IP of a live instance", func() {
			node.Status = &v1.ExitNodeStatus{Provider: "default/aws1", Name: "aws1-en1", Ip: "198.51.100.4", Id: lo.ToPtr("i-0123456789abcdef0")}
			ec2api.publicIP = aws.String("198.51.100.9")

			status, err := provisioner.Update(ctx, credentials, node, "pw")
			Expect(err).ToNot(HaveOccurred())
			Expect(status.Ip).To(Equal("198.51.100.9"))
			Expect(ec2api.runInputs).To(BeEmpty())
		})

		It("should fall back to create when nothing is recorded", func() {
			status, err := provisioner.Update(ctx, credentials, node, "pw")
			Expect(err).ToNot(HaveOccurred())
			Expect(status.Id).To(HaveValue(Equal("i-0123456789abcdef0")))
			Expect(ec2api.runInputs).To(HaveLen(1))
		})
	})

	Describe("Delete", func() {
		It("should terminate the recorded instance", func() {
			node.Status = &v1.ExitNodeStatus{Provider: "default/aws1", Name: "aws1-en1", Ip: "198.51.100.4", Id: lo.ToPtr("i-0123456789abcdef0")}
			Expect(provisioner.Delete(ctx, credentials, node)).To(Succeed())
			Expect(ec2api.terminatedIDs).To(Equal([]string{"i-0123456789abcdef0"}))
		})

		It("should be a no-op without a recorded instance", func() {
			Expect(provisioner.Delete(ctx, credentials, node)).To(Succeed())
			Expect(ec2api.terminatedIDs).To(BeEmpty())
		})

		It("should treat a missing instance as success", func() {
			node.Status = &v1.ExitNodeStatus{Provider: "default/aws1", Name: "aws1-en1", Ip: "198.51.100.4", Id: lo.ToPtr("i-gone")}
			ec2api.describeNotFound = true
			Expect(provisioner.Delete(ctx, credentials, node)).To(Succeed())
		})
	})
})
