// Package aws implements the fleet provider on Amazon EC2.
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/fleetop/internal/fleet"
	"github.com/yairfalse/fleetop/pkg/instance"
)

// Config holds AWS provider configuration.
// Credentials are passed explicitly; when both keys are empty the SDK's
// default chain (or Profile) is used.
type Config struct {
	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Provider talks to EC2 in a single region.
type Provider struct {
	region string
	client EC2API
}

var _ fleet.Provider = (*Provider)(nil)

// New creates a provider backed by a real EC2 client.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("aws: region required")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	log.Debug().Str("region", cfg.Region).Bool("static_credentials", cfg.AccessKeyID != "").Msg("aws provider ready")
	return NewWithClient(ec2.NewFromConfig(awsCfg), cfg.Region), nil
}

// NewWithClient creates a provider over an existing client.
func NewWithClient(client EC2API, region string) *Provider {
	return &Provider{region: region, client: client}
}

// Region returns the region the provider operates in.
func (p *Provider) Region() string {
	return p.region
}

// DescribeInstances describes ids in one batched, paginated request.
func (p *Provider) DescribeInstances(ctx context.Context, ids []instance.ID) ([]instance.Raw, error) {
	return p.describe(ctx, &ec2.DescribeInstancesInput{InstanceIds: instance.IDStrings(ids)})
}

// DescribeAllInstances describes every instance in the region.
func (p *Provider) DescribeAllInstances(ctx context.Context) ([]instance.Raw, error) {
	return p.describe(ctx, &ec2.DescribeInstancesInput{})
}

func (p *Provider) describe(ctx context.Context, input *ec2.DescribeInstancesInput) ([]instance.Raw, error) {
	var raws []instance.Raw

	for {
		output, err := p.client.DescribeInstances(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("describe instances: %w", err)
		}

		for _, reservation := range output.Reservations {
			for _, inst := range reservation.Instances {
				raws = append(raws, convertInstance(inst))
			}
		}

		if output.NextToken == nil {
			break
		}
		input.NextToken = output.NextToken
	}

	return raws, nil
}

// ApplyLifecycleOperation sends the EC2 call for op.
func (p *Provider) ApplyLifecycleOperation(ctx context.Context, op instance.Operation, ids []instance.ID) error {
	instanceIDs := instance.IDStrings(ids)

	var err error
	switch op {
	case instance.OpStart:
		_, err = p.client.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: instanceIDs})
	case instance.OpStop:
		_, err = p.client.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: instanceIDs})
	case instance.OpReboot:
		_, err = p.client.RebootInstances(ctx, &ec2.RebootInstancesInput{InstanceIds: instanceIDs})
	case instance.OpTerminate:
		_, err = p.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: instanceIDs})
	default:
		return fmt.Errorf("unsupported operation %q", op)
	}
	if err != nil {
		return fmt.Errorf("%s instances: %w", op, err)
	}
	return nil
}

func convertInstance(inst ec2types.Instance) instance.Raw {
	raw := instance.Raw{
		ID:        instance.ID(aws.ToString(inst.InstanceId)),
		Tags:      convertTags(inst.Tags),
		PrivateIP: aws.ToString(inst.PrivateIpAddress),
		PublicIP:  aws.ToString(inst.PublicIpAddress),
	}
	if inst.State != nil {
		raw.State = instance.State(inst.State.Name)
	}
	return raw
}

func convertTags(tags []ec2types.Tag) []instance.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]instance.Tag, 0, len(tags))
	for _, tag := range tags {
		value := instance.NotAvailable
		if tag.Value != nil {
			value = *tag.Value
		}
		out = append(out, instance.Tag{Key: aws.ToString(tag.Key), Value: value})
	}
	return out
}
