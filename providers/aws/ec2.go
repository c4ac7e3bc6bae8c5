// Package aws implements the cleanup policies on top of aws-sdk-go-v2.
package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/yairfalse/sweeper/lifecycle"
	"github.com/yairfalse/sweeper/pkg/tags"
	"github.com/yairfalse/sweeper/types"
)

// ec2Tagger provides the tag half of the capability set for every EC2 resource
type ec2Tagger struct {
	client EC2API
	region string
	now    func() time.Time
}

func (t ec2Tagger) TagLookup(coll []ec2types.Tag, key string) string {
	return tags.Lookup(coll, key)
}

func (t ec2Tagger) TagUpdate(coll []ec2types.Tag, key, value string) []ec2types.Tag {
	return tags.Set(coll, key, value)
}

// UpdateResourceDayCountTag overwrites the counter tag; other tags are left alone
func (t ec2Tagger) UpdateResourceDayCountTag(ctx context.Context, resourceID string, cleanupDays int, coll []ec2types.Tag) error {
	_, err := t.client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{resourceID},
		Tags: []ec2types.Tag{{
			Key:   aws.String(lifecycle.DaysCountTag),
			Value: aws.String(lifecycle.FormatDaysCount(t.now(), cleanupDays)),
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to tag %s: %w", resourceID, err)
	}
	return nil
}

// hasCounter reports whether coll carries an idle-day counter
func hasCounter(coll any) bool {
	return tags.Lookup(coll, lifecycle.DaysCountTag) != ""
}

func ec2Filter(name string, values ...string) ec2types.Filter {
	return ec2types.Filter{Name: aws.String(name), Values: values}
}

// Volumes implements the unattached_volume policy: EBS volumes in state available
type Volumes struct {
	ec2Tagger
}

// NewVolumes creates the volume adapter
func NewVolumes(client EC2API, region string, now func() time.Time) *Volumes {
	return &Volumes{ec2Tagger{client: client, region: region, now: now}}
}

// ListAllInstances discovers unattached EBS volumes, plus attached volumes still
// carrying an idle-day counter so it can be reset
func (v *Volumes) ListAllInstances(ctx context.Context) ([]types.Resource[[]ec2types.Tag], error) {
	var resources []types.Resource[[]ec2types.Tag]
	err := v.describeVolumes(ctx, ec2Filter("status", string(ec2types.VolumeStateAvailable)), func(volume ec2types.Volume) {
		if volumeIdle(volume) {
			resources = append(resources, v.resource(volume))
		}
	})
	if err != nil {
		return nil, err
	}

	err = v.describeVolumes(ctx, ec2Filter("tag-key", lifecycle.DaysCountTag), func(volume ec2types.Volume) {
		if !volumeIdle(volume) {
			res := v.resource(volume)
			res.InUse = true
			resources = append(resources, res)
		}
	})
	if err != nil {
		return nil, err
	}

	return resources, nil
}

func (v *Volumes) describeVolumes(ctx context.Context, filter ec2types.Filter, fn func(ec2types.Volume)) error {
	paginator := ec2.NewDescribeVolumesPaginator(v.client, &ec2.DescribeVolumesInput{
		Filters: []ec2types.Filter{filter},
	})

	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list EBS volumes: %w", err)
		}
		for _, volume := range output.Volumes {
			fn(volume)
		}
	}
	return nil
}

func (v *Volumes) resource(volume ec2types.Volume) types.Resource[[]ec2types.Tag] {
	return types.Resource[[]ec2types.Tag]{
		ID:        aws.ToString(volume.VolumeId),
		Type:      "ebs_volume",
		Region:    v.region,
		Name:      tags.Lookup(volume.Tags, "Name"),
		State:     string(volume.State),
		Tags:      volume.Tags,
		CreatedAt: volume.CreateTime,
	}
}

func volumeIdle(volume ec2types.Volume) bool {
	return volume.State == ec2types.VolumeStateAvailable && len(volume.Attachments) == 0
}

// DeleteResource deletes the volume
func (v *Volumes) DeleteResource(ctx context.Context, resourceID string) error {
	_, err := v.client.DeleteVolume(ctx, &ec2.DeleteVolumeInput{VolumeId: aws.String(resourceID)})
	if err != nil {
		return fmt.Errorf("failed to delete volume %s: %w", resourceID, err)
	}
	return nil
}

// Addresses implements the ip_unattached policy: Elastic IPs with no association
type Addresses struct {
	ec2Tagger
}

// NewAddresses creates the Elastic IP adapter
func NewAddresses(client EC2API, region string, now func() time.Time) *Addresses {
	return &Addresses{ec2Tagger{client: client, region: region, now: now}}
}

// ListAllInstances discovers Elastic IPs not associated with an instance or interface.
// Associated addresses are listed as in use when they carry an idle-day counter.
func (a *Addresses) ListAllInstances(ctx context.Context) ([]types.Resource[[]ec2types.Tag], error) {
	output, err := a.client.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list elastic IPs: %w", err)
	}

	var resources []types.Resource[[]ec2types.Tag]
	for _, addr := range output.Addresses {
		if addr.AllocationId == nil {
			continue
		}
		associated := addr.AssociationId != nil || addr.NetworkInterfaceId != nil || addr.InstanceId != nil
		if associated && !hasCounter(addr.Tags) {
			continue
		}

		name := tags.Lookup(addr.Tags, "Name")
		if name == "" {
			name = aws.ToString(addr.PublicIp)
		}
		state := "unassociated"
		if associated {
			state = "associated"
		}
		resources = append(resources, types.Resource[[]ec2types.Tag]{
			ID:     aws.ToString(addr.AllocationId),
			Type:   "elastic_ip",
			Region: a.region,
			Name:   name,
			State:  state,
			Tags:   addr.Tags,
			InUse:  associated,
		})
	}

	return resources, nil
}

// DeleteResource releases the address
func (a *Addresses) DeleteResource(ctx context.Context, resourceID string) error {
	_, err := a.client.ReleaseAddress(ctx, &ec2.ReleaseAddressInput{AllocationId: aws.String(resourceID)})
	if err != nil {
		return fmt.Errorf("failed to release address %s: %w", resourceID, err)
	}
	return nil
}

// Instances implements the ec2_stop policy: instances left in state stopped
type Instances struct {
	ec2Tagger
}

// NewInstances creates the stopped instance adapter
func NewInstances(client EC2API, region string, now func() time.Time) *Instances {
	return &Instances{ec2Tagger{client: client, region: region, now: now}}
}

// ListAllInstances discovers stopped instances, plus live instances still carrying
// an idle-day counter so it can be reset
func (i *Instances) ListAllInstances(ctx context.Context) ([]types.Resource[[]ec2types.Tag], error) {
	var resources []types.Resource[[]ec2types.Tag]
	stopped := string(ec2types.InstanceStateNameStopped)
	err := i.describeInstances(ctx, ec2Filter("instance-state-name", stopped), func(instance ec2types.Instance) {
		if instanceState(instance) == ec2types.InstanceStateNameStopped {
			resources = append(resources, i.resource(instance))
		}
	})
	if err != nil {
		return nil, err
	}

	err = i.describeInstances(ctx, ec2Filter("tag-key", lifecycle.DaysCountTag), func(instance ec2types.Instance) {
		switch instanceState(instance) {
		case ec2types.InstanceStateNamePending, ec2types.InstanceStateNameRunning, ec2types.InstanceStateNameStopping:
			res := i.resource(instance)
			res.InUse = true
			resources = append(resources, res)
		}
	})
	if err != nil {
		return nil, err
	}

	return resources, nil
}

func (i *Instances) describeInstances(ctx context.Context, filter ec2types.Filter, fn func(ec2types.Instance)) error {
	paginator := ec2.NewDescribeInstancesPaginator(i.client, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{filter},
	})

	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list EC2 instances: %w", err)
		}
		for _, reservation := range output.Reservations {
			for _, instance := range reservation.Instances {
				fn(instance)
			}
		}
	}
	return nil
}

func (i *Instances) resource(instance ec2types.Instance) types.Resource[[]ec2types.Tag] {
	return types.Resource[[]ec2types.Tag]{
		ID:        aws.ToString(instance.InstanceId),
		Type:      "ec2_instance",
		Region:    i.region,
		Name:      tags.Lookup(instance.Tags, "Name"),
		State:     string(instanceState(instance)),
		Tags:      instance.Tags,
		CreatedAt: instance.LaunchTime,
	}
}

func instanceState(instance ec2types.Instance) ec2types.InstanceStateName {
	if instance.State == nil {
		return ""
	}
	return instance.State.Name
}

// DeleteResource terminates the instance
func (i *Instances) DeleteResource(ctx context.Context, resourceID string) error {
	_, err := i.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{resourceID}})
	if err != nil {
		return fmt.Errorf("failed to terminate instance %s: %w", resourceID, err)
	}
	return nil
}

var (
	_ lifecycle.Provider[[]ec2types.Tag] = (*Volumes)(nil)
	_ lifecycle.Provider[[]ec2types.Tag] = (*Addresses)(nil)
	_ lifecycle.Provider[[]ec2types.Tag] = (*Instances)(nil)
)
