package aws

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/yairfalse/sweeper/lifecycle"
	"github.com/yairfalse/sweeper/pkg/tags"
	"github.com/yairfalse/sweeper/types"
)

const serviceRolePath = "/aws-service-role/"

// Roles implements the empty_roles policy: IAM roles with no managed or inline policies
type Roles struct {
	client IAMAPI
	now    func() time.Time
}

// NewRoles creates the IAM role adapter
func NewRoles(client IAMAPI, now func() time.Time) *Roles {
	return &Roles{client: client, now: now}
}

func (r *Roles) TagLookup(coll []iamtypes.Tag, key string) string {
	return tags.Lookup(coll, key)
}

func (r *Roles) TagUpdate(coll []iamtypes.Tag, key, value string) []iamtypes.Tag {
	return tags.Set(coll, key, value)
}

// ListAllInstances discovers roles without any attached or inline policy.
// Roles that gained a policy are listed as in use when they carry an idle-day counter.
// Service-linked roles are never candidates.
func (r *Roles) ListAllInstances(ctx context.Context) ([]types.Resource[[]iamtypes.Tag], error) {
	var resources []types.Resource[[]iamtypes.Tag]
	paginator := iam.NewListRolesPaginator(r.client, &iam.ListRolesInput{})

	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list IAM roles: %w", err)
		}

		for _, role := range output.Roles {
			if strings.HasPrefix(aws.ToString(role.Path), serviceRolePath) {
				continue
			}

			name := aws.ToString(role.RoleName)
			empty, err := r.isEmpty(ctx, name)
			if err != nil {
				return nil, err
			}

			roleTags, err := r.client.ListRoleTags(ctx, &iam.ListRoleTagsInput{RoleName: role.RoleName})
			if err != nil {
				return nil, fmt.Errorf("failed to list tags for role %s: %w", name, err)
			}
			if !empty && !hasCounter(roleTags.Tags) {
				continue
			}

			state := "empty"
			if !empty {
				state = "attached"
			}
			resources = append(resources, types.Resource[[]iamtypes.Tag]{
				ID:        name,
				Type:      "iam_role",
				Region:    "global",
				Name:      name,
				State:     state,
				Tags:      roleTags.Tags,
				CreatedAt: role.CreateDate,
				InUse:     !empty,
			})
		}
	}

	return resources, nil
}

func (r *Roles) isEmpty(ctx context.Context, roleName string) (bool, error) {
	attached, err := r.client.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{
		RoleName: aws.String(roleName),
		MaxItems: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list attached policies for role %s: %w", roleName, err)
	}
	if len(attached.AttachedPolicies) > 0 {
		return false, nil
	}

	inline, err := r.client.ListRolePolicies(ctx, &iam.ListRolePoliciesInput{
		RoleName: aws.String(roleName),
		MaxItems: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list inline policies for role %s: %w", roleName, err)
	}
	return len(inline.PolicyNames) == 0, nil
}

// DeleteResource detaches the role from its instance profiles, then deletes it
func (r *Roles) DeleteResource(ctx context.Context, resourceID string) error {
	profiles, err := r.client.ListInstanceProfilesForRole(ctx, &iam.ListInstanceProfilesForRoleInput{
		RoleName: aws.String(resourceID),
	})
	if err != nil {
		return fmt.Errorf("failed to list instance profiles for role %s: %w", resourceID, err)
	}

	for _, profile := range profiles.InstanceProfiles {
		_, err := r.client.RemoveRoleFromInstanceProfile(ctx, &iam.RemoveRoleFromInstanceProfileInput{
			InstanceProfileName: profile.InstanceProfileName,
			RoleName:            aws.String(resourceID),
		})
		if err != nil {
			return fmt.Errorf("failed to detach role %s from %s: %w", resourceID, aws.ToString(profile.InstanceProfileName), err)
		}
	}

	if _, err := r.client.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(resourceID)}); err != nil {
		return fmt.Errorf("failed to delete role %s: %w", resourceID, err)
	}
	return nil
}

// UpdateResourceDayCountTag writes the counter tag on the role
func (r *Roles) UpdateResourceDayCountTag(ctx context.Context, resourceID string, cleanupDays int, coll []iamtypes.Tag) error {
	_, err := r.client.TagRole(ctx, &iam.TagRoleInput{
		RoleName: aws.String(resourceID),
		Tags: []iamtypes.Tag{{
			Key:   aws.String(lifecycle.DaysCountTag),
			Value: aws.String(lifecycle.FormatDaysCount(r.now(), cleanupDays)),
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to tag role %s: %w", resourceID, err)
	}
	return nil
}

var _ lifecycle.Provider[[]iamtypes.Tag] = (*Roles)(nil)
