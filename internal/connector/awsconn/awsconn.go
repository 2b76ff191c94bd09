// Package awsconn implements the cloud connector against the EC2 API.
// It owns nothing but the SDK client: credentials, regions and paging
// are the SDK's business, and no state survives between calls.
package awsconn

import (
	"context"
	"errors"
	"fmt"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/vpcrouter/vpcrouter/internal/models"
)

type Connector struct {
	client  *ec2.Client
	limiter *rate.Limiter
}

func New(ctx context.Context, region string) (*Connector, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &Connector{
		client: ec2.NewFromConfig(cfg),
		// EC2 throttles bursty DescribeRouteTables/ReplaceRoute callers
		// hard, keep well under the request limit.
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}, nil
}

func (c *Connector) ListZones(ctx context.Context) ([]models.Zone, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.client.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to describe availability zones: %w", err)
	}
	zones := make([]models.Zone, 0, len(out.AvailabilityZones))
	for _, z := range out.AvailabilityZones {
		zones = append(zones, models.Zone{
			Name:  aws.ToString(z.ZoneName),
			State: string(z.State),
		})
	}
	return zones, nil
}

func (c *Connector) ListVPCs(ctx context.Context) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to describe vpcs: %w", err)
	}
	ids := make([]string, 0, len(out.Vpcs))
	for _, v := range out.Vpcs {
		ids = append(ids, aws.ToString(v.VpcId))
	}
	return ids, nil
}

func (c *Connector) ListSubnets(ctx context.Context, vpcID string) ([]models.Subnet, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: vpcFilter(vpcID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe subnets: %w", err)
	}
	subnets := make([]models.Subnet, 0, len(out.Subnets))
	for _, s := range out.Subnets {
		subnets = append(subnets, models.Subnet{
			ID:   aws.ToString(s.SubnetId),
			CIDR: aws.ToString(s.CidrBlock),
		})
	}
	return subnets, nil
}

func (c *Connector) ListRouteTables(ctx context.Context, vpcID string) ([]models.RouteTable, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.client.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		Filters: vpcFilter(vpcID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe route tables: %w", err)
	}
	tables := make([]models.RouteTable, 0, len(out.RouteTables))
	for _, rt := range out.RouteTables {
		table := models.RouteTable{ID: aws.ToString(rt.RouteTableId)}
		for _, r := range rt.Routes {
			if aws.ToString(r.DestinationCidrBlock) == "" {
				// ipv6/prefix-list destinations, not managed here
				continue
			}
			table.Routes = append(table.Routes, models.Route{
				DestinationCIDR: aws.ToString(r.DestinationCidrBlock),
				InstanceID:      aws.ToString(r.InstanceId),
				InterfaceID:     aws.ToString(r.NetworkInterfaceId),
			})
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func (c *Connector) ListInstances(ctx context.Context, vpcID string) ([]models.Instance, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: vpcFilter(vpcID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe instances: %w", err)
	}
	var instances []models.Instance
	// a reservation may hold multiple instances
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			m := models.Instance{ID: aws.ToString(inst.InstanceId)}
			for _, iface := range inst.NetworkInterfaces {
				m.Interfaces = append(m.Interfaces, models.NetworkInterface{
					ID:        aws.ToString(iface.NetworkInterfaceId),
					PrivateIP: aws.ToString(iface.PrivateIpAddress),
				})
			}
			instances = append(instances, m)
		}
	}
	return instances, nil
}

func (c *Connector) CreateRoute(ctx context.Context, tableID, cidr, instanceID, interfaceID string) error {
	return c.mutate(ctx, "create", tableID, cidr, func() error {
		_, err := c.client.CreateRoute(ctx, &ec2.CreateRouteInput{
			RouteTableId:         aws.String(tableID),
			DestinationCidrBlock: aws.String(cidr),
			NetworkInterfaceId:   aws.String(interfaceID),
		})
		return err
	})
}

func (c *Connector) ReplaceRoute(ctx context.Context, tableID, cidr, instanceID, interfaceID string) error {
	return c.mutate(ctx, "replace", tableID, cidr, func() error {
		_, err := c.client.ReplaceRoute(ctx, &ec2.ReplaceRouteInput{
			RouteTableId:         aws.String(tableID),
			DestinationCidrBlock: aws.String(cidr),
			NetworkInterfaceId:   aws.String(interfaceID),
		})
		return err
	})
}

func (c *Connector) DeleteRoute(ctx context.Context, tableID, cidr string) error {
	return c.mutate(ctx, "delete", tableID, cidr, func() error {
		_, err := c.client.DeleteRoute(ctx, &ec2.DeleteRouteInput{
			RouteTableId:         aws.String(tableID),
			DestinationCidrBlock: aws.String(cidr),
		})
		return err
	})
}

// mutate runs a route mutation with pacing and a short throttle-only
// retry. Anything other than API throttling is surfaced immediately so
// the engine can report it per CIDR.
func (c *Connector) mutate(ctx context.Context, op, tableID, cidr string, call func() error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	err := retry.Do(
		call,
		retry.Context(ctx),
		retry.Attempts(3),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isThrottle),
		retry.OnRetry(func(attempt uint, err error) {
			log.Warn().Err(err).Msgf("throttled on route %s for %s in %s, attempt %d", op, cidr, tableID, attempt)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to %s route %s in table %s: %w", op, cidr, tableID, err)
	}
	return nil
}

func isThrottle(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "Throttling", "ThrottlingException", "RequestLimitExceeded":
		return true
	}
	return false
}

func vpcFilter(vpcID string) []ec2types.Filter {
	return []ec2types.Filter{
		{
			Name:   aws.String("vpc-id"),
			Values: []string{vpcID},
		},
	}
}
