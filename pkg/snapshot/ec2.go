package snapshot

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/cenkalti/backoff/v3"
)

// API is the part of the volume-snapshot service the manager needs. The
// production implementation talks to EC2; tests use a fake.
type API interface {
	DescribeSnapshots(ctx context.Context, volumeID string) ([]Snapshot, error)
	CreateSnapshot(ctx context.Context, volumeID, description string) (Snapshot, error)
	DeleteSnapshot(ctx context.Context, snapshotID string) error
}

// EC2 implements API against the AWS EC2 service. Read and create calls
// are retried with exponential backoff since EC2 throttles aggressively;
// deletes are not retried because a failed delete aborts the run anyway.
type EC2 struct {
	svc *ec2.EC2
}

var _ API = (*EC2)(nil)

// NewEC2 creates an EC2-backed snapshot API with static credentials.
func NewEC2(region, accessKey, secretKey string) (*EC2, error) {
	creds := credentials.NewStaticCredentials(accessKey, secretKey, "")
	if _, err := creds.Get(); err != nil {
		return nil, fmt.Errorf("aws credentials: %w", err)
	}
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(region),
		Credentials: creds,
	})
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return &EC2{svc: ec2.New(sess)}, nil
}

func (e *EC2) DescribeSnapshots(ctx context.Context, volumeID string) ([]Snapshot, error) {
	input := &ec2.DescribeSnapshotsInput{
		Filters: []*ec2.Filter{
			{
				Name:   aws.String("volume-id"),
				Values: []*string{aws.String(volumeID)},
			},
			{
				Name:   aws.String("status"),
				Values: []*string{aws.String("completed")},
			},
		},
		OwnerIds: []*string{aws.String("self")},
	}

	var snaps []Snapshot
	op := func() error {
		snaps = snaps[:0]
		err := e.svc.DescribeSnapshotsPagesWithContext(ctx, input,
			func(page *ec2.DescribeSnapshotsOutput, lastPage bool) bool {
				for _, s := range page.Snapshots {
					snaps = append(snaps, fromEC2(s))
				}
				return true
			})
		return retryable(err)
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return nil, fmt.Errorf("describe snapshots for %s: %w", volumeID, err)
	}
	return snaps, nil
}

func (e *EC2) CreateSnapshot(ctx context.Context, volumeID, description string) (Snapshot, error) {
	input := &ec2.CreateSnapshotInput{
		VolumeId:    aws.String(volumeID),
		Description: aws.String(description),
	}

	var created Snapshot
	op := func() error {
		out, err := e.svc.CreateSnapshotWithContext(ctx, input)
		if err != nil {
			return retryable(err)
		}
		created = fromEC2(out)
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return Snapshot{}, fmt.Errorf("create snapshot for %s: %w", volumeID, err)
	}
	return created, nil
}

func (e *EC2) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	_, err := e.svc.DeleteSnapshotWithContext(ctx, &ec2.DeleteSnapshotInput{
		SnapshotId: aws.String(snapshotID),
	})
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", snapshotID, err)
	}
	return nil
}

// retryable marks client-side errors permanent so backoff gives up on them
// immediately and only throttling/server errors are retried.
func retryable(err error) error {
	if err == nil {
		return nil
	}
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case "RequestLimitExceeded", "Throttling", "ServiceUnavailable", "InternalError":
			return err
		}
		return backoff.Permanent(err)
	}
	return err
}

func fromEC2(s *ec2.Snapshot) Snapshot {
	out := Snapshot{
		ID:          aws.StringValue(s.SnapshotId),
		VolumeID:    aws.StringValue(s.VolumeId),
		Description: aws.StringValue(s.Description),
		State:       aws.StringValue(s.State),
		SizeGiB:     aws.Int64Value(s.VolumeSize),
	}
	if s.StartTime != nil {
		out.StartTime = *s.StartTime
	}
	return out
}
