package gpu

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

var _ EC2API = (*StubEC2)(nil)

// StubEC2 plays back a scripted sequence of instance states. Once
// stateSeq is exhausted, describes keep returning the last state.
// StartInstances moves the instance to startTo (running by default).
type StubEC2 struct {
	mu       sync.Mutex
	state    types.InstanceStateName
	stateSeq []types.InstanceStateName
	startTo  types.InstanceStateName
	publicIP string
	console  string

	startCalls int
	stopCalls  int
}

func (f *StubEC2) DescribeInstances(_ context.Context, params *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.stateSeq) > 0 {
		f.state = f.stateSeq[0]
		f.stateSeq = f.stateSeq[1:]
	}
	return &ec2.DescribeInstancesOutput{
		Reservations: []types.Reservation{{
			Instances: []types.Instance{{
				InstanceId:      aws.String(params.InstanceIds[0]),
				State:           &types.InstanceState{Name: f.state},
				PublicIpAddress: aws.String(f.publicIP),
			}},
		}},
	}, nil
}

func (f *StubEC2) StartInstances(_ context.Context, _ *ec2.StartInstancesInput, _ ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.startCalls++
	f.state = f.startTo
	if f.state == "" {
		f.state = types.InstanceStateNameRunning
	}
	return &ec2.StartInstancesOutput{}, nil
}

func (f *StubEC2) StopInstances(_ context.Context, _ *ec2.StopInstancesInput, _ ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopCalls++
	f.state = types.InstanceStateNameStopped
	return &ec2.StopInstancesOutput{}, nil
}

func (f *StubEC2) DescribeInstanceStatus(_ context.Context, _ *ec2.DescribeInstanceStatusInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstanceStatusOutput, error) {
	return &ec2.DescribeInstanceStatusOutput{
		InstanceStatuses: []types.InstanceStatus{{
			InstanceStatus: &types.InstanceStatusSummary{Status: types.SummaryStatusImpaired},
			SystemStatus:   &types.InstanceStatusSummary{Status: types.SummaryStatusOk},
		}},
	}, nil
}

func (f *StubEC2) GetConsoleOutput(_ context.Context, _ *ec2.GetConsoleOutputInput, _ ...func(*ec2.Options)) (*ec2.GetConsoleOutputOutput, error) {
	encoded := base64.StdEncoding.EncodeToString([]byte(f.console))
	return &ec2.GetConsoleOutputOutput{Output: aws.String(encoded)}, nil
}
