package gpu

import (
	"context"
	"encoding/base64"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// consoleBound caps how much console output a diagnostics snapshot
// carries from each end. Boot messages live at the start, crash and
// shutdown messages at the end.
const consoleBound = 2000

// captureDiagnostics snapshots the instance for a failure report: state
// and state reason, status checks, and bounded console output. Every
// lookup is best effort; a failing one leaves a note instead of data.
func captureDiagnostics(ctx context.Context, api EC2API, instanceID string) map[string]any {
	diag := map[string]any{}

	out, err := api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		diag["diagnostics_error"] = err.Error()
		return diag
	}
	if len(out.Reservations) > 0 && len(out.Reservations[0].Instances) > 0 {
		instance := out.Reservations[0].Instances[0]
		diag["state"] = string(instance.State.Name)
		if instance.StateReason != nil {
			diag["state_reason"] = aws.ToString(instance.StateReason.Message)
		}
		diag["state_transition_reason"] = aws.ToString(instance.StateTransitionReason)
	}

	status, err := api.DescribeInstanceStatus(ctx, &ec2.DescribeInstanceStatusInput{
		InstanceIds:         []string{instanceID},
		IncludeAllInstances: aws.Bool(true),
	})
	if err == nil && len(status.InstanceStatuses) > 0 {
		s := status.InstanceStatuses[0]
		if s.InstanceStatus != nil {
			diag["instance_status"] = string(s.InstanceStatus.Status)
		}
		if s.SystemStatus != nil {
			diag["system_status"] = string(s.SystemStatus.Status)
		}
	}

	console, err := api.GetConsoleOutput(ctx, &ec2.GetConsoleOutputInput{
		InstanceId: &instanceID,
		Latest:     aws.Bool(true),
	})
	if err != nil {
		diag["console_output_error"] = err.Error()
		return diag
	}
	if text := decodeConsoleOutput(aws.ToString(console.Output)); text != "" {
		diag["console_output_start"] = head(text, consoleBound)
		diag["console_output_end"] = tail(text, consoleBound)
		diag["console_output_length"] = len(text)
	}

	return diag
}

// decodeConsoleOutput unwraps the base64 the EC2 API returns console
// output in. Output that does not decode is passed through as is.
func decodeConsoleOutput(output string) string {
	decoded, err := base64.StdEncoding.DecodeString(output)
	if err != nil {
		return output
	}
	return string(decoded)
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// tail is empty when head already covers the whole string.
func tail(s string, n int) string {
	if len(s) <= n {
		return ""
	}
	return s[len(s)-n:]
}
