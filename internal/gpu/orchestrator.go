// Package gpu brings the shared GPU instance to a running state, runs
// the containerized pipeline on it over SSH, and returns it to a
// stopped state. The instance is a single named machine, not a per-job
// resource, so the orchestrator must cope with every state it may be
// found in.
package gpu

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/antosomzi/traffic-sign-app/internal/recording"
)

// EC2API is the slice of the EC2 control plane the orchestrator uses.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
	DescribeInstanceStatus(ctx context.Context, params *ec2.DescribeInstanceStatusInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceStatusOutput, error)
	GetConsoleOutput(ctx context.Context, params *ec2.GetConsoleOutputInput, optFns ...func(*ec2.Options)) (*ec2.GetConsoleOutputOutput, error)
}

var _ EC2API = (*ec2.Client)(nil)

// Result is the outcome of one orchestrated pipeline run.
type Result struct {
	OK         bool
	InstanceID string
	Message    string
	Details    map[string]any
}

// Orchestrator runs the pipeline for one recording on the shared GPU
// instance. Callers must serialize runs; the instance fits one job.
type Orchestrator struct {
	EC2        EC2API           // required
	Dialer     Dialer           // required
	Recordings *recording.Store // required
	Config     Config
}

// Run drives the full sequence: reach the running state, connect over
// SSH, mount the shared filesystem, execute the pipeline container, and
// stop the instance. On failure the result carries a user-facing
// message plus structured details under a stable error_type. The
// instance is stopped on every path except an SSH connect failure,
// where it is left running for inspection.
func (o *Orchestrator) Run(ctx context.Context, recordingID string) *Result {
	instanceID := o.Config.InstanceID

	state, _, err := o.describeInstance(ctx)
	if err != nil {
		return o.unexpected(ctx, err)
	}
	slog.Info("checked instance state", "instance_id", instanceID, "state", state)

	needStart := false
	switch state {
	case types.InstanceStateNameStopping:
		slog.Info("instance is stopping, waiting for it to stop", "instance_id", instanceID)
		waiter := ec2.NewInstanceStoppedWaiter(o.EC2, func(w *ec2.InstanceStoppedWaiterOptions) {
			w.MinDelay = o.Config.WaiterDelay
			w.MaxDelay = o.Config.WaiterDelay
		})
		err = waiter.Wait(ctx, o.describeInput(), o.Config.StopWaitTimeout)
		if err != nil {
			return o.unexpected(ctx, err)
		}
		needStart = true
	case types.InstanceStateNameStopped:
		needStart = true
	case types.InstanceStateNameRunning:
		slog.Info("instance already running, skipping start", "instance_id", instanceID)
	default:
		return o.unexpected(ctx, fmt.Errorf("instance is in unexpected state: %s", state))
	}

	if needStart {
		_, err = o.EC2.StartInstances(ctx, &ec2.StartInstancesInput{
			InstanceIds: []string{instanceID},
		})
		if err != nil {
			return o.unexpected(ctx, err)
		}
		slog.Info("instance start initiated", "instance_id", instanceID)
	}

	runningWaiter := ec2.NewInstanceRunningWaiter(o.EC2, func(w *ec2.InstanceRunningWaiterOptions) {
		w.MinDelay = o.Config.WaiterDelay
		w.MaxDelay = o.Config.WaiterDelay
	})
	maxWait := o.Config.WaiterDelay * time.Duration(o.Config.WaiterMaxAttempts)
	if err = runningWaiter.Wait(ctx, o.describeInput(), maxWait); err != nil {
		details := map[string]any{
			"waiter_error": err.Error(),
			"diagnostics":  captureDiagnostics(ctx, o.EC2, instanceID),
		}
		return o.fail(ctx, true, "waiter_failed", "EC2 instance failed to start", details)
	}

	_, publicIP, err := o.describeInstance(ctx)
	if err != nil {
		return o.unexpected(ctx, err)
	}
	slog.Info("instance running", "instance_id", instanceID, "public_ip", publicIP)

	sleepCtx(ctx, o.Config.SSHReadyDelay)

	runner, err := o.Dialer.Dial(ctx, publicIP)
	if err != nil {
		details := map[string]any{
			"ssh_error":   err.Error(),
			"public_ip":   publicIP,
			"diagnostics": captureDiagnostics(ctx, o.EC2, instanceID),
		}
		return o.fail(ctx, false, "ssh_connection_failed", fmt.Sprintf("SSH connection failed: %v", err), details)
	}
	defer runner.Close()
	slog.Info("ssh connected", "public_ip", publicIP)

	mountCmd := fmt.Sprintf(
		"sudo mkdir -p %s && sudo mount -t nfs4 -o nfsvers=4.1 %s:/ %s",
		o.Config.EFSMountPoint, o.Config.EFSDNS, o.Config.EFSMountPoint,
	)
	mountResult, err := runner.Run(ctx, mountCmd)
	if err != nil {
		return o.unexpected(ctx, err)
	}
	if mountResult.ExitCode != 0 {
		details := map[string]any{
			"mount_command": mountCmd,
			"exit_code":     mountResult.ExitCode,
			"stderr":        mountResult.Stderr,
		}
		return o.fail(ctx, true, "efs_mount_failed", fmt.Sprintf("EFS mount failed: %s", mountResult.Stderr), details)
	}
	slog.Info("efs mounted", "mount_point", o.Config.EFSMountPoint)

	err = recording.WriteStatus(o.Recordings.Path(recordingID), recording.StatusProcessing, "Pipeline running on GPU...", nil)
	if err != nil {
		slog.Warn("couldn't update status file", "err", err)
	}

	pipelineCmd := o.pipelineCommand(recordingID)
	slog.Info("running pipeline", "command", pipelineCmd)

	pipelineCtx := ctx
	if o.Config.PipelineTimeout > 0 {
		var cancel context.CancelFunc
		pipelineCtx, cancel = context.WithTimeout(ctx, o.Config.PipelineTimeout)
		defer cancel()
	}
	start := time.Now()
	pipelineResult, err := o.runWithHeartbeat(pipelineCtx, runner, pipelineCmd)
	if err != nil {
		return o.unexpected(ctx, err)
	}
	elapsed := time.Since(start)

	if pipelineResult.ExitCode != 0 {
		details := map[string]any{
			"exit_code":         pipelineResult.ExitCode,
			"docker_stderr":     head(pipelineResult.Stderr, 2000),
			"pipeline_log_tail": head(o.pipelineLogTail(ctx, runner), 5000),
			"elapsed_seconds":   int(elapsed.Seconds()),
			"docker_command":    pipelineCmd,
		}
		return o.fail(ctx, true, "pipeline_execution_failed", fmt.Sprintf("Pipeline failed (exit %d)", pipelineResult.ExitCode), details)
	}
	slog.Info("pipeline completed", "elapsed", elapsed.Round(time.Second))

	o.stopInstance(ctx)
	return &Result{
		OK:         true,
		InstanceID: instanceID,
		Message:    "Pipeline execution completed successfully",
		Details:    map[string]any{},
	}
}

func (o *Orchestrator) describeInput() *ec2.DescribeInstancesInput {
	return &ec2.DescribeInstancesInput{InstanceIds: []string{o.Config.InstanceID}}
}

func (o *Orchestrator) describeInstance(ctx context.Context) (types.InstanceStateName, string, error) {
	out, err := o.EC2.DescribeInstances(ctx, o.describeInput())
	if err != nil {
		return "", "", fmt.Errorf("describe instance: %w", err)
	}
	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return "", "", fmt.Errorf("instance %s not found", o.Config.InstanceID)
	}

	instance := out.Reservations[0].Instances[0]
	publicIP := ""
	if instance.PublicIpAddress != nil {
		publicIP = *instance.PublicIpAddress
	}
	return instance.State.Name, publicIP, nil
}

// pipelineCommand is the docker invocation, with its output teed to the
// instance-local log the failure path tails.
func (o *Orchestrator) pipelineCommand(recordingID string) string {
	recordingPath := path.Join(o.Config.EFSMountPoint, "recordings", recordingID)
	return fmt.Sprintf(
		"sudo docker run --rm --gpus all -v %s:/usr/src/app -v %s:/data -v %s/weights:/usr/src/app/weights %s -i /data > %s 2>&1",
		o.Config.PipelineDir, recordingPath, o.Config.PipelineDir, o.Config.PipelineImage, o.Config.PipelineLog,
	)
}

func (o *Orchestrator) runWithHeartbeat(ctx context.Context, runner CommandRunner, command string) (*CommandResult, error) {
	type outcome struct {
		result *CommandResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := runner.Run(ctx, command)
		done <- outcome{result, err}
	}()

	interval := o.Config.HeartbeatInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case out := <-done:
			return out.result, out.err
		case <-ticker.C:
			slog.Info("pipeline running", "elapsed", time.Since(start).Round(time.Second))
		}
	}
}

func (o *Orchestrator) pipelineLogTail(ctx context.Context, runner CommandRunner) string {
	result, err := runner.Run(ctx, fmt.Sprintf("tail -n 500 %s 2>&1", o.Config.PipelineLog))
	if err != nil {
		return fmt.Sprintf("Could not retrieve pipeline log: %v", err)
	}
	return result.Stdout
}

func (o *Orchestrator) fail(ctx context.Context, stop bool, errorType, message string, details map[string]any) *Result {
	slog.Error("pipeline run failed", "error_type", errorType, "message", message)
	if stop {
		o.stopInstance(ctx)
	}
	details["error_type"] = errorType
	details["timestamp"] = time.Now().Format(time.RFC3339)
	return &Result{
		InstanceID: o.Config.InstanceID,
		Message:    message,
		Details:    details,
	}
}

func (o *Orchestrator) unexpected(ctx context.Context, err error) *Result {
	details := map[string]any{
		"exception":   err.Error(),
		"diagnostics": captureDiagnostics(ctx, o.EC2, o.Config.InstanceID),
	}
	return o.fail(ctx, true, "unexpected_error", err.Error(), details)
}

func (o *Orchestrator) stopInstance(ctx context.Context) {
	_, err := o.EC2.StopInstances(ctx, &ec2.StopInstancesInput{
		InstanceIds: []string{o.Config.InstanceID},
	})
	if err != nil {
		slog.Error("didn't stop instance", "instance_id", o.Config.InstanceID, "err", err)
		return
	}
	slog.Info("instance stop initiated", "instance_id", o.Config.InstanceID)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
