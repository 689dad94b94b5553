package gpu

import "time"

// Config locates the shared GPU instance and bounds every wait in the
// orchestration sequence.
type Config struct {
	InstanceID string `env:"INSTANCE_ID"`

	SSHUser    string `env:"SSH_USER" envDefault:"ec2-user"`
	SSHKeyPath string `env:"SSH_KEY_PATH"`

	EFSDNS        string `env:"EFS_DNS"`
	EFSMountPoint string `env:"EFS_MOUNT_POINT" envDefault:"/home/ec2-user"`

	PipelineDir   string `env:"PIPELINE_DIR" envDefault:"/home/ec2-user/pipeline/traffic_sign_pipeline"`
	PipelineImage string `env:"PIPELINE_IMAGE" envDefault:"traffic-pipeline:gpu"`
	PipelineLog   string `env:"PIPELINE_LOG" envDefault:"/home/ec2-user/pipeline.log"`

	// SSH daemons come up noticeably later than the running state, so
	// the orchestrator waits this long before the first connect.
	SSHReadyDelay time.Duration `env:"SSH_READY_DELAY" envDefault:"60s"`
	SSHTimeout    time.Duration `env:"SSH_TIMEOUT" envDefault:"30s"`

	WaiterDelay       time.Duration `env:"WAITER_DELAY" envDefault:"10s"`
	WaiterMaxAttempts int           `env:"WAITER_MAX_ATTEMPTS" envDefault:"60"`
	StopWaitTimeout   time.Duration `env:"STOP_WAIT_TIMEOUT" envDefault:"10m"`

	PipelineTimeout   time.Duration `env:"PIPELINE_TIMEOUT" envDefault:"2h"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"1m"`
}
