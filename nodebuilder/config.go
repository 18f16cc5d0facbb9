package nodebuilder

import (
	"time"

	"github.com/quorumcontrol/ownable/capability"
	"github.com/quorumcontrol/ownable/storage"
	"github.com/quorumcontrol/ownable/tracing"
)

type Config struct {
	Namespace string

	Storage storage.Config

	// ListenAddress is where the rpc server binds, empty disables it
	ListenAddress string

	// TLSDomain, when set, puts a LetsEncrypt terminated proxy on :443 in
	// front of the rpc server
	TLSDomain     string
	CertDirectory string

	CacheSize    int
	Timeout      time.Duration
	Capabilities []capability.InterfaceID

	TracingSystem tracing.System // either Jaeger or Elastic
}
