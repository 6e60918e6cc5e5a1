package svcfile

// Role is the durable role of the local node. It is read from, and written
// to, the service unit file; it is never inferred from the running process.
type Role int

const (
	// Standby designates a node configured without active signing. It
	// forwards traffic and waits as a failover spare.
	Standby Role = iota

	// BlockProducer designates a node configured to sign blocks with its
	// KES/VRF keys and operational certificate.
	BlockProducer
)

// Env-file suffix convention: the unit's EnvironmentFile reference encodes
// the role through the file's suffix.
const (
	ProducerSuffix = ".normal"
	StandbySuffix  = ".standingby"
)

func (r Role) String() string {
	switch r {
	case Standby:
		return "standby"
	case BlockProducer:
		return "block-producer"
	default:
		return "unknown"
	}
}
