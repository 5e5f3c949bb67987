package metrics

// NoopCollector is a no-op implementation of the Collector interface.
type NoopCollector struct{}

// SessionOpened is a no-op.
func (n *NoopCollector) SessionOpened(protocol string) {}

// SessionClosed is a no-op.
func (n *NoopCollector) SessionClosed(protocol string) {}

// CommandSent is a no-op.
func (n *NoopCollector) CommandSent(protocol, command string) {}

// CommandFailed is a no-op.
func (n *NoopCollector) CommandFailed(protocol, command string) {}

// AuthAttempt is a no-op.
func (n *NoopCollector) AuthAttempt(mechanism string, success bool) {}

// MessageDelivered is a no-op.
func (n *NoopCollector) MessageDelivered(sizeBytes int64) {}

// MessageFetched is a no-op.
func (n *NoopCollector) MessageFetched(sizeBytes int64) {}

// ResidentMemory is a no-op.
func (n *NoopCollector) ResidentMemory(kilobytes int64) {}
