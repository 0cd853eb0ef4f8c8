package daemon

import (
	"net"
	"os"
	"time"

	"github.com/Unidata/tds-sub001/errors"
	"github.com/Unidata/tds-sub001/pkg/paths"
)

// Connect returns a client for the daemon at the default socket, signing
// trigger requests with the key at the default key path.
func Connect() (*RemoteClient, error) {
	return ConnectTo(paths.SocketPath(), paths.SecretKeyPath())
}

// ConnectTo returns a client for the daemon listening on socketPath. It
// fails with DAEMON_NOT_RUNNING when nothing accepts connections there.
func ConnectTo(socketPath, keyPath string) (*RemoteClient, error) {
	if _, err := os.Stat(socketPath); err != nil {
		return nil, errors.DaemonNotRunning(socketPath)
	}
	conn, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond)
	if err != nil {
		return nil, errors.DaemonNotRunning(socketPath)
	}
	conn.Close()

	return NewRemoteClient(socketPath, keyPath)
}
