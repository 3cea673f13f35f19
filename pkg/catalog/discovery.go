package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DiscoveryPort = 32228

	discoveryRequest = "ampctldiscovery1"
)

type discoveryReply struct {
	CatalogPort int    `json:"CatalogPort"`
	ServerID    string `json:"ServerID"`
}

// DiscoveryResponder answers UDP broadcasts looking for catalog servers.
type DiscoveryResponder struct {
	rSock    *net.UDPConn
	tSock    *net.UDPConn
	response []byte
	logger   log.FieldLogger
}

// NewDiscoveryResponder binds the discovery sockets on addr. Requests are
// received on discoveryPort and answered with catalogPort.
func NewDiscoveryResponder(addr string, discoveryPort, catalogPort int, serverID string, logger log.FieldLogger) (*DiscoveryResponder, error) {
	response, err := json.Marshal(discoveryReply{CatalogPort: catalogPort, ServerID: serverID})
	if err != nil {
		return nil, err
	}

	deviceAddress, err := net.ResolveUDPAddr("udp", net.JoinHostPort(addr, strconv.Itoa(discoveryPort)))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve discovery address: %v", err)
	}

	rSock, err := net.ListenUDP("udp", deviceAddress)
	if err != nil {
		return nil, fmt.Errorf("cannot bind receive socket: %v", err)
	}

	// Replies leave from an ephemeral port on the same address.
	localAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(addr, "0"))
	if err != nil {
		rSock.Close()
		return nil, err
	}
	tSock, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		rSock.Close()
		return nil, fmt.Errorf("cannot bind send socket: %v", err)
	}

	return &DiscoveryResponder{
		rSock:    rSock,
		tSock:    tSock,
		response: response,
		logger:   logger,
	}, nil
}

// Addr is the address requests are received on.
func (d *DiscoveryResponder) Addr() *net.UDPAddr {
	return d.rSock.LocalAddr().(*net.UDPAddr)
}

// Run answers requests until ctx is done, then closes the sockets.
func (d *DiscoveryResponder) Run(ctx context.Context) error {
	defer d.rSock.Close()
	defer d.tSock.Close()

	buf := make([]byte, 1024)

	d.logger.Debugf("Discovery responder started on %s", d.Addr())
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			// Wake up periodically to check for cancellation
			d.rSock.SetReadDeadline(time.Now().Add(200 * time.Millisecond))

			n, addr, err := d.rSock.ReadFromUDP(buf)
			if err != nil {
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					continue
				}
				d.logger.Debugf("Error reading from socket: %v", err)
				continue
			}

			data := string(buf[:n])
			d.logger.Debugf("Received %s from %s", data, addr)

			if strings.Contains(data, discoveryRequest) {
				if _, err := d.tSock.WriteToUDP(d.response, addr); err != nil {
					d.logger.Errorf("Error writing to socket: %v", err)
				}
			}
		}
	}
}
