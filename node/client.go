package node

import (
	"context"
	"fmt"
	"net/netip"
	"path/filepath"

	"github.com/terassyi/dgtcp/config"
	"github.com/terassyi/dgtcp/logger"
	"github.com/terassyi/dgtcp/proto/socket"
	"github.com/terassyi/dgtcp/proto/tcp"
	"github.com/terassyi/dgtcp/util"
)

// Delivery is what a client session received.
type Delivery struct {
	Payload tcp.Payload
	// Path is where a file payload was written, empty for a message.
	Path  string
	Peer  netip.AddrPort
	Stats socket.Stats
}

// Client discovers a server by broadcast and downloads its payload.
type Client struct {
	ip        string
	port      int
	broadcast netip.AddrPort
	outDir    string
	cfg       *config.Config
	debug     bool
	logger    *logger.Logger
	opts      []tcp.Option
}

func NewClient(ip string, port int, broadcast netip.AddrPort, outDir string, cfg *config.Config, debug bool, opts ...tcp.Option) *Client {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Client{
		ip:        ip,
		port:      port,
		broadcast: broadcast,
		outDir:    outDir,
		cfg:       cfg,
		debug:     debug,
		logger:    logger.New(debug, "tcp"),
		opts:      opts,
	}
}

// Run performs one session: discovery, handshake, transfer and close.
func (c *Client) Run(ctx context.Context) (*Delivery, error) {
	sock, err := socket.Open(c.ip, c.port, c.cfg, logger.New(c.debug, "udp"))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer sock.Close()
	sock.StartReceiving()
	conn := tcp.New(sock, c.logger, c.opts...)

	res, err := conn.FindBroadcast(ctx, c.broadcast)
	if err := check("broadcast", res, err); err != nil {
		return nil, err
	}
	peer := res.Peer
	c.logger.Infof("server found at %s", peer)

	res, err = conn.StartHandshake(ctx, peer)
	if err := check("handshake", res, err); err != nil {
		return nil, err
	}
	segs, res, err := conn.ReceiveBackN(ctx, peer, res)
	if err := check("transfer", res, err); err != nil {
		return nil, err
	}
	payload, err := tcp.Assemble(segs)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	res, err = conn.RespondFin(ctx, peer, res.SeqNum, res.AckNum)
	if err := check("close", res, err); err != nil {
		return nil, err
	}

	d := &Delivery{Payload: payload, Peer: peer, Stats: sock.Stats()}
	if payload.IsFile() {
		name, err := util.ValidatePath(payload.FileName)
		if err != nil {
			return nil, fmt.Errorf("file name %q: %w", payload.FileName, err)
		}
		d.Path = filepath.Join(c.outDir, name)
		if err := util.BytesToFile(d.Path, payload.Data); err != nil {
			return nil, err
		}
		c.logger.Infof("received %s, saved to %s", payload, d.Path)
	} else {
		c.logger.Infof("received %s", payload)
	}
	return d, nil
}
