package cmd

import (
	"context"
	"flag"
	"fmt"
	"net/netip"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"github.com/terassyi/dgtcp/config"
	"github.com/terassyi/dgtcp/node"
)

type ClientCommand struct {
	IP         string
	Port       int
	Broadcast  string
	ServerPort int
	Out        string
	Config     string
	Debug      bool
}

func (*ClientCommand) Name() string {
	return "client"
}

func (*ClientCommand) Synopsis() string {
	return "find a server by broadcast and receive its payload"
}

func (*ClientCommand) Usage() string {
	return `dgtcp client -ip <address> -port <port> -broadcast <address> -server-port <port> [-out <dir>] [-config <yaml>]
	receive a file or a message from a server on the local network
`
}

func (c *ClientCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.IP, "ip", "0.0.0.0", "binding address")
	f.IntVar(&c.Port, "port", 0, "binding port, 0 picks one")
	f.StringVar(&c.Broadcast, "broadcast", "255.255.255.255", "broadcast address")
	f.IntVar(&c.ServerPort, "server-port", 9999, "server port")
	f.StringVar(&c.Out, "out", ".", "directory for received files")
	f.StringVar(&c.Config, "config", "", "yaml config file")
	f.BoolVar(&c.Debug, "debug", false, "output debug message")
}

func (c *ClientCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	log := logrus.WithFields(logrus.Fields{
		"command": "client",
	})
	if c.Debug {
		logrus.SetLevel(logrus.DebugLevel)
		log.Debug("debug flag is set")
	}
	broadcast, err := broadcastAddr(c.Broadcast, c.ServerPort)
	if err != nil {
		log.Error(err)
		return subcommands.ExitUsageError
	}
	cfg, err := config.Load(c.Config)
	if err != nil {
		log.Error(err)
		return subcommands.ExitUsageError
	}

	client := node.NewClient(c.IP, c.Port, broadcast, c.Out, cfg, c.Debug)
	d, err := client.Run(ctx)
	if err != nil {
		log.Error(err)
		return subcommands.ExitFailure
	}
	if d.Path != "" {
		log.Infof("file saved to %s", d.Path)
		return subcommands.ExitSuccess
	}
	fmt.Println(string(d.Payload.Data))
	return subcommands.ExitSuccess
}

type errUsage string

func (e errUsage) Error() string {
	return string(e)
}

func broadcastAddr(ip string, port int) (netip.AddrPort, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("broadcast address: %w", err)
	}
	if port <= 0 || port > 0xffff {
		return netip.AddrPort{}, fmt.Errorf("server port %d out of range", port)
	}
	return netip.AddrPortFrom(addr, uint16(port)), nil
}
