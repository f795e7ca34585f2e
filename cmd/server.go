package cmd

import (
	"context"
	"errors"
	"flag"
	"path/filepath"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"github.com/terassyi/dgtcp/config"
	"github.com/terassyi/dgtcp/node"
	"github.com/terassyi/dgtcp/proto/tcp"
	"github.com/terassyi/dgtcp/util"
)

type ServerCommand struct {
	IP      string
	Port    int
	File    string
	Message string
	Once    bool
	Config  string
	Debug   bool
}

func (*ServerCommand) Name() string {
	return "server"
}

func (*ServerCommand) Synopsis() string {
	return "serve a file or a message to clients found by broadcast"
}

func (*ServerCommand) Usage() string {
	return `dgtcp server -ip <address> -port <port> (-file <path> | -message <text>) [-once] [-config <yaml>]
	answer broadcast discovery and transfer the payload to every client
`
}

func (s *ServerCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.IP, "ip", "0.0.0.0", "binding address")
	f.IntVar(&s.Port, "port", 9999, "binding port")
	f.StringVar(&s.File, "file", "", "file to transfer")
	f.StringVar(&s.Message, "message", "", "message to transfer")
	f.BoolVar(&s.Once, "once", false, "exit after one session")
	f.StringVar(&s.Config, "config", "", "yaml config file")
	f.BoolVar(&s.Debug, "debug", false, "output debug message")
}

func (s *ServerCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	log := logrus.WithFields(logrus.Fields{
		"command": "server",
	})
	if s.Debug {
		logrus.SetLevel(logrus.DebugLevel)
		log.Debug("debug flag is set")
	}
	payload, err := s.payload()
	if err != nil {
		log.Error(err)
		return subcommands.ExitUsageError
	}
	cfg, err := config.Load(s.Config)
	if err != nil {
		log.Error(err)
		return subcommands.ExitUsageError
	}

	opts := []node.ServerOption{}
	if s.Once {
		opts = append(opts, node.Once())
	}
	srv := node.NewServer(s.IP, s.Port, payload, cfg, s.Debug, opts...)
	if err := srv.Listen(); err != nil {
		log.Error(err)
		return subcommands.ExitFailure
	}
	log.Infof("server running at %s", srv.Addr())
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (s *ServerCommand) payload() (tcp.Payload, error) {
	switch {
	case s.File != "" && s.Message != "":
		return tcp.Payload{}, errUsage("-file and -message are exclusive")
	case s.File != "":
		data, err := util.FileToBytes(s.File)
		if err != nil {
			return tcp.Payload{}, err
		}
		return tcp.Payload{Data: data, FileName: filepath.Base(s.File)}, nil
	case s.Message != "":
		return tcp.Payload{Data: []byte(s.Message)}, nil
	default:
		return tcp.Payload{}, errUsage("one of -file or -message is required")
	}
}
