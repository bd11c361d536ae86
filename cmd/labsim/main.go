package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/rtlab/pkg/cli/sh"
	"github.com/robotalks/rtlab/pkg/console"
	fx "github.com/robotalks/rtlab/pkg/framework"
	"github.com/robotalks/rtlab/pkg/lab"
	"github.com/robotalks/rtlab/pkg/telemetry"
	"github.com/robotalks/rtlab/pkg/telemetry/mqtt"

	_ "github.com/robotalks/rtlab/pkg/cli/cmds/all"
)

//go-build: CGO_ENABLED=0

var (
	configFile string
	wsAddr     string
	stdinUART  bool
)

func init() {
	lab.SetupFlags()
	flag.StringVar(&configFile, "config", "", "TOML file overlaying the lab configuration.")
	flag.StringVar(&wsAddr, "ws", "", "Serve the UART console over websocket on this address.")
	flag.BoolVar(&stdinUART, "stdin", false, "Feed stdin into the UART instead of running the shell.")
}

func recorder(conf *lab.Config) (*telemetry.Recorder, func(), error) {
	var pub telemetry.Publisher = telemetry.LogPublisher{}
	closeFn := func() {}
	if conf.MQTTURL != "" {
		client, err := mqtt.Dial(conf.MQTTURL)
		if err != nil {
			return nil, nil, err
		}
		pub = &mqtt.Publisher{Client: client}
		closeFn = func() { client.Close() }
	}
	rec, err := telemetry.NewRecorder(conf.TelemetryQueue, pub)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	rec.Device = telemetry.DeviceID()
	return rec, closeFn, nil
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := lab.Default()
	if configFile != "" {
		if err := lab.LoadConfig(configFile, conf); err != nil {
			glog.Exitf("config: %v", err)
		}
	}
	rec, closeRec, err := recorder(conf)
	if err != nil {
		glog.Exitf("telemetry: %v", err)
	}
	defer closeRec()

	l := lab.MustNew(conf, rec)
	runner := fx.NewRunner().HandleSignals()
	runner.Go(fx.NamedRun("lab", fx.RunFunc(l.Run)))

	if wsAddr != "" {
		ln, err := net.Listen("tcp", wsAddr)
		if err != nil {
			glog.Exitf("console: %v", err)
		}
		glog.Infof("console listening on %s", ln.Addr())
		server := &http.Server{Handler: console.NewBridge(l.Board).Handler()}
		runner.Go(fx.NamedRun("websocket", fx.RunFunc(func(ctx context.Context) error {
			return fx.RunWithContextCloser(ctx, server, func() error {
				if err := server.Serve(ln); err != http.ErrServerClosed {
					return err
				}
				return nil
			})
		})))
	}

	if stdinUART {
		runner.Go(&console.Feeder{Reader: os.Stdin, UART: l.Board})
	} else {
		if err := sh.Main(l); err != nil {
			glog.Error(err)
		}
		runner.Stop()
	}

	if err := runner.Wait(); err != nil {
		glog.Exit(err)
	}
}
