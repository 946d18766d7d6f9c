package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"

	"github.com/proplink/proplink/proplink"
	"github.com/proplink/proplink/wire"
)

const Version = "0.0.1"

func main() {
	usage := `PropLink demo server.

Registers a handful of sample variables and triggers and serves them
until interrupted.

Usage:
    proplink-server [--router=<endpoint>] [--pub=<endpoint>]

Options:
    -h --help             Show this screen.
    --version              Show version.
    --router=<endpoint>    Command endpoint to bind. [default: tcp://127.0.0.1:5555]
    --pub=<endpoint>       Notification endpoint to bind. [default: tcp://127.0.0.1:5556]`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], Version)
	if err != nil {
		panic(err)
	}
	router, _ := opts.String("--router")
	pub, _ := opts.String("--pub")

	flag.Set("logtostderr", "true")
	flag.Parse()

	settings := proplink.DefaultServerSettings()
	settings.RouterEndpoint = router
	settings.PublisherEndpoint = pub

	metrics := proplink.NewMetrics()

	server := proplink.NewServer(settings, metrics)

	counter := 0
	server.RegisterVariable("exposure", wire.FloatValue(100.0), false, nil)
	server.RegisterVariable("connected", wire.BoolValue(true), true, nil)
	server.RegisterVariable("fps", wire.IntValue(30), false, nil)
	server.RegisterTrigger("capture", func() {
		counter++
		glog.Infof("capture fired (count=%d)", counter)
	})

	if err := server.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "proplink-server: %s\n", err)
		os.Exit(1)
	}
	glog.Infof("proplink-server: listening on %s (notifications on %s)", router, pub)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	server.Stop()
}
