package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"golang.org/x/term"

	"github.com/proplink/proplink/proplink"
	"github.com/proplink/proplink/wire"
)

const Version = "0.0.1"

func main() {
	usage := `PropLink demo client REPL.

Commands once running:
    get <name>
    getall
    triggers
    set <name> <value>
    fire <name>
    watch <name>
    quit

Usage:
    proplink-client [--dealer=<endpoint>] [--sub=<endpoint>]

Options:
    -h --help             Show this screen.
    --version              Show version.
    --dealer=<endpoint>    Command endpoint to connect to. [default: tcp://127.0.0.1:5555]
    --sub=<endpoint>       Notification endpoint to connect to. [default: tcp://127.0.0.1:5556]`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], Version)
	if err != nil {
		panic(err)
	}
	dealer, _ := opts.String("--dealer")
	sub, _ := opts.String("--sub")

	flag.Set("logtostderr", "true")
	flag.Parse()

	settings := proplink.DefaultClientSettings()
	settings.DealerEndpoint = dealer
	settings.SubscriberEndpoint = sub

	client := proplink.NewClient(settings)
	if err := client.Open(); err != nil {
		fmt.Fprintf(os.Stderr, "proplink-client: %s\n", err)
		os.Exit(1)
	}
	defer client.Close()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), 5*time.Second)
	if err := client.WaitConnected(waitCtx); err != nil {
		fmt.Fprintf(os.Stderr, "proplink-client: not connected after 5s: %s\n", err)
	}
	cancelWait()

	interactive := term.IsTerminal(int(syscall.Stdin))
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("proplink> ")
		}
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "quit", "exit":
			return
		case "get":
			runGet(client, fields)
		case "getall":
			runGetAll(client)
		case "triggers":
			runTriggers(client)
		case "set":
			runSet(client, fields)
		case "fire":
			runFire(client, fields)
		case "watch":
			runWatch(client, fields)
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n", fields[0])
		}
	}
}

func runGet(client *proplink.Client, fields []string) {
	if len(fields) != 2 {
		fmt.Fprintln(os.Stderr, "usage: get <name>")
		return
	}
	rec, err := client.GetVariable(fields[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "get: %s\n", err)
		return
	}
	fmt.Printf("%s = %s (read_only=%v)\n", rec.Name, rec.Value, rec.ReadOnly)
}

func runGetAll(client *proplink.Client) {
	vars, err := client.GetAllVariables()
	if err != nil {
		fmt.Fprintf(os.Stderr, "getall: %s\n", err)
		return
	}
	for _, rec := range vars {
		fmt.Printf("%s = %s (read_only=%v)\n", rec.Name, rec.Value, rec.ReadOnly)
	}
}

func runTriggers(client *proplink.Client) {
	names, err := client.GetAllTriggers()
	if err != nil {
		fmt.Fprintf(os.Stderr, "triggers: %s\n", err)
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func runSet(client *proplink.Client, fields []string) {
	if len(fields) != 3 {
		fmt.Fprintln(os.Stderr, "usage: set <name> <value>")
		return
	}
	err := client.SetVariable(fields[1], parseValue(fields[2]), proplink.Sync, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "set: %s\n", err)
		return
	}
	fmt.Println("ok")
}

func runFire(client *proplink.Client, fields []string) {
	if len(fields) != 2 {
		fmt.Fprintln(os.Stderr, "usage: fire <name>")
		return
	}
	err := client.ExecuteTrigger(fields[1], proplink.Sync, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fire: %s\n", err)
		return
	}
	fmt.Println("ok")
}

func runWatch(client *proplink.Client, fields []string) {
	if len(fields) != 2 {
		fmt.Fprintln(os.Stderr, "usage: watch <name>")
		return
	}
	name := fields[1]
	client.RegisterCallback(name, func(v wire.Value) {
		fmt.Printf("\n[update] %s = %s\n", name, v)
	})
	fmt.Printf("watching %s\n", name)
}

// parseValue guesses a Value kind from a REPL token: bool, int, float,
// falling back to string. This is a convenience for the demo binary
// only — the wire protocol itself always carries an explicit kind byte.
func parseValue(tok string) wire.Value {
	if b, err := strconv.ParseBool(tok); err == nil {
		return wire.BoolValue(b)
	}
	if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return wire.IntValue(i)
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return wire.FloatValue(f)
	}
	return wire.StringValue(tok)
}
