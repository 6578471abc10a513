// gorbl-host is an interactive sender: it forwards lines to a controller
// and waits for each confirmation.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"gorbl/core"
	"gorbl/host/client"
	"gorbl/host/serial"
	"gorbl/protocol"
)

var (
	device  = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud    = flag.Int("baud", 115200, "Baud rate (ignored for USB CDC)")
	timeout = flag.Duration("timeout", 5*time.Second, "Confirmation timeout")
	verbose = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud
	port, err := serial.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	c := client.New(port, log, client.Options{
		Timeout:   *timeout,
		OnMessage: func(line string) { fmt.Println(line) },
	})
	defer c.Close()

	fmt.Printf("Connected to %s. Type 'help' for commands.\n", *device)

	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if quit := handle(ctx, c, line); quit {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

var realtime = map[string]byte{
	"hold":   protocol.CmdFeedHold,
	"resume": protocol.CmdCycleStart,
	"reset":  protocol.CmdReset,
	"door":   protocol.CmdSafetyDoor,
	"cancel": protocol.CmdJogCancel,
	"f+":     protocol.CmdFeedOverrideCoarseP,
	"f-":     protocol.CmdFeedOverrideCoarseM,
	"f=":     protocol.CmdFeedOverrideReset,
}

func handle(ctx context.Context, c *client.Client, line string) bool {
	parts := strings.Fields(line)
	switch parts[0] {
	case "quit", "exit", "q":
		return true

	case "help":
		printHelp()

	case "?", "status":
		st, err := c.Status(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return false
		}
		printStatus(st)

	case "stream":
		if len(parts) != 2 {
			fmt.Println("usage: stream <file>")
			return false
		}
		if err := stream(ctx, c, parts[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}

	default:
		if b, ok := realtime[parts[0]]; ok {
			if err := c.Realtime(b); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			return false
		}
		if err := c.Exec(ctx, line); err != nil {
			var ce *client.CommandError
			if errors.As(err, &ce) {
				fmt.Printf("error:%d (%s)\n", ce.Code, ce.Code)
			} else {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			return false
		}
		fmt.Println("ok")
	}
	return false
}

func stream(ctx context.Context, c *client.Client, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	start := time.Now()
	n, err := c.Stream(ctx, f)
	fmt.Printf("%d lines accepted in %s\n", n, time.Since(start).Round(time.Millisecond))
	return err
}

func printStatus(st client.Status) {
	state := st.State
	if st.SubState >= 0 {
		state = fmt.Sprintf("%s:%d", st.State, st.SubState)
	}
	kind := "WPos"
	if st.Machine {
		kind = "MPos"
	}
	fmt.Printf("%-8s %s", state, kind)
	for axis := 0; axis < core.NumAxes; axis++ {
		fmt.Printf(" %c%.3f", core.AxisLetters[axis], st.Position[axis])
	}
	fmt.Printf("  F%.0f S%.0f", st.Feed, st.Spindle)
	if st.HasBuffer {
		fmt.Printf("  Bf:%d,%d", st.PlannerFree, st.RxFree)
	}
	if st.Line > 0 {
		fmt.Printf("  Ln:%d", st.Line)
	}
	if st.Pins != "" {
		fmt.Printf("  Pn:%s", st.Pins)
	}
	fmt.Println()
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  <line>         - Send a line and wait for ok/error")
	fmt.Println("  ? | status     - Poll the status report")
	fmt.Println("  stream <file>  - Send a file line by line")
	fmt.Println("  hold/resume    - Feed hold and cycle start")
	fmt.Println("  reset          - Soft reset (ctrl-x)")
	fmt.Println("  door/cancel    - Safety door, jog cancel")
	fmt.Println("  f+ f- f=       - Feed override +10%, -10%, reset")
	fmt.Println("  quit/exit/q    - Exit the program")
	fmt.Println()
}
