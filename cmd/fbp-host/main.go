// Command fbp-host is an interactive bridge between a terminal and a
// fitterbap link over a real serial port, for manual exercising and
// debugging of the comm core.
//
// Grounded on the teacher's host/cmd/gopper-host/main.go: flag-based
// device/baud selection, a bufio.Scanner command loop, and a status
// command — adapted from Klipper's dictionary/command dispatch to the
// comm core's port-table transport.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fitterbap/fitterbap-go/datalink"
	"github.com/fitterbap/fitterbap-go/host/bridge"
	"github.com/fitterbap/fitterbap-go/internal/xlog"
	"github.com/fitterbap/fitterbap-go/link/serial"
	"github.com/fitterbap/fitterbap-go/transport"
)

var (
	device   = flag.String("device", "/dev/ttyUSB0", "Serial device path")
	baud     = flag.Int("baud", 115200, "Baud rate")
	verbose  = flag.Bool("verbose", false, "Enable debug logging")
	txWindow = flag.Int("tx-window", 16, "TX window size")
	rxWindow = flag.Int("rx-window", 16, "RX window size")
	chatPort = flag.Int("port", 0, "Default port_id used by the send command")
)

func main() {
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := xlog.Console(os.Stderr, level)

	fmt.Println("fbp-host - fitterbap comm core bridge")
	fmt.Println("======================================")

	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud
	fmt.Printf("Opening %s at %d baud...\n", cfg.Device, cfg.Baud)
	port, err := serial.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open port: %v\n", err)
		os.Exit(1)
	}

	dlCfg := datalink.DefaultConfig()
	dlCfg.TxWindowSize = *txWindow
	dlCfg.RxWindowSize = *rxWindow
	dlCfg.Logger = log

	br := bridge.New(port, dlCfg, bridge.WithLogger(log))
	br.Transport().SetLogger(log)

	portID := uint8(*chatPort)
	br.Transport().PortRegister(portID, onEvent, onRecv, nil, "")
	br.Run()
	defer br.Close()

	fmt.Println("Waiting for CONNECTED (the link handshakes automatically)...")
	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")

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
		parts := strings.Fields(line)
		cmd := parts[0]

		switch cmd {
		case "quit", "exit", "q":
			fmt.Println("Goodbye!")
			return

		case "help", "?":
			printHelp()

		case "status":
			printStatus(br)

		case "send":
			if len(parts) < 2 {
				fmt.Println("usage: send <text>")
				continue
			}
			msg := strings.Join(parts[1:], " ")
			if err := sendLine(br, portID, msg); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		default:
			fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", cmd)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  help           - Show this help message")
	fmt.Println("  status         - Print cumulative datalink/framer counters")
	fmt.Println("  send <text>    - Send a single-frame message on the selected port")
	fmt.Println("  quit/exit/q    - Exit the program")
	fmt.Println()
}

func printStatus(br *bridge.Bridge) {
	st := br.Datalink().StatusGet()
	fmt.Printf("tx_data_frames=%d tx_acked=%d rx_data_frames=%d retransmissions=%d forced_resets=%d link_ring_drops=%d\n",
		st.TxDataFrames, st.TxDataFramesAcked, st.RxDataFrames, st.Retransmissions, st.ForcedResets, st.LinkRingDrops)
	fmt.Printf("framer: total_bytes=%d data_frames=%d link_frames=%d resyncs=%d header_crc_errors=%d payload_crc_errors=%d\n",
		st.Framer.TotalBytes, st.Framer.DataFrames, st.Framer.LinkFrames, st.Framer.Resyncs, st.Framer.HeaderCRCErrors, st.Framer.PayloadCRCErrors)
}

func sendLine(br *bridge.Bridge, portID uint8, msg string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return br.Transport().Send(ctx, portID, transport.SeqSingle, 0, []byte(msg))
}

func onEvent(_ any, ev datalink.Event) {
	fmt.Printf("\n[event] %s\n> ", ev)
}

func onRecv(_ any, seq transport.Seq, portData uint8, msg []byte) {
	fmt.Printf("\n[recv seq=%s port_data=%d] %s\n> ", seq, portData, string(msg))
}
