// Package interactive provides the readline console for the meshnode
// reference binary.
package interactive

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/meshnode-protocol/meshnode-go/pkg/keystore"
	"github.com/meshnode-protocol/meshnode-go/pkg/node"
	"github.com/meshnode-protocol/meshnode-go/pkg/provisioning"
)

// Simulator fabricates provisioning material for console commands. It
// lets the console trigger what a remote provisioner or configuration
// client would otherwise deliver.
type Simulator interface {
	// Provision produces a complete provisioning outcome assigning the
	// given unicast address.
	Provision(address uint16) (*provisioning.Outcome, error)

	// AppKey derives an application key bound to a subnet.
	AppKey(netKeyIndex, appKeyIndex uint16) (*keystore.ApplicationKeyRecord, error)
}

// Console drives a node controller from a readline prompt.
type Console struct {
	controller *node.Controller
	sim        Simulator
	rl         *readline.Instance
}

// New creates a console over the given controller.
func New(controller *node.Controller, sim Simulator) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "meshnode> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Console{
		controller: controller,
		sim:        sim,
		rl:         rl,
	}, nil
}

// Stdout returns a writer that coordinates with the readline prompt.
// Use it for log output to avoid clobbering the input line.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run starts the command loop. It returns when the context is cancelled
// or the user exits, cancelling the context itself in the latter case.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "status", "s":
			c.cmdStatus()

		case "keys", "k":
			c.cmdKeys()

		case "provision", "p":
			c.cmdProvision(args)

		case "appkey":
			c.cmdAppKey(args)

		case "connect":
			c.dispatch(node.Event{Type: node.EventConnectionUp})

		case "disconnect":
			c.dispatch(node.Event{Type: node.EventConnectionDown})

		case "wipe":
			c.cmdWipe()

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
Meshnode Commands:
  status               - Show lifecycle state, address and device UUID
  keys                 - List stored network and application keys
  provision [addr]     - Simulate provisioning (hex unicast address, default 0x0001)
  appkey <net> <app>   - Derive and store an application key (hex indexes)
  connect              - Simulate a proxy connection
  disconnect           - Simulate a disconnection
  wipe                 - Delete all stored keys and the provisioning record
  help                 - Show this help
  quit                 - Exit`)
}

func (c *Console) dispatch(event node.Event) {
	if err := c.controller.Dispatch(event); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Dispatch failed: %v\n", err)
	}
}

func (c *Console) cmdStatus() {
	out := c.rl.Stdout()
	nodeModel := c.controller.Node()

	fmt.Fprintln(out, "\nNode Status")
	fmt.Fprintln(out, "-------------------------------------------")
	fmt.Fprintf(out, "  State:           %s\n", c.controller.State())
	fmt.Fprintf(out, "  Elements:        %d\n", nodeModel.ElementCount())
	if u, ok := nodeModel.DeviceUUID(); ok {
		fmt.Fprintf(out, "  Device UUID:     %s\n", u)
	} else {
		fmt.Fprintln(out, "  Device UUID:     (not generated)")
	}
	if address := nodeModel.PrimaryAddress(); address != 0 {
		fmt.Fprintf(out, "  Primary address: %#04x\n", address)
	} else {
		fmt.Fprintln(out, "  Primary address: (unassigned)")
	}
	fmt.Fprintln(out)
}

// keyLister collects records from a key store scan for display.
type keyLister struct {
	network []*keystore.NetworkKeyRecord
	app     []*keystore.ApplicationKeyRecord
}

func (l *keyLister) AddNetworkKey(record *keystore.NetworkKeyRecord) error {
	l.network = append(l.network, record)
	return nil
}

func (l *keyLister) AddAppKey(record *keystore.ApplicationKeyRecord) error {
	l.app = append(l.app, record)
	return nil
}

func (l *keyLister) SetupSubnet(uint16) {}

func (c *Console) cmdKeys() {
	out := c.rl.Stdout()

	var lister keyLister
	if _, err := c.controller.Keys().LoadNetworkKeys(&lister); err != nil {
		fmt.Fprintf(out, "Network key scan failed: %v\n", err)
		return
	}
	if _, err := c.controller.Keys().LoadAppKeys(&lister); err != nil {
		fmt.Fprintf(out, "App key scan failed: %v\n", err)
		return
	}

	fmt.Fprintf(out, "\nNetwork Keys (%d):\n", len(lister.network))
	for _, record := range lister.network {
		fmt.Fprintf(out, "  slot %d: index %#04x nid %#02x network-id %s\n",
			record.Slot, record.NetKeyIndex, record.NID,
			hex.EncodeToString(record.NetworkID[:]))
	}

	fmt.Fprintf(out, "Application Keys (%d):\n", len(lister.app))
	for _, record := range lister.app {
		fmt.Fprintf(out, "  slot %d: index %#04x net %#04x aid %#02x\n",
			record.Slot, record.AppKeyIndex, record.NetKeyIndex, record.AID)
	}
	fmt.Fprintln(out)
}

func (c *Console) cmdProvision(args []string) {
	address := uint16(0x0001)
	if len(args) > 0 {
		parsed, err := parseHex16(args[0])
		if err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Invalid address: %v\n", err)
			return
		}
		address = parsed
	}

	outcome, err := c.sim.Provision(address)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Provisioning failed: %v\n", err)
		return
	}

	c.dispatch(node.Event{Type: node.EventProvisioningComplete, Outcome: outcome})
	fmt.Fprintf(c.rl.Stdout(), "Provisioning dispatched (address %#04x)\n", address)
}

func (c *Console) cmdAppKey(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: appkey <net-key-index> <app-key-index>")
		return
	}

	netKeyIndex, err := parseHex16(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid network key index: %v\n", err)
		return
	}
	appKeyIndex, err := parseHex16(args[1])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid app key index: %v\n", err)
		return
	}

	record, err := c.sim.AppKey(netKeyIndex, appKeyIndex)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Key derivation failed: %v\n", err)
		return
	}
	if err := c.controller.Keys().StoreAppKey(record); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Store failed: %v\n", err)
		return
	}

	fmt.Fprintf(c.rl.Stdout(), "Stored app key %#04x on slot %d\n",
		record.AppKeyIndex, record.Slot)
}

func (c *Console) cmdWipe() {
	out := c.rl.Stdout()

	if err := c.controller.Keys().DeleteNetworkKeys(); err != nil {
		fmt.Fprintf(out, "Network key wipe failed: %v\n", err)
	}
	if err := c.controller.Keys().DeleteAppKeys(); err != nil {
		fmt.Fprintf(out, "App key wipe failed: %v\n", err)
	}
	if err := c.controller.Records().Delete(); err != nil {
		fmt.Fprintf(out, "Provisioning record wipe failed: %v\n", err)
	}

	fmt.Fprintln(out, "Stored state wiped; restart to return to the unprovisioned state")
}

func parseHex16(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
