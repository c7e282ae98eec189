// Command mage is the thin CLI collaborator of spec.md §6: two
// subcommands, key and proxy, layered on top of the library packages.
// There is no CLI framework anywhere in this codebase's dependency tree
// (katzenpost's own cmd/ tools — ping.go, mailproxy.go — all parse flags
// with the standard library), so this does too.
package main

import (
	"fmt"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		usage()
		return 1
	}

	var err error
	switch args[0] {
	case "key":
		err = runKey(args[1:])
	case "proxy":
		err = runProxy(args[1:])
	case "-h", "-help", "--help", "help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "mage: unknown subcommand %q\n", args[0])
		usage()
		return 1
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "mage: %v\n", err)
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: mage <command> [flags]

commands:
  key    generate/print a long-term seed and public key
  proxy  bridge a local TCP socket through a mage session`)
}
