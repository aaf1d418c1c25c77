package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
)

type command struct {
	summary string
	run     func(args []string, out io.Writer) error
}

var commands = map[string]command{
	"keygen":        {"Generate an encrypted secp256k1 keystore", runKeygen},
	"vaddr":         {"Derive the virtual address owned by an identity", runVAddr},
	"commit":        {"Print the commitment binding an amount handle", runCommit},
	"sign-transfer": {"Sign a vaddr-addressed transfer intent", runSignTransfer},
	"sign-payment":  {"Sign an identity-addressed payment request", runSignPayment},
	"sign-call":     {"Produce caller-signature headers for a JSON-RPC call", runSignCall},
	"admin-token":   {"Issue an admin bearer token from the node config", runAdminToken},
	"export":        {"Export indexed transfers to a parquet file", runExport},
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage(os.Stderr)
		os.Exit(1)
	}
	if err := cmd.run(os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: vledgerctl <command> [flags]")
	fmt.Fprintln(w)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-14s %s\n", name, commands[name].summary)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}
