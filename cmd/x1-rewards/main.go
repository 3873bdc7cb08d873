// x1-rewards hosts a points ledger rewards deployment: it bootstraps the
// reward mint and vault, submits Init, Earn and Claim transactions and moves
// account state in and out of snapshots.
//
// Usage:
//
//	x1-rewards <command> [flags]
//
// Signer identities are passed as base58 pubkeys; the host trusts the
// caller's signer flags.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/fortiblox/x1-rewards/pkg/metrics"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

// command is one subcommand. Run receives the environment built from the
// resolved configuration.
type command struct {
	usage string
	flags func(fs *flag.FlagSet) func(env *env) error
	// bare commands run without opening the account store.
	bare bool
}

var commands = map[string]command{
	"genesis":      {usage: "create the reward mint and vault and fund the faucet", flags: genesisCommand},
	"fund":         {usage: "transfer lamports from the faucet", flags: fundCommand},
	"open-account": {usage: "open a token account of the reward mint", flags: openAccountCommand},
	"init":         {usage: "create a participant's ledger record", flags: initCommand},
	"earn":         {usage: "credit points to a participant", flags: earnCommand},
	"claim":        {usage: "redeem points for tokens", flags: claimCommand},
	"show":         {usage: "print a participant's ledger record and token balance", flags: showCommand},
	"export":       {usage: "write a snapshot of the account store", flags: exportCommand},
	"import":       {usage: "load a snapshot into an empty account store", flags: importCommand},
	"serve":        {usage: "serve metrics and the JSON-RPC query API until interrupted", flags: serveCommand},
	"version":      {usage: "print the version", flags: versionCommand, bare: true},
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage(stdout)
		return nil
	}

	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		printUsage(stdout)
		return errors.Errorf("unknown command %q", name)
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := addConfigFlags(fs)
	exec := cmd.flags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig(fs, *configPath)
	if err != nil {
		return err
	}
	if err := configureLogger(cfg.LogLevel); err != nil {
		return err
	}
	metrics.BuildInfo.WithLabelValues(Version, GitCommit).Set(1)

	e := &env{cfg: cfg, out: stdout, log: logrus.StandardLogger().WithField("type", "cmd/"+name)}
	if !cmd.bare {
		if err := e.open(); err != nil {
			return err
		}
		defer e.close()
	}
	return exec(e)
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Usage: x1-rewards <command> [flags]\n\nCommands:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %-13s %s\n", name, commands[name].usage)
	}
	b.WriteString("\nRun 'x1-rewards <command> --help' for command flags.\n")
	fmt.Fprint(w, b.String())
}
