package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/fortiblox/x1-rewards/pkg/accounts"
	"github.com/fortiblox/x1-rewards/pkg/ledger"
	"github.com/fortiblox/x1-rewards/pkg/metrics"
	"github.com/fortiblox/x1-rewards/pkg/rpc"
	"github.com/fortiblox/x1-rewards/pkg/snapshot"
	"github.com/fortiblox/x1-rewards/pkg/types"
)

// env holds what a command runs against.
type env struct {
	cfg Config
	out io.Writer
	log *logrus.Entry

	db      accounts.AccountsDB
	svc     *ledger.Service
	metrics *metrics.Server
}

func (e *env) open() error {
	if e.cfg.DataDir == ":memory:" {
		e.db = accounts.NewMemoryDB()
		e.log.Debug("using in-memory account store")
	} else {
		path := filepath.Join(e.cfg.DataDir, "accounts")
		if err := os.MkdirAll(path, 0755); err != nil {
			return errors.Wrap(err, "failed to create data directory")
		}
		db, err := accounts.NewBadgerDB(path)
		if err != nil {
			return err
		}
		e.db = db
		e.log.WithField("path", path).Debug("opened account store")
	}

	rewardsCfg, err := e.cfg.Rewards()
	if err != nil {
		e.db.Close()
		return err
	}
	e.svc = ledger.NewService(e.db, rewardsCfg)
	e.svc.Executor().SetComputeUnitsLimit(types.ComputeUnits(e.cfg.ComputeUnits))

	if e.cfg.MetricsAddr != "" {
		e.metrics = metrics.NewServer(e.cfg.MetricsAddr)
		if err := e.metrics.Start(); err != nil {
			e.db.Close()
			return err
		}
	}
	return nil
}

func (e *env) close() {
	if e.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.metrics.Stop(ctx); err != nil {
			e.log.WithError(err).Warn("failed to stop metrics server")
		}
		cancel()
	}
	if err := e.db.Close(); err != nil {
		e.log.WithError(err).Warn("failed to close account store")
	}
}

// report prints a transaction's logs and outcome. A failed transaction is
// printed before its error is returned.
func (e *env) report(result *types.TransactionResult, err error) error {
	if result != nil {
		for _, line := range result.Logs {
			fmt.Fprintln(e.out, line)
		}
		status := "success"
		if !result.Success {
			status = "failed"
		}
		fmt.Fprintf(e.out, "status: %s, compute units: %d\n", status, result.ComputeUnits)
	}
	return err
}

func parsePubkey(name, value string) (types.Pubkey, error) {
	if value == "" {
		return types.Pubkey{}, errors.Errorf("--%s is required", name)
	}
	pk, err := types.PubkeyFromBase58(value)
	if err != nil {
		return types.Pubkey{}, errors.Wrapf(err, "invalid --%s", name)
	}
	return pk, nil
}

// participantFlags registers the two accounts every rewards instruction
// needs.
func participantFlags(fs *flag.FlagSet) func() (types.Pubkey, types.Pubkey, error) {
	participant := fs.String("participant", "", "participant pubkey (base58)")
	tokenAccount := fs.String("token-account", "", "participant's reward token account (base58)")
	return func() (types.Pubkey, types.Pubkey, error) {
		p, err := parsePubkey("participant", *participant)
		if err != nil {
			return p, types.Pubkey{}, err
		}
		t, err := parsePubkey("token-account", *tokenAccount)
		return p, t, err
	}
}

func genesisCommand(fs *flag.FlagSet) func(*env) error {
	faucet := fs.String("faucet", "", "faucet pubkey (base58)")
	faucetLamports := fs.Uint64("faucet-lamports", 1_000_000_000_000, "lamports credited to the faucet")
	mintAuthority := fs.String("mint-authority", "", "mint authority pubkey (base58)")
	decimals := fs.Uint8("decimals", 6, "reward token decimals")
	supply := fs.Uint64("supply", 0, "tokens minted into the vault")

	return func(e *env) error {
		params := ledger.GenesisParams{
			FaucetLamports: *faucetLamports,
			Decimals:       *decimals,
			VaultSupply:    *supply,
		}
		var err error
		if params.Faucet, err = parsePubkey("faucet", *faucet); err != nil {
			return err
		}
		if params.MintAuthority, err = parsePubkey("mint-authority", *mintAuthority); err != nil {
			return err
		}
		if err := e.report(e.svc.Genesis(params)); err != nil {
			return err
		}
		cfg := e.svc.Config()
		fmt.Fprintf(e.out, "program: %s\nmint:    %s\nvault:   %s\n", cfg.ProgramID, cfg.Mint, cfg.Vault)
		return nil
	}
}

func fundCommand(fs *flag.FlagSet) func(*env) error {
	faucet := fs.String("faucet", "", "faucet pubkey (base58)")
	to := fs.String("to", "", "recipient pubkey (base58)")
	lamports := fs.Uint64("lamports", 1_000_000_000, "lamports to transfer")

	return func(e *env) error {
		from, err := parsePubkey("faucet", *faucet)
		if err != nil {
			return err
		}
		dest, err := parsePubkey("to", *to)
		if err != nil {
			return err
		}
		return e.report(e.svc.Fund(from, dest, *lamports))
	}
}

func openAccountCommand(fs *flag.FlagSet) func(*env) error {
	owner := fs.String("owner", "", "owner pubkey, pays for the account (base58)")
	account := fs.String("account", "", "new token account pubkey (base58)")

	return func(e *env) error {
		o, err := parsePubkey("owner", *owner)
		if err != nil {
			return err
		}
		a, err := parsePubkey("account", *account)
		if err != nil {
			return err
		}
		return e.report(e.svc.OpenTokenAccount(o, a))
	}
}

func initCommand(fs *flag.FlagSet) func(*env) error {
	participantAccounts := participantFlags(fs)
	return func(e *env) error {
		participant, tokenAccount, err := participantAccounts()
		if err != nil {
			return err
		}
		return e.report(e.svc.Init(participant, tokenAccount))
	}
}

func earnCommand(fs *flag.FlagSet) func(*env) error {
	participantAccounts := participantFlags(fs)
	points := fs.Uint32("points", 0, "points to credit")
	return func(e *env) error {
		participant, tokenAccount, err := participantAccounts()
		if err != nil {
			return err
		}
		return e.report(e.svc.Earn(participant, tokenAccount, *points))
	}
}

func claimCommand(fs *flag.FlagSet) func(*env) error {
	participantAccounts := participantFlags(fs)
	required := fs.Uint32("required-points", 100, "points spent by the claim")
	amount := fs.Uint64("amount", 0, "tokens paid out of the vault")
	return func(e *env) error {
		participant, tokenAccount, err := participantAccounts()
		if err != nil {
			return err
		}
		return e.report(e.svc.Claim(participant, tokenAccount, *required, *amount))
	}
}

func showCommand(fs *flag.FlagSet) func(*env) error {
	participant := fs.String("participant", "", "participant pubkey (base58)")
	tokenAccount := fs.String("token-account", "", "optional token account to report (base58)")
	return func(e *env) error {
		p, err := parsePubkey("participant", *participant)
		if err != nil {
			return err
		}
		record, err := e.svc.Record(p)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "owner:       %s\npoints:      %d\nbump:        %d\ninitialized: %t\n",
			record.Owner, record.Points, record.Bump, record.Initialized)

		if *tokenAccount == "" {
			return nil
		}
		t, err := parsePubkey("token-account", *tokenAccount)
		if err != nil {
			return err
		}
		balance, err := e.svc.TokenBalance(t)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "tokens:      %d\n", balance)
		return nil
	}
}

func exportCommand(fs *flag.FlagSet) func(*env) error {
	out := fs.String("out", "state.snap", "snapshot file to write")
	return func(e *env) error {
		manifest, err := snapshot.ExportFile(e.db, *out)
		if err != nil {
			return err
		}
		printManifest(e.out, manifest)
		return nil
	}
}

func importCommand(fs *flag.FlagSet) func(*env) error {
	in := fs.String("in", "state.snap", "snapshot file to read")
	return func(e *env) error {
		manifest, err := snapshot.ImportFile(*in, e.db)
		if err != nil {
			return err
		}
		printManifest(e.out, manifest)
		return nil
	}
}

func printManifest(w io.Writer, m *snapshot.Manifest) {
	fmt.Fprintf(w, "version:  %d\naccounts: %d\nlamports: %d\ndigest:   %x\n",
		m.Version, m.AccountsCount, m.LamportsTotal, m.Digest)
}

func serveCommand(fs *flag.FlagSet) func(*env) error {
	interval := fs.Duration("stats-interval", 30*time.Second, "how often to log store statistics")
	return func(e *env) error {
		if e.metrics == nil && e.cfg.RPCAddr == "" {
			return errors.New("serve needs --metrics-addr or --rpc-addr")
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if e.cfg.RPCAddr != "" {
			config := rpc.DefaultServerConfig()
			config.Address = e.cfg.RPCAddr
			config.RateLimitRPS = e.cfg.RPCRateLimit
			config.Version = rpc.VersionResult{Version: Version, GitCommit: GitCommit}
			server := rpc.NewServer(config, e.svc)
			if err := server.Start(); err != nil {
				return err
			}
			defer func() {
				shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Stop(shutdown); err != nil {
					e.log.WithError(err).Warn("failed to stop rpc server")
				}
			}()
			fmt.Fprintf(e.out, "rpc: %s\n", server.Addr())
		}
		if e.metrics != nil {
			fmt.Fprintf(e.out, "metrics: %s\n", e.metrics.Addr())
		}

		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.log.Info("shutting down")
				return nil
			case <-ticker.C:
				e.log.WithField("accounts", e.db.GetAccountsCount()).Info("store statistics")
			}
		}
	}
}

func versionCommand(fs *flag.FlagSet) func(*env) error {
	return func(e *env) error {
		fmt.Fprintf(e.out, "x1-rewards %s (%s)\n", Version, GitCommit)
		return nil
	}
}
