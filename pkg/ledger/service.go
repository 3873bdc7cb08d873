// Package ledger drives one rewards deployment on top of the runtime:
// bootstrapping the mint and vault, funding participants and submitting
// Init, Earn and Claim transactions on their behalf.
package ledger

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fortiblox/x1-rewards/pkg/accounts"
	"github.com/fortiblox/x1-rewards/pkg/metrics"
	"github.com/fortiblox/x1-rewards/pkg/runtime"
	"github.com/fortiblox/x1-rewards/pkg/svm/programs/rewards"
	"github.com/fortiblox/x1-rewards/pkg/svm/programs/system"
	"github.com/fortiblox/x1-rewards/pkg/svm/programs/token"
	"github.com/fortiblox/x1-rewards/pkg/types"
)

var (
	ErrAlreadyBootstrapped = errors.New("deployment already bootstrapped")
	ErrNotBootstrapped     = errors.New("deployment not bootstrapped")
	ErrRecordNotFound      = errors.New("ledger record not found")
	ErrNotTokenAccount     = errors.New("not a token account")
)

// Service submits rewards transactions for one deployment.
type Service struct {
	db   accounts.AccountsDB
	exec *runtime.Executor
	cfg  rewards.Config
	log  *logrus.Entry
}

// NewService creates a service over db with the system, token and rewards
// programs registered.
func NewService(db accounts.AccountsDB, cfg rewards.Config) *Service {
	program := rewards.New(cfg)
	registry := runtime.NewDefaultRegistry()
	registry.RegisterProgram(cfg.ProgramID, "rewards", program)

	return &Service{
		db:   db,
		exec: runtime.NewExecutor(db, registry),
		cfg:  program.Config(),
		log:  logrus.StandardLogger().WithField("type", "ledger/service"),
	}
}

// Config returns the deployment configuration.
func (s *Service) Config() rewards.Config {
	return s.cfg
}

// Executor returns the underlying transaction executor.
func (s *Service) Executor() *runtime.Executor {
	return s.exec
}

// GenesisParams describes the initial state of a deployment.
type GenesisParams struct {
	// Faucet is credited FaucetLamports and pays for every account the
	// deployment creates.
	Faucet         types.Pubkey
	FaucetLamports uint64

	MintAuthority types.Pubkey
	Decimals      uint8
	// VaultSupply is minted into the vault.
	VaultSupply uint64
}

// Genesis creates the native program accounts, credits the faucet, then
// creates the mint and the vault owned by the program's vault authority and
// mints the vault supply into it.
func (s *Service) Genesis(params GenesisParams) (*types.TransactionResult, error) {
	if s.db.HasAccount(s.cfg.Mint) {
		return nil, ErrAlreadyBootstrapped
	}
	authority, _, err := rewards.VaultAuthority(s.cfg.ProgramID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive vault authority")
	}

	native := func() *types.Account {
		return &types.Account{Owner: types.NativeLoaderID, Executable: true}
	}
	err = s.db.Commit(map[types.Pubkey]*types.Account{
		types.SystemProgramID: native(),
		s.cfg.TokenProgram:    native(),
		s.cfg.ProgramID:       native(),
		params.Faucet:         types.NewAccount(types.Lamports(params.FaucetLamports), types.SystemProgramID),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to write genesis accounts")
	}

	ixs := []types.Instruction{
		createTokenAccount(params.Faucet, s.cfg.Mint, token.MintSize),
		token.NewInitializeMintInstruction(s.cfg.Mint, params.MintAuthority, params.Decimals),
		createTokenAccount(params.Faucet, s.cfg.Vault, token.TokenAccountSize),
		token.NewInitializeAccountInstruction(s.cfg.Vault, s.cfg.Mint, authority),
	}
	if params.VaultSupply > 0 {
		ixs = append(ixs, token.NewMintToInstruction(s.cfg.Mint, s.cfg.Vault, params.MintAuthority, params.VaultSupply))
	}

	result, err := s.submit(ixs...)
	if err != nil {
		return result, err
	}
	s.log.WithFields(logrus.Fields{
		"mint":      s.cfg.Mint,
		"vault":     s.cfg.Vault,
		"authority": authority,
		"supply":    params.VaultSupply,
	}).Info("deployment bootstrapped")
	return result, nil
}

func createTokenAccount(payer, account types.Pubkey, space uint64) types.Instruction {
	return system.NewCreateAccountInstruction(payer, account, uint64(types.RentExemptMinimum(space)), space, types.TokenProgramID)
}

// Fund transfers lamports from the faucet to an account.
func (s *Service) Fund(faucet, to types.Pubkey, lamports uint64) (*types.TransactionResult, error) {
	return s.submit(system.NewTransferInstruction(faucet, to, lamports))
}

// OpenTokenAccount creates a token account of the deployment's mint owned by
// owner, paid for by owner.
func (s *Service) OpenTokenAccount(owner, account types.Pubkey) (*types.TransactionResult, error) {
	if !s.db.HasAccount(s.cfg.Mint) {
		return nil, ErrNotBootstrapped
	}
	return s.submit(
		createTokenAccount(owner, account, token.TokenAccountSize),
		token.NewInitializeAccountInstruction(account, s.cfg.Mint, owner),
	)
}

// Init creates the participant's ledger record.
func (s *Service) Init(participant, userToken types.Pubkey) (*types.TransactionResult, error) {
	accts, err := s.cfg.AccountsFor(participant, userToken)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive accounts")
	}
	result, err := s.submit(rewards.NewInitInstruction(s.cfg.ProgramID, accts))
	if err != nil {
		return result, err
	}
	s.log.WithFields(logrus.Fields{
		"participant": participant,
		"record":      accts.LedgerRecord,
	}).Info("ledger record initialized")
	return result, nil
}

// Earn credits points to the participant's record.
func (s *Service) Earn(participant, userToken types.Pubkey, points uint32) (*types.TransactionResult, error) {
	accts, err := s.cfg.AccountsFor(participant, userToken)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive accounts")
	}
	result, err := s.submit(rewards.NewEarnInstruction(s.cfg.ProgramID, accts, points))
	if err != nil {
		return result, err
	}
	metrics.PointsEarned.Add(float64(points))
	s.log.WithFields(logrus.Fields{
		"participant": participant,
		"points":      points,
	}).Debug("points earned")
	return result, nil
}

// Claim spends requiredPoints and pays amount tokens from the vault to
// userToken.
func (s *Service) Claim(participant, userToken types.Pubkey, requiredPoints uint32, amount uint64) (*types.TransactionResult, error) {
	accts, err := s.cfg.AccountsFor(participant, userToken)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive accounts")
	}
	result, err := s.submit(rewards.NewClaimInstruction(s.cfg.ProgramID, accts, requiredPoints, amount))
	if err != nil {
		return result, err
	}
	metrics.PointsClaimed.Add(float64(requiredPoints))
	metrics.TokensClaimed.Add(float64(amount))
	s.log.WithFields(logrus.Fields{
		"participant": participant,
		"points":      requiredPoints,
		"amount":      amount,
	}).Info("reward claimed")
	return result, nil
}

// Account returns the stored account at key, or nil when there is none.
func (s *Service) Account(key types.Pubkey) (*types.Account, error) {
	account, err := s.db.GetAccount(key)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load account %s", key)
	}
	return account, nil
}

// AccountsCount returns the number of stored accounts.
func (s *Service) AccountsCount() uint64 {
	return s.db.GetAccountsCount()
}

// Record loads the participant's ledger record.
func (s *Service) Record(participant types.Pubkey) (*rewards.LedgerRecord, error) {
	address, _, err := rewards.LedgerRecordAddress(s.cfg.ProgramID, participant)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive ledger record address")
	}
	account, err := s.db.GetAccount(address)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load ledger record %s", address)
	}
	if account == nil || account.Owner != s.cfg.ProgramID {
		return nil, errors.Wrapf(ErrRecordNotFound, "participant %s", participant)
	}
	record, err := rewards.DeserializeLedgerRecord(account.Data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode ledger record %s", address)
	}
	return record, nil
}

// TokenBalance returns the amount held by a token account.
func (s *Service) TokenBalance(account types.Pubkey) (uint64, error) {
	acc, err := s.db.GetAccount(account)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to load token account %s", account)
	}
	if acc == nil || acc.Owner != s.cfg.TokenProgram {
		return 0, errors.Wrapf(ErrNotTokenAccount, "%s", account)
	}
	state, err := token.DeserializeTokenAccount(acc.Data)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to decode token account %s", account)
	}
	return state.Amount, nil
}

// submit executes ixs as one transaction. A failed transaction returns its
// result together with the failure.
func (s *Service) submit(ixs ...types.Instruction) (*types.TransactionResult, error) {
	result, err := s.exec.ExecuteTransaction(types.NewTransaction(ixs...))
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return result, result.Error
	}
	return result, nil
}
