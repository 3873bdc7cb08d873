package runtime

import (
	"errors"
	"sort"
	"sync"

	"github.com/fortiblox/x1-rewards/pkg/svm/programs/compute_budget"
	"github.com/fortiblox/x1-rewards/pkg/svm/programs/system"
	"github.com/fortiblox/x1-rewards/pkg/svm/programs/token"
	"github.com/fortiblox/x1-rewards/pkg/svm/syscall"
	"github.com/fortiblox/x1-rewards/pkg/types"
)

// ErrProgramNotFound indicates the program is not registered.
var ErrProgramNotFound = errors.New("program not found")

// Program is a native program the runtime can dispatch to.
type Program interface {
	// Execute runs one instruction's data within the given context.
	Execute(ctx *syscall.ExecutionContext, data []byte) error
}

// ProgramFunc is a function adapter for Program.
type ProgramFunc func(ctx *syscall.ExecutionContext, data []byte) error

// Execute implements Program.
func (f ProgramFunc) Execute(ctx *syscall.ExecutionContext, data []byte) error {
	return f(ctx, data)
}

// ProgramRegistry maps program IDs to native programs.
type ProgramRegistry struct {
	mu       sync.RWMutex
	programs map[types.Pubkey]Program
	names    map[types.Pubkey]string
}

// NewProgramRegistry creates an empty program registry.
func NewProgramRegistry() *ProgramRegistry {
	return &ProgramRegistry{
		programs: make(map[types.Pubkey]Program),
		names:    make(map[types.Pubkey]string),
	}
}

// NewDefaultRegistry creates a registry holding the system, token and compute
// budget programs.
func NewDefaultRegistry() *ProgramRegistry {
	r := NewProgramRegistry()
	r.RegisterProgram(types.SystemProgramID, "system", system.New())
	r.RegisterProgram(types.TokenProgramID, "token", token.New())
	r.RegisterProgram(compute_budget.ProgramID, "compute_budget", compute_budget.New())
	return r
}

// RegisterProgram registers a program under id. The name labels logs and metrics.
func (r *ProgramRegistry) RegisterProgram(id types.Pubkey, name string, program Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[id] = program
	r.names[id] = name
}

// GetProgram returns the program registered under id.
func (r *ProgramRegistry) GetProgram(id types.Pubkey) (Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	program, ok := r.programs[id]
	return program, ok
}

// ProgramName returns the registered name, or the base58 ID when unknown.
func (r *ProgramRegistry) ProgramName(id types.Pubkey) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.names[id]; ok {
		return name
	}
	return id.String()
}

// HasProgram checks if a program is registered.
func (r *ProgramRegistry) HasProgram(id types.Pubkey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.programs[id]
	return ok
}

// ListPrograms returns all registered program IDs in sorted order.
func (r *ProgramRegistry) ListPrograms() []types.Pubkey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]types.Pubkey, 0, len(r.programs))
	for id := range r.programs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}
