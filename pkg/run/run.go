package run

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/verifymind/verifymind-go-sdk/pkg/attest"
	"github.com/verifymind/verifymind-go-sdk/pkg/oracle"
	"github.com/verifymind/verifymind-go-sdk/pkg/strategy"
)

// Run is the aggregate tracking one end-to-end pipeline invocation. Each
// field is written at most once, by the runner's coordinating goroutine;
// no two stages of the same run ever execute concurrently.
type Run struct {
	ID       uuid.UUID
	Stage    Stage
	Strategy strategy.Config

	Quote       oracle.PriceQuote
	Decision    strategy.Decision
	Attestation attest.Attestation
	TxHash      common.Hash

	Outcome *Outcome
}

func newRun(cfg strategy.Config) *Run {
	return &Run{ID: uuid.New(), Stage: StageIdle, Strategy: cfg}
}

// advance moves the run forward. Terminal stages may never be left and no
// stage may be re-entered; violating either is a programming error.
func (r *Run) advance(next Stage) error {
	if r.Stage.Terminal() {
		return fmt.Errorf("run %s is terminal at %s, cannot advance to %s", r.ID, r.Stage, next)
	}
	if next == r.Stage {
		return fmt.Errorf("run %s cannot re-enter %s", r.ID, next)
	}
	r.Stage = next
	return nil
}

// finalize records the terminal outcome exactly once.
func (r *Run) finalize(o Outcome) {
	if r.Outcome != nil {
		return
	}
	r.Stage = o.Stage
	r.Outcome = &o
}

// Terminal reports whether the run has ended.
func (r *Run) Terminal() bool {
	return r.Outcome != nil
}
