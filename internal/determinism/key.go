package determinism

import "fmt"

// Key identifies one experiment. Two runs are the same experiment iff their
// keys are equal; key equality is supposed to imply RunMetrics equality, and
// the verifier exists to test exactly that.
type Key struct {
	Seed        int64  `json:"seed"`
	FixtureHash string `json:"fixture_hash"`
	CodeHash    string `json:"code_hash"`
}

// String renders the run fingerprint used in artifacts and as the baseline
// store key.
func (k Key) String() string {
	return fmt.Sprintf("%d:%s:%s", k.Seed, k.FixtureHash, k.CodeHash)
}
