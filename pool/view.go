package pool

import (
	"math/big"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/ethereum/go-ethereum/common"
)

// View is a point-in-time snapshot of a pool, safe to share and serialize.
type View struct {
	Address       common.Address   `json:"address"`
	ShareToken    common.Address   `json:"shareToken"`
	Kind          string           `json:"kind"`
	Tokens        []common.Address `json:"tokens"`
	Reserves      []*big.Int       `json:"reserves"`
	TotalShares   *big.Int         `json:"totalShares"`
	FeeBps        uint32           `json:"feeBps"`
	Amplification uint64           `json:"amplification,omitempty"`
	RewardToken   common.Address   `json:"rewardToken"`
	RewardStorage common.Address   `json:"rewardStorage"`
}

// View returns a deep copy of the pool state.
func (p *Pool) View() View {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return View{
		Address:       p.address,
		ShareToken:    p.shareToken,
		Kind:          p.curve.kind(),
		Tokens:        p.Tokens(),
		Reserves:      engine.FromAmounts(p.reserves),
		TotalShares:   engine.FromAmount(p.totalShares),
		FeeBps:        p.curve.feeBps(),
		Amplification: p.curve.amplification(),
		RewardToken:   p.rewardToken,
		RewardStorage: p.rewardStorage,
	}
}
