package feed

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"liquiditySim/internal/dex"
)

const defaultFeeBps = 30

// PoolSpec is one entry of the pools file.
type PoolSpec struct {
	Address    string            `yaml:"address"`
	Protocol   string            `yaml:"protocol"`
	FeeBps     *uint32           `yaml:"fee_bps"`
	Attributes map[string]string `yaml:"attributes"`
}

type poolsFile struct {
	Pools []PoolSpec `yaml:"pools"`
}

// LoadPools reads and validates the pools file.
func LoadPools(path string) ([]PoolSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pools file: %w", err)
	}
	return ParsePools(data)
}

// ParsePools decodes a pools document. Addresses must be hex and unique;
// protocols must have a known on-chain layout.
func ParsePools(data []byte) ([]PoolSpec, error) {
	var file poolsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse pools file: %w", err)
	}

	seen := make(map[common.Address]struct{}, len(file.Pools))
	specs := make([]PoolSpec, 0, len(file.Pools))
	for i, spec := range file.Pools {
		spec.Address = strings.TrimSpace(spec.Address)
		if !common.IsHexAddress(spec.Address) {
			return nil, fmt.Errorf("pool %d: invalid address: %q", i, spec.Address)
		}
		address := common.HexToAddress(spec.Address)
		if _, ok := seen[address]; ok {
			return nil, fmt.Errorf("pool %d: duplicate address %s", i, address.Hex())
		}
		seen[address] = struct{}{}

		if dex.FamilyOf(spec.Protocol) == dex.FamilyUnknown {
			return nil, fmt.Errorf("pool %s: unsupported protocol %q", address.Hex(), spec.Protocol)
		}
		if spec.FeeBps != nil && *spec.FeeBps >= 10_000 {
			return nil, fmt.Errorf("pool %s: fee_bps %d out of range", address.Hex(), *spec.FeeBps)
		}
		spec.Address = address.Hex()
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("pools file lists no pools")
	}
	return specs, nil
}

func (s PoolSpec) feeBps() uint32 {
	if s.FeeBps == nil {
		return defaultFeeBps
	}
	return *s.FeeBps
}
