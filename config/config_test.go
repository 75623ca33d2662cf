// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/solvault-io/solvaultd/ids"
)

func baseArgs(t *testing.T) ([]string, []*ids.Keypair, *ids.Keypair) {
	t.Helper()

	member1 := ids.GenerateTestKeypair()
	member2 := ids.GenerateTestKeypair()
	treasury := ids.GenerateTestKeypair()
	args := []string{
		fmt.Sprintf("--%s=%s", StablecoinMintKey, ids.GenerateTestAddress()),
		fmt.Sprintf("--%s=%s", MultisigMember1PrivateKeyKey, member1),
		fmt.Sprintf("--%s=%s", MultisigMember2PrivateKeyKey, member2),
		fmt.Sprintf("--%s=%s", FeeWalletAddressKey, treasury.Address()),
	}
	return args, []*ids.Keypair{member1, member2}, treasury
}

func TestGetConfigDefaults(t *testing.T) {
	require := require.New(t)

	args, members, _ := baseArgs(t)
	fs := BuildFlagSet()
	v, err := BuildViper(fs, args)
	require.NoError(err)

	cfg, err := GetConfig(v)
	require.NoError(err)

	require.Equal("https://api.devnet.solana.com", cfg.RPCURL)
	require.Equal("devnet", cfg.SolanaNetwork)
	require.Len(cfg.MemberKeys, 2)
	require.Equal(members[0].Address(), cfg.MemberKeys[0].Address())
	require.Zero(cfg.Threshold)
	require.Equal(uint64(5), cfg.TimeLockSeconds)
	require.Equal("leveldb", cfg.DBType)
	require.True(cfg.AutoStartMonitoring)
	// The operational signer falls back to the first member key.
	require.Equal(members[0].Address(), cfg.OperationalSigner.Address())
}

func TestGetConfigEnvBinding(t *testing.T) {
	require := require.New(t)

	args, _, _ := baseArgs(t)
	t.Setenv("RPC_URL", "https://rpc.example.com")
	t.Setenv("SOLVAULTD_SOLANA_NETWORK", "mainnet-beta")

	fs := BuildFlagSet()
	v, err := BuildViper(fs, args)
	require.NoError(err)

	cfg, err := GetConfig(v)
	require.NoError(err)
	require.Equal("https://rpc.example.com", cfg.RPCURL)
	require.Equal("mainnet-beta", cfg.SolanaNetwork)
}

func TestGetConfigTreasuryKeyMismatch(t *testing.T) {
	require := require.New(t)

	args, _, _ := baseArgs(t)
	args = append(args, fmt.Sprintf("--%s=%s", TreasuryPrivateKeyKey, ids.GenerateTestKeypair()))

	fs := BuildFlagSet()
	v, err := BuildViper(fs, args)
	require.NoError(err)

	_, err = GetConfig(v)
	require.ErrorIs(err, ErrInvalidKey)
}

func TestGetConfigMemberBounds(t *testing.T) {
	require := require.New(t)

	treasury := ids.GenerateTestKeypair()
	args := []string{
		fmt.Sprintf("--%s=%s", StablecoinMintKey, ids.GenerateTestAddress()),
		fmt.Sprintf("--%s=%s", MultisigMember1PrivateKeyKey, ids.GenerateTestKeypair()),
		fmt.Sprintf("--%s=%s", FeeWalletAddressKey, treasury.Address()),
	}
	fs := BuildFlagSet()
	v, err := BuildViper(fs, args)
	require.NoError(err)

	_, err = GetConfig(v)
	require.ErrorIs(err, ErrInvalidKey)
}

func TestGetConfigMissingMint(t *testing.T) {
	require := require.New(t)

	args, _, _ := baseArgs(t)
	fs := BuildFlagSet()
	v, err := BuildViper(fs, args[1:])
	require.NoError(err)

	_, err = GetConfig(v)
	require.ErrorIs(err, ErrMissingKey)
}

func TestGetConfigBadDBType(t *testing.T) {
	require := require.New(t)

	args, _, _ := baseArgs(t)
	args = append(args, fmt.Sprintf("--%s=postgres", DBTypeKey))

	fs := BuildFlagSet()
	v, err := BuildViper(fs, args)
	require.NoError(err)

	_, err = GetConfig(v)
	require.ErrorIs(err, ErrInvalidKey)
}

func TestGetConfigThresholdAboveMembers(t *testing.T) {
	require := require.New(t)

	args, _, _ := baseArgs(t)
	args = append(args, fmt.Sprintf("--%s=3", MultisigDefaultThresholdKey))

	fs := BuildFlagSet()
	v, err := BuildViper(fs, args)
	require.NoError(err)

	_, err = GetConfig(v)
	require.ErrorIs(err, ErrInvalidKey)
}
