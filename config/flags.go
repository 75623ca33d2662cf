// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "SOLVAULTD"

func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("solvaultd", pflag.ContinueOnError)
	addFlags(fs)
	return fs
}

func addFlags(fs *pflag.FlagSet) {
	fs.String(RPCURLKey, "https://api.devnet.solana.com", "Solana JSON-RPC endpoint")
	fs.String(SolanaNetworkKey, "devnet", "Solana network name (devnet, testnet, mainnet-beta)")
	fs.String(StablecoinMintKey, "", "Stablecoin mint address used for transfers")
	fs.String(OperationalSignerKey, "", "Base58 private key submitting custody transactions; defaults to the first multisig member key")

	fs.String(MultisigMember1PrivateKeyKey, "", "Base58 private key of multisig member 1")
	fs.String(MultisigMember2PrivateKeyKey, "", "Base58 private key of multisig member 2")
	fs.String(MultisigMember3PrivateKeyKey, "", "Base58 private key of multisig member 3 (optional)")
	fs.Uint32(MultisigDefaultThresholdKey, 0, "Approvals required per proposal; 0 means all members")
	fs.Uint64(MultisigDefaultTimeLockKey, 5, "Seconds between final approval and earliest execute")
	fs.Int(MultisigMinMembersKey, 2, "Minimum members per multisig")
	fs.Int(MultisigMaxMembersKey, 3, "Maximum members per multisig")

	fs.Uint64(InactivityThresholdHoursKey, 24, "Hours without activity before a member is flagged inactive")
	fs.Uint64(RemovalThresholdHoursKey, 48, "Hours after last activity before an inactive member is retired")
	fs.Uint64(CheckIntervalMinutesKey, 60, "Minutes between activity sweeps")

	fs.Uint64(BalanceSyncStaleSecondsKey, 300, "Seconds before a ledger balance is considered stale")
	fs.Uint64(MonitorIntervalMinutesKey, 5, "Minutes between reconciler sweeps")
	fs.Bool(AutoStartBlockchainMonitoringKey, true, "Start the reconciler job on boot")
	fs.StringSlice(FaucetAddressesKey, nil, "Known faucet addresses for airdrop classification")

	fs.String(FeeWalletAddressKey, "", "Treasury wallet receiving fees")
	fs.String(TreasuryPrivateKeyKey, "", "Base58 private key of the treasury wallet")

	fs.StringSlice(AllowedOriginsKey, []string{"*"}, "CORS allowed origins")
	fs.String(HTTPHostKey, "127.0.0.1", "HTTP listen host")
	fs.Uint16(HTTPPortKey, 9650, "HTTP listen port")

	fs.String(DBTypeKey, "leveldb", "Database backend (leveldb or memdb)")
	fs.String(DBDirKey, defaultDBDir, "Database directory")

	fs.String(LogLevelKey, "info", "Log level (debug, info, warn, error)")
	fs.String(LogDirKey, defaultLogDir, "Log directory")
}

// BuildViper parses [args] against the flag set and layers environment
// variables beneath the explicit flags.
func BuildViper(fs *pflag.FlagSet, args []string) (*viper.Viper, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	for key, env := range legacyEnvVars {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}
	return v, nil
}
