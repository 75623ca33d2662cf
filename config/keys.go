// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

// Flag keys. Each binds an environment variable: the SOLVAULTD_ form of the
// key plus, where one exists, the legacy literal name.
const (
	RPCURLKey            = "rpc-url"
	SolanaNetworkKey     = "solana-network"
	StablecoinMintKey    = "stablecoin-mint"
	OperationalSignerKey = "operational-signer-private-key"

	MultisigMember1PrivateKeyKey = "multisig-member-1-private-key"
	MultisigMember2PrivateKeyKey = "multisig-member-2-private-key"
	MultisigMember3PrivateKeyKey = "multisig-member-3-private-key"
	MultisigDefaultThresholdKey  = "multisig-default-threshold"
	MultisigDefaultTimeLockKey   = "multisig-default-time-lock"
	MultisigMinMembersKey        = "multisig-min-members"
	MultisigMaxMembersKey        = "multisig-max-members"

	InactivityThresholdHoursKey = "inactivity-threshold-hours"
	RemovalThresholdHoursKey    = "removal-threshold-hours"
	CheckIntervalMinutesKey     = "check-interval-minutes"

	BalanceSyncStaleSecondsKey       = "balance-sync-stale-seconds"
	MonitorIntervalMinutesKey        = "monitor-interval-minutes"
	AutoStartBlockchainMonitoringKey = "auto-start-blockchain-monitoring"
	FaucetAddressesKey               = "faucet-addresses"

	FeeWalletAddressKey   = "fee-wallet-address"
	TreasuryPrivateKeyKey = "treasury-private-key"

	AllowedOriginsKey = "allowed-origins"
	HTTPHostKey       = "http-host"
	HTTPPortKey       = "http-port"

	DBTypeKey = "db-type"
	DBDirKey  = "db-dir"

	LogLevelKey = "log-level"
	LogDirKey   = "log-dir"
)

// legacyEnvVars maps flag keys to the literal environment names recognized
// alongside the SOLVAULTD_ prefixed form.
var legacyEnvVars = map[string]string{
	RPCURLKey:                        "RPC_URL",
	SolanaNetworkKey:                 "SOLANA_NETWORK",
	StablecoinMintKey:                "STABLECOIN_MINT",
	MultisigMember1PrivateKeyKey:     "MULTISIG_MEMBER_1_PRIVATE_KEY",
	MultisigMember2PrivateKeyKey:     "MULTISIG_MEMBER_2_PRIVATE_KEY",
	MultisigMember3PrivateKeyKey:     "MULTISIG_MEMBER_3_PRIVATE_KEY",
	MultisigDefaultThresholdKey:      "MULTISIG_DEFAULT_THRESHOLD",
	MultisigDefaultTimeLockKey:       "MULTISIG_DEFAULT_TIME_LOCK",
	MultisigMinMembersKey:            "MULTISIG_MIN_MEMBERS",
	MultisigMaxMembersKey:            "MULTISIG_MAX_MEMBERS",
	InactivityThresholdHoursKey:      "INACTIVITY_THRESHOLD_HOURS",
	RemovalThresholdHoursKey:         "REMOVAL_THRESHOLD_HOURS",
	CheckIntervalMinutesKey:          "CHECK_INTERVAL_MINUTES",
	BalanceSyncStaleSecondsKey:       "BALANCE_SYNC_STALE_SECONDS",
	AutoStartBlockchainMonitoringKey: "AUTO_START_BLOCKCHAIN_MONITORING",
	FeeWalletAddressKey:              "FEE_WALLET_ADDRESS",
	TreasuryPrivateKeyKey:            "TREASURY_PRIVATE_KEY",
	AllowedOriginsKey:                "ALLOWED_ORIGINS",
}
