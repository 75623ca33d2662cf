// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config turns flags and environment variables into the node's
// typed configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/solvault-io/solvaultd/ids"
)

var (
	ErrMissingKey = errors.New("missing required configuration")
	ErrInvalidKey = errors.New("invalid configuration value")

	defaultDBDir  = defaultPath("db")
	defaultLogDir = defaultPath("logs")
)

func defaultPath(sub string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".solvaultd", sub)
}

// Config is the fully resolved runtime configuration.
type Config struct {
	RPCURL         string
	SolanaNetwork  string
	StablecoinMint ids.Address

	// OperationalSigner submits custody transactions on chain.
	OperationalSigner *ids.Keypair

	MemberKeys      []*ids.Keypair
	Threshold       uint32
	TimeLockSeconds uint64
	MinMembers      int
	MaxMembers      int

	InactivityThreshold time.Duration
	RemovalThreshold    time.Duration
	ActivityInterval    time.Duration

	BalanceStaleThreshold time.Duration
	MonitorInterval       time.Duration
	AutoStartMonitoring   bool
	FaucetAddresses       []ids.Address

	TreasuryAddress ids.Address
	TreasuryKey     *ids.Keypair

	AllowedOrigins []string
	HTTPHost       string
	HTTPPort       uint16

	DBType string
	DBDir  string

	LogLevel string
	LogDir   string
}

// GetConfig resolves and validates the configuration held by [v].
func GetConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		RPCURL:                cast.ToString(v.Get(RPCURLKey)),
		SolanaNetwork:         cast.ToString(v.Get(SolanaNetworkKey)),
		Threshold:             cast.ToUint32(v.Get(MultisigDefaultThresholdKey)),
		TimeLockSeconds:       cast.ToUint64(v.Get(MultisigDefaultTimeLockKey)),
		MinMembers:            cast.ToInt(v.Get(MultisigMinMembersKey)),
		MaxMembers:            cast.ToInt(v.Get(MultisigMaxMembersKey)),
		InactivityThreshold:   time.Duration(cast.ToUint64(v.Get(InactivityThresholdHoursKey))) * time.Hour,
		RemovalThreshold:      time.Duration(cast.ToUint64(v.Get(RemovalThresholdHoursKey))) * time.Hour,
		ActivityInterval:      time.Duration(cast.ToUint64(v.Get(CheckIntervalMinutesKey))) * time.Minute,
		BalanceStaleThreshold: time.Duration(cast.ToUint64(v.Get(BalanceSyncStaleSecondsKey))) * time.Second,
		MonitorInterval:       time.Duration(cast.ToUint64(v.Get(MonitorIntervalMinutesKey))) * time.Minute,
		AutoStartMonitoring:   cast.ToBool(v.Get(AutoStartBlockchainMonitoringKey)),
		AllowedOrigins:        cast.ToStringSlice(v.Get(AllowedOriginsKey)),
		HTTPHost:              cast.ToString(v.Get(HTTPHostKey)),
		HTTPPort:              cast.ToUint16(v.Get(HTTPPortKey)),
		DBType:                cast.ToString(v.Get(DBTypeKey)),
		DBDir:                 cast.ToString(v.Get(DBDirKey)),
		LogLevel:              cast.ToString(v.Get(LogLevelKey)),
		LogDir:                cast.ToString(v.Get(LogDirKey)),
	}

	if cfg.RPCURL == "" {
		return Config{}, fmt.Errorf("%w: %s", ErrMissingKey, RPCURLKey)
	}
	if cfg.DBType != "leveldb" && cfg.DBType != "memdb" {
		return Config{}, fmt.Errorf("%w: %s %q", ErrInvalidKey, DBTypeKey, cfg.DBType)
	}

	mint, err := requireAddress(v, StablecoinMintKey)
	if err != nil {
		return Config{}, err
	}
	cfg.StablecoinMint = mint

	for _, key := range []string{
		MultisigMember1PrivateKeyKey,
		MultisigMember2PrivateKeyKey,
		MultisigMember3PrivateKeyKey,
	} {
		raw := cast.ToString(v.Get(key))
		if raw == "" {
			continue
		}
		kp, err := ids.ParseKeypair(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %s", ErrInvalidKey, key, err)
		}
		cfg.MemberKeys = append(cfg.MemberKeys, kp)
	}
	if n := len(cfg.MemberKeys); n < cfg.MinMembers || n > cfg.MaxMembers {
		return Config{}, fmt.Errorf("%w: have %d member keys, want %d..%d",
			ErrInvalidKey, n, cfg.MinMembers, cfg.MaxMembers)
	}
	if cfg.Threshold > uint32(len(cfg.MemberKeys)) {
		return Config{}, fmt.Errorf("%w: %s %d exceeds member count %d",
			ErrInvalidKey, MultisigDefaultThresholdKey, cfg.Threshold, len(cfg.MemberKeys))
	}

	if raw := cast.ToString(v.Get(OperationalSignerKey)); raw != "" {
		kp, err := ids.ParseKeypair(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %s", ErrInvalidKey, OperationalSignerKey, err)
		}
		cfg.OperationalSigner = kp
	} else {
		cfg.OperationalSigner = cfg.MemberKeys[0]
	}

	treasury, err := requireAddress(v, FeeWalletAddressKey)
	if err != nil {
		return Config{}, err
	}
	cfg.TreasuryAddress = treasury

	if raw := cast.ToString(v.Get(TreasuryPrivateKeyKey)); raw != "" {
		kp, err := ids.ParseKeypair(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %s", ErrInvalidKey, TreasuryPrivateKeyKey, err)
		}
		if kp.Address() != cfg.TreasuryAddress {
			return Config{}, fmt.Errorf("%w: %s does not match %s",
				ErrInvalidKey, TreasuryPrivateKeyKey, FeeWalletAddressKey)
		}
		cfg.TreasuryKey = kp
	}

	for _, raw := range cast.ToStringSlice(v.Get(FaucetAddressesKey)) {
		addr, err := ids.ParseAddress(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %s", ErrInvalidKey, FaucetAddressesKey, err)
		}
		cfg.FaucetAddresses = append(cfg.FaucetAddresses, addr)
	}

	return cfg, nil
}

func requireAddress(v *viper.Viper, key string) (ids.Address, error) {
	raw := cast.ToString(v.Get(key))
	if raw == "" {
		return ids.Address{}, fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	addr, err := ids.ParseAddress(raw)
	if err != nil {
		return ids.Address{}, fmt.Errorf("%w: %s: %s", ErrInvalidKey, key, err)
	}
	return addr, nil
}
