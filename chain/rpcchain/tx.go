// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpcchain

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/solvault-io/solvaultd/ids"
)

// Token program address for SPL transfers.
var tokenProgram = mustAddress("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

func mustAddress(s string) ids.Address {
	addr, err := ids.ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// buildTransfer assembles and signs a single-signer legacy transaction
// carrying one transfer instruction, returned base64 encoded. For SPL
// transfers [to] must already be a token account; the custodial layer only
// moves between accounts it provisioned.
func buildTransfer(from *ids.Keypair, to ids.Address, amount uint64, mint *ids.Address, blockhash ids.Address) (string, error) {
	var (
		program ids.Address
		data    []byte
	)
	if mint == nil {
		// System program transfer: u32 instruction index 2, u64 lamports.
		program = ids.EmptyAddress
		data = make([]byte, 12)
		binary.LittleEndian.PutUint32(data, 2)
		binary.LittleEndian.PutUint64(data[4:], amount*10)
	} else {
		// Token program transfer: u8 instruction 3, u64 base-unit amount.
		// USDC carries 6 decimals on chain, the ledger 8.
		program = tokenProgram
		data = make([]byte, 9)
		data[0] = 3
		binary.LittleEndian.PutUint64(data[1:], amount/100)
	}

	accounts := []ids.Address{from.Address(), to, program}

	// Message: header, account keys, recent blockhash, instructions.
	msg := []byte{
		1, // num required signatures
		0, // num readonly signed
		1, // num readonly unsigned (the program)
	}
	msg = appendCompactU16(msg, len(accounts))
	for _, acct := range accounts {
		msg = append(msg, acct.Bytes()...)
	}
	msg = append(msg, blockhash.Bytes()...)
	msg = appendCompactU16(msg, 1) // one instruction
	msg = append(msg, 2)           // program id index
	msg = appendCompactU16(msg, 2) // two accounts
	msg = append(msg, 0, 1)        // from, to
	msg = appendCompactU16(msg, len(data))
	msg = append(msg, data...)

	signature := from.Sign(msg)

	tx := appendCompactU16(nil, 1) // one signature
	tx = append(tx, signature...)
	tx = append(tx, msg...)
	return base64.StdEncoding.EncodeToString(tx), nil
}

// appendCompactU16 appends the Solana shortvec encoding of [v].
func appendCompactU16(b []byte, v int) []byte {
	for {
		if v < 0x80 {
			return append(b, byte(v))
		}
		b = append(b, byte(v&0x7f)|0x80)
		v >>= 7
	}
}
