// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package json holds the API number types. Amounts and identifiers are
// serialized as quoted decimal strings so JavaScript clients never lose
// precision past 2^53.
package json

import (
	"errors"
	"strconv"
)

var errNotQuoted = errors.New("value is not quoted")

type Uint64 uint64

func (u Uint64) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.FormatUint(uint64(u), 10) + `"`), nil
}

func (u *Uint64) UnmarshalJSON(b []byte) error {
	str := string(b)
	if str == "null" {
		return nil
	}
	if len(str) < 2 || str[0] != '"' || str[len(str)-1] != '"' {
		return errNotQuoted
	}
	val, err := strconv.ParseUint(str[1:len(str)-1], 10, 64)
	if err != nil {
		return err
	}
	*u = Uint64(val)
	return nil
}

type Uint32 uint32

func (u Uint32) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.FormatUint(uint64(u), 10) + `"`), nil
}

func (u *Uint32) UnmarshalJSON(b []byte) error {
	str := string(b)
	if str == "null" {
		return nil
	}
	if len(str) < 2 || str[0] != '"' || str[len(str)-1] != '"' {
		return errNotQuoted
	}
	val, err := strconv.ParseUint(str[1:len(str)-1], 10, 32)
	if err != nil {
		return err
	}
	*u = Uint32(val)
	return nil
}
