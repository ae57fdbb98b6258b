// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package savecrypto implements the authenticated encryption envelope used
// for save files.
//
// # Blob Layout
//
// All integers are little-endian:
//
//	magic     uint32   0x53415645
//	format    uint8    FormatVersion
//	ivLen     uint16   always 16
//	cipherLen uint32   length of ciphertext
//	iv        [ivLen]byte
//	cipher    [cipherLen]byte   AES-256-CBC, PKCS#7 padded
//	macLen    uint16   always 32
//	mac       [macLen]byte      HMAC-SHA-256 over every preceding byte
//
// # Keys
//
// A single 32-byte master key is never used directly. Two subkeys are
// derived as HMAC-SHA-256(master, "enc") and HMAC-SHA-256(master, "mac").
//
// # Verification Order
//
// Unprotect verifies the MAC before any ciphertext reaches the block cipher
// or the padding check. A padding failure after a valid MAC is still
// reported as ErrIntegrity.
//
// # Thread Safety
//
// Protect and Unprotect are pure functions and safe for concurrent use.
package savecrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// Magic identifies an anchorsave blob.
	Magic uint32 = 0x53415645

	// FormatVersion is the codec format tag written by Protect.
	FormatVersion byte = 1

	// KeySize is the required master key length in bytes.
	KeySize = 32

	ivSize  = aes.BlockSize
	macSize = sha256.Size

	// magic + format
	preambleSize = 4 + 1

	// magic + format + ivLen + cipherLen
	fixedHeaderSize = preambleSize + 2 + 4

	purposeEncryption = "enc"
	purposeMAC        = "mac"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrFormat indicates the blob is not recognizable: magic or format tag
	// mismatch, or too short to carry either.
	ErrFormat = errors.New("savecrypto: unrecognized blob format")

	// ErrIntegrity indicates tampering or corruption: inconsistent lengths,
	// MAC mismatch, or a padding failure after the MAC verified.
	ErrIntegrity = errors.New("savecrypto: integrity check failed")

	// ErrKeySize indicates a master key that is not KeySize bytes.
	ErrKeySize = errors.New("savecrypto: master key must be 32 bytes")
)

// randReader is the IV source. Tests may replace it.
var randReader io.Reader = rand.Reader

// =============================================================================
// Protect / Unprotect
// =============================================================================

// Protect encrypts and authenticates plaintext under masterKey.
//
// Description:
//
//	Derives the encryption and MAC subkeys, encrypts plaintext with
//	AES-256-CBC under a fresh random IV, and appends an HMAC-SHA-256 of
//	the header. The returned blob is self-describing.
//
// Inputs:
//   - plaintext: Arbitrary bytes. May be empty.
//   - masterKey: Exactly KeySize bytes.
//
// Outputs:
//   - []byte: The encoded blob.
//   - error: ErrKeySize on a bad key; wrapped error if the IV source fails.
func Protect(plaintext, masterKey []byte) ([]byte, error) {
	if len(masterKey) != KeySize {
		return nil, ErrKeySize
	}
	encKey := deriveKey(masterKey, purposeEncryption)
	macKey := deriveKey(masterKey, purposeMAC)

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(randReader, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	ciphertext := pkcs7Pad(plaintext, aes.BlockSize)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, ciphertext)

	header := buildHeader(iv, ciphertext)
	mac := computeMAC(macKey, header)

	blob := make([]byte, 0, len(header)+2+len(mac))
	blob = append(blob, header...)
	blob = binary.LittleEndian.AppendUint16(blob, uint16(len(mac)))
	blob = append(blob, mac...)
	return blob, nil
}

// Unprotect verifies and decrypts a blob produced by Protect.
//
// Description:
//
//	Parses the header, recomputes the MAC and compares it in constant
//	time. Only a verified blob is decrypted.
//
// Inputs:
//   - blob: Bytes produced by Protect.
//   - masterKey: Exactly KeySize bytes.
//
// Outputs:
//   - []byte: The original plaintext.
//   - error: ErrKeySize, or an error wrapping ErrFormat or ErrIntegrity.
func Unprotect(blob, masterKey []byte) ([]byte, error) {
	if len(masterKey) != KeySize {
		return nil, ErrKeySize
	}

	if len(blob) < preambleSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFormat, len(blob))
	}
	if magic := binary.LittleEndian.Uint32(blob[0:4]); magic != Magic {
		return nil, fmt.Errorf("%w: bad magic %#08x", ErrFormat, magic)
	}
	if format := blob[4]; format != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format %d", ErrFormat, format)
	}

	if len(blob) < fixedHeaderSize {
		return nil, fmt.Errorf("%w: truncated header", ErrIntegrity)
	}
	ivLen := int(binary.LittleEndian.Uint16(blob[5:7]))
	cipherLen := uint64(binary.LittleEndian.Uint32(blob[7:11]))

	headerEnd := uint64(fixedHeaderSize) + uint64(ivLen) + cipherLen
	if headerEnd+2 > uint64(len(blob)) {
		return nil, fmt.Errorf("%w: truncated body", ErrIntegrity)
	}
	header := blob[:headerEnd]
	macLen := uint64(binary.LittleEndian.Uint16(blob[headerEnd : headerEnd+2]))
	if headerEnd+2+macLen != uint64(len(blob)) {
		return nil, fmt.Errorf("%w: mac length mismatch", ErrIntegrity)
	}
	mac := blob[headerEnd+2:]

	encKey := deriveKey(masterKey, purposeEncryption)
	macKey := deriveKey(masterKey, purposeMAC)

	// hmac.Equal does not short-circuit on the first differing byte.
	if !hmac.Equal(mac, computeMAC(macKey, header)) {
		return nil, fmt.Errorf("%w: mac mismatch", ErrIntegrity)
	}

	iv := header[fixedHeaderSize : fixedHeaderSize+ivLen]
	ciphertext := header[fixedHeaderSize+ivLen:]
	if ivLen != ivSize || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: malformed cipher parameters", ErrIntegrity)
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	unpadded, err := pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	return unpadded, nil
}

// =============================================================================
// Helpers
// =============================================================================

// deriveKey returns HMAC-SHA-256(masterKey, purpose).
func deriveKey(masterKey []byte, purpose string) []byte {
	return computeMAC(masterKey, []byte(purpose))
}

func computeMAC(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func buildHeader(iv, ciphertext []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(fixedHeaderSize + len(iv) + len(ciphertext))
	_ = binary.Write(&buf, binary.LittleEndian, Magic)
	buf.WriteByte(FormatVersion)
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(iv)))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(ciphertext)))
	buf.Write(iv)
	buf.Write(ciphertext)
	return buf.Bytes()
}

// pkcs7Pad returns a new slice; the input is not modified.
func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+n)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, errors.New("invalid padding")
	}
	var diff byte
	for _, b := range data[len(data)-n:] {
		diff |= b ^ byte(n)
	}
	if diff != 0 {
		return nil, errors.New("invalid padding")
	}
	return data[:len(data)-n], nil
}
