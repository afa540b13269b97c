package swapcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
)

const (
	// TagSize is the authenticator length, matching memlayout.TagSize.
	TagSize = 16

	authKeySize = 16
	encKeySize  = 32
	// keyDerivationBlocks is authKeySize/8 + encKeySize/8: one AES block
	// yields 8 usable bytes each, per the RFC 8452 key-derivation scheme.
	keyDerivationBlocks = authKeySize/8 + encKeySize/8
)

// deriveKeys derives a fresh per-message authentication key and encryption
// key from root (the long-term 256-bit swap key) and nonce (12 bytes), by
// AES-encrypting successive little-endian counter||nonce blocks under root
// and keeping the low 8 bytes of each resulting block.
func deriveKeys(root [32]byte, nonce [12]byte) (authKey [authKeySize]byte, encKey [encKeySize]byte) {
	block, err := aes.NewCipher(root[:])
	if err != nil {
		panic(err) // aes.NewCipher only fails on bad key length, which root guarantees
	}

	var chunks [keyDerivationBlocks][8]byte
	for i := 0; i < keyDerivationBlocks; i++ {
		var in, out [blockSize]byte
		binary.LittleEndian.PutUint32(in[0:4], uint32(i))
		copy(in[4:16], nonce[:])
		block.Encrypt(out[:], in[:])
		copy(chunks[i][:], out[0:8])
	}

	copy(authKey[0:8], chunks[0][:])
	copy(authKey[8:16], chunks[1][:])
	for i := 0; i < encKeySize/8; i++ {
		copy(encKey[i*8:i*8+8], chunks[2+i][:])
	}
	return authKey, encKey
}

// computeTag derives the synthetic-IV tag for (aad, plaintext) under the
// message-authentication and message-encryption keys, XORed with nonce and
// cleared of its top bit per the SIV construction, then sealed under AES.
func computeTag(authKey [authKeySize]byte, encKey [encKeySize]byte, nonce [12]byte, aad, plaintext []byte) [TagSize]byte {
	var h [blockSize]byte
	copy(h[:], authKey[:])

	var blocks [][blockSize]byte
	blocks = append(blocks, padBlocks(aad)...)
	blocks = append(blocks, padBlocks(plaintext)...)

	var lenBlock [blockSize]byte
	binary.LittleEndian.PutUint64(lenBlock[0:8], uint64(len(aad))*8)
	binary.LittleEndian.PutUint64(lenBlock[8:16], uint64(len(plaintext))*8)
	blocks = append(blocks, lenBlock)

	s := polyval(h, blocks)
	for i := 0; i < 12; i++ {
		s[i] ^= nonce[i]
	}
	s[0] &^= 0x80 // clear one bit so the value cannot be mistaken for a full counter overflow sentinel

	encBlock, err := aes.NewCipher(encKey[:])
	if err != nil {
		panic(err)
	}
	var tag [TagSize]byte
	encBlock.Encrypt(tag[:], s[:])
	return tag
}

// ctrKeystreamXOR XORs src into dst using AES-CTR keystream generated under
// encKey with the tag as the initial counter block (with its top bit set,
// distinguishing the keystream counter space from the tag-derivation
// input).
func ctrKeystreamXOR(encKey [encKeySize]byte, tag [TagSize]byte, dst, src []byte) {
	block, err := aes.NewCipher(encKey[:])
	if err != nil {
		panic(err)
	}
	var iv [blockSize]byte
	copy(iv[:], tag[:])
	iv[0] |= 0x80

	stream := cipher.NewCTR(block, iv[:])
	stream.XORKeyStream(dst, src)
}

// seal encrypts plaintext under (root, nonce), authenticating aad, and
// returns the ciphertext (same length as plaintext) and its 16-byte tag.
func seal(root [32]byte, nonce [12]byte, aad, plaintext []byte) (ciphertext []byte, tag [TagSize]byte) {
	authKey, encKey := deriveKeys(root, nonce)
	tag = computeTag(authKey, encKey, nonce, aad, plaintext)
	ciphertext = make([]byte, len(plaintext))
	ctrKeystreamXOR(encKey, tag, ciphertext, plaintext)
	return ciphertext, tag
}

// open decrypts ciphertext under (root, nonce) and verifies it against aad
// and tag in constant time. On success it returns the plaintext and true;
// on failure it returns nil and false without writing anything the caller
// can observe.
func open(root [32]byte, nonce [12]byte, aad, ciphertext []byte, tag [TagSize]byte) ([]byte, bool) {
	authKey, encKey := deriveKeys(root, nonce)

	plaintext := make([]byte, len(ciphertext))
	ctrKeystreamXOR(encKey, tag, plaintext, ciphertext)

	want := computeTag(authKey, encKey, nonce, aad, plaintext)
	if subtle.ConstantTimeCompare(want[:], tag[:]) != 1 {
		return nil, false
	}
	return plaintext, true
}
