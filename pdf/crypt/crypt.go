// Package crypt implements the PDF standard security handler: RC4 and
// AES encryption of strings and streams, revisions 2 to 6.
package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/xdg-go/stringprep"
)

// Common errors
var (
	ErrInvalidPassword  = errors.New("invalid password")
	ErrUnsupportedCrypt = errors.New("unsupported encryption")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// EncryptionVersion is the /V entry of the encryption dictionary.
type EncryptionVersion int

const (
	EncryptionV1 EncryptionVersion = 1 // 40-bit RC4
	EncryptionV2 EncryptionVersion = 2 // Variable-bit RC4
	EncryptionV4 EncryptionVersion = 4 // Crypt filters, RC4 or AES-128
	EncryptionV5 EncryptionVersion = 5 // AES-256
)

// EncryptionRevision is the /R entry of the encryption dictionary.
type EncryptionRevision int

const (
	RevisionR2 EncryptionRevision = 2
	RevisionR3 EncryptionRevision = 3
	RevisionR4 EncryptionRevision = 4
	RevisionR5 EncryptionRevision = 5 // Deprecated AES-256 draft
	RevisionR6 EncryptionRevision = 6
)

// Method is the cipher applied by a crypt filter.
type Method int

const (
	MethodIdentity Method = iota
	MethodRC4
	MethodAESV2
	MethodAESV3
)

func (m Method) String() string {
	switch m {
	case MethodIdentity:
		return "Identity"
	case MethodRC4:
		return "RC4"
	case MethodAESV2:
		return "AES-128"
	case MethodAESV3:
		return "AES-256"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod reads a method name: rc4, aes128 or aes256.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "rc4":
		return MethodRC4, nil
	case "aes128", "aes-128":
		return MethodAESV2, nil
	case "aes256", "aes-256":
		return MethodAESV3, nil
	}
	return 0, fmt.Errorf("%w: method %q", ErrUnsupportedCrypt, s)
}

// Permissions is the /P bit field.
type Permissions uint32

const (
	PermPrint            Permissions = 1 << 2
	PermModify           Permissions = 1 << 3
	PermCopy             Permissions = 1 << 4
	PermAnnotate         Permissions = 1 << 5
	PermFillForms        Permissions = 1 << 8
	PermAccessibility    Permissions = 1 << 9
	PermAssemble         Permissions = 1 << 10
	PermPrintHighQuality Permissions = 1 << 11

	// permReserved are the bits that must be set for revision 3 and
	// later.
	permReserved Permissions = 0xFFFFF0C0
)

// Has reports whether every bit of p2 is set.
func (p Permissions) Has(p2 Permissions) bool { return p&p2 == p2 }

// SecurityHandler encrypts and decrypts the strings and streams of one
// document.
type SecurityHandler interface {
	DecryptString(data []byte, objNum, genNum int) ([]byte, error)
	DecryptStream(data []byte, objNum, genNum int) ([]byte, error)
	EncryptString(data []byte, objNum, genNum int) ([]byte, error)
	EncryptStream(data []byte, objNum, genNum int) ([]byte, error)
}

// StandardSecurityHandler implements the /Standard security handler.
type StandardSecurityHandler struct {
	Version  EncryptionVersion
	Revision EncryptionRevision
	// KeyLength is the file key length in bytes.
	KeyLength   int
	Permissions Permissions
	OwnerKey    []byte // O
	UserKey     []byte // U
	OwnerE      []byte // OE, revision 5 and 6
	UserE       []byte // UE, revision 5 and 6
	Perms       []byte // Perms, revision 5 and 6
	// FileID is the first element of the trailer /ID.
	FileID []byte

	EncryptMetadata bool
	StreamMethod    Method
	StringMethod    Method

	// Rand supplies AES initialization vectors. Nil means crypto/rand.
	Rand io.Reader

	key   []byte
	owner bool
}

var _ SecurityHandler = (*StandardSecurityHandler)(nil)

// NewStandardSecurityHandler sets up encryption of a new document with
// method MethodRC4 (revision 3, 128 bit), MethodAESV2 (revision 4) or
// MethodAESV3 (revision 6). An empty owner password is replaced by the
// user password.
func NewStandardSecurityHandler(method Method, userPassword, ownerPassword string, perms Permissions, fileID []byte) (*StandardSecurityHandler, error) {
	if ownerPassword == "" {
		ownerPassword = userPassword
	}
	h := &StandardSecurityHandler{
		Permissions:     perms | permReserved,
		FileID:          bytes.Clone(fileID),
		EncryptMetadata: true,
		StreamMethod:    method,
		StringMethod:    method,
	}
	switch method {
	case MethodRC4:
		h.Version, h.Revision, h.KeyLength = EncryptionV2, RevisionR3, 16
	case MethodAESV2:
		h.Version, h.Revision, h.KeyLength = EncryptionV4, RevisionR4, 16
	case MethodAESV3:
		h.Version, h.Revision, h.KeyLength = EncryptionV5, RevisionR6, 32
		if err := h.initR6(userPassword, ownerPassword); err != nil {
			return nil, err
		}
		return h, nil
	default:
		return nil, fmt.Errorf("%w: cannot create %s handler", ErrUnsupportedCrypt, method)
	}

	upw := padPassword([]byte(userPassword))
	h.OwnerKey = h.computeOwnerKey(upw, padPassword([]byte(ownerPassword)))
	h.key = h.computeFileKey(upw)
	h.UserKey = h.computeUserKey(h.key)
	return h, nil
}

func (h *StandardSecurityHandler) random() io.Reader {
	if h.Rand != nil {
		return h.Rand
	}
	return rand.Reader
}

func (h *StandardSecurityHandler) initR6(userPassword, ownerPassword string) error {
	upw, err := prepPassword(userPassword)
	if err != nil {
		return err
	}
	opw, err := prepPassword(ownerPassword)
	if err != nil {
		return err
	}
	buf := make([]byte, 32+16+16+4)
	if _, err := io.ReadFull(h.random(), buf); err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	h.key = buf[:32]
	uSalt, oSalt := buf[32:48], buf[48:64]

	h.UserKey = append(h.hashR6(upw, uSalt[:8], nil), uSalt...)
	h.UserE = cbcNoPad(h.hashR6(upw, uSalt[8:], nil), h.key)
	h.OwnerKey = append(h.hashR6(opw, oSalt[:8], h.UserKey), oSalt...)
	h.OwnerE = cbcNoPad(h.hashR6(opw, oSalt[8:], h.UserKey), h.key)

	perms := make([]byte, 16)
	binary.LittleEndian.PutUint32(perms, uint32(h.Permissions))
	copy(perms[4:], []byte{0xFF, 0xFF, 0xFF, 0xFF, 'T', 'a', 'd', 'b'})
	if !h.EncryptMetadata {
		perms[8] = 'F'
	}
	copy(perms[12:], buf[64:])
	block, _ := aes.NewCipher(h.key)
	block.Encrypt(perms, perms)
	h.Perms = perms
	return nil
}

// Authenticated reports whether a file key is available.
func (h *StandardSecurityHandler) Authenticated() bool { return h.key != nil }

// OwnerAuthenticated reports whether the owner password was given.
func (h *StandardSecurityHandler) OwnerAuthenticated() bool { return h.owner }

// Authenticate derives the file key from password, trying it first as the
// user password and then as the owner password. Permissions are not
// enforced either way.
func (h *StandardSecurityHandler) Authenticate(password string) error {
	switch h.Revision {
	case RevisionR2, RevisionR3, RevisionR4:
		pw := padPassword([]byte(password))
		if h.authenticateUser(pw) {
			return nil
		}
		if h.authenticateUser(h.userPasswordFromOwner(pw)) {
			h.owner = true
			return nil
		}
	case RevisionR5, RevisionR6:
		pw, err := prepPassword(password)
		if err != nil {
			return err
		}
		if h.authenticateR6(pw, h.UserKey, nil, h.UserE) {
			return nil
		}
		if len(h.UserKey) >= 48 && h.authenticateR6(pw, h.OwnerKey, h.UserKey[:48], h.OwnerE) {
			h.owner = true
			return nil
		}
	default:
		return fmt.Errorf("%w: revision %d", ErrUnsupportedCrypt, h.Revision)
	}
	return ErrInvalidPassword
}

// computeFileKey is algorithm 2 of ISO 32000-2.
func (h *StandardSecurityHandler) computeFileKey(paddedPassword []byte) []byte {
	m := md5.New()
	m.Write(paddedPassword)
	m.Write(h.OwnerKey)
	binary.Write(m, binary.LittleEndian, uint32(h.Permissions))
	m.Write(h.FileID)
	if h.Revision >= RevisionR4 && !h.EncryptMetadata {
		m.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	key := m.Sum(nil)

	n := h.keyLength()
	if h.Revision >= RevisionR3 {
		for i := 0; i < 50; i++ {
			sum := md5.Sum(key[:n])
			key = sum[:]
		}
	}
	return key[:n]
}

func (h *StandardSecurityHandler) keyLength() int {
	if h.Revision == RevisionR2 {
		return 5
	}
	if h.KeyLength < 5 || h.KeyLength > 16 {
		return 16
	}
	return h.KeyLength
}

// ownerRC4Key is steps a to d of algorithm 3.
func (h *StandardSecurityHandler) ownerRC4Key(paddedOwner []byte) []byte {
	sum := md5.Sum(paddedOwner)
	key := sum[:]
	n := h.keyLength()
	if h.Revision >= RevisionR3 {
		for i := 0; i < 50; i++ {
			sum := md5.Sum(key[:n])
			key = sum[:]
		}
	}
	return key[:n]
}

// computeOwnerKey is algorithm 3.
func (h *StandardSecurityHandler) computeOwnerKey(paddedUser, paddedOwner []byte) []byte {
	key := h.ownerRC4Key(paddedOwner)
	out := bytes.Clone(paddedUser)
	rc4XOR(key, out)
	if h.Revision >= RevisionR3 {
		for i := 1; i <= 19; i++ {
			rc4XOR(xorKey(key, byte(i)), out)
		}
	}
	return out
}

// computeUserKey is algorithms 4 and 5.
func (h *StandardSecurityHandler) computeUserKey(fileKey []byte) []byte {
	if h.Revision == RevisionR2 {
		out := bytes.Clone(passwordPadding)
		rc4XOR(fileKey, out)
		return out
	}
	m := md5.New()
	m.Write(passwordPadding)
	m.Write(h.FileID)
	out := m.Sum(nil)
	rc4XOR(fileKey, out)
	for i := 1; i <= 19; i++ {
		rc4XOR(xorKey(fileKey, byte(i)), out)
	}
	return append(out, make([]byte, 16)...)
}

// authenticateUser is algorithm 6.
func (h *StandardSecurityHandler) authenticateUser(paddedPassword []byte) bool {
	key := h.computeFileKey(paddedPassword)
	u := h.computeUserKey(key)
	n := 32
	if h.Revision >= RevisionR3 {
		n = 16
	}
	if len(h.UserKey) < n || !bytes.Equal(u[:n], h.UserKey[:n]) {
		return false
	}
	h.key = key
	return true
}

// userPasswordFromOwner is the decryption half of algorithm 7.
func (h *StandardSecurityHandler) userPasswordFromOwner(paddedOwner []byte) []byte {
	key := h.ownerRC4Key(paddedOwner)
	out := make([]byte, 32)
	copy(out, h.OwnerKey)
	if h.Revision == RevisionR2 {
		rc4XOR(key, out)
		return out
	}
	for i := 19; i >= 0; i-- {
		rc4XOR(xorKey(key, byte(i)), out)
	}
	return out
}

// authenticateR6 is algorithms 11 and 12. validation holds the 32-byte
// hash followed by the validation and key salts.
func (h *StandardSecurityHandler) authenticateR6(pw, validation, udata, encrypted []byte) bool {
	if len(validation) < 48 || len(encrypted) != 32 {
		return false
	}
	if !bytes.Equal(h.hashR6(pw, validation[32:40], udata), validation[:32]) {
		return false
	}
	intermediate := h.hashR6(pw, validation[40:48], udata)
	block, err := aes.NewCipher(intermediate)
	if err != nil {
		return false
	}
	key := make([]byte, 32)
	cipher.NewCBCDecrypter(block, make([]byte, 16)).CryptBlocks(key, encrypted)
	h.key = key
	return true
}

// hashR6 is algorithm 2.B. Revision 5 uses the plain SHA-256 digest.
func (h *StandardSecurityHandler) hashR6(pw, salt, udata []byte) []byte {
	m := sha256.New()
	m.Write(pw)
	m.Write(salt)
	m.Write(udata)
	k := m.Sum(nil)
	if h.Revision == RevisionR5 {
		return k
	}

	var e []byte
	for round := 0; round < 64 || int(e[len(e)-1]) > round-32; round++ {
		k1 := make([]byte, 0, 64*(len(pw)+len(k)+len(udata)))
		for j := 0; j < 64; j++ {
			k1 = append(k1, pw...)
			k1 = append(k1, k...)
			k1 = append(k1, udata...)
		}
		block, _ := aes.NewCipher(k[:16])
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(k1, k1)
		e = k1

		sum := 0
		for _, b := range e[:16] {
			sum += int(b)
		}
		var next hash.Hash
		switch sum % 3 {
		case 0:
			next = sha256.New()
		case 1:
			next = sha512.New384()
		default:
			next = sha512.New()
		}
		next.Write(e)
		k = next.Sum(nil)
	}
	return k[:32]
}

// objectKey is algorithm 1. AES-256 uses the file key directly.
func (h *StandardSecurityHandler) objectKey(method Method, objNum, genNum int) []byte {
	if method == MethodAESV3 {
		return h.key
	}
	m := md5.New()
	m.Write(h.key)
	m.Write([]byte{byte(objNum), byte(objNum >> 8), byte(objNum >> 16), byte(genNum), byte(genNum >> 8)})
	if method == MethodAESV2 {
		m.Write([]byte("sAlT"))
	}
	return m.Sum(nil)[:min(len(h.key)+5, 16)]
}

func (h *StandardSecurityHandler) decrypt(method Method, data []byte, objNum, genNum int) ([]byte, error) {
	if h.key == nil {
		return nil, ErrInvalidPassword
	}
	key := h.objectKey(method, objNum, genNum)
	switch method {
	case MethodIdentity:
		return data, nil
	case MethodRC4:
		out := bytes.Clone(data)
		rc4XOR(key, out)
		return out, nil
	default:
		return decryptAES(key, data)
	}
}

func (h *StandardSecurityHandler) encrypt(method Method, data []byte, objNum, genNum int) ([]byte, error) {
	if h.key == nil {
		return nil, ErrInvalidPassword
	}
	key := h.objectKey(method, objNum, genNum)
	switch method {
	case MethodIdentity:
		return data, nil
	case MethodRC4:
		out := bytes.Clone(data)
		rc4XOR(key, out)
		return out, nil
	default:
		return encryptAES(key, data, h.random())
	}
}

// DecryptString implements SecurityHandler.
func (h *StandardSecurityHandler) DecryptString(data []byte, objNum, genNum int) ([]byte, error) {
	return h.decrypt(h.StringMethod, data, objNum, genNum)
}

// DecryptStream implements SecurityHandler.
func (h *StandardSecurityHandler) DecryptStream(data []byte, objNum, genNum int) ([]byte, error) {
	return h.decrypt(h.StreamMethod, data, objNum, genNum)
}

// EncryptString implements SecurityHandler.
func (h *StandardSecurityHandler) EncryptString(data []byte, objNum, genNum int) ([]byte, error) {
	return h.encrypt(h.StringMethod, data, objNum, genNum)
}

// EncryptStream implements SecurityHandler.
func (h *StandardSecurityHandler) EncryptStream(data []byte, objNum, genNum int) ([]byte, error) {
	return h.encrypt(h.StreamMethod, data, objNum, genNum)
}

// Description names the cipher and revision, for example "AES-128, R4".
func (h *StandardSecurityHandler) Description() string {
	if h.StreamMethod == MethodRC4 {
		return fmt.Sprintf("RC4 %d-bit, R%d", h.keyLength()*8, h.Revision)
	}
	return fmt.Sprintf("%s, R%d", h.StreamMethod, h.Revision)
}

func rc4XOR(key, buf []byte) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return
	}
	c.XORKeyStream(buf, buf)
}

func xorKey(key []byte, b byte) []byte {
	out := make([]byte, len(key))
	for i := range key {
		out[i] = key[i] ^ b
	}
	return out
}

// cbcNoPad encrypts 32 bytes with AES-256-CBC and a zero IV.
func cbcNoPad(key, data []byte) []byte {
	block, _ := aes.NewCipher(key)
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, make([]byte, 16)).CryptBlocks(out, data)
	return out
}

func decryptAES(key, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	if len(data) < 2*aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes of AES data", ErrDecryptionFailed, len(data))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data)-aes.BlockSize)
	cipher.NewCBCDecrypter(block, data[:aes.BlockSize]).CryptBlocks(out, data[aes.BlockSize:])

	pad := int(out[len(out)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(out) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryptionFailed)
	}
	return out[:len(out)-pad], nil
}

func encryptAES(key, data []byte, random io.Reader) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	pad := aes.BlockSize - len(data)%aes.BlockSize
	out := make([]byte, aes.BlockSize+len(data)+pad)
	if _, err := io.ReadFull(random, out[:aes.BlockSize]); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}
	body := out[aes.BlockSize:]
	copy(body, data)
	for i := len(data); i < len(body); i++ {
		body[i] = byte(pad)
	}
	cipher.NewCBCEncrypter(block, out[:aes.BlockSize]).CryptBlocks(body, body)
	return out, nil
}

// passwordPadding pads passwords for revisions 2 to 4.
var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPassword(password []byte) []byte {
	out := make([]byte, 32)
	n := copy(out, password)
	copy(out[n:], passwordPadding)
	return out
}

// prepPassword applies SASLprep and truncates to 127 bytes, as revision 6
// requires.
func prepPassword(password string) ([]byte, error) {
	prepped, err := stringprep.SASLprep.Prepare(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}
	b := []byte(prepped)
	if len(b) > 127 {
		b = b[:127]
	}
	return b, nil
}
