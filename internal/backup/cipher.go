package backup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	minPBKDF2Iterations = 10000
	minSaltLen          = 8
	ivLen               = 16
)

// cipherNamePattern matches AES-<bits>-<mode> case-insensitively, per
// spec.md §4.3 (grounded on original_source/wasp_backup/archiver.py's
// commented __openssl_mode_re__).
var cipherNamePattern = regexp.MustCompile(`(?i)^AES-([0-9]+)-([A-Za-z0-9]+)$`)

// CipherSpec is a validated, parsed cipher name.
type CipherSpec struct {
	Name    string // canonical form, e.g. "AES-256-CBC"
	KeyBits int
	Mode    string // e.g. "CBC"
}

// ParseCipherName validates a cipher name at argument-acceptance time, not
// mid-archive, per spec.md §4.3. Only CBC mode is implemented; other modes
// parse successfully (so callers can give a precise error) but fail at
// NewCipherLink construction.
func ParseCipherName(name string) (CipherSpec, error) {
	m := cipherNamePattern.FindStringSubmatch(name)
	if m == nil {
		return CipherSpec{}, InputError(nil, "invalid cipher algorithm %q: expected AES-<bits>-<mode>", name)
	}
	bits, err := strconv.Atoi(m[1])
	if err != nil {
		return CipherSpec{}, InputError(err, "invalid cipher bit size in %q", name)
	}
	switch bits {
	case 128, 192, 256:
	default:
		return CipherSpec{}, InputError(nil, "unsupported AES key size %d in %q", bits, name)
	}
	mode := strings.ToUpper(m[2])
	return CipherSpec{
		Name:    fmt.Sprintf("AES-%d-%s", bits, mode),
		KeyBits: bits,
		Mode:    mode,
	}, nil
}

func (s CipherSpec) keyLen() int { return s.KeyBits / 8 }

// CipherLink encrypts forwarded bytes with AES in CBC mode and PKCS7
// padding. Key and IV are derived together by PBKDF2-HMAC-SHA256 from the
// caller's password and a freshly generated salt, per spec.md §4.3. The
// key and IV themselves are never exposed through Meta; only the KDF
// parameters are.
type CipherLink struct {
	next WriterLink
	spec CipherSpec

	salt       []byte
	iterations int

	buf    []byte
	mode   cipher.BlockMode
	closed bool
}

// NewCipherLink wraps next with AES-CBC encryption derived from password
// using spec. iterations below minPBKDF2Iterations are raised to it.
func NewCipherLink(next WriterLink, spec CipherSpec, password []byte, iterations int) (*CipherLink, error) {
	if spec.Mode != "CBC" {
		return nil, CryptoFailure(nil, "unsupported cipher mode %q (only CBC is implemented)", spec.Mode)
	}
	if iterations < minPBKDF2Iterations {
		iterations = minPBKDF2Iterations
	}
	salt := make([]byte, minSaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, CryptoFailure(err, "generating PBKDF2 salt")
	}
	keyLen := spec.keyLen()
	keyiv := pbkdf2.Key(password, salt, iterations, keyLen+ivLen, sha256.New)
	block, err := aes.NewCipher(keyiv[:keyLen])
	if err != nil {
		return nil, CryptoFailure(err, "constructing AES cipher")
	}
	iv := keyiv[keyLen : keyLen+ivLen]
	return &CipherLink{
		next:       next,
		spec:       spec,
		salt:       salt,
		iterations: iterations,
		mode:       cipher.NewCBCEncrypter(block, iv),
	}, nil
}

func (l *CipherLink) Write(p []byte) (int, error) {
	l.buf = append(l.buf, p...)
	blockSize := l.mode.BlockSize()
	n := len(l.buf) / blockSize * blockSize
	if n == 0 {
		return len(p), nil
	}
	toEnc := l.buf[:n]
	enc := make([]byte, len(toEnc))
	l.mode.CryptBlocks(enc, toEnc)
	if _, err := l.next.Write(enc); err != nil {
		return 0, err
	}
	l.buf = append([]byte(nil), l.buf[n:]...)
	return len(p), nil
}

func (l *CipherLink) Flush() error { return l.next.Flush() }

// Close applies PKCS7 padding to any buffered remainder, encrypts and
// flushes the final block(s), then cascades Close downstream. Idempotent.
func (l *CipherLink) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true

	blockSize := l.mode.BlockSize()
	padLen := blockSize - (len(l.buf) % blockSize)
	if padLen == 0 {
		padLen = blockSize
	}
	padded := append(l.buf, makePadding(padLen)...)
	enc := make([]byte, len(padded))
	l.mode.CryptBlocks(enc, padded)
	if _, err := l.next.Write(enc); err != nil {
		return err
	}
	return l.next.Close()
}

func makePadding(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(n)
	}
	return b
}

func (l *CipherLink) Meta() map[string]any {
	return map[string]any{
		"cipher_algorithm":        l.spec.Name,
		"pbkdf2_salt":             fmt.Sprintf("%x", l.salt),
		"pbkdf2_prf":              "HMAC-SHA256",
		"pbkdf2_iterations_count": l.iterations,
	}
}

func (l *CipherLink) Status() string { return l.next.Status() }

// DecryptReader reconstructs the plaintext stream from r given the same
// cipher spec, password, salt and iteration count recorded by CipherLink's
// Meta(). This is the companion decrypt path referenced by spec.md §8
// scenario 3 ("a companion decrypt tool with the same password recovers
// the inner tar byte-exactly"); restore/extraction proper is out of scope
// (spec.md §1 Non-goals), but byte-exact decryption of the payload member
// is a direct corollary of CipherLink and is exercised by tests.
func DecryptReader(r io.Reader, spec CipherSpec, password []byte, salt []byte, iterations int) (io.Reader, error) {
	if spec.Mode != "CBC" {
		return nil, CryptoFailure(nil, "unsupported cipher mode %q (only CBC is implemented)", spec.Mode)
	}
	keyLen := spec.keyLen()
	keyiv := pbkdf2.Key(password, salt, iterations, keyLen+ivLen, sha256.New)
	block, err := aes.NewCipher(keyiv[:keyLen])
	if err != nil {
		return nil, CryptoFailure(err, "constructing AES cipher")
	}
	iv := keyiv[keyLen : keyLen+ivLen]
	mode := cipher.NewCBCDecrypter(block, iv)
	return &cbcPKCS7Reader{r: r, mode: mode}, nil
}

// cbcPKCS7Reader decrypts incoming ciphertext blocks and removes PKCS7
// padding on the final read, buffering plaintext to serve arbitrary
// caller-requested slice sizes.
type cbcPKCS7Reader struct {
	r    io.Reader
	mode cipher.BlockMode
	buf  []byte
	out  []byte
	fin  bool
}

func (c *cbcPKCS7Reader) Read(p []byte) (int, error) {
	if len(c.out) > 0 {
		n := copy(p, c.out)
		c.out = c.out[n:]
		return n, nil
	}
	if c.fin {
		return 0, io.EOF
	}

	buf := make([]byte, 4096)
	nr, err := c.r.Read(buf)
	if err != nil && err != io.EOF {
		return 0, err
	}
	c.buf = append(c.buf, buf[:nr]...)

	blockSize := c.mode.BlockSize()
	n := len(c.buf) / blockSize * blockSize
	if err == io.EOF {
		c.fin = true
	}
	// Hold back the last full block until EOF is seen: it may be the
	// padded final block, whose padding is only stripped once fin is set.
	if !c.fin && n > 0 && n == len(c.buf) {
		n -= blockSize
	}
	if n == 0 {
		if c.fin {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, nil
	}

	dec := make([]byte, n)
	c.mode.CryptBlocks(dec, c.buf[:n])
	c.buf = c.buf[n:]

	if c.fin {
		if len(dec) < blockSize {
			return 0, CryptoFailure(nil, "invalid padding: short final block")
		}
		padLen := int(dec[len(dec)-1])
		if padLen == 0 || padLen > blockSize {
			return 0, CryptoFailure(nil, "invalid padding: out of range")
		}
		for i := 0; i < padLen; i++ {
			if dec[len(dec)-1-i] != byte(padLen) {
				return 0, CryptoFailure(nil, "invalid padding: content mismatch")
			}
		}
		dec = dec[:len(dec)-padLen]
	}

	nw := copy(p, dec)
	if nw < len(dec) {
		c.out = dec[nw:]
	}
	if c.fin && len(dec) == 0 && len(c.out) == 0 {
		return 0, io.EOF
	}
	return nw, nil
}
