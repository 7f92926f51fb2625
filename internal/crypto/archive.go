package crypto

import (
	"crypto/aes"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"
)

// Encrypted archive layout: IV (12 bytes) || auth tag (16 bytes) || ciphertext.
const (
	KeyLength     = 32
	IVLength      = 12
	AuthTagLength = 16
	HeaderLength  = IVLength + AuthTagLength

	// EncryptedSuffix is appended to archive names once encrypted.
	EncryptedSuffix = ".enc"

	chunkSize = 64 * 1024
)

var (
	// ErrFileTooShort is returned when an encrypted file cannot hold the header.
	ErrFileTooShort = errors.New("encrypted file too short")
	// ErrAuthentication is returned when the tag does not verify (wrong key or tampered data).
	ErrAuthentication = errors.New("authentication failed")
	// ErrInvalidKeyLength is returned for keys that are not KeyLength bytes.
	ErrInvalidKeyLength = fmt.Errorf("encryption key must be %d bytes", KeyLength)
	// ErrArchiveTooLarge is returned when an input exceeds what one GCM IV may cover.
	ErrArchiveTooLarge = errors.New("archive exceeds AES-GCM size limit")
)

// DecryptionError wraps a decryption failure with the offending path.
type DecryptionError struct {
	Path string
	Err  error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decrypt %s: %v", e.Path, e.Err)
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// ArchiveEncryptor encrypts and decrypts backup archives with AES-256-GCM,
// streaming file contents in fixed-size chunks.
type ArchiveEncryptor struct {
	rand io.Reader
}

// NewArchiveEncryptor creates an ArchiveEncryptor using crypto/rand for IVs.
func NewArchiveEncryptor() *ArchiveEncryptor {
	return &ArchiveEncryptor{rand: rand.Reader}
}

// EncryptFile encrypts inputPath into outputPath with a fresh random IV.
// outputPath is removed if encryption fails part-way.
func (e *ArchiveEncryptor) EncryptFile(inputPath, outputPath string, key []byte) (err error) {
	if len(key) != KeyLength {
		return ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("create cipher: %w", err)
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", inputPath, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", inputPath, err)
	}
	if info.Size() > maxPlaintextLength {
		return ErrArchiveTooLarge
	}

	iv := make([]byte, IVLength)
	if _, err := io.ReadFull(e.rand, iv); err != nil {
		return fmt.Errorf("generate iv: %w", err)
	}

	out, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create %s: %w", outputPath, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", outputPath, cerr)
		}
		if err != nil {
			os.Remove(outputPath)
		}
	}()

	// The tag is only known after the last chunk; reserve its slot and patch it in.
	header := make([]byte, HeaderLength)
	copy(header, iv)
	if _, err := out.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	s := newGCMStream(block, iv)
	buf := make([]byte, chunkSize)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			s.seal(buf[:n], buf[:n])
			if _, err := out.Write(buf[:n]); err != nil {
				return fmt.Errorf("write ciphertext: %w", err)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read %s: %w", inputPath, rerr)
		}
	}

	if _, err := out.WriteAt(s.tag(), IVLength); err != nil {
		return fmt.Errorf("write auth tag: %w", err)
	}
	return out.Sync()
}

// DecryptFile verifies and decrypts inputPath into outputPath. The tag is
// checked over the whole ciphertext before any plaintext is written.
func (e *ArchiveEncryptor) DecryptFile(inputPath, outputPath string, key []byte) (err error) {
	if len(key) != KeyLength {
		return ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("create cipher: %w", err)
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", inputPath, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", inputPath, err)
	}
	if info.Size() < HeaderLength {
		return &DecryptionError{Path: inputPath, Err: ErrFileTooShort}
	}
	if info.Size()-HeaderLength > maxPlaintextLength {
		return &DecryptionError{Path: inputPath, Err: ErrArchiveTooLarge}
	}

	header := make([]byte, HeaderLength)
	if _, err := io.ReadFull(in, header); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	iv, tag := header[:IVLength], header[IVLength:]

	s := newGCMStream(block, iv)
	buf := make([]byte, chunkSize)
	if err := streamChunks(in, buf, s.authenticate); err != nil {
		return fmt.Errorf("read %s: %w", inputPath, err)
	}
	if subtle.ConstantTimeCompare(s.tag(), tag) != 1 {
		return &DecryptionError{Path: inputPath, Err: ErrAuthentication}
	}

	if _, err := in.Seek(HeaderLength, io.SeekStart); err != nil {
		return fmt.Errorf("seek %s: %w", inputPath, err)
	}

	out, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create %s: %w", outputPath, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", outputPath, cerr)
		}
		if err != nil {
			os.Remove(outputPath)
		}
	}()

	var werr error
	err = streamChunks(in, buf, func(chunk []byte) {
		if werr != nil {
			return
		}
		s.decrypt(chunk, chunk)
		_, werr = out.Write(chunk)
	})
	if err != nil {
		return fmt.Errorf("read %s: %w", inputPath, err)
	}
	if werr != nil {
		return fmt.Errorf("write plaintext: %w", werr)
	}
	return nil
}

// streamChunks reads r to EOF, handing each chunk to fn.
func streamChunks(r io.Reader, buf []byte, fn func([]byte)) error {
	for {
		n, err := r.Read(buf)
		if n > 0 {
			fn(buf[:n])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
