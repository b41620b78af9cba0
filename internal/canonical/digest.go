package canonical

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/seanchatmangpt/cleanroom/internal/trace"
)

// digestDomain separates trace digests from any other SHA-256 use in the
// bundle format. The version suffix enables future algorithm migration.
const digestDomain = "cleanroom/trace/v1"

// Digest computes the hex digest of a canonical form:
// SHA256(domain + 0x00 + canonical bytes). The null separator prevents
// domain/data boundary ambiguity. Identical canonical bytes produce an
// identical digest on every platform; there are no hidden inputs.
func Digest(f *Form) (string, error) {
	data, err := Marshal(f)
	if err != nil {
		return "", err
	}
	return DigestBytes(data), nil
}

// DigestBytes hashes already-serialized canonical bytes.
func DigestBytes(data []byte) string {
	h := sha256.New()
	h.Write([]byte(digestDomain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DigestTrace canonicalizes and digests a raw trace in one step.
func DigestTrace(tr *trace.Trace, opts Options) (string, error) {
	form, err := Canonicalize(tr, opts)
	if err != nil {
		return "", err
	}
	return Digest(form)
}
