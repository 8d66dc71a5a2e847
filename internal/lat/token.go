// Package lat implements the Line Access Token subsystem (spec §4.7): a
// capability-based gate proving an agent read exact file content before
// mutating it, plus the path-alias graph that keeps previously-issued
// tokens valid across renames performed outside an active batch.
package lat

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

// tokenPrefix marks an encoded LAT string so adapters can distinguish it
// from other opaque strings in tool arguments at a glance.
const tokenPrefix = "LAT:"

// maxEncodedTokenLength bounds the encoded token size (spec: opaque string,
// kept well under typical argument-size limits).
const maxEncodedTokenLength = 512

// boundFields are the fields HMAC-bound into a token (spec §3).
type boundFields struct {
	PathHash   [32]byte
	StartLine  uint32
	EndLine    uint32
	CRC        uint32
	TotalLines uint32
	IssuedAt   int64 // UnixNano
	Nonce      [16]byte
}

const boundFieldsSize = 32 + 4 + 4 + 4 + 4 + 8 + 16

func (f boundFields) marshal() []byte {
	buf := make([]byte, boundFieldsSize)
	off := 0
	copy(buf[off:], f.PathHash[:])
	off += 32
	binary.BigEndian.PutUint32(buf[off:], f.StartLine)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], f.EndLine)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], f.CRC)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], f.TotalLines)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], uint64(f.IssuedAt))
	off += 8
	copy(buf[off:], f.Nonce[:])
	return buf
}

func unmarshalBoundFields(buf []byte) (boundFields, bool) {
	if len(buf) != boundFieldsSize {
		return boundFields{}, false
	}
	var f boundFields
	off := 0
	copy(f.PathHash[:], buf[off:off+32])
	off += 32
	f.StartLine = binary.BigEndian.Uint32(buf[off:])
	off += 4
	f.EndLine = binary.BigEndian.Uint32(buf[off:])
	off += 4
	f.CRC = binary.BigEndian.Uint32(buf[off:])
	off += 4
	f.TotalLines = binary.BigEndian.Uint32(buf[off:])
	off += 4
	f.IssuedAt = int64(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	copy(f.Nonce[:], buf[off:off+16])
	return f, true
}

func pathHash(path string) [32]byte {
	return sha256.Sum256([]byte(path))
}

func encodeToken(secret []byte, f boundFields) string {
	body := f.marshal()
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	sig := mac.Sum(nil)
	raw := append(body, sig...)
	return tokenPrefix + base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(raw)
}

func decodeToken(secret []byte, encoded string) (boundFields, error) {
	if len(encoded) == 0 {
		return boundFields{}, ntserr.New(ntserr.KindTokenRequired, "token required")
	}
	if len(encoded) > maxEncodedTokenLength || len(encoded) <= len(tokenPrefix) || encoded[:len(tokenPrefix)] != tokenPrefix {
		return boundFields{}, ntserr.New(ntserr.KindTokenMalformed, "token is not a recognized LAT string")
	}
	raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(encoded[len(tokenPrefix):])
	if err != nil {
		return boundFields{}, ntserr.Wrap(ntserr.KindTokenMalformed, err, "decoding token")
	}
	if len(raw) != boundFieldsSize+sha256.Size {
		return boundFields{}, ntserr.New(ntserr.KindTokenMalformed, "token has the wrong length")
	}
	body, sig := raw[:boundFieldsSize], raw[boundFieldsSize:]
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)
	if !hmac.Equal(expected, sig) {
		return boundFields{}, ntserr.New(ntserr.KindTokenMalformed, "token signature mismatch")
	}
	f, ok := unmarshalBoundFields(body)
	if !ok {
		return boundFields{}, ntserr.New(ntserr.KindTokenMalformed, "token body malformed")
	}
	return f, nil
}

// Token is the decoded, validated form of an encoded LAT, returned to
// callers that need its bound range after a successful Validate.
type Token struct {
	Encoded    string
	StartLine  int
	EndLine    int
	CRC        uint32
	TotalLines int
	IssuedAt   time.Time
}

func newBoundToken(secret []byte, path string, start, end int, crc uint32, totalLines int) (string, Token) {
	var nonce [16]byte
	copy(nonce[:], uuid.New()[:])
	f := boundFields{
		PathHash:   pathHash(path),
		StartLine:  uint32(start),
		EndLine:    uint32(end),
		CRC:        crc,
		TotalLines: uint32(totalLines),
		IssuedAt:   time.Now().UnixNano(),
		Nonce:      nonce,
	}
	encoded := encodeToken(secret, f)
	return encoded, Token{
		Encoded:    encoded,
		StartLine:  start,
		EndLine:    end,
		CRC:        crc,
		TotalLines: totalLines,
		IssuedAt:   time.Unix(0, f.IssuedAt),
	}
}

// record is the TokenSet's internal bookkeeping entry: the decoded bound
// fields plus the path it was issued against, so lifecycle operations
// (moveTokens, deleteTokens, write-invalidation) can find it by path
// without re-deriving a hash-to-path reverse mapping.
type record struct {
	encoded string
	path    string
	fields  boundFields
}

// TokenSet is a task-scoped collection of issued LATs plus the alias graph
// that keeps them valid across renames (spec §3 "LAT set and alias graph
// are task-scoped").
type TokenSet struct {
	secret []byte
	mu     sync.Mutex
	byPath map[string][]*record
	alias  *AliasGraph
}

// NewTokenSet creates an empty, task-scoped token set signed with secret
// (the process-wide HMAC secret, regenerated on every restart per spec §5).
func NewTokenSet(secret []byte) *TokenSet {
	return &TokenSet{
		secret: secret,
		byPath: make(map[string][]*record),
		alias:  NewAliasGraph(),
	}
}

// Alias exposes the token set's alias graph for direct registration by
// move operations that don't go through MoveTokens (e.g. a refactor move
// that relocates a symbol rather than a whole file).
func (ts *TokenSet) Alias() *AliasGraph { return ts.alias }

// RegisterRead issues a token bound to (pathHash, [startLine,endLine],
// CRC32C(rangeText), totalLines, now, HMAC) (spec §4.7).
func (ts *TokenSet) RegisterRead(path string, startLine, endLine int, rangeCRC uint32, totalLines int) string {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	encoded, _ := newBoundToken(ts.secret, path, startLine, endLine, rangeCRC, totalLines)
	fields, _ := decodeToken(ts.secret, encoded)
	ts.byPath[path] = append(ts.byPath[path], &record{encoded: encoded, path: path, fields: fields})
	return encoded
}

// RegisterFullAccess is sugar for RegisterRead covering [1, totalLines]
// (spec §4.7).
func (ts *TokenSet) RegisterFullAccess(path string, fullTextCRC uint32, totalLines int) string {
	return ts.RegisterRead(path, 1, totalLines, fullTextCRC, totalLines)
}

// Validate checks an encoded token against the intended path and edit
// range (spec §4.7): HMAC integrity, path match (direct or via the alias
// graph), range containment, that this set still holds the token (it was
// issued here and not since invalidated, deleted or reset), then invokes
// currentRangeCRC — lazily, only once the cheaper checks pass — to confirm
// the bound CRC still matches the file. Returns the decoded Token on
// success.
func (ts *TokenSet) Validate(encoded, intendedPath string, editStart, editEnd int, currentRangeCRC func(start, end int) (uint32, error)) (Token, error) {
	fields, err := decodeToken(ts.secret, encoded)
	if err != nil {
		return Token{}, err
	}

	if !ts.pathMatches(fields.PathHash, intendedPath) {
		return Token{}, ntserr.New(ntserr.KindTokenPathMismatch, "token was not issued for %s", intendedPath)
	}

	start, end := int(fields.StartLine), int(fields.EndLine)
	if editStart < start || editEnd > end {
		return Token{}, ntserr.New(ntserr.KindTokenRangeMismatch, "edit range [%d,%d] exceeds token range [%d,%d]", editStart, editEnd, start, end)
	}

	ts.mu.Lock()
	live := false
	for _, recs := range ts.byPath {
		for _, r := range recs {
			if r.encoded == encoded {
				live = true
			}
		}
	}
	ts.mu.Unlock()
	if !live {
		return Token{}, ntserr.New(ntserr.KindTokenStale, "token %s is no longer held by this task", encoded)
	}

	curCRC, err := currentRangeCRC(start, end)
	if err != nil {
		return Token{}, err
	}
	if curCRC != fields.CRC {
		return Token{}, ntserr.New(ntserr.KindTokenStale, "file changed since token %s was issued", encoded)
	}

	return Token{
		Encoded:    encoded,
		StartLine:  start,
		EndLine:    end,
		CRC:        fields.CRC,
		TotalLines: int(fields.TotalLines),
		IssuedAt:   time.Unix(0, fields.IssuedAt),
	}, nil
}

// Describe decodes encoded and verifies its HMAC without checking it
// against any particular path or current file state, for diagnostics (spec
// SPEC_FULL.md §C "describeToken": explain why a token went stale without
// itself requiring the path it names).
func (ts *TokenSet) Describe(encoded string) (Token, error) {
	fields, err := decodeToken(ts.secret, encoded)
	if err != nil {
		return Token{}, err
	}
	return Token{
		Encoded:    encoded,
		StartLine:  int(fields.StartLine),
		EndLine:    int(fields.EndLine),
		CRC:        fields.CRC,
		TotalLines: int(fields.TotalLines),
		IssuedAt:   time.Unix(0, fields.IssuedAt),
	}, nil
}

func (ts *TokenSet) pathMatches(hash [32]byte, intendedPath string) bool {
	if bytes.Equal(hash[:], func() []byte { h := pathHash(intendedPath); return h[:] }()) {
		return true
	}
	for _, candidate := range ts.alias.PreviousPaths(intendedPath) {
		h := pathHash(candidate)
		if bytes.Equal(hash[:], h[:]) {
			return true
		}
	}
	return false
}

// InvalidateIntersecting removes every token for path whose range
// intersects [start,end], e.g. after a successful write (spec §4.7
// lifecycle events).
func (ts *TokenSet) InvalidateIntersecting(path string, start, end int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	recs := ts.byPath[path]
	if len(recs) == 0 {
		return
	}
	kept := recs[:0]
	for _, r := range recs {
		rs, re := int(r.fields.StartLine), int(r.fields.EndLine)
		if rs <= end && start <= re {
			continue // intersects: drop
		}
		kept = append(kept, r)
	}
	ts.byPath[path] = kept
}

// MoveTokens transfers all tokens for oldPath to newPath and records an
// alias edge oldPath -> newPath (spec §4.7).
func (ts *TokenSet) MoveTokens(oldPath, newPath string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.alias.RegisterAlias(oldPath, newPath)
	if recs, ok := ts.byPath[oldPath]; ok {
		for _, r := range recs {
			r.path = newPath
		}
		ts.byPath[newPath] = append(ts.byPath[newPath], recs...)
		delete(ts.byPath, oldPath)
	}
}

// DeleteTokens discards all tokens for path (invoked on file deletion,
// spec §4.7).
func (ts *TokenSet) DeleteTokens(path string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.byPath, path)
}

// Reset clears all tokens and alias edges (test and task-teardown hook,
// spec §4.7).
func (ts *TokenSet) Reset() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.byPath = make(map[string][]*record)
	ts.alias.Reset()
}
