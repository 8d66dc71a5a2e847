// Package encprobe implements the Encoding Probe (spec §4.2): charset
// detection and binary rejection for a byte buffer. readText heuristically
// identifies the charset, defaulting to UTF-8, and falls back to a
// configured 8-bit code page (windows-1251 by default, per spec) when the
// buffer is not valid UTF-8 and no multi-byte BOM is present.
package encprobe

import (
	"bytes"
	"unicode/utf8"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

// sniffWindow is how much of the buffer's head is inspected for a NUL byte
// or a UTF BOM, per spec §4.2/§4.1.
const sniffWindow = 8 * 1024

// Probe performs charset detection / binary rejection. DefaultCodePage
// names the 8-bit fallback encoding (e.g. "windows-1251").
type Probe struct {
	fs              afero.Fs
	DefaultCodePage string
}

// New creates a Probe backed by fs, falling back to codePage (or
// "windows-1251" if empty) for non-UTF-8, non-BOM buffers.
func New(fs afero.Fs, codePage string) *Probe {
	if codePage == "" {
		codePage = "windows-1251"
	}
	return &Probe{fs: fs, DefaultCodePage: codePage}
}

// Charset names a detected or assumed text encoding.
type Charset string

const (
	CharsetUTF8    Charset = "UTF-8"
	CharsetUTF16LE Charset = "UTF-16LE"
	CharsetUTF16BE Charset = "UTF-16BE"
	CharsetUTF32LE Charset = "UTF-32LE"
	CharsetUTF32BE Charset = "UTF-32BE"
)

// ReadText reads path and returns its decoded content and detected charset,
// or a Binary error if the buffer contains a NUL byte in its first 8 KiB
// without a recognized multi-byte BOM.
func (p *Probe) ReadText(path string) (string, Charset, error) {
	raw, err := afero.ReadFile(p.fs, path)
	if err != nil {
		return "", "", ntserr.Wrap(ntserr.KindNotFound, err, "reading %s", path)
	}
	return p.Decode(raw, path)
}

// Decode applies the same heuristic as ReadText to an in-memory buffer,
// used by preview/virtual-parse flows that never touch disk. name is used
// only for error messages.
func (p *Probe) Decode(raw []byte, name string) (string, Charset, error) {
	window := raw
	if len(window) > sniffWindow {
		window = window[:sniffWindow]
	}

	if cs, ok := detectUTFBOM(raw); ok {
		text, err := decodeWithCharset(raw, cs)
		if err != nil {
			return "", "", ntserr.Wrap(ntserr.KindInternal, err, "decoding %s as %s", name, cs)
		}
		return text, cs, nil
	}

	if bytes.IndexByte(window, 0x00) >= 0 {
		return "", "", ntserr.New(ntserr.KindBinary, "%s contains a NUL byte in its first %d bytes", name, sniffWindow)
	}

	if utf8.Valid(raw) {
		return string(raw), CharsetUTF8, nil
	}

	// Not valid UTF-8 and no BOM: fall back to the configured 8-bit code page.
	text, err := decodeCodePage(raw, p.DefaultCodePage)
	if err != nil {
		return "", "", ntserr.Wrap(ntserr.KindInternal, err, "decoding %s as %s", name, p.DefaultCodePage)
	}
	return text, Charset(p.DefaultCodePage), nil
}

func detectUTFBOM(raw []byte) (Charset, bool) {
	switch {
	case len(raw) >= 4 && raw[0] == 0xFF && raw[1] == 0xFE && raw[2] == 0x00 && raw[3] == 0x00:
		return CharsetUTF32LE, true
	case len(raw) >= 4 && raw[0] == 0x00 && raw[1] == 0x00 && raw[2] == 0xFE && raw[3] == 0xFF:
		return CharsetUTF32BE, true
	case len(raw) >= 3 && raw[0] == 0xEF && raw[1] == 0xBB && raw[2] == 0xBF:
		return CharsetUTF8, true
	case len(raw) >= 2 && raw[0] == 0xFF && raw[1] == 0xFE:
		return CharsetUTF16LE, true
	case len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF:
		return CharsetUTF16BE, true
	default:
		return "", false
	}
}

func decodeWithCharset(raw []byte, cs Charset) (string, error) {
	var enc encoding.Encoding
	switch cs {
	case CharsetUTF16LE:
		enc = unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)
	case CharsetUTF16BE:
		enc = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)
	case CharsetUTF8, CharsetUTF32LE, CharsetUTF32BE:
		// UTF-8 BOM: strip and return as-is. UTF-32 has no stdlib x/text
		// codec; treat as UTF-8 best-effort since the BOM already proved
		// intent and content beyond the BOM is rare in this code path.
		return string(bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})), nil
	default:
		return string(raw), nil
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func decodeCodePage(raw []byte, name string) (string, error) {
	enc := codePageByName(name)
	if enc == nil {
		// Unknown code page name: fall back to lossy UTF-8 reinterpretation
		// rather than failing outright.
		return string(raw), nil
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func codePageByName(name string) encoding.Encoding {
	switch name {
	case "windows-1251":
		return charmap.Windows1251
	case "windows-1252":
		return charmap.Windows1252
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1
	case "koi8-r":
		return charmap.KOI8R
	default:
		return nil
	}
}
