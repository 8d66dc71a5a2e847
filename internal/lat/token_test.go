package lat

import (
	"testing"

	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

func fixedCRC(crc uint32) func(start, end int) (uint32, error) {
	return func(start, end int) (uint32, error) { return crc, nil }
}

func TestRegisterReadAndValidate(t *testing.T) {
	ts := NewTokenSet([]byte("test-secret"))

	token := ts.RegisterRead("/proj/a.go", 5, 10, 0xdeadbeef, 20)

	got, err := ts.Validate(token, "/proj/a.go", 6, 9, fixedCRC(0xdeadbeef))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.StartLine != 5 || got.EndLine != 10 {
		t.Errorf("Validate() range = [%d,%d], want [5,10]", got.StartLine, got.EndLine)
	}
}

func TestValidateRejectsWrongPath(t *testing.T) {
	ts := NewTokenSet([]byte("test-secret"))
	token := ts.RegisterRead("/proj/a.go", 1, 5, 0x1, 5)

	_, err := ts.Validate(token, "/proj/b.go", 1, 2, fixedCRC(0x1))
	if !ntserr.Is(err, ntserr.KindTokenPathMismatch) {
		t.Fatalf("Validate() error = %v, want KindTokenPathMismatch", err)
	}
}

func TestValidateResolvesAliasedPath(t *testing.T) {
	ts := NewTokenSet([]byte("test-secret"))
	token := ts.RegisterRead("/proj/old.go", 1, 5, 0x1, 5)

	ts.MoveTokens("/proj/old.go", "/proj/new.go")

	got, err := ts.Validate(token, "/proj/new.go", 1, 2, fixedCRC(0x1))
	if err != nil {
		t.Fatalf("Validate() after move error = %v", err)
	}
	if got.StartLine != 1 {
		t.Errorf("Validate() after move range start = %d, want 1", got.StartLine)
	}
}

func TestValidateRejectsRangeOutsideToken(t *testing.T) {
	ts := NewTokenSet([]byte("test-secret"))
	token := ts.RegisterRead("/proj/a.go", 5, 10, 0x1, 20)

	_, err := ts.Validate(token, "/proj/a.go", 4, 9, fixedCRC(0x1))
	if !ntserr.Is(err, ntserr.KindTokenRangeMismatch) {
		t.Fatalf("Validate() error = %v, want KindTokenRangeMismatch", err)
	}
}

func TestValidateRejectsStaleCRC(t *testing.T) {
	ts := NewTokenSet([]byte("test-secret"))
	token := ts.RegisterRead("/proj/a.go", 1, 5, 0x1, 5)

	_, err := ts.Validate(token, "/proj/a.go", 1, 5, fixedCRC(0x2))
	if !ntserr.Is(err, ntserr.KindTokenStale) {
		t.Fatalf("Validate() error = %v, want KindTokenStale", err)
	}
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	ts := NewTokenSet([]byte("test-secret"))
	token := ts.RegisterRead("/proj/a.go", 1, 5, 0x1, 5)

	tampered := token[:len(token)-2] + "zz"
	_, err := ts.Validate(tampered, "/proj/a.go", 1, 5, fixedCRC(0x1))
	if !ntserr.Is(err, ntserr.KindTokenMalformed) {
		t.Fatalf("Validate(tampered) error = %v, want KindTokenMalformed", err)
	}
}

func TestValidateRejectsEmptyToken(t *testing.T) {
	ts := NewTokenSet([]byte("test-secret"))
	_, err := ts.Validate("", "/proj/a.go", 1, 5, fixedCRC(0x1))
	if !ntserr.Is(err, ntserr.KindTokenRequired) {
		t.Fatalf("Validate(empty) error = %v, want KindTokenRequired", err)
	}
}

func TestInvalidateIntersectingRemovesOverlappingTokens(t *testing.T) {
	ts := NewTokenSet([]byte("test-secret"))
	tok1 := ts.RegisterRead("/proj/a.go", 1, 10, 0x1, 20)
	tok2 := ts.RegisterRead("/proj/a.go", 15, 20, 0x2, 20)

	ts.InvalidateIntersecting("/proj/a.go", 5, 8)

	if _, err := ts.Validate(tok1, "/proj/a.go", 1, 2, fixedCRC(0x1)); err == nil {
		t.Errorf("Validate(tok1) after invalidation = nil error, want error")
	}
	if _, err := ts.Validate(tok2, "/proj/a.go", 16, 18, fixedCRC(0x2)); err != nil {
		t.Errorf("Validate(tok2) after unrelated invalidation error = %v, want nil", err)
	}
}

func TestResetClearsTokensAndAliases(t *testing.T) {
	ts := NewTokenSet([]byte("test-secret"))
	token := ts.RegisterRead("/proj/a.go", 1, 5, 0x1, 5)
	ts.MoveTokens("/proj/a.go", "/proj/b.go")

	ts.Reset()

	if _, err := ts.Validate(token, "/proj/b.go", 1, 2, fixedCRC(0x1)); err == nil {
		t.Errorf("Validate() after Reset = nil error, want error (alias should be cleared)")
	}
}

func TestDeleteTokensRemovesAllForPath(t *testing.T) {
	ts := NewTokenSet([]byte("test-secret"))
	ts.RegisterRead("/proj/a.go", 1, 5, 0x1, 5)
	ts.DeleteTokens("/proj/a.go")

	if len(ts.byPath["/proj/a.go"]) != 0 {
		t.Errorf("byPath[/proj/a.go] after delete = %d entries, want 0", len(ts.byPath["/proj/a.go"]))
	}
}
