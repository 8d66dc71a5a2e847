package symbols

import (
	"testing"

	"github.com/spf13/afero"
)

const goSample = `package sample

type Greeter struct {
	Name string
}

func (g *Greeter) Greet() string {
	return "hello " + g.Name
}

func NewGreeter(name string) *Greeter {
	return &Greeter{Name: name}
}
`

func newTestEngine(t *testing.T) (*Engine, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return NewEngine(fs, 0), fs
}

func TestListSymbolsGo(t *testing.T) {
	eng, fs := newTestEngine(t)
	if err := afero.WriteFile(fs, "/proj/greeter.go", []byte(goSample), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	syms, err := eng.ListSymbols("/proj/greeter.go")
	if err != nil {
		t.Fatalf("ListSymbols() error = %v", err)
	}

	var names []string
	for _, s := range syms {
		names = append(names, s.Name)
	}
	want := map[string]bool{"Greeter": true, "Greet": true, "NewGreeter": true, "Name": true}
	for n := range want {
		found := false
		for _, got := range names {
			if got == n {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("ListSymbols() missing %q, got %v", n, names)
		}
	}
}

func TestSymbolsAtPoint(t *testing.T) {
	eng, fs := newTestEngine(t)
	if err := afero.WriteFile(fs, "/proj/greeter.go", []byte(goSample), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	hits, err := eng.SymbolsAt("/proj/greeter.go", 8, 5)
	if err != nil {
		t.Fatalf("SymbolsAt() error = %v", err)
	}
	found := false
	for _, s := range hits {
		if s.Name == "Greet" {
			found = true
		}
	}
	if !found {
		t.Errorf("SymbolsAt(8,5) = %v, want to include Greet", hits)
	}
}

func TestResolveDefinitionPicksNarrowestSpan(t *testing.T) {
	eng, fs := newTestEngine(t)
	if err := afero.WriteFile(fs, "/proj/greeter.go", []byte(goSample), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	sym, err := eng.ResolveDefinition("/proj/greeter.go", 8, 5)
	if err != nil {
		t.Fatalf("ResolveDefinition() error = %v", err)
	}
	if sym.Name != "Greet" {
		t.Errorf("ResolveDefinition() = %q, want Greet", sym.Name)
	}
}

func TestFindSymbolByNameAmbiguous(t *testing.T) {
	eng, fs := newTestEngine(t)
	src := `package sample

func Foo() {}
func Foo2() {}
`
	if err := afero.WriteFile(fs, "/proj/a.go", []byte(src), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := eng.FindSymbolByName("/proj/a.go", "Missing"); err == nil {
		t.Errorf("FindSymbolByName(Missing) = nil error, want SymbolNotFound")
	}
}

func TestParseCacheInvalidation(t *testing.T) {
	eng, fs := newTestEngine(t)
	path := "/proj/a.go"
	if err := afero.WriteFile(fs, path, []byte("package sample\n\nfunc A() {}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	first, err := eng.ListSymbols(path)
	if err != nil {
		t.Fatalf("ListSymbols() error = %v", err)
	}
	if len(first) != 1 || first[0].Name != "A" {
		t.Fatalf("ListSymbols() = %v, want [A]", first)
	}

	if err := afero.WriteFile(fs, path, []byte("package sample\n\nfunc B() {}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	eng.Invalidate(path)

	second, err := eng.ListSymbols(path)
	if err != nil {
		t.Fatalf("ListSymbols() after invalidate error = %v", err)
	}
	if len(second) != 1 || second[0].Name != "B" {
		t.Fatalf("ListSymbols() after invalidate = %v, want [B]", second)
	}
}

func TestListSymbolsVirtualBypassesFilesystem(t *testing.T) {
	eng, _ := newTestEngine(t)
	syms, err := eng.ListSymbolsVirtual("/preview/a.go", []byte("package sample\n\nfunc Virtual() {}\n"))
	if err != nil {
		t.Fatalf("ListSymbolsVirtual() error = %v", err)
	}
	if len(syms) != 1 || syms[0].Name != "Virtual" {
		t.Fatalf("ListSymbolsVirtual() = %v, want [Virtual]", syms)
	}
}

func TestFindReferencesFileScope(t *testing.T) {
	eng, fs := newTestEngine(t)
	src := `package sample

func Helper() int {
	return 1
}

func Caller() int {
	return Helper() + Helper()
}
`
	if err := afero.WriteFile(fs, "/proj/a.go", []byte(src), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	refs, err := eng.FindReferences("/proj", "/proj/a.go", "Helper", ScopeFile, false)
	if err != nil {
		t.Fatalf("FindReferences() error = %v", err)
	}
	if len(refs) != 2 {
		t.Errorf("FindReferences(Helper, file scope, no def) = %d refs, want 2 (the two call sites)", len(refs))
	}
}

func TestFindReferencesProjectScope(t *testing.T) {
	eng, fs := newTestEngine(t)
	if err := afero.WriteFile(fs, "/proj/a.go", []byte("package sample\n\nfunc Shared() {}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := afero.WriteFile(fs, "/proj/sub/b.go", []byte("package sub\n\nfunc Use() { Shared() }\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	refs, err := eng.FindReferences("/proj", "/proj/a.go", "Shared", ScopeProject, true)
	if err != nil {
		t.Fatalf("FindReferences() error = %v", err)
	}
	if len(refs) < 2 {
		t.Errorf("FindReferences(Shared, project scope) = %d refs, want >= 2 (definition + use)", len(refs))
	}
}

func TestGenericExtractorFallback(t *testing.T) {
	eng, fs := newTestEngine(t)
	src := "public class Widget {\n    public void render() {}\n}\n"
	if err := afero.WriteFile(fs, "/proj/Widget.java", []byte(src), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	syms, err := eng.ListSymbols("/proj/Widget.java")
	if err != nil {
		t.Fatalf("ListSymbols() error = %v", err)
	}
	if len(syms) == 0 {
		t.Fatalf("ListSymbols() on .java fallback = 0 symbols, want at least Widget")
	}
	if syms[0].Name != "Widget" {
		t.Errorf("ListSymbols()[0].Name = %q, want Widget", syms[0].Name)
	}
}

func TestGenericExtractorFindsBareMethodDeclarations(t *testing.T) {
	eng, fs := newTestEngine(t)
	src := "public interface IService {\n    void run(String task);\n}\n"
	if err := afero.WriteFile(fs, "/proj/IService.java", []byte(src), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	sym, err := eng.FindSymbolByName("/proj/IService.java", "run")
	if err != nil {
		t.Fatalf("FindSymbolByName(run) error = %v", err)
	}
	if sym.Kind != KindMethod {
		t.Errorf("FindSymbolByName(run).Kind = %q, want %q", sym.Kind, KindMethod)
	}
	if sym.StartLine != 2 {
		t.Errorf("FindSymbolByName(run).StartLine = %d, want 2", sym.StartLine)
	}
}
