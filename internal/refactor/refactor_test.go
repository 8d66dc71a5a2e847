package refactor

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/nefrols/nts-mcp-fs/internal/journal"
	"github.com/nefrols/nts-mcp-fs/internal/lat"
	"github.com/nefrols/nts-mcp-fs/internal/symbols"
	"github.com/nefrols/nts-mcp-fs/internal/txn"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	store, err := journal.Open(":memory:")
	if err != nil {
		t.Fatalf("journal.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	tokens := lat.NewTokenSet([]byte("secret"))
	mgr := txn.NewManager(fs, store, tokens, "/proj", 0)
	sym := symbols.NewEngine(fs, 0)
	return NewDispatcher(fs, mgr, sym, "/proj"), fs
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	return b
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	return string(b)
}

func TestRenameFileScope(t *testing.T) {
	d, fs := newTestDispatcher(t)
	writeFile(t, fs, "/proj/a.go", "package sample\n\nfunc Helper() int {\n\treturn 1\n}\n\nfunc Caller() int {\n\treturn Helper() + Helper()\n}\n")

	res, err := d.Execute("rename", mustJSON(t, renameParams{
		Path: "/proj/a.go", Symbol: "Helper", NewName: "Assist", Scope: "file",
	}))
	if err != nil {
		t.Fatalf("Execute(rename) error = %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("Execute(rename) status = %q, want ok", res.Status)
	}

	after := readFile(t, fs, "/proj/a.go")
	if strings.Contains(after, "Helper") {
		t.Errorf("rename left old name behind:\n%s", after)
	}
	if !strings.Contains(after, "func Assist()") || strings.Count(after, "Assist()") < 3 {
		t.Errorf("rename did not replace all occurrences:\n%s", after)
	}
}

func TestRenameProjectScopeAppliesTextOnlyMatches(t *testing.T) {
	d, fs := newTestDispatcher(t)
	writeFile(t, fs, "/proj/service.go", "package sample\n\nfunc ProcessData(s string) string {\n\treturn s\n}\n")
	writeFile(t, fs, "/proj/client.go", "package sample\n\nfunc UseIt() {\n\tProcessData(\"hello\")\n\tProcessData(\"world\")\n}\n")

	res, err := d.Execute("rename", mustJSON(t, renameParams{
		Path: "/proj/service.go", Symbol: "ProcessData", NewName: "Handle", Scope: "project",
	}))
	if err != nil {
		t.Fatalf("Execute(rename) error = %v", err)
	}
	if len(res.Changes) < 2 {
		t.Fatalf("Execute(rename project scope) touched %d files, want >= 2", len(res.Changes))
	}
	client := readFile(t, fs, "/proj/client.go")
	if strings.Count(client, "Handle(") != 2 {
		t.Errorf("client.go = %q, want both call sites renamed", client)
	}
}

func TestPreviewDoesNotMutateDisk(t *testing.T) {
	d, fs := newTestDispatcher(t)
	original := "package sample\n\nfunc Foo() {}\n"
	writeFile(t, fs, "/proj/a.go", original)

	_, err := d.Preview("rename", mustJSON(t, renameParams{Path: "/proj/a.go", Symbol: "Foo", NewName: "Bar", Scope: "file"}))
	if err != nil {
		t.Fatalf("Preview(rename) error = %v", err)
	}
	if got := readFile(t, fs, "/proj/a.go"); got != original {
		t.Errorf("Preview mutated disk: got %q, want unchanged %q", got, original)
	}
}

func TestGenerateAccessors(t *testing.T) {
	d, fs := newTestDispatcher(t)
	writeFile(t, fs, "/proj/a.go", "package sample\n\ntype Widget struct {\n\tName string\n}\n")

	res, err := d.Execute("generate", mustJSON(t, generateParams{
		Path: "/proj/a.go", Symbol: "Widget", What: "accessors",
	}))
	if err != nil {
		t.Fatalf("Execute(generate) error = %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("Execute(generate) status = %q", res.Status)
	}
	after := readFile(t, fs, "/proj/a.go")
	if !strings.Contains(after, "func (w *Widget) GetName()") || !strings.Contains(after, "func (w *Widget) SetName(") {
		t.Errorf("generate accessors missing from:\n%s", after)
	}
}

func TestDeleteRejectsWhenReferencesExistAndPolicyIsError(t *testing.T) {
	d, fs := newTestDispatcher(t)
	writeFile(t, fs, "/proj/a.go", "package sample\n\nfunc Helper() int {\n\treturn 1\n}\n")
	writeFile(t, fs, "/proj/b.go", "package sample\n\nfunc Use() int {\n\treturn Helper()\n}\n")

	_, err := d.Execute("delete", mustJSON(t, deleteParams{Path: "/proj/a.go", Symbol: "Helper", HandleReferences: "error"}))
	if err == nil {
		t.Fatal("Execute(delete) error = nil, want rejection because Helper is still referenced")
	}
}

func TestDeleteCommentsReferencesWhenRequested(t *testing.T) {
	d, fs := newTestDispatcher(t)
	writeFile(t, fs, "/proj/a.go", "package sample\n\nfunc Helper() int {\n\treturn 1\n}\n")
	writeFile(t, fs, "/proj/b.go", "package sample\n\nfunc Use() int {\n\treturn Helper()\n}\n")

	res, err := d.Execute("delete", mustJSON(t, deleteParams{Path: "/proj/a.go", Symbol: "Helper", HandleReferences: "comment"}))
	if err != nil {
		t.Fatalf("Execute(delete) error = %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("Execute(delete) status = %q", res.Status)
	}
	a := readFile(t, fs, "/proj/a.go")
	if strings.Contains(a, "func Helper") {
		t.Errorf("a.go still declares Helper:\n%s", a)
	}
	b := readFile(t, fs, "/proj/b.go")
	if !strings.Contains(b, "// ") || !strings.Contains(b, "Helper()") {
		t.Errorf("b.go reference was not commented out:\n%s", b)
	}
}

func TestWrapEnclosesRange(t *testing.T) {
	d, fs := newTestDispatcher(t)
	writeFile(t, fs, "/proj/a.go", "package sample\n\nfunc Risky() {\n\tdoWork()\n}\n")

	res, err := d.Execute("wrap", mustJSON(t, wrapParams{Path: "/proj/a.go", StartLine: 4, EndLine: 4, Wrapper: "try_catch"}))
	if err != nil {
		t.Fatalf("Execute(wrap) error = %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("Execute(wrap) status = %q", res.Status)
	}
	after := readFile(t, fs, "/proj/a.go")
	if !strings.Contains(after, "try {") || !strings.Contains(after, "catch") {
		t.Errorf("wrap did not enclose range:\n%s", after)
	}
}

func TestExtractMethodReplacesRangeWithCall(t *testing.T) {
	d, fs := newTestDispatcher(t)
	writeFile(t, fs, "/proj/a.go", "package sample\n\nfunc Caller() {\n\tx := 1\n\ty := x + 2\n\tprintValue(y)\n}\n")

	res, err := d.Execute("extract_method", mustJSON(t, extractMethodParams{
		Path: "/proj/a.go", StartLine: 4, EndLine: 5, MethodName: "computeY",
	}))
	if err != nil {
		t.Fatalf("Execute(extract_method) error = %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("Execute(extract_method) status = %q", res.Status)
	}
	after := readFile(t, fs, "/proj/a.go")
	if !strings.Contains(after, "computeY(") {
		t.Errorf("extract_method did not insert a call:\n%s", after)
	}
	if !strings.Contains(after, "func computeY") {
		t.Errorf("extract_method did not insert a new function:\n%s", after)
	}
}

func TestInlineRejectsNonTrivialBody(t *testing.T) {
	d, fs := newTestDispatcher(t)
	writeFile(t, fs, "/proj/a.go", "package sample\n\nfunc Complex() int {\n\tx := 1\n\tx++\n\treturn x\n}\n")

	_, err := d.Execute("inline", mustJSON(t, inlineParams{Path: "/proj/a.go", Symbol: "Complex"}))
	if err == nil {
		t.Fatal("Execute(inline) error = nil, want rejection for a multi-statement body")
	}
}

func TestInlineReplacesConstantReferences(t *testing.T) {
	d, fs := newTestDispatcher(t)
	writeFile(t, fs, "/proj/a.go", "package sample\n\nconst MaxRetries = 3\n\nfunc Use() int {\n\treturn MaxRetries\n}\n")

	res, err := d.Execute("inline", mustJSON(t, inlineParams{Path: "/proj/a.go", Symbol: "MaxRetries"}))
	if err != nil {
		t.Fatalf("Execute(inline) error = %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("Execute(inline) status = %q", res.Status)
	}
	after := readFile(t, fs, "/proj/a.go")
	if strings.Contains(after, "MaxRetries") {
		t.Errorf("inline left the declaration or a reference behind:\n%s", after)
	}
	if !strings.Contains(after, "return 3") {
		t.Errorf("inline did not substitute the initializer:\n%s", after)
	}
}

func TestChangeSignatureAddsDefaultedParameter(t *testing.T) {
	d, fs := newTestDispatcher(t)
	writeFile(t, fs, "/proj/service.go", "package sample\n\nfunc Run(task string) {\n\tdoRun(task)\n}\n")
	writeFile(t, fs, "/proj/client.go", "package sample\n\nfunc UseIt() {\n\tRun(\"task1\")\n}\n")

	res, err := d.Execute("change_signature", mustJSON(t, changeSignatureParams{
		Path: "/proj/service.go", Symbol: "Run", NewName: "Execute",
		Parameters: []paramEntry{
			{Name: "task", Type: "string"},
			{Name: "priority", Type: "int", DefaultValue: "0"},
		},
	}))
	if err != nil {
		t.Fatalf("Execute(change_signature) error = %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("Execute(change_signature) status = %q", res.Status)
	}
	client := readFile(t, fs, "/proj/client.go")
	if !strings.Contains(client, "Execute(\"task1\", 0)") {
		t.Errorf("client.go = %q, want call site updated with default", client)
	}
}

func TestChangeSignatureRejectsMissingRequiredParameter(t *testing.T) {
	d, fs := newTestDispatcher(t)
	writeFile(t, fs, "/proj/service.go", "package sample\n\nfunc Run(task string) {\n\tdoRun(task)\n}\n")
	writeFile(t, fs, "/proj/client.go", "package sample\n\nfunc UseIt() {\n\tRun(\"task1\")\n}\n")

	_, err := d.Execute("change_signature", mustJSON(t, changeSignatureParams{
		Path: "/proj/service.go", Symbol: "Run",
		Parameters: []paramEntry{
			{Name: "task", Type: "string"},
			{Name: "priority", Type: "int"},
		},
	}))
	if err == nil {
		t.Fatal("Execute(change_signature) error = nil, want SignatureConflict")
	}
}

// TestChangeSignatureJavaUsesTypeFirstOrdering covers a language the symbol
// engine only sees through the generic fallback extractor: the declaration
// must gain the new parameter in Java's type-before-name order, not Go's.
func TestChangeSignatureJavaUsesTypeFirstOrdering(t *testing.T) {
	d, fs := newTestDispatcher(t)
	writeFile(t, fs, "/proj/IService.java", "public interface IService {\n    void run(String task);\n}\n")
	writeFile(t, fs, "/proj/Client.java", "public class Client {\n    void use() {\n        service.run(\"task1\");\n    }\n}\n")

	res, err := d.Execute("change_signature", mustJSON(t, changeSignatureParams{
		Path: "/proj/IService.java", Symbol: "run", NewName: "execute",
		Parameters: []paramEntry{
			{Name: "task", Type: "String"},
			{Name: "priority", Type: "int", DefaultValue: "0"},
		},
	}))
	if err != nil {
		t.Fatalf("Execute(change_signature) error = %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("Execute(change_signature) status = %q", res.Status)
	}

	decl := readFile(t, fs, "/proj/IService.java")
	if !strings.Contains(decl, "void execute(String task, int priority);") {
		t.Errorf("IService.java = %q, want type-first declaration order", decl)
	}

	client := readFile(t, fs, "/proj/Client.java")
	if !strings.Contains(client, "execute(\"task1\", 0)") {
		t.Errorf("Client.java = %q, want call site updated with default", client)
	}
}

func TestMoveRelocatesDeclaration(t *testing.T) {
	d, fs := newTestDispatcher(t)
	writeFile(t, fs, "/proj/source.go", "package sample\n\nfunc Helper() int {\n\treturn 1\n}\n")

	res, err := d.Execute("move", mustJSON(t, moveParams{Path: "/proj/source.go", TargetPath: "/proj/sub/target.go", Symbol: "Helper"}))
	if err != nil {
		t.Fatalf("Execute(move) error = %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("Execute(move) status = %q", res.Status)
	}
	source := readFile(t, fs, "/proj/source.go")
	if strings.Contains(source, "func Helper") {
		t.Errorf("source.go still declares Helper:\n%s", source)
	}
	target := readFile(t, fs, "/proj/sub/target.go")
	if !strings.Contains(target, "func Helper") {
		t.Errorf("target.go missing Helper:\n%s", target)
	}
}

func TestBatchRollsBackWholeSequenceOnFailure(t *testing.T) {
	d, fs := newTestDispatcher(t)
	writeFile(t, fs, "/proj/a.go", "package sample\n\nfunc Foo() {}\n")

	res, err := d.Execute("batch", mustJSON(t, batchParams{
		Operations: []batchStep{
			{Operation: "rename", Params: mustJSON(t, renameParams{Path: "/proj/a.go", Symbol: "Foo", NewName: "Bar", Scope: "file"})},
			{Operation: "rename", Params: mustJSON(t, renameParams{Path: "/proj/a.go", Symbol: "DoesNotExist", NewName: "Whatever", Scope: "file"})},
		},
	}))
	if err != nil {
		t.Fatalf("Execute(batch) error = %v", err)
	}
	if res.Status != StatusPartial {
		t.Fatalf("Execute(batch) status = %q, want partial", res.Status)
	}
	after := readFile(t, fs, "/proj/a.go")
	if !strings.Contains(after, "func Foo()") {
		t.Errorf("batch failure was not rolled back, file now:\n%s", after)
	}
}

func TestBatchCommitsWholeSequenceOnSuccess(t *testing.T) {
	d, fs := newTestDispatcher(t)
	writeFile(t, fs, "/proj/a.go", "package sample\n\ntype Widget struct {\n\tName string\n}\n\nfunc Foo() {}\n")

	res, err := d.Execute("batch", mustJSON(t, batchParams{
		Operations: []batchStep{
			{Operation: "rename", Params: mustJSON(t, renameParams{Path: "/proj/a.go", Symbol: "Foo", NewName: "Bar", Scope: "file"})},
			{Operation: "generate", Params: mustJSON(t, generateParams{Path: "/proj/a.go", Symbol: "Widget", What: "getter"})},
		},
	}))
	if err != nil {
		t.Fatalf("Execute(batch) error = %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("Execute(batch) status = %q, want ok", res.Status)
	}
	after := readFile(t, fs, "/proj/a.go")
	if !strings.Contains(after, "func Bar()") {
		t.Errorf("batch step 1 (rename) not applied:\n%s", after)
	}
	if !strings.Contains(after, "func (w *Widget) GetName()") {
		t.Errorf("batch step 2 (generate) not applied:\n%s", after)
	}
}

func TestBatchRejectsAllUnknownStepsBeforeRunningAny(t *testing.T) {
	d, fs := newTestDispatcher(t)
	writeFile(t, fs, "/proj/a.go", "package sample\n\nfunc Foo() {}\n")

	_, err := d.Execute("batch", mustJSON(t, batchParams{
		Operations: []batchStep{
			{Operation: "not_a_real_op", Params: mustJSON(t, renameParams{})},
			{Operation: "also_fake", Params: mustJSON(t, renameParams{})},
			{Operation: "rename", Params: mustJSON(t, renameParams{Path: "/proj/a.go", Symbol: "Foo", NewName: "Bar", Scope: "file"})},
		},
	}))
	if err == nil {
		t.Fatal("Execute(batch) with unknown steps error = nil, want error")
	}
	if !strings.Contains(err.Error(), "not_a_real_op") || !strings.Contains(err.Error(), "also_fake") {
		t.Errorf("Execute(batch) error = %v, want both unknown step names named", err)
	}
	// Since validation happens before Begin, the valid step never ran either.
	after := readFile(t, fs, "/proj/a.go")
	if !strings.Contains(after, "func Foo()") {
		t.Errorf("batch ran a step despite failing preflight validation, file now:\n%s", after)
	}
}

func TestOperationsListIsSorted(t *testing.T) {
	ops := Operations()
	for i := 1; i < len(ops); i++ {
		if ops[i-1] > ops[i] {
			t.Fatalf("Operations() not sorted: %v", ops)
		}
	}
	found := make(map[string]bool)
	for _, name := range ops {
		found[name] = true
	}
	for _, expect := range []string{"rename", "generate", "delete", "wrap", "extract_method", "inline", "change_signature", "move"} {
		if !found[expect] {
			t.Errorf("Operations() missing %q, got %v", expect, ops)
		}
	}
}
