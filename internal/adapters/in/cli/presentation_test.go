package cli

import (
	"bytes"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/berth/internal/adapters/dto"
)

var presentationHelperCalls = map[string]struct{}{
	"cliWriteLine":         {},
	"cliWritef":            {},
	"cliRenderTitle":       {},
	"cliRenderMuted":       {},
	"cliRenderMeta":        {},
	"cliRenderSuccess":     {},
	"cliRenderWarning":     {},
	"cliRenderError":       {},
	"cliRenderInfo":        {},
	"writeJSON":            {},
	"writeContainerDetail": {},
	"formatEvent":          {},
	"containerRows":        {},
}

// presentationSeamMu serializes tests that swap the cliWrite* seams.
var presentationSeamMu sync.Mutex

var presentationExpectations = []struct {
	file      string
	functions []string
}{
	{file: "containers.go", functions: []string{"newPsCmd", "newInspectCmd", "newCreateCmd", "newIntentCmd", "newRmCmd"}},
	{file: "events.go", functions: []string{"newEventsCmd"}},
	{file: "reconcile.go", functions: []string{"newReconcileCmd", "newStatusCmd", "newVersionCmd"}},
	{file: "targets.go", functions: []string{"newTargetsListCmd", "newTargetsAddCmd", "newTargetsRemoveCmd", "newTargetsUseCmd"}},
}

func TestPresentationHelpers(t *testing.T) {
	assert.NotEmpty(t, cliRenderTitle("Title"))
	assert.NotEmpty(t, cliRenderSuccess("ok"))
	assert.NotEmpty(t, cliRenderWarning("warn"))
	assert.NotEmpty(t, cliRenderError("bad"))
	assert.NotEmpty(t, cliRenderInfo("info"))
	assert.Contains(t, cliRenderMeta("ID:", "c-1"), "c-1")
}

func TestCliAgo(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	orig := cliNow
	cliNow = func() time.Time { return now }
	t.Cleanup(func() { cliNow = orig })

	assert.Equal(t, "-", cliAgo(time.Time{}))
	assert.Equal(t, "just now", cliAgo(now))
	assert.Equal(t, "5 minutes ago", cliAgo(now.Add(-5*time.Minute)))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "c-1", shortID("c-1"))
	assert.Equal(t, "0123456789ab", shortID("0123456789abcdef"))
}

func TestFormatEvent(t *testing.T) {
	line := stripANSI(formatEvent(dto.Event{
		ContainerID: "c-1",
		Name:        "db",
		Previous:    "running",
		Current:     "stopped",
		Cause:       "drift-corrected",
		Message:     "runtime reported exited",
	}))
	for _, want := range []string{"db", "drift-corrected", "running -> ", "stopped", "runtime reported exited"} {
		assert.Contains(t, line, want)
	}
}

func TestCommandsUsePresentationHelpers(t *testing.T) {
	for _, expect := range presentationExpectations {
		t.Run(expect.file, func(t *testing.T) {
			fset := token.NewFileSet()
			fileNode, err := parser.ParseFile(fset, expect.file, nil, parser.AllErrors)
			require.NoError(t, err)

			for _, fnName := range expect.functions {
				t.Run(fnName, func(t *testing.T) {
					fn := findFuncDecl(fileNode, fnName)
					require.NotNil(t, fn, "function %s not found in %s", fnName, expect.file)

					hasHelperCall := false
					hasForbiddenRawPrint := false

					ast.Inspect(fn.Body, func(n ast.Node) bool {
						call, ok := n.(*ast.CallExpr)
						if !ok {
							return true
						}
						switch fun := call.Fun.(type) {
						case *ast.Ident:
							if _, ok := presentationHelperCalls[fun.Name]; ok {
								hasHelperCall = true
							}
						case *ast.SelectorExpr:
							if isForbiddenRawPrintCall(fun) {
								hasForbiddenRawPrint = true
							}
						}
						return true
					})

					assert.True(t, hasHelperCall, "%s does not use the presentation helpers", fnName)
					assert.False(t, hasForbiddenRawPrint, "%s prints directly", fnName)
				})
			}
		})
	}
}

func isForbiddenRawPrintCall(sel *ast.SelectorExpr) bool {
	pkgIdent, ok := sel.X.(*ast.Ident)
	if !ok {
		return false
	}
	if pkgIdent.Name == "fmt" {
		switch sel.Sel.Name {
		case "Print", "Printf", "Println", "Fprint", "Fprintf", "Fprintln":
			return true
		}
	}
	return pkgIdent.Name == "cmd" && strings.HasPrefix(sel.Sel.Name, "Print")
}

func TestPresentationRuntimeSeams(t *testing.T) {
	presentationSeamMu.Lock()
	defer presentationSeamMu.Unlock()

	origWriteLine := cliWriteLine
	origWritef := cliWritef
	t.Cleanup(func() {
		cliWriteLine = origWriteLine
		cliWritef = origWritef
	})

	lineCalls := 0
	writefCalls := 0
	cliWriteLine = func(w io.Writer, msg string) error {
		lineCalls++
		_, err := io.WriteString(w, msg+"\n")
		return err
	}
	cliWritef = func(w io.Writer, format string, args ...any) error {
		writefCalls++
		_, err := io.WriteString(w, "formatted\n")
		return err
	}

	versionCmd := newVersionCmd(&globalFlags{})
	versionCmd.SetArgs([]string{"--client"})
	versionCmd.SetOut(new(bytes.Buffer))
	require.NoError(t, versionCmd.Execute())

	var buf bytes.Buffer
	require.NoError(t, writeContainerDetail(&buf, dto.Container{ID: "c-1", Name: "db", Status: "running"}))

	assert.Positive(t, lineCalls)
	assert.Positive(t, writefCalls)
}

func findFuncDecl(file *ast.File, name string) *ast.FuncDecl {
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		if fn.Name.Name == name {
			return fn
		}
	}
	return nil
}
