package main

import (
	"go/ast"
	"go/types"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

const spannerPkg = "cloud.google.com/go/spanner"

// Analyzer reports direct *spanner.Client calls made inside a function literal
// handed to a transaction scope's Execute. Such calls run outside the
// scope's read-write transaction, so their reads are not validated at commit
// and their writes are not rolled back with it.
var Analyzer = &analysis.Analyzer{
	Name:     "spannercheck",
	Doc:      "report *spanner.Client calls inside transaction scope callbacks",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

func run(pass *analysis.Pass) (interface{}, error) {
	insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	insp.Preorder([]ast.Node{(*ast.CallExpr)(nil)}, func(n ast.Node) {
		call := n.(*ast.CallExpr)
		if !isExecuteCall(call) {
			return
		}
		for _, arg := range call.Args {
			lit, ok := arg.(*ast.FuncLit)
			if !ok {
				continue
			}
			checkBody(pass, lit.Body)
		}
	})
	return nil, nil
}

// isExecuteCall matches scope.Execute(ctx, fn) and
// transaction.ExecuteWithResult(ctx, scope, fn).
func isExecuteCall(call *ast.CallExpr) bool {
	switch fun := call.Fun.(type) {
	case *ast.SelectorExpr:
		return fun.Sel.Name == "Execute" || fun.Sel.Name == "ExecuteWithResult"
	case *ast.IndexExpr:
		sel, ok := fun.X.(*ast.SelectorExpr)
		return ok && sel.Sel.Name == "ExecuteWithResult"
	}
	return false
}

func checkBody(pass *analysis.Pass, body *ast.BlockStmt) {
	ast.Inspect(body, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		if isSpannerClient(pass.TypesInfo.TypeOf(sel.X)) {
			pass.Reportf(call.Pos(), "spanner.Client.%s inside a transaction scope runs outside the transaction", sel.Sel.Name)
		}
		return true
	})
}

func isSpannerClient(t types.Type) bool {
	if t == nil {
		return false
	}
	if ptr, ok := t.(*types.Pointer); ok {
		t = ptr.Elem()
	}
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj.Pkg() != nil && obj.Pkg().Path() == spannerPkg && obj.Name() == "Client"
}
